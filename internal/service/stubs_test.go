package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/boddenberg/intranet-sector-agent-go/internal/domain"
)

// --- Mocks ---

type fetchCall struct {
	Endpoint string
	Query    domain.FetchQuery
}

type stubFetcher struct {
	mu      sync.Mutex
	pages   map[string][][]json.RawMessage
	errs    map[string]error
	calls   []fetchCall
	fetchFn func(ep domain.EndpointConfig, q domain.FetchQuery) ([]json.RawMessage, error)
}

func (s *stubFetcher) Fetch(_ context.Context, ep domain.EndpointConfig, q domain.FetchQuery) ([]json.RawMessage, error) {
	s.mu.Lock()
	s.calls = append(s.calls, fetchCall{Endpoint: ep.Name, Query: q})
	s.mu.Unlock()

	if s.fetchFn != nil {
		return s.fetchFn(ep, q)
	}
	if err := s.errs[ep.Name]; err != nil {
		return nil, err
	}
	pages := s.pages[ep.Name]
	if q.Page < 1 || q.Page > len(pages) {
		return nil, nil
	}
	return pages[q.Page-1], nil
}

func (s *stubFetcher) Calls() []fetchCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]fetchCall(nil), s.calls...)
}

type stubDocs struct {
	mu       sync.Mutex
	docs     []domain.StoredDocument
	err      error
	upserted map[string]domain.SyncRecord
	batches  int
}

func (s *stubDocs) RecentDocuments(_ context.Context, _ []string, _ int) ([]domain.StoredDocument, error) {
	return s.docs, s.err
}

func (s *stubDocs) UpsertDocuments(_ context.Context, records []domain.SyncRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.upserted == nil {
		s.upserted = map[string]domain.SyncRecord{}
	}
	for _, r := range records {
		s.upserted[r.OriginalFilename] = r
	}
	s.batches++
	return nil
}

func (s *stubDocs) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.upserted)
}

type stubSupport struct {
	tickets       []domain.SupportTicket
	ticketsErr    error
	touchpoints   []domain.Touchpoint
	opportunities []domain.Opportunity
	visits        []domain.Visit
	employees     []domain.Employee
	complaints    []domain.Complaint
	announcements []domain.Announcement
	timeBank      []domain.TimeBankEntry
}

func (s *stubSupport) ListSupportTickets(context.Context, int) ([]domain.SupportTicket, error) {
	return s.tickets, s.ticketsErr
}
func (s *stubSupport) ListTouchpoints(context.Context, int) ([]domain.Touchpoint, error) {
	return s.touchpoints, nil
}
func (s *stubSupport) ListOpportunities(context.Context, int) ([]domain.Opportunity, error) {
	return s.opportunities, nil
}
func (s *stubSupport) ListVisits(context.Context, int) ([]domain.Visit, error) {
	return s.visits, nil
}
func (s *stubSupport) ListEmployees(context.Context, int) ([]domain.Employee, error) {
	return s.employees, nil
}
func (s *stubSupport) ListComplaints(context.Context, int) ([]domain.Complaint, error) {
	return s.complaints, nil
}
func (s *stubSupport) ListAnnouncements(context.Context, int) ([]domain.Announcement, error) {
	return s.announcements, nil
}
func (s *stubSupport) ListTimeBank(context.Context, int) ([]domain.TimeBankEntry, error) {
	return s.timeBank, nil
}

type stubKanban struct {
	text string
	err  error
}

func (s *stubKanban) Scrape(context.Context) (string, error) { return s.text, s.err }

type stubLLM struct {
	system   string
	provider string
	err      error
	checkErr error
	opened   int
}

func (s *stubLLM) Check(string) error { return s.checkErr }

func (s *stubLLM) Open(_ context.Context, provider, system string, _ []domain.ConversationMessage) (*domain.LLMStream, error) {
	s.opened++
	s.provider = provider
	s.system = system
	if s.err != nil {
		return nil, s.err
	}
	return &domain.LLMStream{
		Provider:    "gemini",
		ContentType: "text/event-stream",
		Body:        io.NopCloser(strings.NewReader("data: ok\n\n")),
	}, nil
}

type stubTrigger struct {
	mu      sync.Mutex
	sectors []string
}

func (s *stubTrigger) Trigger(_ context.Context, p domain.SectorProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sectors = append(s.sectors, p.ID)
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads []any
}

func (p *recordingPublisher) Publish(subject string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

var errBoom = errors.New("boom")
