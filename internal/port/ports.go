// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"encoding/json"
	"time"

	"github.com/boddenberg/intranet-sector-agent-go/internal/domain"
)

// SectorRegistry resolves sector profiles and endpoint configs.
type SectorRegistry interface {
	Resolve(sectorID string) domain.SectorProfile
	Endpoint(name string) (domain.EndpointConfig, bool)
	Sectors() []string
}

// RecordFetcher reads one page of raw records from the ERP.
type RecordFetcher interface {
	Fetch(ctx context.Context, endpoint domain.EndpointConfig, q domain.FetchQuery) ([]json.RawMessage, error)
}

// DocumentStore reads and writes the synchronized ERP snapshots.
type DocumentStore interface {
	RecentDocuments(ctx context.Context, endpoints []string, limit int) ([]domain.StoredDocument, error)
	UpsertDocuments(ctx context.Context, records []domain.SyncRecord) error
}

// SupportStore reads the internal CS, HR and communication tables.
type SupportStore interface {
	ListSupportTickets(ctx context.Context, limit int) ([]domain.SupportTicket, error)
	ListTouchpoints(ctx context.Context, limit int) ([]domain.Touchpoint, error)
	ListOpportunities(ctx context.Context, limit int) ([]domain.Opportunity, error)
	ListVisits(ctx context.Context, limit int) ([]domain.Visit, error)
	ListEmployees(ctx context.Context, limit int) ([]domain.Employee, error)
	ListComplaints(ctx context.Context, limit int) ([]domain.Complaint, error)
	ListAnnouncements(ctx context.Context, limit int) ([]domain.Announcement, error)
	ListTimeBank(ctx context.Context, limit int) ([]domain.TimeBankEntry, error)
}

// KanbanScraper extracts visible text from the external production board.
// Failures are reported as *domain.ErrScrapeUnavailable.
type KanbanScraper interface {
	Scrape(ctx context.Context) (string, error)
}

// LLMGateway opens a streaming completion with the selected provider.
type LLMGateway interface {
	// Check reports whether the provider can be called at all, before any
	// context is gathered for it.
	Check(provider string) error
	Open(ctx context.Context, provider, system string, history []domain.ConversationMessage) (*domain.LLMStream, error)
}

// EventPublisher publishes JSON-encoded events.
type EventPublisher interface {
	Publish(subject string, data any) error
}

// TextCache is a context-aware string cache (in-memory or Redis).
type TextCache interface {
	GetText(ctx context.Context, key string) (string, bool)
	SetText(ctx context.Context, key, value string, ttl time.Duration)
}

// HealthChecker is implemented by dependencies reported on /healthz.
type HealthChecker interface {
	Name() string
	HealthCheck(ctx context.Context) error
}
