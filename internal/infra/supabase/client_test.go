package supabase_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/intranet-sector-agent-go/internal/domain"
	"github.com/boddenberg/intranet-sector-agent-go/internal/infra/resilience"
	"github.com/boddenberg/intranet-sector-agent-go/internal/infra/supabase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newClient(url string) *supabase.Client {
	return supabase.NewClient(http.DefaultClient, url, "anon", "service",
		resilience.NewCircuitBreaker("supabase", nil), resilience.Config{}, zap.NewNop())
}

func TestRecentDocuments_Query(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/documents", r.URL.Path)
		assert.Equal(t, "anon", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer service", r.Header.Get("Authorization"))

		q := r.URL.Query()
		assert.Equal(t, "eq.holdprint_sync", q.Get("source_type"))
		assert.Equal(t, "in.(customers,budgets)", q.Get("metadata->>endpoint"))
		assert.Equal(t, "created_at.desc", q.Get("order"))
		assert.Equal(t, "50", q.Get("limit"))

		io.WriteString(w, `[{"content":"Cliente ACME","metadata":{"endpoint":"customers","unit":"poa","record_id":"7"},"created_at":"2026-10-15T10:00:00Z"}]`)
	}))
	defer srv.Close()

	docs, err := newClient(srv.URL).RecentDocuments(context.Background(), []string{"customers", "budgets"}, 50)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "customers", docs[0].Metadata.Endpoint)
	assert.Equal(t, "Cliente ACME", docs[0].Content)
}

func TestRecentDocuments_ErrorIsExternalService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).RecentDocuments(context.Background(), []string{"jobs"}, 50)
	var ext *domain.ErrExternalService
	require.True(t, errors.As(err, &ext))
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCalls int32
	}{
		{"bad request", http.StatusBadRequest, 1},
		{"rate limited", http.StatusTooManyRequests, 3},
		{"server error", http.StatusBadGateway, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := supabase.NewClient(http.DefaultClient, srv.URL, "anon", "",
				resilience.NewCircuitBreaker("supabase-"+tt.name, nil),
				resilience.Config{MaxRetries: 2, InitialBackoff: time.Millisecond}, zap.NewNop())

			_, err := c.ListVisits(context.Background(), 5)
			require.Error(t, err)
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestUpsertDocuments_ConflictKeyAndPrefer(t *testing.T) {
	var received []domain.SyncRecord
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "original_filename", r.URL.Query().Get("on_conflict"))
		assert.Equal(t, "resolution=merge-duplicates,return=minimal", r.Header.Get("Prefer"))

		var batch []domain.SyncRecord
		require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
		received = append(received, batch...)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	records := []domain.SyncRecord{{
		Content:          "Job 1042",
		Sector:           "operacao",
		SourceType:       domain.SourceTypeHoldprintSync,
		OriginalFilename: "holdprint_poa_jobs_1042.json",
		Metadata:         domain.SyncMetadata{Endpoint: "jobs", Unit: "poa", RecordID: "1042"},
	}}
	require.NoError(t, newClient(srv.URL).UpsertDocuments(context.Background(), records))
	require.Len(t, received, 1)
	assert.Equal(t, "holdprint_poa_jobs_1042.json", received[0].OriginalFilename)
}

func TestListSupportTickets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/support_tickets", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		io.WriteString(w, `[{"id":"1","status":"open","priority":"high","sla_breached":true,"satisfaction_rating":4.5}]`)
	}))
	defer srv.Close()

	tickets, err := newClient(srv.URL).ListSupportTickets(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.True(t, tickets[0].SLABreached)
	require.NotNil(t, tickets[0].SatisfactionRating)
	assert.Equal(t, 4.5, *tickets[0].SatisfactionRating)
}

func TestListTimeBank_EmptyIsNotNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	rows, err := newClient(srv.URL).ListTimeBank(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}
