package supabase

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/boddenberg/intranet-sector-agent-go/internal/domain"
	"github.com/boddenberg/intranet-sector-agent-go/internal/infra/resilience"

	"go.opentelemetry.io/otel/attribute"
)

const (
	documentsTable  = "documents"
	upsertBatchSize = 100
)

// ============================================================
// Document store (implements port.DocumentStore)
// ============================================================

// RecentDocuments lists the newest synchronized ERP documents of the given
// endpoints, newest first.
func (c *Client) RecentDocuments(ctx context.Context, endpoints []string, limit int) ([]domain.StoredDocument, error) {
	if len(endpoints) == 0 {
		return []domain.StoredDocument{}, nil
	}

	q := url.Values{}
	q.Set("select", "content,metadata,created_at")
	q.Set("source_type", "eq."+domain.SourceTypeHoldprintSync)
	q.Set("metadata->>endpoint", "in.("+strings.Join(endpoints, ",")+")")
	q.Set("order", "created_at.desc")
	q.Set("limit", strconv.Itoa(limit))

	var docs []domain.StoredDocument
	if err := c.selectRows(ctx, documentsTable, documentsTable+"?"+q.Encode(), &docs); err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []domain.StoredDocument{}
	}
	return docs, nil
}

// UpsertDocuments writes records keyed by original_filename; existing rows
// are merged, so repeating a pass is harmless.
func (c *Client) UpsertDocuments(ctx context.Context, records []domain.SyncRecord) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpsertDocuments")
	defer span.End()
	span.SetAttributes(attribute.Int("supabase.records", len(records)))

	path := documentsTable + "?on_conflict=original_filename"
	for start := 0; start < len(records); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(records))
		batch := records[start:end]

		_, err := c.cb.Execute(func() (any, error) {
			return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
				_, err := c.do(ctx, http.MethodPost, path, batch, "resolution=merge-duplicates,return=minimal")
				return err
			})
		})
		if err != nil {
			return &domain.ErrExternalService{Service: "supabase/" + documentsTable, Err: err}
		}
	}
	return nil
}
