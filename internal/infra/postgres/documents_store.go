// Package postgres is the direct-SQL document store, used when the
// snapshots table is reachable through a Postgres connection string.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/boddenberg/intranet-sector-agent-go/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("postgres")

const recentDocumentsSQL = `
SELECT content, metadata, created_at
FROM documents
WHERE source_type = $1
  AND metadata->>'endpoint' = ANY($2)
ORDER BY created_at DESC
LIMIT $3`

const upsertDocumentSQL = `
INSERT INTO documents (content, sector, source_type, original_filename, metadata)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (original_filename) DO UPDATE
SET content = EXCLUDED.content,
    sector = EXCLUDED.sector,
    source_type = EXCLUDED.source_type,
    metadata = EXCLUDED.metadata`

// Store implements port.DocumentStore over pgx.
type Store struct {
	pool *pgxpool.Pool
}

// New connects and pings the database.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// RecentDocuments lists the newest synchronized documents of endpoints.
func (s *Store) RecentDocuments(ctx context.Context, endpoints []string, limit int) ([]domain.StoredDocument, error) {
	ctx, span := tracer.Start(ctx, "Postgres.RecentDocuments")
	defer span.End()
	span.SetAttributes(attribute.StringSlice("documents.endpoints", endpoints))

	docs := []domain.StoredDocument{}
	if len(endpoints) == 0 {
		return docs, nil
	}

	rows, err := s.pool.Query(ctx, recentDocumentsSQL, domain.SourceTypeHoldprintSync, endpoints, limit)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "postgres/documents", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var (
			d        domain.StoredDocument
			metadata []byte
			created  time.Time
		)
		if err := rows.Scan(&d.Content, &metadata, &created); err != nil {
			return nil, &domain.ErrExternalService{Service: "postgres/documents", Err: err}
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &d.Metadata); err != nil {
				continue
			}
		}
		d.CreatedAt = created
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.ErrExternalService{Service: "postgres/documents", Err: err}
	}
	return docs, nil
}

// UpsertDocuments writes all records in one batch keyed by original_filename.
func (s *Store) UpsertDocuments(ctx context.Context, records []domain.SyncRecord) error {
	ctx, span := tracer.Start(ctx, "Postgres.UpsertDocuments")
	defer span.End()
	span.SetAttributes(attribute.Int("documents.records", len(records)))

	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		metadata, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata of %s: %w", r.OriginalFilename, err)
		}
		batch.Queue(upsertDocumentSQL, r.Content, r.Sector, r.SourceType, r.OriginalFilename, metadata)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return &domain.ErrExternalService{Service: "postgres/documents", Err: err}
	}
	return nil
}

// Name implements port.HealthChecker.
func (s *Store) Name() string { return "postgres" }

// HealthCheck pings the pool.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
