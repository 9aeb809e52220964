package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/boddenberg/intranet-sector-agent-go/internal/domain"
	"github.com/boddenberg/intranet-sector-agent-go/internal/infra/events"
	"github.com/boddenberg/intranet-sector-agent-go/internal/infra/observability"
	"github.com/boddenberg/intranet-sector-agent-go/internal/infra/resilience"
	"github.com/boddenberg/intranet-sector-agent-go/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	resyncPages      = 3
	resyncPageSize   = 50
	resyncMonths     = 3
	resyncContentMax = 1500
)

// ResyncDeps holds the collaborators of Resyncer. Units lists the ERP
// business units in sync order; a unit without a token is skipped.
type ResyncDeps struct {
	Registry      port.SectorRegistry
	ERP           port.RecordFetcher
	Store         port.DocumentStore
	Publisher     port.EventPublisher
	UnitTokens    map[string]string
	Units         []string
	MaxConcurrent int
	Metrics       *observability.Metrics
	Logger        *zap.Logger
	Now           func() time.Time
}

// Resyncer copies recent ERP records of a sector into the document store.
// Passes run detached from the request that triggered them.
type Resyncer struct {
	registry   port.SectorRegistry
	erp        port.RecordFetcher
	store      port.DocumentStore
	publisher  port.EventPublisher
	unitTokens map[string]string
	units      []string
	bulkhead   *resilience.Bulkhead
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
	wg         sync.WaitGroup
	inFlight   atomic.Int64
}

// NewResyncer creates the background resync worker.
func NewResyncer(d ResyncDeps) *Resyncer {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Publisher == nil {
		d.Publisher = events.Nop{}
	}
	if d.Metrics == nil {
		d.Metrics = observability.NewMetrics()
	}
	return &Resyncer{
		registry:   d.Registry,
		erp:        d.ERP,
		store:      d.Store,
		publisher:  d.Publisher,
		unitTokens: d.UnitTokens,
		units:      d.Units,
		bulkhead:   resilience.NewBulkhead(d.MaxConcurrent),
		metrics:    d.Metrics,
		logger:     d.Logger,
		now:        d.Now,
	}
}

// Trigger starts a pass in the background and returns immediately. The pass
// outlives ctx's cancellation but keeps its values.
func (r *Resyncer) Trigger(ctx context.Context, profile domain.SectorProfile) {
	if r.store == nil || len(profile.Endpoints) == 0 {
		return
	}
	bg := context.WithoutCancel(ctx)

	r.wg.Add(1)
	r.inFlight.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.inFlight.Add(-1)
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("resync panicked", zap.String("sector", profile.ID), zap.Any("panic", p))
			}
		}()

		if err := r.bulkhead.Acquire(bg); err != nil {
			return
		}
		defer r.bulkhead.Release()

		r.Run(bg, profile)
	}()
}

// Wait blocks until every triggered pass has finished.
func (r *Resyncer) Wait() {
	r.wg.Wait()
}

// WaitContext is Wait bounded by ctx. When ctx ends first it returns the
// number of passes still running along with ctx's error; those passes are
// abandoned to process exit.
func (r *Resyncer) WaitContext(ctx context.Context) (int, error) {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return 0, nil
	case <-ctx.Done():
		return int(r.inFlight.Load()), ctx.Err()
	}
}

// Run performs one synchronous pass over every unit and endpoint of the
// profile. Failures are logged and counted, never returned.
func (r *Resyncer) Run(ctx context.Context, profile domain.SectorProfile) domain.ResyncReport {
	ctx, span := tracer.Start(ctx, "Resyncer.Run")
	defer span.End()
	span.SetAttributes(attribute.String("sector.id", profile.ID))

	start := time.Now()
	report := domain.ResyncReport{Sector: profile.ID}
	if r.store == nil {
		r.logger.Warn("resync skipped, no document store", zap.String("sector", profile.ID))
		report.Finished = r.now()
		return report
	}

	for _, unit := range r.units {
		token := r.unitTokens[unit]
		if token == "" {
			r.logger.Debug("resync unit skipped, no token", zap.String("unit", unit))
			continue
		}
		for _, name := range profile.Endpoints {
			ep, ok := r.registry.Endpoint(name)
			if !ok {
				continue
			}
			n, failed := r.syncEndpoint(ctx, profile.ID, unit, token, ep)
			report.Upserted += n
			if failed {
				report.Failures++
			}
		}
	}

	report.Duration = time.Since(start)
	report.Finished = r.now()
	r.metrics.RecordRequestDuration("resync", report.Duration)

	if err := r.publisher.Publish(events.SubjectResyncCompleted, report); err != nil {
		r.logger.Warn("resync event not published", zap.Error(err))
	}
	r.logger.Info("resync finished",
		zap.String("sector", profile.ID),
		zap.Int("upserted", report.Upserted),
		zap.Int("failures", report.Failures),
		zap.Duration("duration", report.Duration),
	)
	return report
}

func (r *Resyncer) syncEndpoint(ctx context.Context, sector, unit, token string, ep domain.EndpointConfig) (int, bool) {
	var window *domain.DateWindow
	if ep.UsesDateRange {
		w := domain.LastMonthsWindow(r.now(), resyncMonths)
		window = &w
	}
	syncedAt := r.now().UTC().Format(time.RFC3339)

	upserted := 0
	for page := 1; page <= resyncPages; page++ {
		raw, err := r.erp.Fetch(ctx, ep, domain.FetchQuery{
			Page:     page,
			PageSize: resyncPageSize,
			Window:   window,
			APIKey:   token,
		})
		if err != nil {
			r.metrics.IncrExternalError("holdprint/" + ep.Name)
			r.logger.Warn("resync fetch failed",
				zap.String("unit", unit),
				zap.String("endpoint", ep.Name),
				zap.Int("page", page),
				zap.Error(err),
			)
			return upserted, true
		}
		if len(raw) == 0 {
			break
		}

		records := make([]domain.SyncRecord, 0, len(raw))
		for _, item := range raw {
			records = append(records, buildSyncRecord(sector, unit, ep, item, syncedAt))
		}
		if err := r.store.UpsertDocuments(ctx, records); err != nil {
			r.metrics.IncrExternalError("documents")
			r.logger.Warn("resync upsert failed",
				zap.String("unit", unit),
				zap.String("endpoint", ep.Name),
				zap.Error(err),
			)
			return upserted, true
		}
		upserted += len(records)
		r.metrics.AddResyncRecords(ep.Name, len(records))

		if len(raw) < resyncPageSize {
			break
		}
	}
	return upserted, false
}

// buildSyncRecord turns one ERP record into a document row. The filename
// is stable per unit, endpoint and record, so repeated passes overwrite.
func buildSyncRecord(sector, unit string, ep domain.EndpointConfig, raw json.RawMessage, syncedAt string) domain.SyncRecord {
	id := recordID(raw)
	return domain.SyncRecord{
		Content:          describeRecord(ep, raw),
		Sector:           sector,
		SourceType:       domain.SourceTypeHoldprintSync,
		OriginalFilename: fmt.Sprintf("holdprint_%s_%s_%s.json", unit, ep.Name, id),
		Metadata: domain.SyncMetadata{
			Endpoint: ep.Name,
			Unit:     unit,
			RecordID: id,
			SyncedAt: syncedAt,
		},
	}
}

// recordID returns the ERP id, or a content hash when the record has none.
func recordID(raw json.RawMessage) string {
	if recs := decodeObjects([]json.RawMessage{raw}); len(recs) == 1 {
		if id := recs[0].str("id", "_id", "code", "uuid"); id != "" {
			return id
		}
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:16]
}

func describeRecord(ep domain.EndpointConfig, raw json.RawMessage) string {
	head := ep.Label
	if recs := decodeObjects([]json.RawMessage{raw}); len(recs) == 1 {
		if name := recs[0].str("name", "title", "description", "fantasyName", "customerName"); name != "" {
			head += ": " + name
		}
	}
	var buf bytes.Buffer
	body := string(raw)
	if err := json.Compact(&buf, raw); err == nil {
		body = buf.String()
	}
	return head + "\n" + truncate(body, resyncContentMax)
}
