package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/boddenberg/intranet-sector-agent-go/internal/domain"
	"github.com/boddenberg/intranet-sector-agent-go/internal/infra/observability"
	"github.com/boddenberg/intranet-sector-agent-go/internal/service"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const relayBufferSize = 32 * 1024

// ============================================================
// Agente por setor: POST /v1/sector-agent
// ============================================================

func sectorAgentHandler(svc *service.SectorAgent, metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/sector-agent")
		defer span.End()

		body, err := io.ReadAll(r.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		req, err := decodeAgentRequest(body)
		if err != nil {
			metrics.IncrRequest(observability.StatusError)
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(
			attribute.String("sector.requested", req.Sector),
			attribute.Int("messages", len(req.Messages)),
		)

		stream, err := svc.Stream(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		defer stream.Body.Close()

		relayStream(w, r, stream, metrics, logger)
	}
}

// relayStream copies the provider response to the client unchanged,
// flushing after every chunk so tokens reach the browser as they arrive.
func relayStream(w http.ResponseWriter, r *http.Request, stream *domain.LLMStream, metrics *observability.Metrics, logger *zap.Logger) {
	reqID := middleware.GetReqID(r.Context())
	if reqID == "" {
		reqID = uuid.New().String()
	}

	h := w.Header()
	h.Set("Content-Type", stream.ContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Set("X-Request-Id", reqID)
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	_ = rc.Flush()

	start := time.Now()
	var written int64
	buf := make([]byte, relayBufferSize)
	for {
		n, readErr := stream.Body.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				logger.Debug("client went away during relay",
					zap.String("provider", stream.Provider),
					zap.Error(err),
				)
				metrics.IncrLLMRelay(stream.Provider, "client_closed")
				return
			}
			written += int64(n)
			_ = rc.Flush()
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			logger.Warn("upstream stream interrupted",
				zap.String("provider", stream.Provider),
				zap.Int64("bytes", written),
				zap.Error(readErr),
			)
			metrics.IncrLLMRelay(stream.Provider, "interrupted")
			return
		}
	}

	metrics.IncrLLMRelay(stream.Provider, "completed")
	logger.Debug("relay finished",
		zap.String("provider", stream.Provider),
		zap.Int64("bytes", written),
		zap.Duration("duration", time.Since(start)),
	)
}
