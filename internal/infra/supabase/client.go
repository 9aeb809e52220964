// Package supabase provides a client for Supabase PostgREST.
// Used as the document store of the synchronized ERP snapshots and as the
// read-only source of the internal CS, HR and communication tables.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/boddenberg/intranet-sector-agent-go/internal/domain"
	"github.com/boddenberg/intranet-sector-agent-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("supabase")

// Client wraps HTTP calls to Supabase PostgREST API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	serviceRoleKey string
	cb             *gobreaker.CircuitBreaker
	cfg            resilience.Config
	logger         *zap.Logger
}

// NewClient creates a Supabase client.
func NewClient(httpClient *http.Client, baseURL, apiKey, serviceRoleKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	if serviceRoleKey == "" {
		serviceRoleKey = apiKey
	}
	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		apiKey:         apiKey,
		serviceRoleKey: serviceRoleKey,
		cb:             cb,
		cfg:            cfg,
		logger:         logger,
	}
}

// do sends one authenticated PostgREST call. payload, when non-nil, is
// JSON-encoded as the body. 404 and 204 answer (nil, nil). Client errors
// other than 429 are permanent so the retry loop gives up on them.
func (c *Client) do(ctx context.Context, method, path string, payload any, prefer string) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, resilience.Permanent(fmt.Errorf("encode %s payload: %w", path, err))
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/rest/v1/"+path, reqBody)
	if err != nil {
		return nil, resilience.Permanent(err)
	}
	c.setHeaders(req, prefer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("supabase: request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusNoContent:
		return nil, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.logger.Debug("supabase: request OK",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return body, nil
	}

	c.logger.Warn("supabase: non-2xx response",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.String("body", string(body)),
	)
	err = fmt.Errorf("supabase %s %s returned %d: %s", method, path, resp.StatusCode, string(body))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return nil, resilience.Permanent(err)
	}
	return nil, err
}

func (c *Client) setHeaders(req *http.Request, prefer string) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.serviceRoleKey))
	req.Header.Set("Content-Type", "application/json")
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}
}

// selectRows runs a GET against path under the breaker and decodes the rows
// into out. An empty answer leaves out untouched.
func (c *Client) selectRows(ctx context.Context, table, path string, out any) error {
	ctx, span := tracer.Start(ctx, "Supabase.Select")
	defer span.End()
	span.SetAttributes(attribute.String("supabase.table", table))

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := c.do(ctx, http.MethodGet, path, nil, "")
			if err != nil {
				return err
			}
			if len(body) == 0 {
				return nil
			}
			if err := json.Unmarshal(body, out); err != nil {
				return resilience.Permanent(fmt.Errorf("failed to decode %s: %w", table, err))
			}
			return nil
		})
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/" + table, Err: err}
	}
	return nil
}

// Name implements port.HealthChecker.
func (c *Client) Name() string { return "supabase" }

// HealthCheck performs a cheap read on the documents table.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "documents?select=original_filename&limit=1", nil, "")
	return err
}
