package client

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/boddenberg/intranet-sector-agent-go/internal/domain"
	"github.com/boddenberg/intranet-sector-agent-go/internal/infra/resilience"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("client")

// holdprintDate is the date layout accepted by the ERP filters.
const holdprintDate = "2006-01-02"

// listKeys are the wrapper fields the ERP uses around result lists.
var listKeys = []string{"data", "items", "results", "content", "records"}

// HoldprintClient reads paginated resources from the Holdprint ERP REST API.
type HoldprintClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	breakers   *resilience.Breakers
	cfg        resilience.Config
}

// NewHoldprintClient creates a new HoldprintClient. apiKey is the
// sector-independent key used when a query carries none.
func NewHoldprintClient(httpClient *http.Client, baseURL, apiKey string, breakers *resilience.Breakers, cfg resilience.Config) *HoldprintClient {
	return &HoldprintClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		breakers:   breakers,
		cfg:        cfg,
	}
}

// Fetch reads one page of an endpoint. A non-2xx answer or a transport
// failure is an error; a body that is not a recognizable record list is
// an empty page.
func (c *HoldprintClient) Fetch(ctx context.Context, endpoint domain.EndpointConfig, q domain.FetchQuery) ([]json.RawMessage, error) {
	ctx, span := tracer.Start(ctx, "HoldprintClient.Fetch")
	defer span.End()
	span.SetAttributes(
		attribute.String("holdprint.endpoint", endpoint.Name),
		attribute.Int("holdprint.page", q.Page),
	)

	apiKey := q.APIKey
	if apiKey == "" {
		apiKey = c.apiKey
	}
	if apiKey == "" {
		err := &domain.ErrMissingConfig{Key: "HOLDPRINT_API_KEY"}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	reqURL := c.buildURL(endpoint, q)
	var records []json.RawMessage

	_, err := c.breakers.For(breakerKey(endpoint.Name, q.APIKey)).Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
			if err != nil {
				return resilience.Permanent(err)
			}
			httpReq.Header.Set("x-api-key", apiKey)
			httpReq.Header.Set("Accept", "application/json")

			resp, err := c.httpClient.Do(httpReq)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}

			switch {
			case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
				return resilience.Rejected(fmt.Errorf("HTTP %d", resp.StatusCode))
			case resp.StatusCode < 200 || resp.StatusCode >= 300:
				return fmt.Errorf("HTTP %d", resp.StatusCode)
			}

			records = decodeRecords(body)
			return nil
		})
	})

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, &domain.ErrExternalService{Service: "holdprint/" + endpoint.Name, Err: err}
	}

	span.SetAttributes(attribute.Int("holdprint.records", len(records)))
	return records, nil
}

// breakerKey scopes a breaker to the credential in use: calls with the
// client key and calls with a unit token never share failure counts.
func breakerKey(endpoint, unitKey string) string {
	if unitKey == "" {
		return endpoint
	}
	sum := sha256.Sum256([]byte(unitKey))
	return "token:" + hex.EncodeToString(sum[:4]) + "/" + endpoint
}

func (c *HoldprintClient) buildURL(endpoint domain.EndpointConfig, q domain.FetchQuery) string {
	params := url.Values{}
	page, size := q.Page, q.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	params.Set(endpoint.PageParam, strconv.Itoa(page))
	params.Set(endpoint.PageSizeParam, strconv.Itoa(size))
	params.Set("language", "pt-BR")
	if endpoint.UsesDateRange && q.Window != nil {
		params.Set(endpoint.StartDateParam, q.Window.Start.Format(holdprintDate))
		params.Set(endpoint.EndDateParam, q.Window.End.Format(holdprintDate))
	}
	return c.baseURL + endpoint.Path + "?" + params.Encode()
}

// decodeRecords accepts a bare JSON array or an object wrapping the list.
// Anything else yields an empty list.
func decodeRecords(body []byte) []json.RawMessage {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return []json.RawMessage{}
	}

	var list []json.RawMessage
	if body[0] == '[' {
		if err := json.Unmarshal(body, &list); err == nil {
			return list
		}
		return []json.RawMessage{}
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return []json.RawMessage{}
	}
	for _, k := range listKeys {
		raw, ok := wrapper[k]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &list); err == nil {
			return list
		}
	}
	return []json.RawMessage{}
}
