package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/boddenberg/intranet-sector-agent-go/internal/domain"
	"github.com/boddenberg/intranet-sector-agent-go/internal/infra/resilience"
	"github.com/boddenberg/intranet-sector-agent-go/internal/port"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/net/html"
)

const (
	kanbanMaxChars = 4000
	kanbanMinChars = 50
	kanbanMaxBody  = 4 << 20
	kanbanCacheKey = "kanban:text"
)

// skippedTags never contribute visible text.
var skippedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"svg":      true,
	"iframe":   true,
	"head":     true,
}

// KanbanScraper reads the visible text of the external production board.
// The page is uncontrolled: every failure is an *domain.ErrScrapeUnavailable.
type KanbanScraper struct {
	httpClient *http.Client
	pageURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	cache      port.TextCache
	cacheTTL   time.Duration
}

// NewKanbanScraper creates a scraper. cache may be nil.
func NewKanbanScraper(httpClient *http.Client, pageURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, cache port.TextCache, cacheTTL time.Duration) *KanbanScraper {
	return &KanbanScraper{
		httpClient: httpClient,
		pageURL:    pageURL,
		cb:         cb,
		cfg:        cfg,
		cache:      cache,
		cacheTTL:   cacheTTL,
	}
}

// Scrape returns the board text, whitespace-collapsed and truncated.
func (s *KanbanScraper) Scrape(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "KanbanScraper.Scrape")
	defer span.End()

	if s.pageURL == "" {
		return "", &domain.ErrScrapeUnavailable{Reason: "KANBAN_URL não configurada"}
	}

	if s.cache != nil {
		if text, ok := s.cache.GetText(ctx, kanbanCacheKey); ok {
			span.SetAttributes(attribute.Bool("kanban.cached", true))
			return text, nil
		}
	}

	var page string
	_, err := s.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, s.cfg, func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.pageURL, nil)
			if err != nil {
				return resilience.Permanent(err)
			}
			req.Header.Set("Accept", "text/html")

			resp, err := s.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return fmt.Errorf("HTTP %d", resp.StatusCode)
			}

			text, err := ExtractText(io.LimitReader(resp.Body, kanbanMaxBody))
			if err != nil {
				return err
			}
			page = text
			return nil
		})
	})
	if err != nil {
		return "", &domain.ErrScrapeUnavailable{Reason: err.Error()}
	}

	if utf8.RuneCountInString(page) < kanbanMinChars {
		return "", &domain.ErrScrapeUnavailable{Reason: "página sem conteúdo suficiente"}
	}
	page = truncateRunes(page, kanbanMaxChars)
	span.SetAttributes(attribute.Int("kanban.chars", utf8.RuneCountInString(page)))

	if s.cache != nil && s.cacheTTL > 0 {
		s.cache.SetText(ctx, kanbanCacheKey, page, s.cacheTTL)
	}
	return page, nil
}

// ExtractText walks an HTML document and returns its visible text with
// whitespace collapsed to single spaces. Scripts and styles are dropped.
func ExtractText(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)
	var b strings.Builder
	skipDepth := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return strings.Join(strings.Fields(b.String()), " "), nil
			}
			return "", z.Err()
		case html.StartTagToken:
			name, _ := z.TagName()
			if skippedTags[string(name)] {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if skippedTags[string(name)] && skipDepth > 0 {
				skipDepth--
			}
			b.WriteByte(' ')
		case html.SelfClosingTagToken:
			b.WriteByte(' ')
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
