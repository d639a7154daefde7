// Package search wraps the web search provider with throttling, retry and
// result normalization.
package search

import (
	"context"
	"html"
	"net/http"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/kb-harvester/internal/resilience"
	"github.com/sells-group/kb-harvester/pkg/brave"
)

// DefaultMaxRetries bounds retries on HTTP 429.
const DefaultMaxRetries = 3

// Result is a normalized search hit.
type Result struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Page is one page of results. Failures never surface as errors: they yield
// an empty page with the status and whether the provider throttled us.
type Page struct {
	Results     []Result
	RateLimited bool
	Status      int
}

// Config configures the Adapter.
type Config struct {
	Country    string
	SearchLang string
	MaxRetries int
}

// Searcher is the contract consumed by the harvest orchestrator.
type Searcher interface {
	Search(ctx context.Context, query string, count, offset int) Page
}

// Adapter issues provider queries through a Throttle.
type Adapter struct {
	client   brave.Client
	throttle *Throttle
	cfg      Config
}

// NewAdapter creates an Adapter. A nil throttle gets an unpaced one.
func NewAdapter(client brave.Client, throttle *Throttle, cfg Config) *Adapter {
	if throttle == nil {
		throttle = NewThrottle(0)
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	return &Adapter{client: client, throttle: throttle, cfg: cfg}
}

// Throttle returns the adapter's throttle state.
func (a *Adapter) Throttle() *Throttle {
	return a.throttle
}

// Search runs one page of query. On 429 it retries up to MaxRetries times,
// waiting 2^attempt seconds; if still throttled it returns an empty page with
// RateLimited set. 402 (quota exhausted) is reported the same way.
func (a *Adapter) Search(ctx context.Context, query string, count, offset int) Page {
	log := zap.L().With(zap.String("query", query), zap.Int("offset", offset))

	policy := resilience.DoublingSeconds(a.cfg.MaxRetries)
	policy.Retryable = resilience.Throttled
	policy.Sleep = a.throttle.Sleep
	policy.Notify = resilience.LogRetries("search", "web_search")

	resp, err := resilience.Call(ctx, policy, func(ctx context.Context) (*brave.Response, error) {
		if err := a.throttle.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "search: throttle wait")
		}
		resp, err := a.client.Search(ctx, brave.Request{
			Query:      query,
			Count:      count,
			Offset:     offset,
			Country:    a.cfg.Country,
			SearchLang: a.cfg.SearchLang,
		})
		if err != nil {
			return nil, eris.Wrap(err, "search: provider call")
		}
		a.throttle.Observe(resp.RateLimit)
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, resilience.WithStatus(eris.Errorf("search: status 429: %s", resp.Body), resp.StatusCode)
		}
		return resp, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			log.Debug("search: cancelled", zap.Error(ctx.Err()))
			return Page{}
		}
		if resilience.Throttled(err) {
			log.Warn("search: rate limited after retries", zap.Int("retries", a.cfg.MaxRetries))
			return Page{RateLimited: true, Status: http.StatusTooManyRequests}
		}
		log.Warn("search: request failed", zap.Error(err))
		return Page{}
	}

	switch {
	case resp.StatusCode == http.StatusPaymentRequired:
		log.Warn("search: quota exhausted", zap.Int("status", resp.StatusCode))
		return Page{RateLimited: true, Status: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		log.Warn("search: unexpected status", zap.Int("status", resp.StatusCode), zap.String("body", resp.Body))
		return Page{Status: resp.StatusCode}
	}

	return Page{Results: Normalize(resp.Results), Status: resp.StatusCode}
}

var tagRe = regexp.MustCompile(`<[^>]*>`)

// Normalize converts provider results into {url, title, snippet}, stripping
// markup and dropping hits without a URL.
func Normalize(in []brave.Result) []Result {
	out := make([]Result, 0, len(in))
	for _, r := range in {
		u := strings.TrimSpace(r.URL)
		if u == "" {
			continue
		}
		out = append(out, Result{
			URL:     u,
			Title:   cleanText(r.Title),
			Snippet: cleanText(r.Description),
		})
	}
	return out
}

func cleanText(s string) string {
	s = html.UnescapeString(tagRe.ReplaceAllString(s, ""))
	return strings.Join(strings.Fields(s), " ")
}
