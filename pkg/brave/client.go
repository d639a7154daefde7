// Package brave provides a client for the Brave Web Search API.
package brave

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.search.brave.com/res/v1"

// Client performs web searches.
type Client interface {
	// Search runs one paginated web query. Non-2xx responses are returned with
	// their status code and no results; only transport failures are errors.
	Search(ctx context.Context, req Request) (*Response, error)
}

// Request is a single page of a web query.
type Request struct {
	Query      string
	Count      int
	Offset     int
	Country    string
	SearchLang string
}

// Response is the normalized provider response.
type Response struct {
	StatusCode int
	Results    []Result
	RateLimit  RateLimit
	Body       string // raw body for non-2xx responses, truncated
}

// Result is one web hit.
type Result struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// RateLimit is the provider-reported quota state of the binding window.
type RateLimit struct {
	Known     bool
	Remaining int
	Reset     time.Duration
}

// Exhausted reports whether the provider says no requests remain.
func (r RateLimit) Exhausted() bool {
	return r.Known && r.Remaining <= 0
}

type searchResponse struct {
	Web struct {
		Results []Result `json:"results"`
	} `json:"web"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Brave Search API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, sr Request) (*Response, error) {
	q := url.Values{}
	q.Set("q", sr.Query)
	if sr.Count > 0 {
		q.Set("count", strconv.Itoa(sr.Count))
	}
	if sr.Offset > 0 {
		q.Set("offset", strconv.Itoa(sr.Offset))
	}
	if sr.Country != "" {
		q.Set("country", sr.Country)
	}
	if sr.SearchLang != "" {
		q.Set("search_lang", sr.SearchLang)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/web/search?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "brave: create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "brave: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "brave: read response")
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		RateLimit:  ParseRateLimit(resp.Header),
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		out.Body = truncate(string(body), 512)
		return out, nil
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "brave: unmarshal response")
	}
	out.Results = parsed.Web.Results
	return out, nil
}

// ParseRateLimit reads X-RateLimit-Remaining / X-RateLimit-Reset. Both headers
// may carry one value per quota window ("1, 1999"); the binding window is the
// first exhausted one, otherwise the one with the fewest remaining requests.
func ParseRateLimit(h http.Header) RateLimit {
	remaining := parseIntList(h.Get("X-RateLimit-Remaining"))
	reset := parseIntList(h.Get("X-RateLimit-Reset"))
	if len(remaining) == 0 {
		return RateLimit{}
	}

	idx := 0
	for i, r := range remaining {
		if r <= 0 {
			idx = i
			break
		}
		if r < remaining[idx] {
			idx = i
		}
	}

	rl := RateLimit{Known: true, Remaining: remaining[idx]}
	if idx < len(reset) {
		rl.Reset = time.Duration(reset[idx]) * time.Second
	} else if len(reset) > 0 {
		rl.Reset = time.Duration(reset[0]) * time.Second
	}
	return rl
}

func parseIntList(v string) []int {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	var out []int
	for _, part := range strings.Split(v, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil
		}
		out = append(out, n)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
