package fetcher

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/kb-harvester/internal/resilience"
)

// HTTP defaults.
const (
	DefaultHTTPTimeout = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultUserAgent   = "kb-harvester/1.0"
	DefaultHostRate    = rate.Limit(5)
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	// HostRate paces requests per host; HostBurst defaults to 1.
	HostRate  rate.Limit
	HostBurst int
	Sleep     resilience.SleepFunc
}

// HTTPFetcher downloads over HTTP with per-host pacing and retries on
// transient statuses.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPFetcher creates an HTTPFetcher.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultHTTPTimeout
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.HostRate <= 0 {
		opts.HostRate = DefaultHostRate
	}
	if opts.HostBurst <= 0 {
		opts.HostBurst = 1
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (f *HTTPFetcher) limiterFor(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = rate.NewLimiter(f.opts.HostRate, f.opts.HostBurst)
		f.limiters[host] = lim
	}
	return lim
}

// Download fetches src and returns the body of a 200 response. 408, 429 and
// 5xx responses and transient network errors are retried with backoff.
func (f *HTTPFetcher) Download(ctx context.Context, src string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	policy := resilience.APIPolicy()
	policy.Attempts = f.opts.MaxRetries
	policy.Sleep = f.opts.Sleep
	policy.Notify = resilience.LogRetries("fetcher", "download")

	return resilience.Call(ctx, policy, func(ctx context.Context) (io.ReadCloser, error) {
		if err := f.limiterFor(req.URL.Host).Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetcher: rate limiter wait")
		}
		resp, err := f.client.Do(req.Clone(ctx))
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: get %s", src)
		}
		if resp.StatusCode == http.StatusOK {
			return resp.Body, nil
		}
		_ = resp.Body.Close()

		statusErr := eris.Errorf("fetcher: unexpected status %d from %s", resp.StatusCode, src)
		if resilience.RetryableStatus(resp.StatusCode) {
			return nil, resilience.WithStatus(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	})
}

// DownloadToFile fetches src into path.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, src, path string) (int64, error) {
	body, err := f.Download(ctx, src)
	if err != nil {
		return 0, err
	}
	return saveTo(body, path)
}
