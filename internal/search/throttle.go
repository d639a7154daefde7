package search

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/kb-harvester/internal/resilience"
	"github.com/sells-group/kb-harvester/pkg/brave"
)

// minQuotaWait is the shortest pause after the provider reports an exhausted quota.
const minQuotaWait = time.Second

// Throttle holds the provider's latest rate-limit signal for one run. It is
// owned by a single Adapter and shared by reference with whoever needs it.
type Throttle struct {
	mu        sync.Mutex
	limiter   *rate.Limiter
	sleep     resilience.SleepFunc
	known     bool
	remaining int
	reset     time.Duration
}

// ThrottleOption configures a Throttle.
type ThrottleOption func(*Throttle)

// WithSleep replaces the real sleep, for tests.
func WithSleep(fn resilience.SleepFunc) ThrottleOption {
	return func(t *Throttle) {
		t.sleep = fn
	}
}

// NewThrottle paces requests to at most rps per second (unlimited when rps <= 0).
func NewThrottle(rps float64, opts ...ThrottleOption) *Throttle {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	t := &Throttle{
		limiter: rate.NewLimiter(limit, 1),
		sleep:   resilience.Wait,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Observe records the quota state reported with the latest response.
func (t *Throttle) Observe(rl brave.RateLimit) {
	if !rl.Known {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.known = true
	t.remaining = rl.Remaining
	t.reset = rl.Reset
}

// Exhausted reports whether the last observation said no requests remain.
func (t *Throttle) Exhausted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.known && t.remaining <= 0
}

// Remaining returns the last reported remaining quota and whether it is known.
func (t *Throttle) Remaining() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining, t.known
}

// Wait blocks until the next request may be issued: for max(reset, 1s) when
// the quota is exhausted, then for the steady pacing limiter.
func (t *Throttle) Wait(ctx context.Context) error {
	t.mu.Lock()
	var wait time.Duration
	if t.known && t.remaining <= 0 {
		wait = t.reset
		if wait < minQuotaWait {
			wait = minQuotaWait
		}
		t.known = false
	}
	t.mu.Unlock()

	if wait > 0 {
		zap.L().Debug("search: quota exhausted, waiting for reset", zap.Duration("wait", wait))
		if err := t.sleep(ctx, wait); err != nil {
			return err
		}
	}
	return t.limiter.Wait(ctx)
}

// Sleep exposes the throttle's sleep so retries share the same clock.
func (t *Throttle) Sleep(ctx context.Context, d time.Duration) error {
	return t.sleep(ctx, d)
}
