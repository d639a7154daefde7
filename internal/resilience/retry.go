// Package resilience retries flaky outbound calls with capped exponential
// backoff.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// SleepFunc blocks for d or until ctx is done, returning ctx.Err() in the
// latter case. Tests swap it for a recorder.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy says how many times a call is attempted and how long to wait between
// attempts. Zero fields take the defaults of APIPolicy.
type Policy struct {
	Attempts int           // total tries, first one included
	Base     time.Duration // wait before the first retry
	Cap      time.Duration
	Factor   float64
	Jitter   float64 // fraction of the wait, applied +/-

	Retryable func(error) bool // defaults to Retryable
	Notify    func(attempt int, err error)
	Sleep     SleepFunc
}

// APIPolicy suits ordinary HTTP downloads: 3 tries, 500ms doubling, 25% jitter.
func APIPolicy() Policy {
	return Policy{Attempts: 3, Base: 500 * time.Millisecond, Cap: 30 * time.Second, Factor: 2, Jitter: 0.25}
}

// DoublingSeconds waits 2s, 4s, 8s... between up to retries extra attempts.
func DoublingSeconds(retries int) Policy {
	return Policy{Attempts: retries + 1, Base: 2 * time.Second, Cap: time.Minute, Factor: 2}
}

func (p Policy) withDefaults() Policy {
	d := APIPolicy()
	if p.Attempts <= 0 {
		p.Attempts = d.Attempts
	}
	if p.Base <= 0 {
		p.Base = d.Base
	}
	if p.Cap <= 0 {
		p.Cap = d.Cap
	}
	if p.Factor <= 0 {
		p.Factor = d.Factor
	}
	p.Jitter = math.Max(p.Jitter, 0)
	if p.Retryable == nil {
		p.Retryable = Retryable
	}
	if p.Sleep == nil {
		p.Sleep = Wait
	}
	return p
}

// Delay is the wait after failed attempt n (0-based).
func (p Policy) Delay(n int) time.Duration {
	d := math.Min(float64(p.Base)*math.Pow(p.Factor, float64(n)), float64(p.Cap))
	if p.Jitter > 0 {
		d += d * p.Jitter * (2*rand.Float64() - 1)
	}
	return time.Duration(math.Max(d, 0))
}

// Call runs fn until it succeeds, fails with a non-retryable error, the
// context ends, or attempts run out. The last error is returned as is.
func Call[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	var zero T
	for n := 0; ; n++ {
		v, err := fn(ctx)
		switch {
		case err == nil:
			return v, nil
		case ctx.Err() != nil, !p.Retryable(err), n+1 >= p.Attempts:
			return zero, err
		}
		if p.Notify != nil {
			p.Notify(n+1, err)
		}
		if p.Sleep(ctx, p.Delay(n)) != nil {
			return zero, err
		}
	}
}

// Wait sleeps for d unless ctx ends first.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// LogRetries returns a Notify hook that warns on every retry.
func LogRetries(component, op string) func(int, error) {
	log := zap.L().With(zap.String("component", component), zap.String("op", op))
	return func(attempt int, err error) {
		log.Warn("retrying", zap.Int("attempt", attempt), zap.Error(err))
	}
}
