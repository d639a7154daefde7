// Package budget tracks wall-clock time budgets for orchestration loops.
// Callers check Exceeded before starting each unit of work.
package budget

import "time"

// Clock returns the current time.
type Clock func() time.Time

// Budget is a fixed wall-clock allowance measured from its creation.
// A zero or negative limit never expires.
type Budget struct {
	limit time.Duration
	start time.Time
	clock Clock
	spent bool
}

// Option configures a Budget.
type Option func(*Budget)

// WithClock replaces time.Now, for tests.
func WithClock(c Clock) Option {
	return func(b *Budget) {
		b.clock = c
	}
}

// New starts a budget of limit.
func New(limit time.Duration, opts ...Option) *Budget {
	b := &Budget{limit: limit, clock: time.Now}
	for _, o := range opts {
		o(b)
	}
	b.start = b.clock()
	return b
}

// Unlimited returns a budget that never expires.
func Unlimited() *Budget {
	return New(0)
}

// Limit returns the configured allowance.
func (b *Budget) Limit() time.Duration {
	return b.limit
}

// Elapsed returns the time spent since the budget started.
func (b *Budget) Elapsed() time.Duration {
	return b.clock().Sub(b.start)
}

// Remaining returns the time left, never negative. Unlimited budgets report
// a very large duration.
func (b *Budget) Remaining() time.Duration {
	if b.spent {
		return 0
	}
	if b.limit <= 0 {
		return time.Duration(1<<63 - 1)
	}
	left := b.limit - b.Elapsed()
	if left < 0 {
		return 0
	}
	return left
}

// Exceeded reports whether the allowance is used up.
func (b *Budget) Exceeded() bool {
	if b == nil {
		return false
	}
	if b.spent {
		return true
	}
	if b.limit <= 0 {
		return false
	}
	return b.Elapsed() >= b.limit
}

// Child starts a nested budget bounded by both limit and the parent's
// remaining time. It shares the parent's clock.
func (b *Budget) Child(limit time.Duration) *Budget {
	if b.limit <= 0 {
		return New(limit, WithClock(b.clock))
	}
	rem := b.Remaining()
	if limit <= 0 || limit > rem {
		limit = rem
	}
	child := New(limit, WithClock(b.clock))
	child.spent = rem == 0
	return child
}
