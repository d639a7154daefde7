package budget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestBudget_Exceeded(t *testing.T) {
	c := newClock()
	b := New(90*time.Second, WithClock(c.Now))

	assert.False(t, b.Exceeded())
	assert.Equal(t, 90*time.Second, b.Remaining())

	c.Advance(60 * time.Second)
	assert.False(t, b.Exceeded())
	assert.Equal(t, 30*time.Second, b.Remaining())
	assert.Equal(t, 60*time.Second, b.Elapsed())

	c.Advance(30 * time.Second)
	assert.True(t, b.Exceeded())
	assert.Equal(t, time.Duration(0), b.Remaining())
}

func TestBudget_Unlimited(t *testing.T) {
	b := Unlimited()
	assert.False(t, b.Exceeded())
	assert.Greater(t, b.Remaining(), 1000*time.Hour)

	var nilBudget *Budget
	assert.False(t, nilBudget.Exceeded())
}

func TestBudget_Child(t *testing.T) {
	c := newClock()
	parent := New(170*time.Second, WithClock(c.Now))

	child := parent.Child(90 * time.Second)
	assert.Equal(t, 90*time.Second, child.Limit())

	c.Advance(100 * time.Second)
	assert.True(t, child.Exceeded())
	assert.False(t, parent.Exceeded())

	// Bounded by what the parent has left.
	second := parent.Child(90 * time.Second)
	assert.Equal(t, 70*time.Second, second.Limit())

	c.Advance(70 * time.Second)
	assert.True(t, parent.Exceeded())

	spent := parent.Child(90 * time.Second)
	assert.True(t, spent.Exceeded())
}

func TestBudget_ChildOfUnlimited(t *testing.T) {
	c := newClock()
	parent := New(0, WithClock(c.Now))

	child := parent.Child(10 * time.Second)
	assert.Equal(t, 10*time.Second, child.Limit())

	open := parent.Child(0)
	c.Advance(time.Hour)
	assert.False(t, open.Exceeded())
}
