package search

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/kb-harvester/pkg/brave"
	"github.com/sells-group/kb-harvester/pkg/brave/mocks"
)

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func newTestAdapter(t *testing.T) (*Adapter, *mocks.MockClient, *sleepRecorder) {
	t.Helper()
	mc := mocks.NewMockClient(t)
	rec := &sleepRecorder{}
	th := NewThrottle(0, WithSleep(rec.sleep))
	return NewAdapter(mc, th, Config{Country: "CA", SearchLang: "fr", MaxRetries: 3}), mc, rec
}

func okResponse(results ...brave.Result) *brave.Response {
	return &brave.Response{
		StatusCode: http.StatusOK,
		Results:    results,
		RateLimit:  brave.RateLimit{Known: true, Remaining: 10, Reset: time.Second},
	}
}

func TestAdapter_Search_Success(t *testing.T) {
	a, mc, rec := newTestAdapter(t)

	mc.On("Search", mock.Anything, brave.Request{
		Query: "cabinet comptable", Count: 20, Offset: 1, Country: "CA", SearchLang: "fr",
	}).Return(okResponse(
		brave.Result{Title: "Exemple <strong>Firme</strong>", URL: "https://www.exemplefirme.qc.ca/", Description: "Comptabilit&eacute; &amp; audit"},
		brave.Result{Title: "no url"},
	), nil).Once()

	page := a.Search(context.Background(), "cabinet comptable", 20, 1)

	assert.False(t, page.RateLimited)
	assert.Equal(t, http.StatusOK, page.Status)
	require.Len(t, page.Results, 1)
	assert.Equal(t, Result{URL: "https://www.exemplefirme.qc.ca/", Title: "Exemple Firme", Snippet: "Comptabilité & audit"}, page.Results[0])
	assert.Empty(t, rec.delays)

	remaining, known := a.Throttle().Remaining()
	assert.True(t, known)
	assert.Equal(t, 10, remaining)
}

func TestAdapter_Search_RetriesAfter429(t *testing.T) {
	a, mc, rec := newTestAdapter(t)

	mc.On("Search", mock.Anything, mock.Anything).Return(&brave.Response{
		StatusCode: http.StatusTooManyRequests,
		Body:       "slow down",
	}, nil).Once()
	mc.On("Search", mock.Anything, mock.Anything).Return(okResponse(
		brave.Result{Title: "Acme", URL: "https://acme.ca", Description: "Fabricant"},
	), nil).Once()

	page := a.Search(context.Background(), "fabricant", 20, 0)

	assert.False(t, page.RateLimited)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "https://acme.ca", page.Results[0].URL)
	assert.Equal(t, []time.Duration{2 * time.Second}, rec.delays)
}

func TestAdapter_Search_GivesUpAfterRetryBound(t *testing.T) {
	a, mc, rec := newTestAdapter(t)

	mc.On("Search", mock.Anything, mock.Anything).Return(&brave.Response{
		StatusCode: http.StatusTooManyRequests,
	}, nil).Times(4)

	page := a.Search(context.Background(), "fabricant", 20, 0)

	assert.True(t, page.RateLimited)
	assert.Empty(t, page.Results)
	assert.Equal(t, http.StatusTooManyRequests, page.Status)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, rec.delays)
}

func TestAdapter_Search_CancelledDuringBackoff(t *testing.T) {
	mc := mocks.NewMockClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	th := NewThrottle(0, WithSleep(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}))
	a := NewAdapter(mc, th, Config{MaxRetries: 3})

	mc.On("Search", mock.Anything, mock.Anything).Return(&brave.Response{
		StatusCode: http.StatusTooManyRequests,
	}, nil).Once()

	page := a.Search(ctx, "fabricant", 20, 0)

	assert.False(t, page.RateLimited)
	assert.Empty(t, page.Results)
}

func TestAdapter_Search_QuotaExhausted(t *testing.T) {
	a, mc, rec := newTestAdapter(t)

	mc.On("Search", mock.Anything, mock.Anything).Return(&brave.Response{
		StatusCode: http.StatusPaymentRequired,
	}, nil).Once()

	page := a.Search(context.Background(), "q", 20, 0)

	assert.True(t, page.RateLimited)
	assert.Empty(t, page.Results)
	assert.Empty(t, rec.delays)
}

func TestAdapter_Search_ServerErrorDegradesToEmpty(t *testing.T) {
	a, mc, _ := newTestAdapter(t)

	mc.On("Search", mock.Anything, mock.Anything).Return(&brave.Response{
		StatusCode: http.StatusBadGateway,
	}, nil).Once()

	page := a.Search(context.Background(), "q", 20, 0)

	assert.False(t, page.RateLimited)
	assert.Empty(t, page.Results)
	assert.Equal(t, http.StatusBadGateway, page.Status)
}

func TestAdapter_Search_TransportErrorDegradesToEmpty(t *testing.T) {
	a, mc, _ := newTestAdapter(t)

	mc.On("Search", mock.Anything, mock.Anything).Return(nil, errors.New("context deadline exceeded (Client.Timeout exceeded)")).Once()

	page := a.Search(context.Background(), "q", 20, 0)

	assert.False(t, page.RateLimited)
	assert.Empty(t, page.Results)
	assert.Equal(t, 0, page.Status)
}

func TestAdapter_Search_WaitsForQuotaReset(t *testing.T) {
	a, mc, rec := newTestAdapter(t)

	mc.On("Search", mock.Anything, mock.Anything).Return(&brave.Response{
		StatusCode: http.StatusOK,
		RateLimit:  brave.RateLimit{Known: true, Remaining: 0, Reset: 4 * time.Second},
	}, nil).Once()
	mc.On("Search", mock.Anything, mock.Anything).Return(okResponse(), nil).Once()

	a.Search(context.Background(), "q", 20, 0)
	assert.True(t, a.Throttle().Exhausted())

	a.Search(context.Background(), "q", 20, 1)
	assert.Equal(t, []time.Duration{4 * time.Second}, rec.delays)
	assert.False(t, a.Throttle().Exhausted())
}

func TestThrottle_MinimumWait(t *testing.T) {
	rec := &sleepRecorder{}
	th := NewThrottle(0, WithSleep(rec.sleep))

	require.NoError(t, th.Wait(context.Background()))
	assert.Empty(t, rec.delays)

	th.Observe(brave.RateLimit{Known: true, Remaining: 0, Reset: 0})
	require.NoError(t, th.Wait(context.Background()))
	assert.Equal(t, []time.Duration{time.Second}, rec.delays)

	th.Observe(brave.RateLimit{})
	assert.False(t, th.Exhausted())
}

func TestThrottle_CancelledContext(t *testing.T) {
	th := NewThrottle(0)
	th.Observe(brave.RateLimit{Known: true, Remaining: 0, Reset: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, th.Wait(ctx))
}
