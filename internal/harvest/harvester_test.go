package harvest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/kb-harvester/internal/budget"
	"github.com/sells-group/kb-harvester/internal/config"
	"github.com/sells-group/kb-harvester/internal/model"
	"github.com/sells-group/kb-harvester/internal/scorer"
	"github.com/sells-group/kb-harvester/internal/search"
	"github.com/sells-group/kb-harvester/internal/sector"
	"github.com/sells-group/kb-harvester/internal/store"
)

const law = "Droit & Comptabilité"

type searchCall struct {
	query  string
	count  int
	offset int
}

// fakeSearcher answers every call with page(call index, query, count).
type fakeSearcher struct {
	page  func(n int, query string, count int) search.Page
	calls []searchCall
}

func (f *fakeSearcher) Search(_ context.Context, query string, count, offset int) search.Page {
	f.calls = append(f.calls, searchCall{query: query, count: count, offset: offset})
	return f.page(len(f.calls)-1, query, count)
}

func lawHit(i int) search.Result {
	return search.Result{
		URL:     fmt.Sprintf("https://www.firme%d.qc.ca/contact", i),
		Title:   fmt.Sprintf("Firme%d — Cabinet comptable Montréal", i),
		Snippet: "Comptabilité, audit, Montréal",
	}
}

func noiseHit(i int) search.Result {
	return search.Result{
		URL:     fmt.Sprintf("https://www.journal%d.com/blog/article", i),
		Title:   "Les 10 meilleurs comptables",
		Snippet: "Classement annuel",
	}
}

func pageOf(hits ...search.Result) search.Page {
	return search.Page{Results: hits, Status: 200}
}

func newHarvester(s search.Searcher, st store.Store, cfg config.HarvestConfig) *Harvester {
	c := sector.Default()
	return New(s, st, c, scorer.New(c, scorer.DefaultScorerConfig()), cfg, 20)
}

func seedStore(t *testing.T, recs ...model.Record) *store.MemoryStore {
	t.Helper()
	st := store.NewMemory()
	for i := range recs {
		require.NoError(t, st.CreateRecord(context.Background(), &recs[i]))
	}
	return st
}

func TestRun_ExempleFirme(t *testing.T) {
	st := store.NewMemory()
	s := &fakeSearcher{page: func(int, string, int) search.Page {
		return pageOf(search.Result{
			URL:     "https://www.exemplefirme.qc.ca/contact",
			Title:   "Exemple Firme — Cabinet comptable Montréal",
			Snippet: "Comptabilité, audit, Montréal",
		})
	}}

	res := newHarvester(s, st, config.HarvestConfig{}).Run(context.Background(), Request{Sector: law, Target: 1})

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, ReasonTargetReached, res.StopReason)
	assert.Equal(t, 1, res.Need)
	assert.Equal(t, 1, res.Accepted)
	assert.NotEmpty(t, res.BatchID)

	recs, err := st.ListRecords(context.Background(), store.ListOpts{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	r := recs[0]
	assert.Equal(t, "exemplefirme.qc.ca", r.Domain)
	assert.Equal(t, "Exemple Firme", r.Name)
	assert.Equal(t, "https://www.exemplefirme.qc.ca", r.Website)
	assert.Equal(t, model.RegionMTL, r.HQRegion)
	assert.Equal(t, "Montréal", r.HQCity)
	assert.Equal(t, "QC", r.HQProvince)
	assert.Equal(t, law, r.IndustrySectors[0])
	assert.GreaterOrEqual(t, r.ConfidenceScore, 75)
	assert.Equal(t, model.OriginWeb, r.SourceOrigin)
	assert.True(t, r.HasFlag(model.FlagHarvestedWeb))
	assert.Equal(t, res.BatchID, r.SeedBatchID)
	assert.NotNil(t, r.LastVerifiedAt)
}

func TestRun_NeedSatisfied(t *testing.T) {
	st := seedStore(t,
		model.Record{Domain: "a.ca", Name: "A", Website: "https://a.ca", HQRegion: model.RegionMTL, IndustrySectors: []string{law}},
		model.Record{Domain: "b.ca", Name: "B", Website: "https://b.ca", HQRegion: model.RegionGM, IndustrySectors: []string{law}},
		model.Record{Domain: "c.ca", Name: "C", Website: "https://c.ca", HQRegion: model.RegionQCOther, IndustrySectors: []string{law}},
	)
	s := &fakeSearcher{page: func(int, string, int) search.Page { return pageOf() }}

	res := newHarvester(s, st, config.HarvestConfig{}).Run(context.Background(), Request{Sector: law, Target: 2})

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, 2, res.Current)
	assert.Zero(t, res.Need)
	assert.Empty(t, s.calls)
}

func TestRun_LowYieldStopsEarly(t *testing.T) {
	st := store.NewMemory()
	s := &fakeSearcher{page: func(n int, _ string, count int) search.Page {
		hits := make([]search.Result, count)
		for i := range hits {
			hits[i] = noiseHit(n*count + i)
		}
		return pageOf(hits...)
	}}

	res := newHarvester(s, st, config.HarvestConfig{MaxPagesPerQuery: 10, MaxWeb: 1000}).
		Run(context.Background(), Request{Sector: law, Target: 10})

	assert.Equal(t, StatePartial, res.State)
	assert.Equal(t, ReasonLowYield, res.StopReason)
	assert.Len(t, s.calls, DefaultLowYieldLimit, "stops before a sixth zero-yield page")
	assert.Zero(t, res.Accepted)
	assert.Equal(t, 100, res.Fetched)
	assert.Zero(t, res.NextQuery)
	for _, c := range s.calls {
		assert.Equal(t, s.calls[0].query, c.query)
	}
}

func TestRun_ProductivePageResetsLowYield(t *testing.T) {
	st := store.NewMemory()
	s := &fakeSearcher{page: func(n int, _ string, count int) search.Page {
		hits := make([]search.Result, count)
		for i := range hits {
			if n == 3 && i < 5 {
				hits[i] = lawHit(i)
				continue
			}
			hits[i] = noiseHit(n*count + i)
		}
		return pageOf(hits...)
	}}

	res := newHarvester(s, st, config.HarvestConfig{MaxPagesPerQuery: 10, MaxWeb: 1000}).
		Run(context.Background(), Request{Sector: law, Target: 50})

	assert.Equal(t, ReasonLowYield, res.StopReason)
	assert.Equal(t, 5, res.Accepted)
	assert.Len(t, s.calls, 4+DefaultLowYieldLimit)
}

func TestRun_RateLimited(t *testing.T) {
	s := &fakeSearcher{page: func(int, string, int) search.Page {
		return search.Page{RateLimited: true, Status: 429}
	}}

	res := newHarvester(s, store.NewMemory(), config.HarvestConfig{}).
		Run(context.Background(), Request{Sector: law, Target: 5, QueryStart: 2})

	assert.Equal(t, StateRateLimited, res.State)
	assert.Equal(t, ReasonRateLimited, res.StopReason)
	assert.Equal(t, 2, res.NextQuery)
	require.Len(t, s.calls, 1)
	assert.Equal(t, sector.Default().Queries(law)[2], s.calls[0].query)
}

func TestRun_MaxWeb(t *testing.T) {
	s := &fakeSearcher{page: func(n int, _ string, count int) search.Page {
		hits := make([]search.Result, count)
		for i := range hits {
			hits[i] = lawHit(n*100 + i)
		}
		return pageOf(hits...)
	}}

	res := newHarvester(s, store.NewMemory(), config.HarvestConfig{}).
		Run(context.Background(), Request{Sector: law, Target: 10, MaxWeb: 3})

	assert.Equal(t, StateMaxWebReached, res.State)
	assert.Equal(t, 3, res.Fetched)
	assert.Equal(t, 3, res.Accepted)
	require.Len(t, s.calls, 1)
	assert.Equal(t, 3, s.calls[0].count)
}

func TestRun_TimeBudget(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := budget.New(90*time.Second, budget.WithClock(func() time.Time { return now }))
	now = now.Add(2 * time.Minute)

	s := &fakeSearcher{page: func(int, string, int) search.Page { return pageOf(lawHit(1)) }}
	res := newHarvester(s, store.NewMemory(), config.HarvestConfig{}).
		Run(context.Background(), Request{Sector: law, Target: 5, Budget: b})

	assert.Equal(t, StatePartial, res.State)
	assert.Equal(t, ReasonTimeBudget, res.StopReason)
	assert.Empty(t, s.calls)
}

func TestRun_QueriesExhausted(t *testing.T) {
	s := &fakeSearcher{page: func(int, string, int) search.Page { return pageOf() }}

	res := newHarvester(s, store.NewMemory(), config.HarvestConfig{LowYieldLimit: 100}).
		Run(context.Background(), Request{Sector: law, Target: 5})

	queries := sector.Default().Queries(law)
	assert.Equal(t, StatePartial, res.State)
	assert.Equal(t, ReasonQueriesExhausted, res.StopReason)
	assert.Equal(t, len(queries), res.NextQuery)
	assert.Len(t, s.calls, len(queries))
}

func TestRun_DedupAndRejections(t *testing.T) {
	st := seedStore(t, model.Record{Domain: "firme1.qc.ca", Name: "F1", Website: "https://firme1.qc.ca", HQRegion: model.RegionQCOther})
	s := &fakeSearcher{page: func(n int, _ string, _ int) search.Page {
		if n > 0 {
			return pageOf()
		}
		return pageOf(
			lawHit(1),
			lawHit(2),
			lawHit(2),
			noiseHit(3),
			search.Result{URL: "https://www.firme4.ca", Title: "Cabinet comptable", Snippet: "Comptabilité et audit à Québec"},
			search.Result{URL: "https://www.boulangerie5.ca", Title: "Boulangerie Montréal", Snippet: "Pains et viennoiseries"},
			search.Result{URL: "not a url", Title: "Cabinet comptable Montréal"},
		)
	}}

	res := newHarvester(s, st, config.HarvestConfig{LowYieldLimit: 100}).
		Run(context.Background(), Request{Sector: law, Target: 5})

	assert.Equal(t, 1, res.Accepted)
	assert.Equal(t, 2, res.Rejected[RejectDuplicate])
	assert.Equal(t, 1, res.Rejected[RejectOutsideRegion])
	assert.Equal(t, 1, res.Rejected[RejectOffSector])
	assert.Equal(t, 7, res.Fetched)
	assert.Equal(t, 2, st.Len())
}

type failingStore struct {
	*store.MemoryStore
}

func (f failingStore) CreateRecord(context.Context, *model.Record) error {
	return eris.New("disk full")
}

func TestRun_InsertFailuresCounted(t *testing.T) {
	st := failingStore{store.NewMemory()}
	s := &fakeSearcher{page: func(n int, _ string, _ int) search.Page {
		if n > 0 {
			return pageOf()
		}
		return pageOf(lawHit(1), lawHit(2), lawHit(3))
	}}

	res := newHarvester(s, st, config.HarvestConfig{MaxErrorDetails: 2, LowYieldLimit: 100}).
		Run(context.Background(), Request{Sector: law, Target: 5})

	assert.True(t, res.State.Terminal())
	assert.Equal(t, 3, res.Errors)
	require.Len(t, res.ErrorDetails, 2)
	assert.Equal(t, "firme1.qc.ca", res.ErrorDetails[0].Domain)
	assert.Contains(t, res.ErrorDetails[0].Error, "disk full")
	assert.Zero(t, res.Accepted)
}

func TestRun_UnknownSector(t *testing.T) {
	s := &fakeSearcher{page: func(int, string, int) search.Page { return pageOf() }}
	res := newHarvester(s, store.NewMemory(), config.HarvestConfig{}).
		Run(context.Background(), Request{Sector: "Astrologie", Target: 5})

	assert.Equal(t, StatePartial, res.State)
	assert.Equal(t, ReasonUnknownSector, res.StopReason)
	assert.Empty(t, s.calls)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &fakeSearcher{page: func(int, string, int) search.Page {
		cancel()
		return pageOf(noiseHit(1))
	}}

	res := newHarvester(s, store.NewMemory(), config.HarvestConfig{LowYieldLimit: 100}).
		Run(ctx, Request{Sector: law, Target: 5})

	assert.Equal(t, StatePartial, res.State)
	assert.Equal(t, ReasonCancelled, res.StopReason)
	assert.Len(t, s.calls, 1)
}

func TestRun_AlwaysTerminates(t *testing.T) {
	for _, target := range []int{1, 3, 40} {
		for _, maxWeb := range []int{1, 7, 60} {
			t.Run(fmt.Sprintf("target=%d/max_web=%d", target, maxWeb), func(t *testing.T) {
				s := &fakeSearcher{page: func(n int, _ string, count int) search.Page {
					hits := make([]search.Result, count)
					for i := range hits {
						if i%2 == 0 {
							hits[i] = lawHit(n*100 + i)
						} else {
							hits[i] = noiseHit(i)
						}
					}
					return pageOf(hits...)
				}}
				res := newHarvester(s, store.NewMemory(), config.HarvestConfig{}).
					Run(context.Background(), Request{Sector: law, Target: target, MaxWeb: maxWeb})

				assert.True(t, res.State.Terminal(), res.State)
				assert.LessOrEqual(t, res.Fetched, maxWeb)
				assert.LessOrEqual(t, res.Accepted, target)
			})
		}
	}
}

func TestOrgName(t *testing.T) {
	assert.Equal(t, "Exemple Firme", orgName("Exemple Firme — Cabinet comptable Montréal", "x.ca"))
	assert.Equal(t, "Acme", orgName("Acme | Accueil", "acme.ca"))
	assert.Equal(t, "Acme Inc.", orgName("  Acme Inc.  ", "acme.ca"))
	assert.Equal(t, "acme.ca", orgName("", "acme.ca"))
}

func TestState_Terminal(t *testing.T) {
	assert.False(t, StateInit.Terminal())
	assert.False(t, StateSearching.Terminal())
	for _, s := range []State{StateDone, StatePartial, StateRateLimited, StateMaxWebReached} {
		assert.True(t, s.Terminal(), s)
	}
}

func TestRun_SecondarySectorsScoreBelowPrimary(t *testing.T) {
	const tech = "Technologie & Logiciels"
	st := store.NewMemory()
	s := &fakeSearcher{page: func(int, string, int) search.Page {
		return pageOf(
			search.Result{
				URL:     "https://www.firmetech.qc.ca/",
				Title:   "Firme Tech — Cabinet comptable Montréal",
				Snippet: "Logiciel, software, SaaS, cloud, cybersécurité, infonuagique, Montréal",
			},
			search.Result{
				URL:     "https://www.firmeloi.qc.ca/",
				Title:   "Firme Loi — Cabinet comptable Montréal",
				Snippet: "Comptabilité, audit, fiscalité, CPA, logiciel comptable, Montréal",
			},
		)
	}}

	res := newHarvester(s, st, config.HarvestConfig{}).
		Run(context.Background(), Request{Sector: law, Target: 2, MinConfidence: 1})
	require.Equal(t, 2, res.Accepted)

	techHeavy, err := st.FilterRecords(context.Background(), store.FieldDomain, "firmetech.qc.ca", 0)
	require.NoError(t, err)
	require.Len(t, techHeavy, 1)
	assert.Equal(t, law, techHeavy[0].IndustrySectors[0])
	assert.NotContains(t, techHeavy[0].IndustrySectors, tech)

	lawHeavy, err := st.FilterRecords(context.Background(), store.FieldDomain, "firmeloi.qc.ca", 0)
	require.NoError(t, err)
	require.Len(t, lawHeavy, 1)
	assert.Equal(t, law, lawHeavy[0].IndustrySectors[0])
	assert.Contains(t, lawHeavy[0].IndustrySectors[1:], tech)
	assert.True(t, lawHeavy[0].HasFlag(model.FlagSecondarySectors))
}
