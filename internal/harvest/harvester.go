// Package harvest drives the per-sector search → filter → classify → score →
// insert loop and the resumable all-sectors driver on top of it.
package harvest

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/kb-harvester/internal/budget"
	"github.com/sells-group/kb-harvester/internal/config"
	"github.com/sells-group/kb-harvester/internal/filter"
	"github.com/sells-group/kb-harvester/internal/geo"
	"github.com/sells-group/kb-harvester/internal/kb"
	"github.com/sells-group/kb-harvester/internal/model"
	"github.com/sells-group/kb-harvester/internal/scorer"
	"github.com/sells-group/kb-harvester/internal/search"
	"github.com/sells-group/kb-harvester/internal/sector"
	"github.com/sells-group/kb-harvester/internal/store"
)

// State is a harvest state machine state.
type State string

const (
	StateInit          State = "INIT"
	StateSearching     State = "SEARCHING"
	StateDone          State = "DONE"
	StatePartial       State = "PARTIAL"
	StateRateLimited   State = "RATE_LIMITED"
	StateMaxWebReached State = "MAX_WEB_REACHED"
)

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	switch s {
	case StateDone, StatePartial, StateRateLimited, StateMaxWebReached:
		return true
	}
	return false
}

// StopReason explains a terminal state.
type StopReason string

const (
	ReasonTargetReached    StopReason = "target_reached"
	ReasonTimeBudget       StopReason = "time_budget"
	ReasonRateLimited      StopReason = "rate_limited"
	ReasonMaxWeb           StopReason = "max_web"
	ReasonLowYield         StopReason = "low_yield"
	ReasonQueriesExhausted StopReason = "queries_exhausted"
	ReasonCancelled        StopReason = "cancelled"
	ReasonLoadFailed       StopReason = "load_failed"
	ReasonUnknownSector    StopReason = "unknown_sector"
)

// Rejection reasons beyond the filter's own.
const (
	RejectDuplicate     = "duplicate"
	RejectOffSector     = "off_sector"
	RejectOutsideRegion = "outside_region"
	RejectLowConfidence = "low_confidence"
)

// Defaults applied when the config leaves a knob unset.
const (
	DefaultTarget              = 50
	DefaultMaxWeb              = 200
	DefaultPageCount           = 20
	DefaultMaxPagesPerQuery    = 10
	DefaultLowYieldMinAccepted = 5
	DefaultLowYieldLimit       = 5
)

// Request is one per-sector harvest.
type Request struct {
	Sector        string
	Target        int
	MaxWeb        int
	MinConfidence int
	Budget        *budget.Budget
	QueryStart    int
}

// Result is the terminal outcome of a run.
type Result struct {
	Sector        string           `json:"sector"`
	State         State            `json:"state"`
	StopReason    StopReason       `json:"stop_reason"`
	Target        int              `json:"target"`
	Need          int              `json:"need"`
	Current       int              `json:"current"`
	Fetched       int              `json:"fetched"`
	Pages         int              `json:"pages"`
	Accepted      int              `json:"accepted"`
	Rejected      map[string]int   `json:"rejected"`
	Errors        int              `json:"errors"`
	ErrorDetails  []kb.ErrorDetail `json:"error_details,omitempty"`
	NextQuery     int              `json:"next_query"`
	BatchID       string           `json:"batch_id"`
	LoadTruncated bool             `json:"load_truncated,omitempty"`
	Elapsed       time.Duration    `json:"elapsed"`
}

// Remaining is how many records the sector still needs.
func (r *Result) Remaining() int {
	if n := r.Target - r.Current; n > 0 {
		return n
	}
	return 0
}

func (r *Result) reject(reason string) {
	r.Rejected[reason]++
}

// Option configures a Harvester.
type Option func(*Harvester)

// WithNow overrides the clock used for verification timestamps.
func WithNow(now func() time.Time) Option {
	return func(h *Harvester) { h.now = now }
}

// Harvester runs the per-sector state machine. It is not safe for concurrent
// runs: one Harvester owns one search adapter and its throttle.
type Harvester struct {
	search     search.Searcher
	store      store.Store
	classifier *sector.Classifier
	scorer     *scorer.Scorer
	cfg        config.HarvestConfig
	pageCount  int
	now        func() time.Time
}

// New creates a Harvester.
func New(s search.Searcher, st store.Store, classifier *sector.Classifier, sc *scorer.Scorer, cfg config.HarvestConfig, pageCount int, opts ...Option) *Harvester {
	if cfg.MaxPagesPerQuery <= 0 {
		cfg.MaxPagesPerQuery = DefaultMaxPagesPerQuery
	}
	if cfg.LowYieldMinAccepted <= 0 {
		cfg.LowYieldMinAccepted = DefaultLowYieldMinAccepted
	}
	if cfg.LowYieldLimit <= 0 {
		cfg.LowYieldLimit = DefaultLowYieldLimit
	}
	if cfg.MaxErrorDetails <= 0 {
		cfg.MaxErrorDetails = kb.DefaultMaxErrorDetails
	}
	if pageCount <= 0 {
		pageCount = DefaultPageCount
	}
	h := &Harvester{
		search:     s,
		store:      st,
		classifier: classifier,
		scorer:     sc,
		cfg:        cfg,
		pageCount:  pageCount,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// run carries the mutable state of one harvest.
type run struct {
	req      Request
	res      *Result
	seen     map[string]bool
	lowYield int
	log      *zap.Logger
}

// Run executes one harvest for req.Sector and always returns a terminal
// Result. Provider failures degrade to empty pages; insert failures are
// counted and never abort the run.
func (h *Harvester) Run(ctx context.Context, req Request) *Result {
	h.applyDefaults(&req)
	res := &Result{
		Sector:    req.Sector,
		State:     StateInit,
		Target:    req.Target,
		Rejected:  make(map[string]int),
		NextQuery: req.QueryStart,
		BatchID:   uuid.New().String(),
	}
	r := &run{
		req:  req,
		res:  res,
		seen: make(map[string]bool),
		log: zap.L().With(
			zap.String("component", "harvest"),
			zap.String("sector", req.Sector),
			zap.String("batch_id", res.BatchID),
		),
	}

	h.execute(ctx, r)
	res.Elapsed = req.Budget.Elapsed()

	r.log.Info("harvest: run complete",
		zap.String("state", string(res.State)),
		zap.String("stop_reason", string(res.StopReason)),
		zap.Int("need", res.Need),
		zap.Int("current", res.Current),
		zap.Int("fetched", res.Fetched),
		zap.Int("pages", res.Pages),
		zap.Int("accepted", res.Accepted),
		zap.Any("rejected", res.Rejected),
		zap.Int("errors", res.Errors),
		zap.Int("next_query", res.NextQuery),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res
}

func (h *Harvester) applyDefaults(req *Request) {
	if req.Target <= 0 {
		req.Target = h.cfg.Target
	}
	if req.Target <= 0 {
		req.Target = DefaultTarget
	}
	if req.MaxWeb <= 0 {
		req.MaxWeb = h.cfg.MaxWeb
	}
	if req.MaxWeb <= 0 {
		req.MaxWeb = DefaultMaxWeb
	}
	if req.MinConfidence <= 0 {
		req.MinConfidence = h.cfg.MinConfidence
	}
	if req.Budget == nil {
		req.Budget = budget.Unlimited()
	}
	if req.QueryStart < 0 {
		req.QueryStart = 0
	}
}

func (r *run) finish(state State, reason StopReason) {
	r.res.State = state
	r.res.StopReason = reason
}

func (h *Harvester) execute(ctx context.Context, r *run) {
	res := r.res

	if !h.classifier.Valid(r.req.Sector) {
		r.log.Warn("harvest: unknown sector")
		r.finish(StatePartial, ReasonUnknownSector)
		return
	}

	if !h.initialize(ctx, r) {
		return
	}
	if res.Need <= 0 {
		r.finish(StateDone, ReasonTargetReached)
		return
	}

	res.State = StateSearching
	queries := h.classifier.Queries(r.req.Sector)
	for qi := r.req.QueryStart; qi < len(queries); qi++ {
		res.NextQuery = qi
		if h.checkStop(ctx, r) {
			return
		}
		if done := h.searchQuery(ctx, r, queries[qi]); done {
			return
		}
	}

	res.NextQuery = len(queries)
	if res.Remaining() == 0 {
		r.finish(StateDone, ReasonTargetReached)
		return
	}
	r.finish(StatePartial, ReasonQueriesExhausted)
}

// initialize is the INIT state: it loads the store once to build the domain
// dedup set and count the sector's metro records.
func (h *Harvester) initialize(ctx context.Context, r *run) bool {
	recs, truncated, err := kb.LoadAll(ctx, h.store, kb.LoadOpts{
		PageSize: h.cfg.LoadPageSize,
		MaxPages: h.cfg.LoadMaxPages,
	})
	if err != nil {
		r.log.Warn("harvest: load existing records failed", zap.Error(err))
		r.finish(StatePartial, ReasonLoadFailed)
		return false
	}
	r.res.LoadTruncated = truncated

	for i := range recs {
		if d := filter.DomainKey(recs[i].Domain); d != "" {
			r.seen[d] = true
		}
		if recs[i].HasSector(r.req.Sector) && recs[i].HQRegion.Metro() {
			r.res.Current++
		}
	}
	r.res.Need = r.res.Remaining()
	r.log.Info("harvest: initialized",
		zap.Int("existing", len(recs)),
		zap.Int("current", r.res.Current),
		zap.Int("need", r.res.Need),
		zap.Bool("load_truncated", truncated),
	)
	return true
}

// checkStop evaluates the conditions checked before every unit of work and
// sets the terminal state when one holds.
func (h *Harvester) checkStop(ctx context.Context, r *run) bool {
	switch {
	case r.res.Remaining() == 0:
		r.finish(StateDone, ReasonTargetReached)
	case r.res.Fetched >= r.req.MaxWeb:
		r.finish(StateMaxWebReached, ReasonMaxWeb)
	case ctx.Err() != nil:
		r.finish(StatePartial, ReasonCancelled)
	case r.req.Budget.Exceeded():
		r.finish(StatePartial, ReasonTimeBudget)
	default:
		return false
	}
	return true
}

// searchQuery pages through one query template. It returns true when the run
// reached a terminal state.
func (h *Harvester) searchQuery(ctx context.Context, r *run, query string) bool {
	log := r.log.With(zap.String("query", query))

	for page := 0; page < h.cfg.MaxPagesPerQuery; page++ {
		if h.checkStop(ctx, r) {
			return true
		}

		count := h.pageCount
		if left := r.req.MaxWeb - r.res.Fetched; left < count {
			count = left
		}

		p := h.search.Search(ctx, query, count, page)
		r.res.Pages++
		if p.RateLimited {
			log.Warn("harvest: provider rate limited", zap.Int("status", p.Status))
			r.finish(StateRateLimited, ReasonRateLimited)
			return true
		}
		r.res.Fetched += len(p.Results)

		accepted := 0
		for _, hit := range p.Results {
			if h.process(ctx, r, hit) {
				accepted++
			}
			if r.res.Remaining() == 0 {
				break
			}
		}
		log.Debug("harvest: page processed",
			zap.Int("page", page),
			zap.Int("results", len(p.Results)),
			zap.Int("accepted", accepted),
		)

		if r.res.Remaining() == 0 {
			r.finish(StateDone, ReasonTargetReached)
			return true
		}

		if accepted < h.cfg.LowYieldMinAccepted {
			r.lowYield++
			if r.lowYield >= h.cfg.LowYieldLimit {
				log.Info("harvest: stopping on low yield", zap.Int("consecutive", r.lowYield))
				r.finish(StatePartial, ReasonLowYield)
				return true
			}
		} else {
			r.lowYield = 0
		}

		if len(p.Results) < count {
			break
		}
	}
	return false
}

// process pipes one hit through filter, dedup, classifier, geography and
// scorer, and inserts it when accepted.
func (h *Harvester) process(ctx context.Context, r *run, hit search.Result) bool {
	log := r.log.With(zap.String("url", hit.URL))

	if reason := filter.Check(hit.URL, hit.Title, hit.Snippet); reason != filter.ReasonNone {
		r.res.reject(string(reason))
		log.Debug("harvest: noise", zap.String("reason", string(reason)))
		return false
	}

	domain, err := filter.RegistrableDomain(hit.URL)
	if err != nil {
		r.res.reject(string(filter.ReasonBadURL))
		return false
	}
	if r.seen[domain] {
		r.res.reject(RejectDuplicate)
		return false
	}

	text := hit.Title + " " + hit.Snippet
	score := h.classifier.Score(text, r.req.Sector)
	if score < sector.HarvestThreshold {
		r.res.reject(RejectOffSector)
		return false
	}

	city := geo.DetectCity(text)
	region := model.RegionMTL
	if city == "" {
		if !geo.IsGrandMetro(text) {
			r.res.reject(RejectOutsideRegion)
			return false
		}
		region = model.RegionGM
	}

	confidence := h.scorer.Compute(scorer.Input{
		Text:         text,
		Snippet:      hit.Snippet,
		Domain:       domain,
		Sector:       r.req.Sector,
		DetectedCity: city,
	})
	if !scorer.Accept(confidence, r.req.MinConfidence) {
		r.res.reject(RejectLowConfidence)
		log.Debug("harvest: below confidence", zap.Int("confidence", confidence))
		return false
	}

	rec := h.buildRecord(r, hit, domain, city, region, confidence, text)

	// Failed domains are not retried within a run.
	r.seen[domain] = true
	if err := kb.Insert(ctx, h.store, &rec); err != nil {
		r.res.Errors++
		if len(r.res.ErrorDetails) < h.cfg.MaxErrorDetails {
			r.res.ErrorDetails = append(r.res.ErrorDetails, kb.ErrorDetail{Domain: domain, Error: err.Error()})
		}
		log.Warn("harvest: insert failed", zap.String("domain", domain), zap.Error(err))
		return false
	}

	r.res.Accepted++
	r.res.Current++
	return true
}

func (h *Harvester) buildRecord(r *run, hit search.Result, domain, city string, region model.Region, confidence int, text string) model.Record {
	if city == "" {
		city = geo.DetectRingCity(text)
	}
	now := h.now()

	match := h.classifier.Classify(text, sector.HarvestThreshold)
	// Secondaries must score strictly below the requested sector.
	sectors := []string{r.req.Sector}
	primary := match.Scores[r.req.Sector]
	for _, s := range match.Sectors() {
		if len(sectors) == 1+sector.MaxSecondary {
			break
		}
		if score := match.Scores[s]; s != r.req.Sector && score >= sector.SecondaryMinScore && score < primary {
			sectors = append(sectors, s)
		}
	}

	rec := model.Record{
		Domain:          domain,
		Name:            orgName(hit.Title, domain),
		Website:         filter.Origin(hit.URL),
		HQCity:          city,
		HQProvince:      geo.HomeProvince,
		HQCountry:       geo.HomeCountry,
		HQRegion:        region,
		IndustrySectors: sectors,
		IndustryLabel:   r.req.Sector,
		ConfidenceScore: confidence,
		SourceOrigin:    model.OriginWeb,
		Notes:           hit.Snippet,
		SeedBatchID:     r.res.BatchID,
		LastVerifiedAt:  &now,
	}
	if match.Primary == r.req.Sector {
		rec.SectorSynonymsUsed = match.Terms
	}
	rec.AddFlag(model.FlagHarvestedWeb)
	if len(sectors) > 1 {
		rec.AddFlag(model.FlagSecondarySectors)
	}
	return rec
}

var titleSeparators = []string{" | ", " - ", " — ", " – ", " : "}

// orgName takes the leading segment of a page title, falling back to the
// domain.
func orgName(title, domain string) string {
	name := strings.TrimSpace(title)
	for _, sep := range titleSeparators {
		if i := strings.Index(name, sep); i > 0 {
			name = name[:i]
		}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain
	}
	return name
}
