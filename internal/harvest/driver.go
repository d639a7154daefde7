package harvest

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/kb-harvester/internal/budget"
)

// AllCursor names the persisted resume cursor of the all-sectors driver.
const AllCursor = "harvest_all"

// CursorStore persists resume cursors between invocations.
type CursorStore interface {
	LoadCursor(ctx context.Context, name string) (int, error)
	SaveCursor(ctx context.Context, name string, position int) error
}

// Runner runs one per-sector harvest. *Harvester implements it.
type Runner interface {
	Run(ctx context.Context, req Request) *Result
}

// AllRequest is one all-sectors invocation.
type AllRequest struct {
	Target        int
	MaxWeb        int
	MinConfidence int
	Budget        *budget.Budget
	Reset         bool
}

// AllResult reports an all-sectors invocation. NextSector is the index the
// next invocation resumes at; it is 0 once a full pass completed.
type AllResult struct {
	StartSector int       `json:"start_sector"`
	NextSector  int       `json:"next_sector"`
	Complete    bool      `json:"complete"`
	StopReason  string    `json:"stop_reason,omitempty"`
	Outcomes    []*Result `json:"outcomes"`
}

// Driver iterates the per-sector state machine over every sector, giving
// each its own slice of the overall budget and persisting where to resume.
type Driver struct {
	runner    Runner
	cursors   CursorStore
	sectors   []string
	perSector time.Duration
}

// NewDriver creates a Driver. perSector bounds each sector's run; zero means
// the sector may use whatever remains of the overall budget.
func NewDriver(runner Runner, cursors CursorStore, sectors []string, perSector time.Duration) *Driver {
	return &Driver{runner: runner, cursors: cursors, sectors: sectors, perSector: perSector}
}

// RunAll resumes at the persisted cursor and harvests sectors in order until
// the pass completes, the overall budget runs out or the provider throttles.
// The cursor is saved at the sector to resume at, or reset to 0 after a full
// pass. Only cursor persistence failures are returned as errors.
func (d *Driver) RunAll(ctx context.Context, req AllRequest) (*AllResult, error) {
	log := zap.L().With(zap.String("component", "harvest.driver"))
	if req.Budget == nil {
		req.Budget = budget.Unlimited()
	}

	start := 0
	if !req.Reset {
		pos, err := d.cursors.LoadCursor(ctx, AllCursor)
		if err != nil {
			return nil, eris.Wrap(err, "harvest: load cursor")
		}
		start = pos
	}
	if start < 0 || start >= len(d.sectors) {
		start = 0
	}

	res := &AllResult{StartSector: start}
	log.Info("harvest: all sectors starting",
		zap.Int("start", start),
		zap.Int("sectors", len(d.sectors)),
		zap.Duration("budget", req.Budget.Limit()),
	)

	for i := start; i < len(d.sectors); i++ {
		stop := ""
		switch {
		case ctx.Err() != nil:
			stop = string(ReasonCancelled)
		case req.Budget.Exceeded():
			stop = string(ReasonTimeBudget)
		}
		if stop != "" {
			return d.suspend(ctx, res, i, stop)
		}

		sectorBudget := req.Budget
		if d.perSector > 0 {
			sectorBudget = req.Budget.Child(d.perSector)
		}
		out := d.runner.Run(ctx, Request{
			Sector:        d.sectors[i],
			Target:        req.Target,
			MaxWeb:        req.MaxWeb,
			MinConfidence: req.MinConfidence,
			Budget:        sectorBudget,
		})
		res.Outcomes = append(res.Outcomes, out)

		switch {
		case out.State == StateRateLimited:
			return d.suspend(ctx, res, i, string(ReasonRateLimited))
		case out.StopReason == ReasonCancelled:
			return d.suspend(ctx, res, i, string(ReasonCancelled))
		case out.StopReason == ReasonTimeBudget && req.Budget.Exceeded():
			return d.suspend(ctx, res, i, string(ReasonTimeBudget))
		}
	}

	if err := d.cursors.SaveCursor(ctx, AllCursor, 0); err != nil {
		return res, eris.Wrap(err, "harvest: reset cursor")
	}
	res.Complete = true
	log.Info("harvest: all sectors complete", zap.Int("runs", len(res.Outcomes)))
	return res, nil
}

func (d *Driver) suspend(ctx context.Context, res *AllResult, next int, reason string) (*AllResult, error) {
	res.NextSector = next
	res.StopReason = reason
	zap.L().Info("harvest: all sectors suspended",
		zap.String("reason", reason),
		zap.Int("next_sector", next),
		zap.String("sector", d.sectors[next]),
		zap.Int("runs", len(res.Outcomes)),
	)
	// Persist even when ctx is cancelled so the next invocation resumes here.
	if err := d.cursors.SaveCursor(context.WithoutCancel(ctx), AllCursor, next); err != nil {
		return res, eris.Wrap(err, "harvest: save cursor")
	}
	return res, nil
}
