// Package backfill runs repair passes over records already in the knowledge
// base: geography repair and sector backfill.
package backfill

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/kb-harvester/internal/budget"
	"github.com/sells-group/kb-harvester/internal/geo"
	"github.com/sells-group/kb-harvester/internal/kb"
	"github.com/sells-group/kb-harvester/internal/model"
	"github.com/sells-group/kb-harvester/internal/sector"
	"github.com/sells-group/kb-harvester/internal/store"
)

// DefaultBatchSize is how many records are processed between progress logs.
const DefaultBatchSize = 100

// Options configures a pass.
type Options struct {
	Load      kb.LoadOpts
	Budget    *budget.Budget
	DryRun    bool
	BatchSize int
}

// Result reports one pass.
type Result struct {
	Pass          string `json:"pass"`
	Scanned       int    `json:"scanned"`
	Candidates    int    `json:"candidates"`
	Updated       int    `json:"updated"`
	Skipped       int    `json:"skipped"`
	Errors        int    `json:"errors"`
	Partial       bool   `json:"partial"`
	LoadTruncated bool   `json:"load_truncated"`
	DryRun        bool   `json:"dry_run"`
}

// fixFunc mutates rec and reports whether it changed. Records that are not
// candidates for the pass return (false, false).
type fixFunc func(rec *model.Record) (candidate, changed bool)

// RepairGeography resolves the region of every record whose region is not a
// valid value. Valid records are left untouched.
func RepairGeography(ctx context.Context, st store.Store, opts Options) (*Result, error) {
	return run(ctx, st, "geo", opts, func(rec *model.Record) (bool, bool) {
		res := geo.ResolveRegion(rec.HQRegion, rec.HQCity, rec.HQProvince, rec.HQCountry)
		if res == nil {
			return false, false
		}
		res.Apply(rec)
		rec.AddFlag(model.FlagGeoRepaired)
		return true, true
	})
}

// BackfillSectors classifies records that carry no valid sector, using the
// record's own text at sector.BackfillThreshold. Unknown sector values are
// dropped from every record it updates.
func BackfillSectors(ctx context.Context, st store.Store, c *sector.Classifier, opts Options) (*Result, error) {
	if c == nil {
		return nil, eris.New("backfill: classifier is required")
	}
	return run(ctx, st, "sectors", opts, func(rec *model.Record) (bool, bool) {
		for _, s := range rec.IndustrySectors {
			if c.Valid(s) {
				return false, false
			}
		}
		m := c.Classify(recordText(rec), sector.BackfillThreshold)
		if m.Primary == "" {
			return true, false
		}
		rec.IndustrySectors = m.Sectors()
		if rec.IndustryLabel == "" || !c.Valid(rec.IndustryLabel) {
			rec.IndustryLabel = m.Primary
		}
		rec.SectorSynonymsUsed = mergeTerms(rec.SectorSynonymsUsed, m.Terms)
		rec.AddFlag(model.FlagSectorsBackfill)
		if len(m.Secondary) > 0 {
			rec.AddFlag(model.FlagSecondarySectors)
		}
		return true, true
	})
}

func run(ctx context.Context, st store.Store, pass string, opts Options, fix fixFunc) (*Result, error) {
	log := zap.L().With(zap.String("component", "backfill"), zap.String("pass", pass))
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	records, truncated, err := kb.LoadAll(ctx, st, opts.Load)
	if err != nil {
		return nil, eris.Wrapf(err, "backfill: %s: load", pass)
	}

	res := &Result{Pass: pass, LoadTruncated: truncated, DryRun: opts.DryRun}
	log.Info("backfill: starting",
		zap.Int("records", len(records)),
		zap.Bool("dry_run", opts.DryRun),
	)

	for i := range records {
		if ctx.Err() != nil || opts.Budget.Exceeded() {
			res.Partial = true
			log.Warn("backfill: stopping early",
				zap.Int("processed", i),
				zap.Int("total", len(records)),
			)
			break
		}
		if i > 0 && i%opts.BatchSize == 0 {
			log.Info("backfill: batch progress",
				zap.Int("processed", i),
				zap.Int("total", len(records)),
				zap.Int("updated", res.Updated),
			)
		}
		res.Scanned++

		rec := records[i]
		candidate, changed := fix(&rec)
		if candidate {
			res.Candidates++
		}
		if !changed {
			if candidate {
				res.Skipped++
			}
			continue
		}

		if !opts.DryRun {
			if err := st.UpdateRecord(ctx, &rec); err != nil {
				res.Errors++
				log.Warn("backfill: update failed",
					zap.String("id", rec.ID),
					zap.String("domain", rec.Domain),
					zap.Error(err),
				)
				continue
			}
		}
		res.Updated++
	}

	log.Info("backfill: complete",
		zap.Int("scanned", res.Scanned),
		zap.Int("candidates", res.Candidates),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped),
		zap.Int("errors", res.Errors),
		zap.Bool("partial", res.Partial),
	)
	return res, nil
}

func recordText(rec *model.Record) string {
	parts := []string{rec.Name, rec.IndustryLabel, rec.Notes}
	parts = append(parts, rec.Keywords...)
	parts = append(parts, rec.Tags...)
	parts = append(parts, rec.Synonyms...)
	return strings.Join(parts, " ")
}

func mergeTerms(have, add []string) []string {
	seen := make(map[string]bool, len(have))
	for _, t := range have {
		seen[t] = true
	}
	for _, t := range add {
		if !seen[t] {
			seen[t] = true
			have = append(have, t)
		}
	}
	return have
}
