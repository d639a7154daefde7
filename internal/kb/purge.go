package kb

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/kb-harvester/internal/filter"
	"github.com/sells-group/kb-harvester/internal/model"
	"github.com/sells-group/kb-harvester/internal/store"
)

// PurgePlan is the outcome of deduplicating a record set.
type PurgePlan struct {
	Kept    []model.Record `json:"kept"`
	Deleted []string       `json:"deleted"`
	Groups  int            `json:"groups"`
}

// PlanPurge groups records by normalized domain and keeps the record with the
// highest CompositeScore in each group. Ties go to the smallest ID, so the
// plan does not depend on input order. Records without a usable domain are
// neither kept nor deleted.
func PlanPurge(records []model.Record) PurgePlan {
	groups := make(map[string][]int)
	var keys []string
	for i := range records {
		key := filter.DomainKey(records[i].Domain)
		if key == "" {
			continue
		}
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], i)
	}
	sort.Strings(keys)

	plan := PurgePlan{Groups: len(keys)}
	for _, key := range keys {
		idx := groups[key]
		best := idx[0]
		for _, i := range idx[1:] {
			if better(&records[i], &records[best]) {
				best = i
			}
		}
		plan.Kept = append(plan.Kept, records[best])
		for _, i := range idx {
			if i != best {
				plan.Deleted = append(plan.Deleted, records[i].ID)
			}
		}
	}
	sort.Strings(plan.Deleted)
	return plan
}

func better(a, b *model.Record) bool {
	sa, sb := CompositeScore(a), CompositeScore(b)
	if sa != sb {
		return sa > sb
	}
	return a.ID < b.ID
}

// PurgeResult reports a purge run.
type PurgeResult struct {
	Scanned   int      `json:"scanned"`
	Groups    int      `json:"groups"`
	Kept      int      `json:"kept"`
	Deleted   []string `json:"deleted"`
	Removed   int      `json:"removed"`
	Errors    int      `json:"errors"`
	DryRun    bool     `json:"dry_run"`
	Truncated bool     `json:"truncated"`
}

// Purge loads every record, plans the dedup and deletes the losers unless
// dryRun is set. Individual delete failures are counted, not returned.
func Purge(ctx context.Context, st store.Store, load LoadOpts, dryRun bool) (*PurgeResult, error) {
	log := zap.L().With(zap.String("component", "purge"))

	records, truncated, err := LoadAll(ctx, st, load)
	if err != nil {
		return nil, eris.Wrap(err, "kb: purge")
	}
	plan := PlanPurge(records)

	res := &PurgeResult{
		Scanned:   len(records),
		Groups:    plan.Groups,
		Kept:      len(plan.Kept),
		Deleted:   plan.Deleted,
		DryRun:    dryRun,
		Truncated: truncated,
	}
	if !dryRun && len(plan.Deleted) > 0 {
		deleteLosers(ctx, st, plan.Deleted, res, log)
	}

	log.Info("kb: purge complete",
		zap.Int("scanned", res.Scanned),
		zap.Int("groups", res.Groups),
		zap.Int("to_delete", len(res.Deleted)),
		zap.Int("removed", res.Removed),
		zap.Int("errors", res.Errors),
		zap.Bool("dry_run", dryRun),
	)
	return res, nil
}

// deleteLosers removes ids in one call when the store supports it, and falls
// back to per-record deletes otherwise or when the bulk delete fails.
func deleteLosers(ctx context.Context, st store.Store, ids []string, res *PurgeResult, log *zap.Logger) {
	if bw, ok := st.(store.BulkWriter); ok {
		n, err := bw.DeleteRecords(ctx, ids)
		if err == nil {
			res.Removed = int(n)
			return
		}
		log.Warn("kb: bulk purge failed, deleting one by one", zap.Int("ids", len(ids)), zap.Error(err))
	}
	for _, id := range ids {
		if err := st.DeleteRecord(ctx, id); err != nil {
			res.Errors++
			log.Warn("kb: purge delete failed", zap.String("id", id), zap.Error(err))
			continue
		}
		res.Removed++
	}
}
