package kb

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/kb-harvester/internal/model"
	"github.com/sells-group/kb-harvester/internal/store"
)

// CleanResult reports a corruption sweep.
type CleanResult struct {
	Scanned   int      `json:"scanned"`
	Corrupted []string `json:"corrupted"`
	Removed   int      `json:"removed"`
	Errors    int      `json:"errors"`
	DryRun    bool     `json:"dry_run"`
}

// Corrupted reports whether rec has an empty domain or an invalid website.
func Corrupted(rec *model.Record) bool {
	return strings.TrimSpace(rec.Domain) == "" || !rec.ValidWebsite()
}

// RemoveCorrupted deletes every corrupted record unless dryRun is set.
func RemoveCorrupted(ctx context.Context, st store.Store, load LoadOpts, dryRun bool) (*CleanResult, error) {
	log := zap.L().With(zap.String("component", "clean"))

	records, _, err := LoadAll(ctx, st, load)
	if err != nil {
		return nil, eris.Wrap(err, "kb: remove corrupted")
	}

	res := &CleanResult{Scanned: len(records), DryRun: dryRun}
	for i := range records {
		if !Corrupted(&records[i]) {
			continue
		}
		id := records[i].ID
		res.Corrupted = append(res.Corrupted, id)
		if dryRun {
			continue
		}
		if err := st.DeleteRecord(ctx, id); err != nil {
			res.Errors++
			log.Warn("kb: delete corrupted record failed", zap.String("id", id), zap.Error(err))
			continue
		}
		res.Removed++
	}

	log.Info("kb: corruption sweep complete",
		zap.Int("scanned", res.Scanned),
		zap.Int("corrupted", len(res.Corrupted)),
		zap.Int("removed", res.Removed),
		zap.Int("errors", res.Errors),
		zap.Bool("dry_run", dryRun),
	)
	return res, nil
}
