// Package kb implements the knowledge-base write paths (insert, import,
// merge, purge, corruption cleanup) and the downstream read queries on top
// of a store.Store.
package kb

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/kb-harvester/internal/model"
	"github.com/sells-group/kb-harvester/internal/store"
)

// Load bounds.
const (
	DefaultPageSize = 500
	DefaultMaxPages = 40
)

// LoadOpts bounds a full scan.
type LoadOpts struct {
	PageSize int
	MaxPages int
}

func (o LoadOpts) withDefaults() LoadOpts {
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.MaxPages <= 0 {
		o.MaxPages = DefaultMaxPages
	}
	return o
}

// LoadAll pages through every record in creation order, stopping after
// MaxPages pages. truncated is true when the page cap was hit before the
// store ran out of records.
func LoadAll(ctx context.Context, st store.Store, opts LoadOpts) (recs []model.Record, truncated bool, err error) {
	opts = opts.withDefaults()
	for page := 0; page < opts.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return recs, true, eris.Wrap(err, "kb: load all")
		}
		batch, err := st.ListRecords(ctx, store.ListOpts{
			Sort:   store.SortCreated,
			Limit:  opts.PageSize,
			Offset: page * opts.PageSize,
		})
		if err != nil {
			return recs, true, eris.Wrapf(err, "kb: load page %d", page)
		}
		recs = append(recs, batch...)
		if len(batch) < opts.PageSize {
			return recs, false, nil
		}
	}
	zap.L().Warn("kb: load stopped at page cap",
		zap.Int("max_pages", opts.MaxPages),
		zap.Int("loaded", len(recs)),
	)
	return recs, true, nil
}
