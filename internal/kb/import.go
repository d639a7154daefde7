package kb

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/kb-harvester/internal/filter"
	"github.com/sells-group/kb-harvester/internal/model"
	"github.com/sells-group/kb-harvester/internal/store"
)

// DefaultMaxErrorDetails bounds the error details kept on results.
const DefaultMaxErrorDetails = 10

// ErrorDetail describes one failed record write.
type ErrorDetail struct {
	Domain string `json:"domain"`
	Error  string `json:"error"`
}

// errorLog counts failures and keeps the first few details.
type errorLog struct {
	max     int
	count   int
	details []ErrorDetail
}

func (l *errorLog) add(domain string, err error) {
	l.count++
	if len(l.details) < l.max {
		l.details = append(l.details, ErrorDetail{Domain: domain, Error: err.Error()})
	}
}

// ImportOptions configures a bulk import.
type ImportOptions struct {
	Load            LoadOpts
	DryRun          bool
	BatchID         string
	MaxErrorDetails int
}

// ImportResult reports a bulk import.
type ImportResult struct {
	Total        int           `json:"total"`
	Created      int           `json:"created"`
	Merged       int           `json:"merged"`
	Skipped      int           `json:"skipped"`
	Errors       int           `json:"errors"`
	ErrorDetails []ErrorDetail `json:"error_details,omitempty"`
	DryRun       bool          `json:"dry_run"`
}

// Import merges curated records into the store. Records missing name, domain
// or website are skipped. An incoming record whose domain already exists is
// merged into the best existing record for that domain; otherwise it is
// created with origin IMPORT. Write failures are counted per record.
func Import(ctx context.Context, st store.Store, incoming []model.Record, opts ImportOptions) (*ImportResult, error) {
	log := zap.L().With(zap.String("component", "import"))
	if opts.MaxErrorDetails <= 0 {
		opts.MaxErrorDetails = DefaultMaxErrorDetails
	}

	existing, _, err := LoadAll(ctx, st, opts.Load)
	if err != nil {
		return nil, eris.Wrap(err, "kb: import")
	}
	byDomain := make(map[string]model.Record, len(existing))
	for _, r := range PlanPurge(existing).Kept {
		byDomain[filter.DomainKey(r.Domain)] = r
	}

	res := &ImportResult{Total: len(incoming), DryRun: opts.DryRun}
	errs := &errorLog{max: opts.MaxErrorDetails}

	// New records are buffered so stores with bulk writes get one COPY.
	var pending []model.Record
	pendingIdx := make(map[string]int)

	for _, in := range incoming {
		if err := ctx.Err(); err != nil {
			return res, eris.Wrap(err, "kb: import interrupted")
		}

		Normalize(&in)
		if in.Name == "" || in.Domain == "" || in.Website == "" {
			res.Skipped++
			log.Debug("kb: import skipped incomplete record", zap.String("domain", in.Domain), zap.String("name", in.Name))
			continue
		}
		in.AddFlag(model.FlagImportedMaster)
		if in.SeedBatchID == "" {
			in.SeedBatchID = opts.BatchID
		}

		if idx, ok := pendingIdx[in.Domain]; ok {
			pending[idx] = Merge(pending[idx], in)
			res.Merged++
			continue
		}

		if cur, ok := byDomain[in.Domain]; ok {
			merged := Merge(cur, in)
			if !opts.DryRun {
				if err := st.UpdateRecord(ctx, &merged); err != nil {
					errs.add(in.Domain, err)
					log.Warn("kb: import merge failed", zap.String("domain", in.Domain), zap.Error(err))
					continue
				}
			}
			byDomain[in.Domain] = merged
			res.Merged++
			continue
		}

		in.ID = ""
		in.SourceOrigin = model.OriginImport
		pendingIdx[in.Domain] = len(pending)
		pending = append(pending, in)
	}

	if opts.DryRun {
		res.Created = len(pending)
	} else {
		res.Created = createAll(ctx, st, pending, errs, log)
	}

	res.Errors = errs.count
	res.ErrorDetails = errs.details
	log.Info("kb: import complete",
		zap.Int("total", res.Total),
		zap.Int("created", res.Created),
		zap.Int("merged", res.Merged),
		zap.Int("skipped", res.Skipped),
		zap.Int("errors", res.Errors),
		zap.Bool("dry_run", opts.DryRun),
	)
	return res, nil
}

// createAll writes recs through the store's bulk path when it has one. Rows a
// failed bulk write did not commit are retried one by one so each failure is
// attributed to its domain.
func createAll(ctx context.Context, st store.Store, recs []model.Record, errs *errorLog, log *zap.Logger) int {
	if len(recs) == 0 {
		return 0
	}
	rest := recs
	created := 0
	if bw, ok := st.(store.BulkWriter); ok {
		n, err := bw.CopyRecords(ctx, recs)
		if err == nil {
			return int(n)
		}
		log.Warn("kb: bulk import failed, creating one by one",
			zap.Int64("written", n),
			zap.Int("pending", len(recs)),
			zap.Error(err),
		)
		created = int(n)
		rest = recs[n:]
	}
	for i := range rest {
		rest[i].ID = ""
		if err := st.CreateRecord(ctx, &rest[i]); err != nil {
			errs.add(rest[i].Domain, err)
			log.Warn("kb: import create failed", zap.String("domain", rest[i].Domain), zap.Error(err))
			continue
		}
		created++
	}
	return created
}
