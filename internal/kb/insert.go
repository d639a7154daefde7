package kb

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/kb-harvester/internal/filter"
	"github.com/sells-group/kb-harvester/internal/model"
	"github.com/sells-group/kb-harvester/internal/store"
)

// ErrMissingFields marks a record lacking name, domain or website.
var ErrMissingFields = eris.New("kb: record missing name, domain or website")

// Normalize lowercases the domain, trims identity fields, defaults the region
// and truncates notes.
func Normalize(rec *model.Record) {
	if d := filter.DomainKey(rec.Domain); d != "" {
		rec.Domain = d
	} else if rec.Domain == "" && rec.Website != "" {
		rec.Domain = filter.DomainKey(rec.Website)
	}
	rec.Name = strings.TrimSpace(rec.Name)
	rec.Website = strings.TrimSpace(rec.Website)
	if rec.HQRegion == "" {
		rec.HQRegion = model.RegionUnknown
	}
	rec.Notes = model.TruncateNotes(rec.Notes)
}

// Insert writes a new harvested record. The caller owns deduplication.
func Insert(ctx context.Context, st store.Store, rec *model.Record) error {
	Normalize(rec)
	if rec.Name == "" || rec.Domain == "" || rec.Website == "" {
		return ErrMissingFields
	}
	if err := st.CreateRecord(ctx, rec); err != nil {
		return eris.Wrapf(err, "kb: insert %s", rec.Domain)
	}
	return nil
}
