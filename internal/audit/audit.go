// Package audit cross-checks the stored record set without mutating it.
package audit

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/kb-harvester/internal/filter"
	"github.com/sells-group/kb-harvester/internal/kb"
	"github.com/sells-group/kb-harvester/internal/model"
	"github.com/sells-group/kb-harvester/internal/store"
)

// Missing counts records lacking each required field.
type Missing struct {
	Domain    int `json:"domain"`
	Website   int `json:"website"`
	Sector    int `json:"sector"`
	Geography int `json:"geography"`
}

// Duplicate is a normalized domain held by more than one record.
type Duplicate struct {
	Domain string   `json:"domain"`
	IDs    []string `json:"ids"`
}

// Report is the audit outcome.
type Report struct {
	Total            int                  `json:"total"`
	Complete         int                  `json:"complete"`
	ByRegion         map[model.Region]int `json:"by_region"`
	BySector         map[string]int       `json:"by_sector"`
	Missing          Missing              `json:"missing"`
	InvalidRegion    []string             `json:"invalid_region,omitempty"`
	InvalidWebsite   []string             `json:"invalid_website,omitempty"`
	UnknownSectors   map[string]int       `json:"unknown_sectors,omitempty"`
	DuplicateDomains []Duplicate          `json:"duplicate_domains,omitempty"`
	Reference        int                  `json:"reference"`
	MissingReference []string             `json:"missing_reference,omitempty"`
	Truncated        bool                 `json:"truncated,omitempty"`
}

// Clean reports whether the audit found nothing to fix.
func (r *Report) Clean() bool {
	return r.Complete == r.Total &&
		len(r.InvalidRegion) == 0 &&
		len(r.InvalidWebsite) == 0 &&
		len(r.UnknownSectors) == 0 &&
		len(r.DuplicateDomains) == 0 &&
		len(r.MissingReference) == 0
}

// Audit builds a Report over records. vocabulary is the valid sector set;
// when empty, sectors are not checked. reference is the list of domains the
// store is expected to hold.
func Audit(records []model.Record, vocabulary, reference []string) *Report {
	rep := &Report{
		Total:    len(records),
		ByRegion: make(map[model.Region]int),
		BySector: make(map[string]int),
	}

	valid := make(map[string]bool, len(vocabulary))
	for _, s := range vocabulary {
		valid[s] = true
	}

	byDomain := make(map[string][]string)
	for i := range records {
		r := &records[i]

		if r.HQRegion.Valid() {
			rep.ByRegion[r.HQRegion]++
		} else {
			rep.InvalidRegion = append(rep.InvalidRegion, r.ID)
		}

		for _, f := range r.MissingFields() {
			switch f {
			case model.FieldDomain:
				rep.Missing.Domain++
			case model.FieldWebsite:
				rep.Missing.Website++
			case model.FieldSector:
				rep.Missing.Sector++
			case model.FieldGeography:
				rep.Missing.Geography++
			}
		}
		if r.Complete() {
			rep.Complete++
		}
		if r.Website != "" && !r.ValidWebsite() {
			rep.InvalidWebsite = append(rep.InvalidWebsite, r.ID)
		}

		for _, s := range r.IndustrySectors {
			rep.BySector[s]++
			if len(valid) > 0 && !valid[s] {
				if rep.UnknownSectors == nil {
					rep.UnknownSectors = make(map[string]int)
				}
				rep.UnknownSectors[s]++
			}
		}

		if d := filter.DomainKey(r.Domain); d != "" {
			byDomain[d] = append(byDomain[d], r.ID)
		}
	}

	for d, ids := range byDomain {
		if len(ids) > 1 {
			sort.Strings(ids)
			rep.DuplicateDomains = append(rep.DuplicateDomains, Duplicate{Domain: d, IDs: ids})
		}
	}
	sort.Slice(rep.DuplicateDomains, func(i, j int) bool {
		return rep.DuplicateDomains[i].Domain < rep.DuplicateDomains[j].Domain
	})

	seen := make(map[string]bool)
	for _, ref := range reference {
		d := filter.DomainKey(ref)
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		rep.Reference++
		if _, ok := byDomain[d]; !ok {
			rep.MissingReference = append(rep.MissingReference, d)
		}
	}
	sort.Strings(rep.MissingReference)
	return rep
}

// Run loads the store with bounded pagination and audits it.
func Run(ctx context.Context, st store.Store, load kb.LoadOpts, vocabulary, reference []string) (*Report, error) {
	records, truncated, err := kb.LoadAll(ctx, st, load)
	if err != nil {
		return nil, eris.Wrap(err, "audit: load records")
	}
	rep := Audit(records, vocabulary, reference)
	rep.Truncated = truncated

	zap.L().Info("audit: complete",
		zap.String("component", "audit"),
		zap.Int("total", rep.Total),
		zap.Int("complete", rep.Complete),
		zap.Any("by_region", rep.ByRegion),
		zap.Int("missing_domain", rep.Missing.Domain),
		zap.Int("missing_website", rep.Missing.Website),
		zap.Int("missing_sector", rep.Missing.Sector),
		zap.Int("missing_geography", rep.Missing.Geography),
		zap.Int("invalid_region", len(rep.InvalidRegion)),
		zap.Int("duplicate_domains", len(rep.DuplicateDomains)),
		zap.Int("missing_reference", len(rep.MissingReference)),
		zap.Bool("truncated", truncated),
	)
	return rep, nil
}
