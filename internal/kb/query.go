package kb

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/kb-harvester/internal/filter"
	"github.com/sells-group/kb-harvester/internal/model"
	"github.com/sells-group/kb-harvester/internal/store"
)

// QueryOpts filters records for downstream readers.
type QueryOpts struct {
	Region        model.Region `json:"region,omitempty"`
	Sector        string       `json:"sector,omitempty"`
	MinConfidence int          `json:"min_confidence,omitempty"`
	Limit         int          `json:"limit,omitempty"`
	Load          LoadOpts     `json:"-"`
}

// Query returns records matching region, sector and minimum confidence,
// highest confidence first.
func Query(ctx context.Context, st store.Store, opts QueryOpts) ([]model.Record, error) {
	var candidates []model.Record
	var err error
	if opts.Region != "" {
		lo := opts.Load.withDefaults()
		candidates, err = st.FilterRecords(ctx, store.FieldRegion, string(opts.Region), lo.PageSize*lo.MaxPages)
	} else {
		candidates, _, err = LoadAll(ctx, st, opts.Load)
	}
	if err != nil {
		return nil, eris.Wrap(err, "kb: query")
	}

	var out []model.Record
	for _, r := range candidates {
		if opts.Sector != "" && !r.HasSector(opts.Sector) {
			continue
		}
		if r.ConfidenceScore < opts.MinConfidence {
			continue
		}
		out = append(out, r)
	}
	sortByConfidence(out)
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// TopUpRequest asks for extra records when a campaign's live search
// under-delivers.
type TopUpRequest struct {
	Sector        string       `json:"sector"`
	Region        model.Region `json:"region,omitempty"`
	Exclude       []string     `json:"exclude,omitempty"`
	Need          int          `json:"need"`
	MinConfidence int          `json:"min_confidence,omitempty"`
}

// TopUp returns up to Need records in the sector (and region, when set) whose
// domains are not in Exclude, best confidence first. Without a region it
// draws from the metro regions.
func TopUp(ctx context.Context, st store.Store, req TopUpRequest) ([]model.Record, error) {
	if req.Need <= 0 {
		return nil, nil
	}
	if req.Sector == "" {
		return nil, eris.New("kb: top-up requires a sector")
	}

	regions := []model.Region{req.Region}
	if req.Region == "" {
		regions = []model.Region{model.RegionMTL, model.RegionGM}
	}

	exclude := make(map[string]bool, len(req.Exclude))
	for _, d := range req.Exclude {
		exclude[filter.DomainKey(d)] = true
	}

	var pool []model.Record
	for _, region := range regions {
		recs, err := Query(ctx, st, QueryOpts{Region: region, Sector: req.Sector, MinConfidence: req.MinConfidence})
		if err != nil {
			return nil, eris.Wrap(err, "kb: top-up")
		}
		pool = append(pool, recs...)
	}
	sortByConfidence(pool)

	var out []model.Record
	for _, r := range pool {
		d := filter.DomainKey(r.Domain)
		if d == "" || exclude[d] {
			continue
		}
		exclude[d] = true
		out = append(out, r)
		if len(out) == req.Need {
			break
		}
	}
	return out, nil
}

func sortByConfidence(recs []model.Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].ConfidenceScore != recs[j].ConfidenceScore {
			return recs[i].ConfidenceScore > recs[j].ConfidenceScore
		}
		return recs[i].ID < recs[j].ID
	})
}
