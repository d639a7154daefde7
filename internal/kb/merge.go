package kb

import (
	"strings"
	"unicode/utf8"

	"github.com/sells-group/kb-harvester/internal/model"
)

// notesScoreCap bounds the notes contribution to the composite score.
const notesScoreCap = 50

// CompositeScore ranks records sharing a domain:
// confidence*1000 + |keywords| + |tags| + |sectors| + min(|notes|, 50).
func CompositeScore(r *model.Record) int {
	notes := utf8.RuneCountInString(r.Notes)
	if notes > notesScoreCap {
		notes = notesScoreCap
	}
	return r.ConfidenceScore*1000 + len(r.Keywords) + len(r.Tags) + len(r.IndustrySectors) + notes
}

// Merge folds incoming curated data into existing and returns the result.
// Identity scalars are overwritten when incoming has them, the region only
// when incoming knows it, sets are unioned, the longer notes win and the
// confidence is the max of both sides. Neither argument is modified.
func Merge(existing, incoming model.Record) model.Record {
	out := existing

	overwrite(&out.Name, incoming.Name)
	overwrite(&out.Website, incoming.Website)
	overwrite(&out.HQCity, incoming.HQCity)
	overwrite(&out.HQProvince, incoming.HQProvince)
	overwrite(&out.HQCountry, incoming.HQCountry)
	overwrite(&out.IndustryLabel, incoming.IndustryLabel)

	if incoming.HQRegion.Valid() && incoming.HQRegion != model.RegionUnknown {
		out.HQRegion = incoming.HQRegion
	}

	out.IndustrySectors = union(existing.IndustrySectors, incoming.IndustrySectors)
	out.Tags = union(existing.Tags, incoming.Tags)
	out.Keywords = union(existing.Keywords, incoming.Keywords)
	out.Synonyms = union(existing.Synonyms, incoming.Synonyms)
	out.SectorSynonymsUsed = union(existing.SectorSynonymsUsed, incoming.SectorSynonymsUsed)
	out.QualityFlags = union(existing.QualityFlags, incoming.QualityFlags)

	if utf8.RuneCountInString(incoming.Notes) > utf8.RuneCountInString(existing.Notes) {
		out.Notes = incoming.Notes
	}
	if incoming.ConfidenceScore > out.ConfidenceScore {
		out.ConfidenceScore = incoming.ConfidenceScore
	}

	if out.SourceOrigin == "" {
		out.SourceOrigin = incoming.SourceOrigin
	}
	if out.SeedBatchID == "" {
		out.SeedBatchID = incoming.SeedBatchID
	}
	if incoming.LastVerifiedAt != nil && (out.LastVerifiedAt == nil || incoming.LastVerifiedAt.After(*out.LastVerifiedAt)) {
		t := *incoming.LastVerifiedAt
		out.LastVerifiedAt = &t
	}
	return out
}

func overwrite(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

// union keeps the order of a then b, dropping blanks and exact duplicates.
func union(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			v = strings.TrimSpace(v)
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
