// Package scorer computes the 0-100 confidence score of a harvested candidate.
package scorer

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/kb-harvester/internal/config"
)

// DefaultMinConfidence is the acceptance threshold when the caller gives none.
const DefaultMinConfidence = 75

// DefaultScorerConfig returns a config.ScorerConfig with sensible defaults.
// The maximum attainable score is 100.
func DefaultScorerConfig() config.ScorerConfig {
	return config.ScorerConfig{
		// Sector tiers (score >= 6, >= 3, >= 1).
		SectorStrongWeight: 45,
		SectorMediumWeight: 30,
		SectorWeakWeight:   15,

		// Geography.
		GeoCityWeight:   25,
		GeoRegionWeight: 15,

		CleanDomainWeight: 20,

		// Snippet informativeness.
		SnippetWeight:    10,
		SnippetMinLength: 80,
		OfferingKeywords: []string{
			"services", "service", "solutions", "conseil", "conseils", "consulting",
			"cabinet", "firme", "specialise", "specialisee", "specialistes", "expert",
			"expertise", "produits", "fabricant", "offre", "offrons", "accompagne",
			"we offer", "provides", "products",
		},

		DefaultMinimumScore: DefaultMinConfidence,
	}
}

// MaxScore returns the best attainable score under c.
func MaxScore(c config.ScorerConfig) int {
	return c.SectorStrongWeight + c.GeoCityWeight + c.CleanDomainWeight + c.SnippetWeight
}

// ValidateConfig checks that a ScorerConfig is internally consistent.
func ValidateConfig(c config.ScorerConfig) error {
	var errs []string

	// All weights must be non-negative.
	weights := map[string]int{
		"sector_strong_weight": c.SectorStrongWeight,
		"sector_medium_weight": c.SectorMediumWeight,
		"sector_weak_weight":   c.SectorWeakWeight,
		"geo_city_weight":      c.GeoCityWeight,
		"geo_region_weight":    c.GeoRegionWeight,
		"clean_domain_weight":  c.CleanDomainWeight,
		"snippet_weight":       c.SnippetWeight,
	}
	for name, w := range weights {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}

	// Tiers must not invert.
	if c.SectorMediumWeight > c.SectorStrongWeight || c.SectorWeakWeight > c.SectorMediumWeight {
		errs = append(errs, "sector weights must be strong >= medium >= weak")
	}
	if c.GeoRegionWeight > c.GeoCityWeight {
		errs = append(errs, "geo_region_weight must be <= geo_city_weight")
	}

	if top := MaxScore(c); top != 100 {
		errs = append(errs, fmt.Sprintf("maximum score should be 100, got %d", top))
	}

	if c.DefaultMinimumScore < 0 || c.DefaultMinimumScore > 100 {
		errs = append(errs, "default_minimum_score must be between 0 and 100")
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
