package scorer

import (
	"unicode/utf8"

	"github.com/sells-group/kb-harvester/internal/config"
	"github.com/sells-group/kb-harvester/internal/filter"
	"github.com/sells-group/kb-harvester/internal/geo"
	"github.com/sells-group/kb-harvester/internal/sector"
	"github.com/sells-group/kb-harvester/internal/textnorm"
)

// Sector score tiers.
const (
	strongTier = 6
	mediumTier = 3
	weakTier   = 1
)

// Input is one candidate to score.
type Input struct {
	Text         string
	Snippet      string
	Domain       string
	Sector       string
	DetectedCity string
}

// Breakdown is the per-component contribution to a score.
type Breakdown struct {
	Sector    int `json:"sector"`
	Geography int `json:"geography"`
	Domain    int `json:"domain"`
	Snippet   int `json:"snippet"`
	Total     int `json:"total"`
}

// Scorer combines sector, geography, domain and snippet signals.
type Scorer struct {
	classifier *sector.Classifier
	cfg        config.ScorerConfig
}

// New creates a Scorer. A nil classifier uses the embedded rules.
func New(classifier *sector.Classifier, cfg config.ScorerConfig) *Scorer {
	if classifier == nil {
		classifier = sector.Default()
	}
	return &Scorer{classifier: classifier, cfg: cfg}
}

// Compute returns the confidence score in [0,100].
func (s *Scorer) Compute(in Input) int {
	return s.Explain(in).Total
}

// Explain returns the score with its components.
func (s *Scorer) Explain(in Input) Breakdown {
	var b Breakdown

	switch score := s.classifier.Score(in.Text, in.Sector); {
	case score >= strongTier:
		b.Sector = s.cfg.SectorStrongWeight
	case score >= mediumTier:
		b.Sector = s.cfg.SectorMediumWeight
	case score >= weakTier:
		b.Sector = s.cfg.SectorWeakWeight
	}

	switch {
	case in.DetectedCity != "":
		b.Geography = s.cfg.GeoCityWeight
	case geo.IsGrandMetro(in.Text):
		b.Geography = s.cfg.GeoRegionWeight
	}

	if filter.IsCleanDomain(in.Domain) {
		b.Domain = s.cfg.CleanDomainWeight
	}

	if s.informative(in.Snippet) {
		b.Snippet = s.cfg.SnippetWeight
	}

	b.Total = clamp(b.Sector + b.Geography + b.Domain + b.Snippet)
	return b
}

func (s *Scorer) informative(snippet string) bool {
	if utf8.RuneCountInString(snippet) < s.cfg.SnippetMinLength {
		return false
	}
	tokens := textnorm.Tokens(snippet)
	for _, k := range s.cfg.OfferingKeywords {
		if textnorm.ContainsWord(tokens, k) {
			return true
		}
	}
	return false
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Accept reports whether score meets minimum. A non-positive minimum means
// DefaultMinConfidence.
func Accept(score, minimum int) bool {
	if minimum <= 0 {
		minimum = DefaultMinConfidence
	}
	return score >= minimum
}
