// Package sector scores free text against per-sector keyword rules.
package sector

import (
	_ "embed"
	"os"
	"regexp"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/kb-harvester/internal/textnorm"
)

// Points per matched term.
const (
	StrongPoints = 3
	WeakPoints   = 1
)

// Acceptance thresholds. Harvest-time hits are corroborated by geography and
// the confidence score, so they need less sector evidence than backfill.
const (
	HarvestThreshold  = 1
	BackfillThreshold = 3
)

// MaxSecondary caps the secondary sectors attached to one record.
const MaxSecondary = 2

// SecondaryMinScore is the minimum score for a secondary sector.
const SecondaryMinScore = 3

//go:embed rules.yaml
var defaultRules []byte

// Rule is the keyword table for one sector.
type Rule struct {
	Name    string   `yaml:"name"`
	Strong  []string `yaml:"strong"`
	Weak    []string `yaml:"weak"`
	Exclude []string `yaml:"exclude"`
	Queries []string `yaml:"queries"`
}

// RuleSet is a complete, swappable rule table.
type RuleSet struct {
	Noise   []string `yaml:"noise"`
	Sectors []Rule   `yaml:"sectors"`
}

// Match is the outcome of classifying one text.
type Match struct {
	Primary   string
	Secondary []string
	Scores    map[string]int
	Terms     []string
}

// Sectors returns the primary followed by any secondary sectors.
func (m Match) Sectors() []string {
	if m.Primary == "" {
		return nil
	}
	return append([]string{m.Primary}, m.Secondary...)
}

// Classifier applies a RuleSet.
type Classifier struct {
	rules  []Rule
	index  map[string]int
	noise  []string
	topNRe *regexp.Regexp
}

// Parse builds a Classifier from YAML rule data.
func Parse(data []byte) (*Classifier, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, eris.Wrap(err, "sector: parse rules")
	}
	return New(rs)
}

// LoadFile builds a Classifier from a YAML rule file.
func LoadFile(path string) (*Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "sector: read rules %s", path)
	}
	return Parse(data)
}

// Default returns the classifier for the embedded rule table.
func Default() *Classifier {
	c, err := Parse(defaultRules)
	if err != nil {
		panic(err)
	}
	return c
}

// Load returns LoadFile(path) when path is set, otherwise Default().
func Load(path string) (*Classifier, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// New validates rs and builds a Classifier.
func New(rs RuleSet) (*Classifier, error) {
	if len(rs.Sectors) == 0 {
		return nil, eris.New("sector: rule set has no sectors")
	}
	c := &Classifier{
		rules:  rs.Sectors,
		index:  make(map[string]int, len(rs.Sectors)),
		noise:  rs.Noise,
		topNRe: regexp.MustCompile(` top \d+ `),
	}
	for i, r := range rs.Sectors {
		if r.Name == "" {
			return nil, eris.Errorf("sector: rule %d has no name", i)
		}
		if _, dup := c.index[r.Name]; dup {
			return nil, eris.Errorf("sector: duplicate sector %q", r.Name)
		}
		if len(r.Strong)+len(r.Weak) == 0 {
			return nil, eris.Errorf("sector: %q has no terms", r.Name)
		}
		c.index[r.Name] = i
	}
	return c, nil
}

// Sectors returns the sector vocabulary in rule order.
func (c *Classifier) Sectors() []string {
	out := make([]string, len(c.rules))
	for i, r := range c.rules {
		out[i] = r.Name
	}
	return out
}

// Valid reports whether sector is in the vocabulary.
func (c *Classifier) Valid(sector string) bool {
	_, ok := c.index[sector]
	return ok
}

// Queries returns the search templates for sector.
func (c *Classifier) Queries(sector string) []string {
	i, ok := c.index[sector]
	if !ok {
		return nil
	}
	return c.rules[i].Queries
}

// IsNoise reports whether text contains a global noise phrase.
func (c *Classifier) IsNoise(text string) bool {
	return c.noisy(textnorm.Tokens(text))
}

func (c *Classifier) noisy(tokens string) bool {
	if c.topNRe.MatchString(tokens) {
		return true
	}
	for _, p := range c.noise {
		if textnorm.ContainsWord(tokens, p) {
			return true
		}
	}
	return false
}

// Score returns the keyword score of text for sector. Unknown sectors,
// noisy text and text containing an exclude term score 0.
func (c *Classifier) Score(text, sector string) int {
	i, ok := c.index[sector]
	if !ok {
		return 0
	}
	tokens := textnorm.Tokens(text)
	if c.noisy(tokens) {
		return 0
	}
	score, _ := scoreRule(tokens, c.rules[i])
	return score
}

func scoreRule(tokens string, r Rule) (int, []string) {
	for _, t := range r.Exclude {
		if textnorm.ContainsWord(tokens, t) {
			return 0, nil
		}
	}
	score := 0
	var terms []string
	for _, t := range r.Strong {
		if textnorm.ContainsWord(tokens, t) {
			score += StrongPoints
			terms = append(terms, t)
		}
	}
	for _, t := range r.Weak {
		if textnorm.ContainsWord(tokens, t) {
			score += WeakPoints
			terms = append(terms, t)
		}
	}
	return score, terms
}

// Classify scores text against every sector. The best sector at or above
// minScore becomes Primary (ties go to rule order); up to MaxSecondary others
// scoring at least SecondaryMinScore and strictly below the primary are
// attached as Secondary. Terms lists the primary's matched terms.
func (c *Classifier) Classify(text string, minScore int) Match {
	m := Match{Scores: make(map[string]int)}
	tokens := textnorm.Tokens(text)
	if c.noisy(tokens) {
		return m
	}

	type scored struct {
		pos   int
		score int
		terms []string
	}
	var hits []scored
	for i, r := range c.rules {
		s, terms := scoreRule(tokens, r)
		if s == 0 {
			continue
		}
		m.Scores[r.Name] = s
		hits = append(hits, scored{pos: i, score: s, terms: terms})
	}
	if len(hits) == 0 {
		return m
	}
	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].score > hits[b].score
	})

	best := hits[0]
	if best.score < minScore || best.score < 1 {
		return m
	}
	m.Primary = c.rules[best.pos].Name
	m.Terms = best.terms

	for _, h := range hits[1:] {
		if len(m.Secondary) == MaxSecondary {
			break
		}
		if h.score >= SecondaryMinScore && h.score < best.score {
			m.Secondary = append(m.Secondary, c.rules[h.pos].Name)
		}
	}
	return m
}
