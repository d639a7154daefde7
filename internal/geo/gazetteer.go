package geo

import (
	"sort"

	"github.com/sells-group/kb-harvester/internal/textnorm"
)

// metroCities is the Montréal metro gazetteer.
var metroCities = []string{
	"Montréal", "Laval", "Longueuil", "Brossard", "Boucherville", "Saint-Laurent",
	"Dorval", "Pointe-Claire", "Westmount", "Mont-Royal", "Saint-Lambert", "Verdun",
	"Lachine", "LaSalle", "Anjou", "Montréal-Nord", "Saint-Léonard", "Outremont",
	"Côte-Saint-Luc", "Kirkland", "Beaconsfield", "Dollard-des-Ormeaux",
}

// ringCities are the surrounding Grand-Montréal municipalities.
var ringCities = []string{
	"Terrebonne", "Repentigny", "Blainville", "Mirabel", "Saint-Jérôme", "Boisbriand",
	"Sainte-Thérèse", "Mascouche", "Châteauguay", "Vaudreuil-Dorion",
	"Saint-Jean-sur-Richelieu", "Chambly", "Saint-Eustache", "Deux-Montagnes",
	"Candiac", "La Prairie", "Varennes", "Saint-Bruno-de-Montarville", "Sainte-Julie",
	"L'Assomption", "Beloeil",
}

// regionalPhrases name the wider metro area without a specific city.
var regionalPhrases = []string{
	"grand montreal", "greater montreal", "region de montreal", "montreal area",
	"region metropolitaine de montreal", "couronne nord", "couronne sud",
}

type entry struct {
	key  string
	name string
}

var (
	metroIndex = buildIndex(metroCities)
	ringIndex  = buildIndex(ringCities)
)

// buildIndex orders entries longest key first so "montreal nord" wins over
// "montreal".
func buildIndex(names []string) []entry {
	out := make([]entry, len(names))
	for i, n := range names {
		out[i] = entry{key: textnorm.Key(n), name: n}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return len(out[a].key) > len(out[b].key)
	})
	return out
}

func lookup(index []entry, tokens string) string {
	for _, e := range index {
		if textnorm.ContainsWord(tokens, e.key) {
			return e.name
		}
	}
	return ""
}

// DetectCity returns the canonical metro city named in text, or "".
func DetectCity(text string) string {
	return lookup(metroIndex, textnorm.Tokens(text))
}

// DetectRingCity returns the canonical Grand-Montréal ring municipality named
// in text, or "".
func DetectRingCity(text string) string {
	return lookup(ringIndex, textnorm.Tokens(text))
}

// IsGrandMetro reports whether text places the organization anywhere in the
// Grand-Montréal area: a metro city, a ring municipality or a regional phrase.
func IsGrandMetro(text string) bool {
	tokens := textnorm.Tokens(text)
	if lookup(metroIndex, tokens) != "" || lookup(ringIndex, tokens) != "" {
		return true
	}
	for _, p := range regionalPhrases {
		if textnorm.ContainsWord(tokens, p) {
			return true
		}
	}
	return false
}

// MetroCities returns a copy of the metro gazetteer.
func MetroCities() []string {
	return append([]string(nil), metroCities...)
}
