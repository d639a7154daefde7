// Package textnorm folds free text for case- and accent-insensitive matching.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonWordRe = regexp.MustCompile(`[^a-z0-9]+`)

// Fold lowercases s and strips diacritics ("Montréal" → "montreal").
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// Tokens folds s and collapses every run of non-alphanumerics into a single
// space, padding both ends so whole-word lookups can use " term ".
func Tokens(s string) string {
	folded := nonWordRe.ReplaceAllString(Fold(s), " ")
	return " " + strings.TrimSpace(folded) + " "
}

// Key is the folded, single-spaced form of s without padding.
func Key(s string) string {
	return strings.TrimSpace(nonWordRe.ReplaceAllString(Fold(s), " "))
}

// ContainsWord reports whether term appears in text as a whole word or phrase.
// text must already be the output of Tokens.
func ContainsWord(tokens, term string) bool {
	k := Key(term)
	if k == "" {
		return false
	}
	return strings.Contains(tokens, " "+k+" ")
}
