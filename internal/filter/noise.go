package filter

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/sells-group/kb-harvester/internal/textnorm"
)

// Reason explains why a hit was rejected. The empty Reason means the hit is clean.
type Reason string

const (
	ReasonNone    Reason = ""
	ReasonBadURL  Reason = "bad_url"
	ReasonPath    Reason = "noise_path"
	ReasonTitle   Reason = "noise_title"
	ReasonHost    Reason = "blocked_host"
	ReasonSnippet Reason = "noise_snippet"
)

// blockedPathSegments are URL path segments of listing, editorial and job pages.
var blockedPathSegments = map[string]bool{
	"annuaire": true, "directory": true, "directories": true, "repertoire": true,
	"listing": true, "listings": true, "liste": true, "list": true,
	"blog": true, "blogs": true, "news": true, "nouvelles": true, "actualites": true,
	"article": true, "articles": true, "press": true, "presse": true, "communique": true,
	"jobs": true, "job": true, "emplois": true, "emploi": true, "careers": true, "carrieres": true,
	"classement": true, "ranking": true, "rankings": true, "top": true,
	"search": true, "recherche": true, "tag": true, "tags": true, "category": true, "categorie": true,
	"forum": true, "forums": true, "events": true, "evenements": true,
}

// blockedHosts are social networks, aggregators, directories, media and job boards.
var blockedHosts = map[string]bool{
	"facebook.com": true, "instagram.com": true, "linkedin.com": true, "twitter.com": true,
	"x.com": true, "youtube.com": true, "tiktok.com": true, "pinterest.com": true,
	"reddit.com": true, "wikipedia.org": true, "medium.com": true,
	"yelp.com": true, "yelp.ca": true, "yellowpages.ca": true, "pagesjaunes.ca": true,
	"canpages.ca": true, "411.ca": true, "cylex.ca": true, "hotfrog.ca": true,
	"bbb.org": true, "glassdoor.com": true, "glassdoor.ca": true, "indeed.com": true,
	"indeed.ca": true, "jobillico.com": true, "jobboom.com": true, "guichetemplois.gc.ca": true,
	"clutch.co": true, "goodfirms.co": true, "crunchbase.com": true, "zoominfo.com": true,
	"opencorporates.com": true, "dnb.com": true, "bloomberg.com": true,
	"lapresse.ca": true, "ledevoir.com": true, "journaldemontreal.com": true,
	"radio-canada.ca": true, "cbc.ca": true, "tvanouvelles.ca": true, "lesaffaires.com": true,
	"montrealgazette.com": true, "google.com": true, "google.ca": true, "amazon.com": true,
	"amazon.ca": true, "kijiji.ca": true, "tripadvisor.ca": true, "tripadvisor.com": true,
	"quebec.ca": true, "canada.ca": true, "registreentreprises.gouv.qc.ca": true,
}

// listingTitleRe matches "top 10 ...", "best ...", "ranking", "directory" style titles.
var listingTitleRe = regexp.MustCompile(`(?i)\b(top\s*\d+|\d+\s+(meilleur|best)|best\b|meilleur(e|s|es)?\b|palmares|classement|ranking|directory|annuaire|repertoire|liste des|list of|comparatif|vs\.?\s)`)

// snippetNoiseRe matches job-posting and directory boilerplate in snippets.
var snippetNoiseRe = regexp.MustCompile(`(?i)\b(offres? d.emploi|we.re hiring|nous embauchons|job posting|postuler|annuaire des entreprises|business directory|find the best)\b`)

// Check returns why the hit is noise, or ReasonNone when it is clean.
func Check(rawURL, title, snippet string) Reason {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return ReasonBadURL
	}

	domain, err := RegistrableDomain(rawURL)
	if err != nil {
		return ReasonBadURL
	}
	if blockedHosts[domain] || blockedHosts[NormalizeDomain(rawURL)] {
		return ReasonHost
	}

	for _, seg := range strings.Split(strings.ToLower(u.Path), "/") {
		seg = textnorm.Fold(seg)
		if seg == "" {
			continue
		}
		if blockedPathSegments[seg] {
			return ReasonPath
		}
		// "top-10-agences" style slugs
		if strings.HasPrefix(seg, "top-") || strings.HasPrefix(seg, "best-") || strings.HasPrefix(seg, "meilleur") {
			return ReasonPath
		}
	}

	if listingTitleRe.MatchString(textnorm.Fold(title)) {
		return ReasonTitle
	}
	if snippetNoiseRe.MatchString(textnorm.Fold(snippet)) {
		return ReasonSnippet
	}
	return ReasonNone
}

// IsNoise reports whether a search hit should be discarded.
func IsNoise(rawURL, title, snippet string) bool {
	return Check(rawURL, title, snippet) != ReasonNone
}
