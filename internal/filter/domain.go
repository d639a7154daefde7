// Package filter rejects noisy search hits and extracts registrable domains.
package filter

import (
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

// twoPartSuffixes is the closed set of second-level public suffixes for which
// the registrable domain keeps three labels.
var twoPartSuffixes = map[string]bool{
	// Canadian provincial and territorial
	"ab.ca": true, "bc.ca": true, "mb.ca": true, "nb.ca": true, "nf.ca": true,
	"nl.ca": true, "ns.ca": true, "nt.ca": true, "nu.ca": true, "on.ca": true,
	"pe.ca": true, "qc.ca": true, "sk.ca": true, "yk.ca": true, "gc.ca": true,
	// common elsewhere
	"co.uk": true, "org.uk": true, "ac.uk": true, "gov.uk": true,
	"com.au": true, "net.au": true, "org.au": true,
	"co.nz": true, "com.br": true, "com.mx": true, "co.jp": true,
}

// ErrInvalidURL is returned when no registrable domain can be extracted.
var ErrInvalidURL = eris.New("filter: invalid url")

// RegistrableDomain returns the lowercase registrable domain of rawURL, without
// a leading "www.". Bare hosts ("acme.ca") are accepted.
func RegistrableDomain(rawURL string) (string, error) {
	host, err := hostOf(rawURL)
	if err != nil {
		return "", err
	}

	labels := strings.Split(host, ".")
	for _, l := range labels {
		if l == "" {
			return "", eris.Wrapf(ErrInvalidURL, "empty label in %q", rawURL)
		}
	}
	if len(labels) < 2 {
		return "", eris.Wrapf(ErrInvalidURL, "no public suffix in %q", rawURL)
	}
	if len(labels) == 2 && twoPartSuffixes[host] {
		return "", eris.Wrapf(ErrInvalidURL, "suffix only in %q", rawURL)
	}

	keep := 2
	if len(labels) >= 3 && twoPartSuffixes[strings.Join(labels[len(labels)-2:], ".")] {
		keep = 3
	}
	if len(labels) < keep {
		return "", eris.Wrapf(ErrInvalidURL, "suffix only in %q", rawURL)
	}
	return strings.Join(labels[len(labels)-keep:], "."), nil
}

// DomainKey is the form domains are stored and grouped under: the registrable
// domain when one can be extracted, the normalized host otherwise.
func DomainKey(s string) string {
	if d, err := RegistrableDomain(s); err == nil {
		return d
	}
	return NormalizeDomain(s)
}

// NormalizeDomain lowercases s, strips scheme, path, port and a leading "www.".
// Unlike RegistrableDomain it keeps subdomains.
func NormalizeDomain(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	host, err := hostOf(s)
	if err != nil {
		return strings.TrimPrefix(strings.ToLower(s), "www.")
	}
	return host
}

func hostOf(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", eris.Wrap(ErrInvalidURL, "empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", eris.Wrapf(ErrInvalidURL, "parse %q: %v", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", eris.Wrapf(ErrInvalidURL, "unsupported scheme %q", u.Scheme)
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	host = strings.TrimPrefix(host, "www.")
	if host == "" || strings.ContainsAny(host, " _") {
		return "", eris.Wrapf(ErrInvalidURL, "no host in %q", raw)
	}
	return host, nil
}

// Origin returns "scheme://host" for rawURL, used as the stored website.
func Origin(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return ""
	}
	scheme := u.Scheme
	if scheme != "http" {
		scheme = "https"
	}
	return scheme + "://" + strings.ToLower(u.Host)
}

// plausibleTLDs are the top-level domains the scorer trusts for organizations.
var plausibleTLDs = map[string]bool{
	"ca": true, "com": true, "org": true, "net": true, "quebec": true,
	"io": true, "co": true, "biz": true, "tech": true, "ai": true,
	"us": true, "fr": true, "uk": true, "au": true, "eu": true,
}

// noiseDomainTokens mark aggregators and media sites hiding behind clean TLDs.
var noiseDomainTokens = []string{
	"annuaire", "directory", "repertoire", "top10", "top-10", "best", "meilleur",
	"ranking", "classement", "news", "nouvelles", "journal", "jobs",
	"emploi", "careers", "listing", "yellow", "pages", "review", "avis",
}

// IsCleanDomain reports whether domain looks like an organization's own site:
// no directory/ranking/news tokens, a plausible TLD and a length under 50.
func IsCleanDomain(domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" || len(domain) >= 50 {
		return false
	}
	idx := strings.LastIndex(domain, ".")
	if idx < 0 || !plausibleTLDs[domain[idx+1:]] {
		return false
	}
	for _, tok := range noiseDomainTokens {
		if strings.Contains(domain, tok) {
			return false
		}
	}
	return true
}
