package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		title   string
		snippet string
		want    Reason
	}{
		{
			name:    "clean firm page",
			url:     "https://www.exemplefirme.qc.ca/contact",
			title:   "Exemple Firme — Cabinet comptable Montréal",
			snippet: "Services de comptabilité, audit et fiscalité à Montréal.",
			want:    ReasonNone,
		},
		{name: "social host", url: "https://www.linkedin.com/company/acme", title: "Acme", want: ReasonHost},
		{name: "directory host", url: "https://www.pagesjaunes.ca/search/si/1/comptable", title: "Comptables", want: ReasonHost},
		{name: "government subdomain", url: "https://www.registreentreprises.gouv.qc.ca/x", title: "Registre", want: ReasonHost},
		{name: "blog path", url: "https://acme.ca/blog/nouveautes", title: "Nouveautés", want: ReasonPath},
		{name: "accented path", url: "https://acme.ca/Actualités/2024", title: "Acme", want: ReasonPath},
		{name: "jobs path", url: "https://acme.ca/carrieres", title: "Acme", want: ReasonPath},
		{name: "top slug", url: "https://agence.ca/top-10-agences-montreal", title: "Agences", want: ReasonPath},
		{name: "top N title", url: "https://agence.ca/", title: "Top 10 des agences web à Montréal", want: ReasonTitle},
		{name: "best title", url: "https://agence.ca/", title: "The 15 Best Accounting Firms", want: ReasonTitle},
		{name: "meilleurs title", url: "https://agence.ca/", title: "Les meilleurs comptables", want: ReasonTitle},
		{name: "directory title", url: "https://agence.ca/", title: "Annuaire des firmes", want: ReasonTitle},
		{name: "job snippet", url: "https://acme.ca/", title: "Acme", snippet: "Consultez nos offres d'emploi", want: ReasonSnippet},
		{name: "malformed", url: "::not a url", title: "x", want: ReasonBadURL},
		{name: "no host", url: "/relative/path", title: "x", want: ReasonBadURL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Check(tt.url, tt.title, tt.snippet))
			assert.Equal(t, tt.want != ReasonNone, IsNoise(tt.url, tt.title, tt.snippet))
		})
	}
}
