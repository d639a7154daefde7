package geo

import "github.com/sells-group/kb-harvester/internal/textnorm"

// provinceKeys maps folded English/French names and abbreviations to the
// two-letter postal code.
var provinceKeys = map[string]string{
	"quebec": "QC", "qc": "QC", "que": "QC", "pq": "QC", "province de quebec": "QC",
	"ontario": "ON", "on": "ON", "ont": "ON",
	"british columbia": "BC", "colombie britannique": "BC", "bc": "BC", "cb": "BC",
	"alberta": "AB", "ab": "AB", "alta": "AB",
	"manitoba": "MB", "mb": "MB", "man": "MB",
	"saskatchewan": "SK", "sk": "SK", "sask": "SK",
	"nova scotia": "NS", "nouvelle ecosse": "NS", "ns": "NS",
	"new brunswick": "NB", "nouveau brunswick": "NB", "nb": "NB",
	"newfoundland and labrador": "NL", "terre neuve et labrador": "NL",
	"newfoundland": "NL", "terre neuve": "NL", "nl": "NL", "tnl": "NL",
	"prince edward island": "PE", "ile du prince edouard": "PE", "pe": "PE", "pei": "PE", "ipe": "PE",
	"yukon": "YT", "yt": "YT",
	"northwest territories": "NT", "territoires du nord ouest": "NT", "nt": "NT", "tno": "NT",
	"nunavut": "NU", "nu": "NU",
}

// NormalizeProvince returns the two-letter code for a province name or
// abbreviation, or "" when it is not recognized.
func NormalizeProvince(s string) string {
	return provinceKeys[textnorm.Key(s)]
}
