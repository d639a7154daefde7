// Package geo maps free-text headquarters locations onto the closed set of
// knowledge-base regions.
package geo

import (
	"strings"

	"github.com/sells-group/kb-harvester/internal/model"
	"github.com/sells-group/kb-harvester/internal/textnorm"
)

// Home country and province.
const (
	HomeCountry  = "Canada"
	HomeProvince = "QC"
)

var homeCountryKeys = map[string]bool{
	"canada": true,
	"ca":     true,
	"can":    true,
}

// Resolution is the repaired geography for one record.
type Resolution struct {
	Region   model.Region
	Province string
	Country  string
}

// IsHomeCountry reports whether country names the home country. An empty
// country counts as home since the harvest only targets Canadian results.
func IsHomeCountry(country string) bool {
	k := textnorm.Key(country)
	return k == "" || homeCountryKeys[k]
}

// ResolveRegion returns the region for a record whose current region is
// invalid, or nil when current is already a valid region.
// Rules:
//   - OUTSIDE_QC: country is set and is not the home country
//   - OUTSIDE_QC: province normalizes to a province other than QC
//   - MTL: province is QC (or missing) and city matches the metro gazetteer
//   - QC_OTHER: province is QC and city is not a metro city
//   - UNKNOWN: nothing above applies
func ResolveRegion(current model.Region, city, province, country string) *Resolution {
	if current.Valid() {
		return nil
	}

	country = strings.TrimSpace(country)
	province = strings.TrimSpace(province)

	if !IsHomeCountry(country) {
		p := NormalizeProvince(province)
		if p == "" {
			p = province
		}
		return &Resolution{Region: model.RegionOutsideQC, Province: p, Country: country}
	}

	code := NormalizeProvince(province)
	metro := DetectCity(city) != ""

	switch {
	case code != "" && code != HomeProvince:
		return &Resolution{Region: model.RegionOutsideQC, Province: code, Country: HomeCountry}
	case code == HomeProvince && metro:
		return &Resolution{Region: model.RegionMTL, Province: code, Country: HomeCountry}
	case code == HomeProvince:
		return &Resolution{Region: model.RegionQCOther, Province: code, Country: HomeCountry}
	case metro:
		return &Resolution{Region: model.RegionMTL, Province: HomeProvince, Country: HomeCountry}
	}

	if country != "" {
		country = HomeCountry
	}
	return &Resolution{Region: model.RegionUnknown, Province: province, Country: country}
}

// Apply writes the resolution onto rec.
func (r *Resolution) Apply(rec *model.Record) {
	rec.HQRegion = r.Region
	rec.HQProvince = r.Province
	rec.HQCountry = r.Country
}
