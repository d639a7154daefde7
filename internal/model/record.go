// Package model defines the knowledge-base record and its enumerations.
package model

import (
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// Region is the closed set of geographic buckets a record can belong to.
type Region string

const (
	RegionMTL       Region = "MTL"        // Montréal metro area
	RegionGM        Region = "GM"         // Grand-Montréal ring
	RegionQCOther   Region = "QC_OTHER"   // rest of Québec
	RegionOutsideQC Region = "OUTSIDE_QC" // anywhere else
	RegionUnknown   Region = "UNKNOWN"
)

// Regions lists every valid region in display order.
var Regions = []Region{RegionMTL, RegionGM, RegionQCOther, RegionOutsideQC, RegionUnknown}

// Valid reports whether r is one of the enum values. Anything else needs repair.
func (r Region) Valid() bool {
	switch r {
	case RegionMTL, RegionGM, RegionQCOther, RegionOutsideQC, RegionUnknown:
		return true
	default:
		return false
	}
}

// Metro reports whether the region counts toward the Montréal harvest target.
func (r Region) Metro() bool {
	return r == RegionMTL || r == RegionGM
}

// Origin records how a record entered the knowledge base.
type Origin string

const (
	OriginWeb       Origin = "WEB"
	OriginImport    Origin = "IMPORT"
	OriginManual    Origin = "MANUAL"
	OriginSeed      Origin = "SEED"
	OriginMigration Origin = "MIGRATION"
)

// Valid reports whether o is a known origin.
func (o Origin) Valid() bool {
	switch o {
	case OriginWeb, OriginImport, OriginManual, OriginSeed, OriginMigration:
		return true
	default:
		return false
	}
}

// Quality flags attached to records.
const (
	FlagHarvestedWeb     = "harvested_via_web"
	FlagImportedMaster   = "imported_via_master_file"
	FlagGeoRepaired      = "geo_repaired"
	FlagSectorsBackfill  = "sectors_backfilled"
	FlagSecondarySectors = "secondary_sectors"
)

// MaxNotesLen caps the stored snippet text.
const MaxNotesLen = 500

// Record is one organization in the knowledge base.
type Record struct {
	ID                 string     `json:"id" db:"id"`
	Domain             string     `json:"domain" db:"domain"`
	Name               string     `json:"name" db:"name"`
	Website            string     `json:"website" db:"website"`
	HQCity             string     `json:"hq_city,omitempty" db:"hq_city"`
	HQProvince         string     `json:"hq_province,omitempty" db:"hq_province"`
	HQCountry          string     `json:"hq_country,omitempty" db:"hq_country"`
	HQRegion           Region     `json:"hq_region" db:"hq_region"`
	IndustrySectors    []string   `json:"industry_sectors" db:"industry_sectors"`
	IndustryLabel      string     `json:"industry_label,omitempty" db:"industry_label"`
	ConfidenceScore    int        `json:"confidence_score" db:"confidence_score"`
	QualityFlags       []string   `json:"quality_flags,omitempty" db:"quality_flags"`
	SourceOrigin       Origin     `json:"source_origin" db:"source_origin"`
	Tags               []string   `json:"tags,omitempty" db:"tags"`
	Keywords           []string   `json:"keywords,omitempty" db:"keywords"`
	Synonyms           []string   `json:"synonyms,omitempty" db:"synonyms"`
	SectorSynonymsUsed []string   `json:"sector_synonyms_used,omitempty" db:"sector_synonyms_used"`
	Notes              string     `json:"notes,omitempty" db:"notes"`
	SeedBatchID        string     `json:"seed_batch_id,omitempty" db:"seed_batch_id"`
	LastVerifiedAt     *time.Time `json:"last_verified_at,omitempty" db:"last_verified_at"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// ValidWebsite reports whether Website is an absolute http(s) URL with a host.
func (r *Record) ValidWebsite() bool {
	if r.Website == "" {
		return false
	}
	u, err := url.Parse(r.Website)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Hostname() != "" && strings.Contains(u.Hostname(), ".")
}

// HasGeography reports whether any geography field carries information.
func (r *Record) HasGeography() bool {
	if r.HQCity != "" || r.HQProvince != "" || r.HQCountry != "" {
		return true
	}
	return r.HQRegion.Valid() && r.HQRegion != RegionUnknown
}

// Missing field names reported by MissingFields.
const (
	FieldDomain    = "domain"
	FieldWebsite   = "website"
	FieldSector    = "sector"
	FieldGeography = "geography"
)

// MissingFields lists the required fields that are empty.
func (r *Record) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(r.Domain) == "" {
		missing = append(missing, FieldDomain)
	}
	if strings.TrimSpace(r.Website) == "" {
		missing = append(missing, FieldWebsite)
	}
	if len(r.IndustrySectors) == 0 {
		missing = append(missing, FieldSector)
	}
	if !r.HasGeography() {
		missing = append(missing, FieldGeography)
	}
	return missing
}

// Complete reports whether domain, website, sectors and geography are populated.
func (r *Record) Complete() bool {
	return len(r.MissingFields()) == 0
}

// HasSector reports whether sector is among the record's industry sectors.
func (r *Record) HasSector(sector string) bool {
	for _, s := range r.IndustrySectors {
		if s == sector {
			return true
		}
	}
	return false
}

// HasFlag reports whether the quality flag is set.
func (r *Record) HasFlag(flag string) bool {
	for _, f := range r.QualityFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// AddFlag sets a quality flag once.
func (r *Record) AddFlag(flag string) {
	if !r.HasFlag(flag) {
		r.QualityFlags = append(r.QualityFlags, flag)
	}
}

// TruncateNotes cuts s to MaxNotesLen runes.
func TruncateNotes(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= MaxNotesLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:MaxNotesLen])
}
