// Package dataset turns curated master files and reference lists (CSV, XLSX,
// JSON, or any of those inside a ZIP) into knowledge-base records.
package dataset

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/kb-harvester/internal/fetcher"
	"github.com/sells-group/kb-harvester/internal/filter"
	"github.com/sells-group/kb-harvester/internal/model"
	"github.com/sells-group/kb-harvester/internal/textnorm"
)

// Format is a supported file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
	FormatZIP  Format = "zip"
)

// DetectFormat infers the format from the extension of src's path.
func DetectFormat(src string) (Format, error) {
	p := src
	if u, err := url.Parse(src); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		p = u.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".csv", ".txt", ".tsv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".json":
		return FormatJSON, nil
	case ".zip":
		return FormatZIP, nil
	}
	return "", eris.Errorf("dataset: unsupported file type %q", src)
}

// Result is a parsed dataset.
type Result struct {
	Records []model.Record `json:"records"`
	Rows    int            `json:"rows"`
	Skipped int            `json:"skipped"`
}

// Load downloads src through f and parses it by extension. Rows with neither
// a domain nor a website are skipped and counted.
func Load(ctx context.Context, f fetcher.Fetcher, src string) (*Result, error) {
	format, err := DetectFormat(src)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("component", "dataset"), zap.String("src", src))
	log.Info("dataset: loading", zap.String("format", string(format)))

	var res *Result
	if format == FormatZIP {
		res, err = loadZIP(ctx, f, src)
	} else {
		var rc io.ReadCloser
		rc, err = f.Download(ctx, src)
		if err != nil {
			return nil, eris.Wrap(err, "dataset: download")
		}
		defer rc.Close() //nolint:errcheck
		res, err = parse(ctx, rc, format)
	}
	if err != nil {
		return nil, err
	}

	log.Info("dataset: loaded",
		zap.Int("rows", res.Rows),
		zap.Int("records", len(res.Records)),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

func loadZIP(ctx context.Context, f fetcher.Fetcher, src string) (*Result, error) {
	tmp, err := os.MkdirTemp("", "kb-dataset-*")
	if err != nil {
		return nil, eris.Wrap(err, "dataset: temp dir")
	}
	defer os.RemoveAll(tmp) //nolint:errcheck

	archive := filepath.Join(tmp, "dataset.zip")
	if _, err := f.DownloadToFile(ctx, src, archive); err != nil {
		return nil, eris.Wrap(err, "dataset: download archive")
	}
	name, data, err := fetcher.ReadZIPSingle(archive, ".csv", ".tsv", ".xlsx", ".json")
	if err != nil {
		return nil, eris.Wrap(err, "dataset: read archive")
	}
	format, err := DetectFormat(name)
	if err != nil {
		return nil, err
	}
	return parse(ctx, bytes.NewReader(data), format)
}

// Parse reads r in the given format. ZIP is not accepted here.
func Parse(ctx context.Context, r io.Reader, format Format) (*Result, error) {
	return parse(ctx, r, format)
}

func parse(ctx context.Context, r io.Reader, format Format) (*Result, error) {
	res := &Result{}
	switch format {
	case FormatCSV:
		header, rows, errs, err := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{LazyQuotes: true})
		if err != nil {
			return nil, eris.Wrap(err, "dataset: csv")
		}
		cols := mapColumns(header)
		for row := range rows {
			res.add(cols.record(row))
		}
		if err := <-errs; err != nil {
			return nil, eris.Wrap(err, "dataset: csv")
		}

	case FormatXLSX:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, eris.Wrap(err, "dataset: read xlsx")
		}
		rows, err := fetcher.ReadXLSX(data, fetcher.XLSXOptions{})
		if err != nil {
			return nil, eris.Wrap(err, "dataset: xlsx")
		}
		if len(rows) == 0 {
			return res, nil
		}
		cols := mapColumns(rows[0])
		for _, row := range rows[1:] {
			res.add(cols.record(row))
		}

	case FormatJSON:
		objs, errs := fetcher.StreamJSONRows(ctx, r)
		for obj := range objs {
			res.add(fromMap(obj))
		}
		if err := <-errs; err != nil {
			return nil, eris.Wrap(err, "dataset: json")
		}

	default:
		return nil, eris.Errorf("dataset: cannot parse format %q", format)
	}
	return res, nil
}

func (r *Result) add(rec model.Record, ok bool) {
	r.Rows++
	if !ok {
		r.Skipped++
		return
	}
	r.Records = append(r.Records, rec)
}

// Domains returns the sorted, unique normalized domains of records.
func Domains(records []model.Record) []string {
	seen := make(map[string]bool, len(records))
	var out []string
	for _, r := range records {
		d := filter.DomainKey(r.Domain)
		if d == "" {
			d = filter.DomainKey(r.Website)
		}
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Field names recognized in headers, keyed by folded header.
var columnAliases = map[string]string{
	"domain": "domain", "domaine": "domain", "domain name": "domain",
	"name": "name", "nom": "name", "company": "name", "entreprise": "name", "organisation": "name", "organization": "name",
	"website": "website", "site": "website", "site web": "website", "url": "website", "site internet": "website",
	"hq city": "hq_city", "city": "hq_city", "ville": "hq_city",
	"hq province": "hq_province", "province": "hq_province",
	"hq country": "hq_country", "country": "hq_country", "pays": "hq_country",
	"hq region": "hq_region", "region": "hq_region",
	"industry sectors": "industry_sectors", "sectors": "industry_sectors", "secteurs": "industry_sectors", "secteur": "industry_sectors", "sector": "industry_sectors",
	"industry label": "industry_label", "industrie": "industry_label", "industry": "industry_label",
	"confidence score": "confidence_score", "confidence": "confidence_score", "score": "confidence_score",
	"tags": "tags",
	"keywords": "keywords", "mots cles": "keywords",
	"synonyms": "synonyms", "synonymes": "synonyms",
	"notes": "notes", "description": "notes",
}

func canonicalColumn(h string) string {
	return columnAliases[textnorm.Key(h)]
}

type columns map[string]int

func mapColumns(header []string) columns {
	cols := make(columns, len(header))
	for i, h := range header {
		if c := canonicalColumn(h); c != "" {
			if _, dup := cols[c]; !dup {
				cols[c] = i
			}
		}
	}
	return cols
}

func (c columns) record(row []string) (model.Record, bool) {
	values := make(map[string]string, len(c))
	for name, i := range c {
		if i < len(row) {
			values[name] = row[i]
		}
	}
	return build(values)
}

func fromMap(obj map[string]string) (model.Record, bool) {
	values := make(map[string]string, len(obj))
	for k, v := range obj {
		if c := canonicalColumn(k); c != "" {
			values[c] = v
		}
	}
	return build(values)
}

func build(v map[string]string) (model.Record, bool) {
	rec := model.Record{
		Name:            strings.TrimSpace(v["name"]),
		Website:         strings.TrimSpace(v["website"]),
		HQCity:          strings.TrimSpace(v["hq_city"]),
		HQProvince:      strings.TrimSpace(v["hq_province"]),
		HQCountry:       strings.TrimSpace(v["hq_country"]),
		IndustrySectors: splitList(v["industry_sectors"]),
		IndustryLabel:   strings.TrimSpace(v["industry_label"]),
		Tags:            splitList(v["tags"]),
		Keywords:        splitList(v["keywords"]),
		Synonyms:        splitList(v["synonyms"]),
		Notes:           strings.TrimSpace(v["notes"]),
	}

	rec.Domain = filter.DomainKey(v["domain"])
	if rec.Domain == "" {
		rec.Domain = filter.DomainKey(rec.Website)
	}
	if rec.Domain == "" {
		return rec, false
	}
	if rec.Website == "" {
		rec.Website = "https://" + rec.Domain
	} else if !strings.Contains(rec.Website, "://") {
		rec.Website = "https://" + rec.Website
	}

	if region := model.Region(strings.ToUpper(strings.TrimSpace(v["hq_region"]))); region.Valid() {
		rec.HQRegion = region
	}
	if n, err := strconv.Atoi(strings.TrimSpace(v["confidence_score"])); err == nil && n >= 0 && n <= 100 {
		rec.ConfidenceScore = n
	}
	return rec, true
}

// splitList splits a cell on "|" or ";" and drops blanks.
func splitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ';' })
	var out []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
