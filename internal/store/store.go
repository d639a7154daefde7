// Package store persists knowledge-base records and harvest cursors.
package store

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/kb-harvester/internal/model"
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = eris.New("store: record not found")

// Sort orders accepted by ListRecords.
const (
	SortCreated       = "created_at"
	SortConfidenceAsc = "confidence_score"
	SortConfidence    = "-confidence_score"
)

// Fields accepted by FilterRecords.
const (
	FieldDomain  = "domain"
	FieldRegion  = "hq_region"
	FieldOrigin  = "source_origin"
	FieldBatchID = "seed_batch_id"
)

// DefaultListLimit applies when ListOpts.Limit is zero.
const DefaultListLimit = 100

// ListOpts pages through records.
type ListOpts struct {
	Sort   string `json:"sort,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for the knowledge base.
type Store interface {
	// Records
	ListRecords(ctx context.Context, opts ListOpts) ([]model.Record, error)
	FilterRecords(ctx context.Context, field, value string, limit int) ([]model.Record, error)
	GetRecord(ctx context.Context, id string) (*model.Record, error)
	CreateRecord(ctx context.Context, rec *model.Record) error
	UpdateRecord(ctx context.Context, rec *model.Record) error
	DeleteRecord(ctx context.Context, id string) error

	// Resume cursors
	LoadCursor(ctx context.Context, name string) (int, error)
	SaveCursor(ctx context.Context, name string, position int) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// BulkWriter is implemented by stores that can create or delete many records
// in one round trip. CopyRecords fills in ids and timestamps in place.
type BulkWriter interface {
	CopyRecords(ctx context.Context, recs []model.Record) (int64, error)
	DeleteRecords(ctx context.Context, ids []string) (int64, error)
}

var sortColumns = map[string]string{
	"":                SortCreated + " ASC, id ASC",
	SortCreated:       SortCreated + " ASC, id ASC",
	SortConfidenceAsc: "confidence_score ASC, id ASC",
	SortConfidence:    "confidence_score DESC, id ASC",
}

var filterFields = map[string]bool{
	FieldDomain:  true,
	FieldRegion:  true,
	FieldOrigin:  true,
	FieldBatchID: true,
}

func orderBy(sort string) (string, error) {
	o, ok := sortColumns[sort]
	if !ok {
		return "", eris.Errorf("store: unsupported sort %q", sort)
	}
	return o, nil
}

func checkField(field string) error {
	if !filterFields[field] {
		return eris.Errorf("store: unsupported filter field %q", field)
	}
	return nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

// prepareCreate fills the id and timestamps of a new record.
func prepareCreate(rec *model.Record) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.HQRegion == "" {
		rec.HQRegion = model.RegionUnknown
	}
	rec.Notes = model.TruncateNotes(rec.Notes)
}

// sortRecords orders recs in place the way orderBy does in SQL, for stores
// that sort in process.
func sortRecords(recs []model.Record, order string) error {
	if _, err := orderBy(order); err != nil {
		return err
	}
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		switch order {
		case SortConfidence:
			if a.ConfidenceScore != b.ConfidenceScore {
				return a.ConfidenceScore > b.ConfidenceScore
			}
		case SortConfidenceAsc:
			if a.ConfidenceScore != b.ConfidenceScore {
				return a.ConfidenceScore < b.ConfidenceScore
			}
		default:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		}
		return a.ID < b.ID
	})
	return nil
}

func pageOf(sorted []model.Record, opts ListOpts) []model.Record {
	if opts.Offset >= len(sorted) {
		return nil
	}
	end := min(opts.Offset+limitOrDefault(opts.Limit), len(sorted))
	return sorted[opts.Offset:end]
}

func matching(sorted []model.Record, field, value string, limit int) []model.Record {
	limit = limitOrDefault(limit)
	var out []model.Record
	for i := range sorted {
		if fieldValue(&sorted[i], field) == value {
			out = append(out, sorted[i])
			if len(out) == limit {
				break
			}
		}
	}
	return out
}

// touchUpdate refreshes updated_at and re-applies the notes cap before a write.
func touchUpdate(rec *model.Record) {
	rec.UpdatedAt = time.Now().UTC()
	rec.Notes = model.TruncateNotes(rec.Notes)
}

func fieldValue(rec *model.Record, field string) string {
	switch field {
	case FieldDomain:
		return rec.Domain
	case FieldRegion:
		return string(rec.HQRegion)
	case FieldOrigin:
		return string(rec.SourceOrigin)
	case FieldBatchID:
		return rec.SeedBatchID
	}
	return ""
}
