package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/kb-harvester/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS kb_records (
	id                   TEXT PRIMARY KEY,
	domain               TEXT NOT NULL DEFAULT '',
	name                 TEXT NOT NULL DEFAULT '',
	website              TEXT NOT NULL DEFAULT '',
	hq_city              TEXT NOT NULL DEFAULT '',
	hq_province          TEXT NOT NULL DEFAULT '',
	hq_country           TEXT NOT NULL DEFAULT '',
	hq_region            TEXT NOT NULL DEFAULT 'UNKNOWN',
	industry_sectors     TEXT NOT NULL DEFAULT '[]',
	industry_label       TEXT NOT NULL DEFAULT '',
	confidence_score     INTEGER NOT NULL DEFAULT 0,
	quality_flags        TEXT NOT NULL DEFAULT '[]',
	source_origin        TEXT NOT NULL DEFAULT '',
	tags                 TEXT NOT NULL DEFAULT '[]',
	keywords             TEXT NOT NULL DEFAULT '[]',
	synonyms             TEXT NOT NULL DEFAULT '[]',
	sector_synonyms_used TEXT NOT NULL DEFAULT '[]',
	notes                TEXT NOT NULL DEFAULT '',
	seed_batch_id        TEXT NOT NULL DEFAULT '',
	last_verified_at     DATETIME,
	created_at           DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at           DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_kb_records_domain ON kb_records(domain);
CREATE INDEX IF NOT EXISTS idx_kb_records_region ON kb_records(hq_region);
CREATE INDEX IF NOT EXISTS idx_kb_records_created ON kb_records(created_at);

CREATE TABLE IF NOT EXISTS harvest_cursors (
	name       TEXT PRIMARY KEY,
	position   INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

const recordColumns = `id, domain, name, website, hq_city, hq_province, hq_country, hq_region,
	industry_sectors, industry_label, confidence_score, quality_flags, source_origin,
	tags, keywords, synonyms, sector_synonyms_used, notes, seed_batch_id,
	last_verified_at, created_at, updated_at`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListRecords(ctx context.Context, opts ListOpts) ([]model.Record, error) {
	order, err := orderBy(opts.Sort)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM kb_records ORDER BY `+order+` LIMIT ? OFFSET ?`,
		limitOrDefault(opts.Limit), opts.Offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	return scanRecords(rows)
}

func (s *SQLiteStore) FilterRecords(ctx context.Context, field, value string, limit int) ([]model.Record, error) {
	if err := checkField(field); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM kb_records WHERE `+field+` = ? ORDER BY created_at ASC, id ASC LIMIT ?`,
		value, limitOrDefault(limit),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: filter records by %s", field)
	}
	return scanRecords(rows)
}

func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*model.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM kb_records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get record %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get record %s", id)
	}
	return rec, nil
}

func (s *SQLiteStore) CreateRecord(ctx context.Context, rec *model.Record) error {
	prepareCreate(rec)
	args, err := recordArgs(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kb_records (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	)
	return eris.Wrapf(err, "sqlite: insert record %s", rec.Domain)
}

func (s *SQLiteStore) UpdateRecord(ctx context.Context, rec *model.Record) error {
	touchUpdate(rec)
	args, err := recordArgs(rec)
	if err != nil {
		return err
	}
	// recordArgs starts with id; UPDATE binds it last.
	args = append(args[1:], rec.ID)
	res, err := s.db.ExecContext(ctx,
		`UPDATE kb_records SET domain = ?, name = ?, website = ?, hq_city = ?, hq_province = ?,
		 hq_country = ?, hq_region = ?, industry_sectors = ?, industry_label = ?, confidence_score = ?,
		 quality_flags = ?, source_origin = ?, tags = ?, keywords = ?, synonyms = ?,
		 sector_synonyms_used = ?, notes = ?, seed_batch_id = ?, last_verified_at = ?,
		 created_at = ?, updated_at = ? WHERE id = ?`,
		args...,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update record %s", rec.ID)
	}
	return checkRowsAffected(res, "sqlite: update record", rec.ID)
}

func (s *SQLiteStore) DeleteRecord(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM kb_records WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete record %s", id)
	}
	return checkRowsAffected(res, "sqlite: delete record", id)
}

// CopyRecords inserts recs in a single transaction; any failure rolls back
// the whole batch.
func (s *SQLiteStore) CopyRecords(ctx context.Context, recs []model.Record) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin copy")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO kb_records (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare copy")
	}
	defer stmt.Close() //nolint:errcheck

	for i := range recs {
		prepareCreate(&recs[i])
		args, err := recordArgs(&recs[i])
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: copy record %s", recs[i].Domain)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit copy")
	}
	return int64(len(recs)), nil
}

// DeleteRecords removes ids in one transaction and returns how many existed.
func (s *SQLiteStore) DeleteRecords(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin delete")
	}
	defer tx.Rollback() //nolint:errcheck

	var total int64
	for _, id := range ids {
		res, err := tx.ExecContext(ctx, `DELETE FROM kb_records WHERE id = ?`, id)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: delete record %s", id)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit delete")
	}
	return total, nil
}

func (s *SQLiteStore) LoadCursor(ctx context.Context, name string) (int, error) {
	var pos int
	err := s.db.QueryRowContext(ctx, `SELECT position FROM harvest_cursors WHERE name = ?`, name).Scan(&pos)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: load cursor %s", name)
	}
	return pos, nil
}

func (s *SQLiteStore) SaveCursor(ctx context.Context, name string, position int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO harvest_cursors (name, position, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET position = excluded.position, updated_at = excluded.updated_at`,
		name, position, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save cursor %s", name)
}

// helpers

func checkRowsAffected(res sql.Result, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", op, id)
	}
	return nil
}

func recordArgs(rec *model.Record) ([]any, error) {
	lists := [][]string{
		rec.IndustrySectors, rec.QualityFlags, rec.Tags,
		rec.Keywords, rec.Synonyms, rec.SectorSynonymsUsed,
	}
	encoded := make([]string, len(lists))
	for i, l := range lists {
		if l == nil {
			l = []string{}
		}
		b, err := json.Marshal(l)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: marshal list")
		}
		encoded[i] = string(b)
	}
	var verified any
	if rec.LastVerifiedAt != nil {
		verified = rec.LastVerifiedAt.UTC()
	}
	return []any{
		rec.ID, rec.Domain, rec.Name, rec.Website, rec.HQCity, rec.HQProvince, rec.HQCountry,
		string(rec.HQRegion), encoded[0], rec.IndustryLabel, rec.ConfidenceScore, encoded[1],
		string(rec.SourceOrigin), encoded[2], encoded[3], encoded[4], encoded[5], rec.Notes,
		rec.SeedBatchID, verified, rec.CreatedAt.UTC(), rec.UpdatedAt.UTC(),
	}, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*model.Record, error) {
	var r model.Record
	var region, origin string
	var sectors, flags, tags, keywords, synonyms, used string
	var verified sql.NullTime

	err := row.Scan(&r.ID, &r.Domain, &r.Name, &r.Website, &r.HQCity, &r.HQProvince, &r.HQCountry,
		&region, &sectors, &r.IndustryLabel, &r.ConfidenceScore, &flags, &origin,
		&tags, &keywords, &synonyms, &used, &r.Notes, &r.SeedBatchID,
		&verified, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.HQRegion = model.Region(region)
	r.SourceOrigin = model.Origin(origin)
	if verified.Valid {
		t := verified.Time
		r.LastVerifiedAt = &t
	}

	targets := []*[]string{&r.IndustrySectors, &r.QualityFlags, &r.Tags, &r.Keywords, &r.Synonyms, &r.SectorSynonymsUsed}
	for i, raw := range []string{sectors, flags, tags, keywords, synonyms, used} {
		if err := decodeList(raw, targets[i]); err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode lists of %s", r.ID)
		}
	}
	return &r, nil
}

func decodeList(raw string, dst *[]string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "[]" || raw == "null" {
		*dst = nil
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

func scanRecords(rows *sql.Rows) ([]model.Record, error) {
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate records")
}
