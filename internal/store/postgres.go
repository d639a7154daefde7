package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/kb-harvester/internal/db"
	"github.com/sells-group/kb-harvester/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// Pool sizing applied by NewPostgres.
const (
	defaultMaxConns = 10
	minIdleConns    = 2
	connMaxLifetime = 30 * time.Minute
	connMaxIdleTime = 5 * time.Minute
)

// NewPostgres connects to url and verifies the connection. maxConns <= 0
// keeps the default pool size.
func NewPostgres(ctx context.Context, url string, maxConns int32) (*PostgresStore, error) {
	pc, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse url")
	}
	pc.MaxConns = defaultMaxConns
	if maxConns > 0 {
		pc.MaxConns = maxConns
	}
	pc.MinConns = min(minIdleConns, pc.MaxConns)
	pc.MaxConnLifetime = connMaxLifetime
	pc.MaxConnIdleTime = connMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool, typically a pgxmock in tests.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS kb_records (
	id                   TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	domain               TEXT NOT NULL DEFAULT '',
	name                 TEXT NOT NULL DEFAULT '',
	website              TEXT NOT NULL DEFAULT '',
	hq_city              TEXT NOT NULL DEFAULT '',
	hq_province          TEXT NOT NULL DEFAULT '',
	hq_country           TEXT NOT NULL DEFAULT '',
	hq_region            TEXT NOT NULL DEFAULT 'UNKNOWN',
	industry_sectors     TEXT[] NOT NULL DEFAULT '{}',
	industry_label       TEXT NOT NULL DEFAULT '',
	confidence_score     INTEGER NOT NULL DEFAULT 0,
	quality_flags        TEXT[] NOT NULL DEFAULT '{}',
	source_origin        TEXT NOT NULL DEFAULT '',
	tags                 TEXT[] NOT NULL DEFAULT '{}',
	keywords             TEXT[] NOT NULL DEFAULT '{}',
	synonyms             TEXT[] NOT NULL DEFAULT '{}',
	sector_synonyms_used TEXT[] NOT NULL DEFAULT '{}',
	notes                TEXT NOT NULL DEFAULT '',
	seed_batch_id        TEXT NOT NULL DEFAULT '',
	last_verified_at     TIMESTAMPTZ,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_kb_records_domain ON kb_records(domain);
CREATE INDEX IF NOT EXISTS idx_kb_records_region ON kb_records(hq_region);
CREATE INDEX IF NOT EXISTS idx_kb_records_sectors ON kb_records USING GIN (industry_sectors);
CREATE INDEX IF NOT EXISTS idx_kb_records_created ON kb_records(created_at);

CREATE TABLE IF NOT EXISTS harvest_cursors (
	name       TEXT PRIMARY KEY,
	position   INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) ListRecords(ctx context.Context, opts ListOpts) ([]model.Record, error) {
	order, err := orderBy(opts.Sort)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM kb_records ORDER BY `+order+` LIMIT $1 OFFSET $2`,
		limitOrDefault(opts.Limit), opts.Offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list records")
	}
	return collectRecords(rows)
}

func (s *PostgresStore) FilterRecords(ctx context.Context, field, value string, limit int) ([]model.Record, error) {
	if err := checkField(field); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM kb_records WHERE `+field+` = $1 ORDER BY created_at ASC, id ASC LIMIT $2`,
		value, limitOrDefault(limit),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: filter records by %s", field)
	}
	return collectRecords(rows)
}

func (s *PostgresStore) GetRecord(ctx context.Context, id string) (*model.Record, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM kb_records WHERE id = $1`, id)
	rec, err := scanPgRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get record %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get record %s", id)
	}
	return rec, nil
}

func (s *PostgresStore) CreateRecord(ctx context.Context, rec *model.Record) error {
	prepareCreate(rec)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO kb_records (`+recordColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		pgRecordArgs(rec)...,
	)
	return eris.Wrapf(err, "postgres: insert record %s", rec.Domain)
}

// CopyRecords bulk-inserts new records with COPY.
func (s *PostgresStore) CopyRecords(ctx context.Context, recs []model.Record) (int64, error) {
	rows := make([][]any, len(recs))
	for i := range recs {
		prepareCreate(&recs[i])
		rows[i] = pgRecordArgs(&recs[i])
	}
	return db.CopyRows(ctx, s.pool, "kb_records", recordColumnList, rows, 0)
}

func (s *PostgresStore) UpdateRecord(ctx context.Context, rec *model.Record) error {
	touchUpdate(rec)
	args := pgRecordArgs(rec)
	tag, err := s.pool.Exec(ctx,
		`UPDATE kb_records SET domain = $2, name = $3, website = $4, hq_city = $5, hq_province = $6,
		 hq_country = $7, hq_region = $8, industry_sectors = $9, industry_label = $10, confidence_score = $11,
		 quality_flags = $12, source_origin = $13, tags = $14, keywords = $15, synonyms = $16,
		 sector_synonyms_used = $17, notes = $18, seed_batch_id = $19, last_verified_at = $20,
		 created_at = $21, updated_at = $22 WHERE id = $1`,
		args...,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update record %s", rec.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: update record %s", rec.ID)
	}
	return nil
}

func (s *PostgresStore) DeleteRecord(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM kb_records WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete record %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: delete record %s", id)
	}
	return nil
}

// DeleteRecords removes ids in one transaction.
func (s *PostgresStore) DeleteRecords(ctx context.Context, ids []string) (int64, error) {
	var n int64
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM kb_records WHERE id = ANY($1)`, ids)
		if err != nil {
			return eris.Wrap(err, "postgres: delete records")
		}
		n = tag.RowsAffected()
		return nil
	})
	return n, err
}

func (s *PostgresStore) LoadCursor(ctx context.Context, name string) (int, error) {
	var pos int
	err := s.pool.QueryRow(ctx, `SELECT position FROM harvest_cursors WHERE name = $1`, name).Scan(&pos)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: load cursor %s", name)
	}
	return pos, nil
}

func (s *PostgresStore) SaveCursor(ctx context.Context, name string, position int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO harvest_cursors (name, position, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET position = EXCLUDED.position, updated_at = EXCLUDED.updated_at`,
		name, position, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save cursor %s", name)
}

var recordColumnList = []string{
	"id", "domain", "name", "website", "hq_city", "hq_province", "hq_country", "hq_region",
	"industry_sectors", "industry_label", "confidence_score", "quality_flags", "source_origin",
	"tags", "keywords", "synonyms", "sector_synonyms_used", "notes", "seed_batch_id",
	"last_verified_at", "created_at", "updated_at",
}

func nonNil(l []string) []string {
	if l == nil {
		return []string{}
	}
	return l
}

func pgRecordArgs(rec *model.Record) []any {
	return []any{
		rec.ID, rec.Domain, rec.Name, rec.Website, rec.HQCity, rec.HQProvince, rec.HQCountry,
		string(rec.HQRegion), nonNil(rec.IndustrySectors), rec.IndustryLabel, rec.ConfidenceScore,
		nonNil(rec.QualityFlags), string(rec.SourceOrigin), nonNil(rec.Tags), nonNil(rec.Keywords),
		nonNil(rec.Synonyms), nonNil(rec.SectorSynonymsUsed), rec.Notes, rec.SeedBatchID,
		rec.LastVerifiedAt, rec.CreatedAt, rec.UpdatedAt,
	}
}

func scanPgRecord(row pgx.Row) (*model.Record, error) {
	var r model.Record
	var region, origin string
	err := row.Scan(&r.ID, &r.Domain, &r.Name, &r.Website, &r.HQCity, &r.HQProvince, &r.HQCountry,
		&region, &r.IndustrySectors, &r.IndustryLabel, &r.ConfidenceScore, &r.QualityFlags, &origin,
		&r.Tags, &r.Keywords, &r.Synonyms, &r.SectorSynonymsUsed, &r.Notes, &r.SeedBatchID,
		&r.LastVerifiedAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.HQRegion = model.Region(region)
	r.SourceOrigin = model.Origin(origin)
	return &r, nil
}

func collectRecords(rows pgx.Rows) ([]model.Record, error) {
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		r, err := scanPgRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate records")
}
