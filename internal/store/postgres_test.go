package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/kb-harvester/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresFromPool(mock), mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS kb_records`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRecord_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`(?s)SELECT id, domain, name, .* FROM kb_records WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRecord(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRecords(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows(recordColumnList).AddRow(
		"id-1", "acme.ca", "Acme", "https://acme.ca", "Laval", "QC", "Canada", "MTL",
		[]string{"Manufacturier"}, "", 82, []string{"harvested_via_web"}, "WEB",
		[]string{}, []string{"fabricant"}, []string{}, []string{"fabricant"}, "notes", "batch-1",
		(*time.Time)(nil), now, now,
	)
	mock.ExpectQuery(`FROM kb_records ORDER BY confidence_score DESC, id ASC LIMIT \$1 OFFSET \$2`).
		WithArgs(50, 100).
		WillReturnRows(rows)

	got, err := s.ListRecords(context.Background(), ListOpts{Sort: SortConfidence, Limit: 50, Offset: 100})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "acme.ca", got[0].Domain)
	assert.Equal(t, model.RegionMTL, got[0].HQRegion)
	assert.Equal(t, model.OriginWeb, got[0].SourceOrigin)
	assert.Equal(t, []string{"Manufacturier"}, got[0].IndustrySectors)
	assert.Equal(t, 82, got[0].ConfidenceScore)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRecords_QueryError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM kb_records ORDER BY`).
		WithArgs(DefaultListLimit, 0).
		WillReturnError(errors.New("connection reset"))

	_, err := s.ListRecords(context.Background(), ListOpts{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: list records")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FilterRecords_RejectsField(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	_, err := s.FilterRecords(context.Background(), "1=1 OR domain", "x", 10)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRecord(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rec := sampleRecord("acme.ca", 80)
	mock.ExpectExec(`INSERT INTO kb_records`).
		WithArgs(
			pgxmock.AnyArg(), "acme.ca", rec.Name, rec.Website, "Montréal", "QC", "Canada", "MTL",
			[]string{"Manufacturier"}, "", 80, []string{model.FlagHarvestedWeb}, "WEB",
			[]string{}, []string{"fabricant", "usinage"}, []string{}, []string{"fabricant"},
			rec.Notes, "batch-1", rec.LastVerifiedAt, pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.CreateRecord(context.Background(), rec))
	assert.NotEmpty(t, rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRecord_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	args := make([]any, 22)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	mock.ExpectExec(`UPDATE kb_records SET`).
		WithArgs(args...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateRecord(context.Background(), &model.Record{ID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteRecords(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM kb_records WHERE id = ANY\(\$1\)`).
		WithArgs([]string{"a", "b"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCommit()

	n, err := s.DeleteRecords(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CopyRecords(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"kb_records"}, recordColumnList).WillReturnResult(2)

	recs := []model.Record{*sampleRecord("a.ca", 80), *sampleRecord("b.ca", 90)}
	n, err := s.CopyRecords(context.Background(), recs)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NotEmpty(t, recs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Cursor(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT position FROM harvest_cursors WHERE name = \$1`).
		WithArgs("harvest_all").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`(?s)INSERT INTO harvest_cursors .* ON CONFLICT \(name\)`).
		WithArgs("harvest_all", 3, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT position FROM harvest_cursors WHERE name = \$1`).
		WithArgs("harvest_all").
		WillReturnRows(pgxmock.NewRows([]string{"position"}).AddRow(3))

	pos, err := s.LoadCursor(ctx, "harvest_all")
	require.NoError(t, err)
	assert.Equal(t, 0, pos)

	require.NoError(t, s.SaveCursor(ctx, "harvest_all", 3))

	pos, err = s.LoadCursor(ctx, "harvest_all")
	require.NoError(t, err)
	assert.Equal(t, 3, pos)
	assert.NoError(t, mock.ExpectationsWereMet())
}
