package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/kb-harvester/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func newTestMemory(t *testing.T) Store {
	t.Helper()
	return NewMemory()
}

func sampleRecord(domain string, confidence int) *model.Record {
	verified := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	return &model.Record{
		Domain:             domain,
		Name:               "Acme " + domain,
		Website:            "https://" + domain,
		HQCity:             "Montréal",
		HQProvince:         "QC",
		HQCountry:          "Canada",
		HQRegion:           model.RegionMTL,
		IndustrySectors:    []string{"Manufacturier"},
		ConfidenceScore:    confidence,
		QualityFlags:       []string{model.FlagHarvestedWeb},
		SourceOrigin:       model.OriginWeb,
		Keywords:           []string{"fabricant", "usinage"},
		SectorSynonymsUsed: []string{"fabricant"},
		Notes:              "Fabricant de pièces",
		SeedBatchID:        "batch-1",
		LastVerifiedAt:     &verified,
	}
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateAndGetRecord", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		rec := sampleRecord("acme.ca", 80)
		require.NoError(t, s.CreateRecord(ctx, rec))
		assert.NotEmpty(t, rec.ID)
		assert.False(t, rec.CreatedAt.IsZero())

		got, err := s.GetRecord(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, "acme.ca", got.Domain)
		assert.Equal(t, model.RegionMTL, got.HQRegion)
		assert.Equal(t, model.OriginWeb, got.SourceOrigin)
		assert.Equal(t, []string{"Manufacturier"}, got.IndustrySectors)
		assert.Equal(t, []string{"fabricant", "usinage"}, got.Keywords)
		assert.Nil(t, got.Tags)
		require.NotNil(t, got.LastVerifiedAt)
		assert.True(t, rec.LastVerifiedAt.Equal(*got.LastVerifiedAt))
	})

	t.Run("CreateDefaultsRegionAndTruncatesNotes", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		rec := &model.Record{Domain: "x.ca", Notes: strings.Repeat("é", model.MaxNotesLen+10)}
		require.NoError(t, s.CreateRecord(ctx, rec))

		got, err := s.GetRecord(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RegionUnknown, got.HQRegion)
		assert.LessOrEqual(t, len([]rune(got.Notes)), model.MaxNotesLen)
	})

	t.Run("GetRecordNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetRecord(context.Background(), "missing")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("UpdateRecord", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		rec := sampleRecord("acme.ca", 80)
		require.NoError(t, s.CreateRecord(ctx, rec))

		rec.Name = "Acme Inc."
		rec.Tags = []string{"pme"}
		rec.HQRegion = model.RegionGM
		require.NoError(t, s.UpdateRecord(ctx, rec))

		got, err := s.GetRecord(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, "Acme Inc.", got.Name)
		assert.Equal(t, []string{"pme"}, got.Tags)
		assert.Equal(t, model.RegionGM, got.HQRegion)
	})

	t.Run("UpdateRecordNotFound", func(t *testing.T) {
		s := newStore(t)
		err := s.UpdateRecord(context.Background(), &model.Record{ID: "missing"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("DeleteRecord", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		rec := sampleRecord("acme.ca", 80)
		require.NoError(t, s.CreateRecord(ctx, rec))
		require.NoError(t, s.DeleteRecord(ctx, rec.ID))

		_, err := s.GetRecord(ctx, rec.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.DeleteRecord(ctx, rec.ID), ErrNotFound)
	})

	t.Run("ListRecordsPaging", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i, d := range []string{"a.ca", "b.ca", "c.ca", "d.ca", "e.ca"} {
			require.NoError(t, s.CreateRecord(ctx, sampleRecord(d, 50+i*10)))
		}

		page1, err := s.ListRecords(ctx, ListOpts{Sort: SortCreated, Limit: 2})
		require.NoError(t, err)
		page2, err := s.ListRecords(ctx, ListOpts{Sort: SortCreated, Limit: 2, Offset: 2})
		require.NoError(t, err)
		page3, err := s.ListRecords(ctx, ListOpts{Sort: SortCreated, Limit: 2, Offset: 4})
		require.NoError(t, err)
		empty, err := s.ListRecords(ctx, ListOpts{Limit: 2, Offset: 10})
		require.NoError(t, err)

		assert.Len(t, page1, 2)
		assert.Len(t, page2, 2)
		assert.Len(t, page3, 1)
		assert.Empty(t, empty)

		seen := map[string]bool{}
		for _, p := range [][]model.Record{page1, page2, page3} {
			for _, r := range p {
				assert.False(t, seen[r.ID], "record listed twice")
				seen[r.ID] = true
			}
		}
		assert.Len(t, seen, 5)

		byConf, err := s.ListRecords(ctx, ListOpts{Sort: SortConfidence, Limit: 10})
		require.NoError(t, err)
		require.Len(t, byConf, 5)
		assert.Equal(t, 90, byConf[0].ConfidenceScore)
		assert.Equal(t, 50, byConf[4].ConfidenceScore)
	})

	t.Run("ListRecordsBadSort", func(t *testing.T) {
		s := newStore(t)
		_, err := s.ListRecords(context.Background(), ListOpts{Sort: "name; DROP TABLE kb_records"})
		assert.Error(t, err)
	})

	t.Run("FilterRecords", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.CreateRecord(ctx, sampleRecord("acme.ca", 80)))
		require.NoError(t, s.CreateRecord(ctx, sampleRecord("acme.ca", 60)))
		other := sampleRecord("beta.ca", 70)
		other.HQRegion = model.RegionQCOther
		require.NoError(t, s.CreateRecord(ctx, other))

		got, err := s.FilterRecords(ctx, FieldDomain, "acme.ca", 10)
		require.NoError(t, err)
		assert.Len(t, got, 2)

		got, err = s.FilterRecords(ctx, FieldRegion, string(model.RegionQCOther), 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "beta.ca", got[0].Domain)

		got, err = s.FilterRecords(ctx, FieldDomain, "acme.ca", 1)
		require.NoError(t, err)
		assert.Len(t, got, 1)

		_, err = s.FilterRecords(ctx, "notes", "x", 10)
		assert.Error(t, err)
	})

	t.Run("Cursors", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		pos, err := s.LoadCursor(ctx, "harvest_all")
		require.NoError(t, err)
		assert.Equal(t, 0, pos)

		require.NoError(t, s.SaveCursor(ctx, "harvest_all", 4))
		require.NoError(t, s.SaveCursor(ctx, "harvest_all", 7))

		pos, err = s.LoadCursor(ctx, "harvest_all")
		require.NoError(t, err)
		assert.Equal(t, 7, pos)
	})
}

func bulkTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("CopyRecords", func(t *testing.T) {
		s := newStore(t)
		bw, ok := s.(BulkWriter)
		require.True(t, ok)

		recs := []model.Record{*sampleRecord("a.ca", 80), *sampleRecord("b.ca", 90)}
		n, err := bw.CopyRecords(ctx, recs)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		assert.NotEmpty(t, recs[0].ID)
		assert.NotEmpty(t, recs[1].ID)

		got, err := s.GetRecord(ctx, recs[1].ID)
		require.NoError(t, err)
		assert.Equal(t, "b.ca", got.Domain)
	})

	t.Run("CopyRecords_DuplicateRollsBack", func(t *testing.T) {
		s := newStore(t)
		bw := s.(BulkWriter)

		existing := sampleRecord("a.ca", 80)
		require.NoError(t, s.CreateRecord(ctx, existing))

		dup := *sampleRecord("dup.ca", 50)
		dup.ID = existing.ID
		n, err := bw.CopyRecords(ctx, []model.Record{*sampleRecord("c.ca", 70), dup})
		require.Error(t, err)
		assert.Equal(t, int64(0), n)

		all, err := s.ListRecords(ctx, ListOpts{Limit: 10})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("DeleteRecords", func(t *testing.T) {
		s := newStore(t)
		bw := s.(BulkWriter)

		a, b := sampleRecord("a.ca", 80), sampleRecord("b.ca", 90)
		require.NoError(t, s.CreateRecord(ctx, a))
		require.NoError(t, s.CreateRecord(ctx, b))

		n, err := bw.DeleteRecords(ctx, []string{a.ID, "missing"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = s.GetRecord(ctx, a.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.GetRecord(ctx, b.ID)
		assert.NoError(t, err)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
	bulkTestSuite(t, newTestSQLite)
}

func TestMemoryStore(t *testing.T) {
	storeTestSuite(t, newTestMemory)
	bulkTestSuite(t, newTestMemory)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	rec := sampleRecord("acme.ca", 80)
	require.NoError(t, s.CreateRecord(ctx, rec))
	rec.Keywords[0] = "mutated"

	got, err := s.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "fabricant", got.Keywords[0])
	assert.Equal(t, 1, s.Len())
}
