package kb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/kb-harvester/internal/model"
)

func ids(recs []model.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func TestRemoveCorrupted(t *testing.T) {
	bad := rec("b", "b.ca", 80)
	bad.Website = "b.ca"
	empty := rec("c", "", 80)
	st := seed(t, rec("a", "a.ca", 80), bad, empty)

	res, err := RemoveCorrupted(context.Background(), st, LoadOpts{}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, res.Corrupted)
	assert.Zero(t, res.Removed)
	assert.Equal(t, 3, st.Len())

	res, err = RemoveCorrupted(context.Background(), st, LoadOpts{}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Removed)
	assert.Equal(t, 1, st.Len())
}

func TestQuery(t *testing.T) {
	gm := rec("b", "b.ca", 95)
	gm.HQRegion = model.RegionGM
	tech := rec("c", "c.ca", 88)
	tech.IndustrySectors = []string{"Technologies"}
	st := seed(t, rec("a", "a.ca", 80), gm, tech, rec("d", "d.ca", 60))

	got, err := Query(context.Background(), st, QueryOpts{Sector: "Manufacturier"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "d"}, ids(got))

	got, err = Query(context.Background(), st, QueryOpts{Region: model.RegionMTL, MinConfidence: 70})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, ids(got))

	got, err = Query(context.Background(), st, QueryOpts{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(got))
}

func TestTopUp(t *testing.T) {
	gm := rec("b", "b.ca", 95)
	gm.HQRegion = model.RegionGM
	other := rec("e", "e.ca", 99)
	other.HQRegion = model.RegionQCOther
	st := seed(t, rec("a", "a.ca", 80), gm, rec("c", "c.ca", 85), rec("d", "d.ca", 60), other)

	got, err := TopUp(context.Background(), st, TopUpRequest{
		Sector:  "Manufacturier",
		Exclude: []string{"https://www.c.ca"},
		Need:    2,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(got))

	got, err = TopUp(context.Background(), st, TopUpRequest{Sector: "Manufacturier", Region: model.RegionQCOther, Need: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"e"}, ids(got))
}

func TestTopUp_Validation(t *testing.T) {
	st := seed(t)

	got, err := TopUp(context.Background(), st, TopUpRequest{Sector: "Manufacturier"})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = TopUp(context.Background(), st, TopUpRequest{Need: 3})
	assert.Error(t, err)
}
