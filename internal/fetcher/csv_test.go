package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectCSV(t *testing.T, input string, opts CSVOptions) ([]string, [][]string, error) {
	t.Helper()
	header, rows, errs, err := StreamCSV(context.Background(), strings.NewReader(input), opts)
	if err != nil {
		return nil, nil, err
	}
	var out [][]string
	for r := range rows {
		out = append(out, r)
	}
	return header, out, <-errs
}

func TestStreamCSV_Comma(t *testing.T) {
	header, rows, err := collectCSV(t, "domain,name\nacme.ca, Acme \nbeta.ca,Beta\n", CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"domain", "name"}, header)
	assert.Equal(t, [][]string{{"acme.ca", "Acme"}, {"beta.ca", "Beta"}}, rows)
}

func TestStreamCSV_SniffsSemicolonAndStripsBOM(t *testing.T) {
	header, rows, err := collectCSV(t, "\ufeffdomain;name;hq_city\nacme.ca;Acme, inc.;Laval\n", CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"domain", "name", "hq_city"}, header)
	assert.Equal(t, [][]string{{"acme.ca", "Acme, inc.", "Laval"}}, rows)
}

func TestStreamCSV_Tab(t *testing.T) {
	header, rows, err := collectCSV(t, "domain\tname\nacme.ca\tAcme\n", CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"domain", "name"}, header)
	assert.Len(t, rows, 1)
}

func TestStreamCSV_ExplicitDelimiterAndComment(t *testing.T) {
	_, rows, err := collectCSV(t, "a|b\n# skipped\n1|2\n", CSVOptions{Delimiter: '|', Comment: '#'})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1", "2"}}, rows)
}

func TestStreamCSV_VariableFields(t *testing.T) {
	_, rows, err := collectCSV(t, "a,b,c\n1\n1,2,3,4\n", CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1"}, {"1", "2", "3", "4"}}, rows)
}

func TestStreamCSV_Empty(t *testing.T) {
	_, _, err := collectCSV(t, "", CSVOptions{})
	assert.Error(t, err)
}

func TestStreamCSV_BadQuote(t *testing.T) {
	_, _, err := collectCSV(t, "a,b\n\"unterminated,1\n", CSVOptions{})
	assert.Error(t, err)
}

func TestStreamCSV_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, rows, errs, err := StreamCSV(ctx, strings.NewReader("a\n1\n2\n"), CSVOptions{})
	require.NoError(t, err)
	for range rows {
	}
	assert.Error(t, <-errs)
}
