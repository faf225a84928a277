package features

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logsieve/logsieve/internal/accesslog"
	"github.com/logsieve/logsieve/internal/encoder"
	"github.com/logsieve/logsieve/internal/patterns"
)

func newExtractor() *Extractor {
	return New(patterns.Default(),
		encoder.New([]string{"GET", "POST"}),
		encoder.New([]string{"curl/8.0"}))
}

func TestColumnsContract(t *testing.T) {
	e := newExtractor()
	cols := e.Columns()

	table := patterns.Default()
	require.Len(t, cols, len(table.FeatureNames())+3)
	assert.Equal(t, "url_len", cols[len(cols)-3])
	assert.Equal(t, "param_count", cols[len(cols)-2])
	assert.Equal(t, "special_char_ratio", cols[len(cols)-1])

	assert.NoError(t, e.ValidateColumns(cols))
}

func TestValidateColumnsMismatch(t *testing.T) {
	e := newExtractor()

	err := e.ValidateColumns(e.Columns()[:5])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension mismatch")

	reordered := append([]string{}, e.Columns()...)
	reordered[0], reordered[1] = reordered[1], reordered[0]
	err = e.ValidateColumns(reordered)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatch at 0")
}

func TestExtractRow(t *testing.T) {
	e := newExtractor()
	length := int64(512)
	records := []accesslog.Record{{
		Method:        "POST",
		URL:           "/items?id=1 union select password from users",
		StatusCode:    404,
		UserAgent:     "curl/8.0",
		ContentLength: &length,
	}}
	urls := []string{records[0].URL}

	batch, err := e.Extract(records, urls)
	require.NoError(t, err)
	require.Equal(t, 1, batch.N)

	row := batch.Pattern[0]
	idx := columnIndex(t, batch.Cols, "has_sql_union")
	assert.Equal(t, float32(1), row[idx])
	idx = columnIndex(t, batch.Cols, "ua_curl")
	assert.Equal(t, float32(1), row[idx])
	idx = columnIndex(t, batch.Cols, "has_script_tag")
	assert.Equal(t, float32(0), row[idx])

	idx = columnIndex(t, batch.Cols, "url_len")
	assert.Equal(t, float32(len(urls[0])), row[idx])

	assert.Equal(t, float32(404), batch.Status[0])
	assert.Equal(t, float32(512), batch.ContentLength[0])
	assert.Equal(t, float32(1), batch.Method[0]) // POST
	assert.Equal(t, float32(0), batch.Agent[0])  // curl/8.0
}

func TestExtractClamps(t *testing.T) {
	e := newExtractor()
	long := "/a?" + strings.Repeat("x=1&", 2000)
	records := []accesslog.Record{{Method: "GET", URL: long, StatusCode: 200}}

	batch, err := e.Extract(records, []string{long})
	require.NoError(t, err)

	row := batch.Pattern[0]
	assert.Equal(t, float32(4096), row[columnIndex(t, batch.Cols, "url_len")])
	assert.Equal(t, float32(50), row[columnIndex(t, batch.Cols, "param_count")])

	ratio := row[columnIndex(t, batch.Cols, "special_char_ratio")]
	assert.GreaterOrEqual(t, ratio, float32(0))
	assert.LessOrEqual(t, ratio, float32(100))
}

func TestExtractLengthMismatch(t *testing.T) {
	e := newExtractor()
	_, err := e.Extract([]accesslog.Record{{URL: "/a"}}, nil)
	assert.Error(t, err)
}

func columnIndex(t *testing.T, cols []string, name string) int {
	t.Helper()
	for i, c := range cols {
		if c == name {
			return i
		}
	}
	t.Fatalf("column %q not found", name)
	return -1
}
