package registry

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeBundle(t *testing.T, dir, version string, withType bool) {
	t.Helper()
	bdir := filepath.Join(dir, "model_v"+version)
	require.NoError(t, os.MkdirAll(bdir, 0o755))

	write := func(name string, v any) {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(bdir, name), data, 0o644))
	}

	write("meta.json", map[string]any{
		"version":      version,
		"pattern_cols": []string{"has_sql_union"},
	})
	write("vectorizer.json", map[string]any{
		"vocab": map[string]int{"union": 0, "select": 1},
		"idf":   []float64{1, 1},
	})
	write("encoders.json", map[string]any{
		"method": map[string]any{"values": []string{"GET", "POST"}},
		"agent":  map[string]any{"values": []string{}},
	})
	// Text(2) + status/contentLen/method/agent + one pattern column.
	write("binary.json", map[string]any{
		"weights": []float64{1, 1, 0, 0, 0, 0, 2},
		"bias":    -1,
	})
	if withType {
		write("type.json", map[string]any{
			"classes": []string{"normal", "sql_injection"},
			"weights": [][]float64{{0, 0, 0, 0, 0, 0}, {1, 1, 1, 0, 0, 0}},
			"biases":  []float64{0, 0},
		})
	}
}

func TestVersionsOrdering(t *testing.T) {
	dir := t.TempDir()
	writeBundle(t, dir, "1.0.0", false)
	writeBundle(t, dir, "1.2.0", false)
	writeBundle(t, dir, "0.9.3", false)
	// Junk entries are ignored.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "model_vNaN"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "notes"), 0o755))

	r := New(dir, discard())
	assert.Equal(t, []string{"1.2.0", "1.0.0", "0.9.3"}, r.Versions())

	latest, err := r.Latest()
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", latest)
}

func TestLoadActive(t *testing.T) {
	dir := t.TempDir()
	writeBundle(t, dir, "1.0.0", true)
	writeBundle(t, dir, "2.0.0", false)

	r := New(dir, discard())
	bundle, err := r.LoadActive()
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", bundle.Meta.Version)
	assert.False(t, bundle.HasTypeModel())

	older, err := r.Load("1.0.0")
	require.NoError(t, err)
	assert.True(t, older.HasTypeModel())

	// Loads are cached; the same pointer comes back.
	again, err := r.Load("1.0.0")
	require.NoError(t, err)
	assert.Same(t, older, again)
}

func TestNoModel(t *testing.T) {
	r := New(t.TempDir(), discard())

	_, err := r.Latest()
	assert.ErrorIs(t, err, ErrNoModel)

	_, err = r.LoadActive()
	assert.ErrorIs(t, err, ErrNoModel)
}

func TestLoadRejectsBrokenBundle(t *testing.T) {
	dir := t.TempDir()
	writeBundle(t, dir, "1.0.0", false)
	require.NoError(t, os.Remove(filepath.Join(dir, "model_v1.0.0", "binary.json")))

	r := New(dir, discard())
	_, err := r.LoadActive()
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoModel)
}

func TestClearCache(t *testing.T) {
	dir := t.TempDir()
	writeBundle(t, dir, "1.0.0", false)

	r := New(dir, discard())
	first, err := r.Load("1.0.0")
	require.NoError(t, err)

	r.ClearCache()
	second, err := r.Load("1.0.0")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}
