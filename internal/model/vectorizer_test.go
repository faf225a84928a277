package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	toks := Tokenize("/search?q=select shoes")
	assert.Contains(t, toks, "search")
	assert.Contains(t, toks, "select")
	assert.Contains(t, toks, "shoes")
	// Bigrams follow the unigram order.
	assert.Contains(t, toks, "select shoes")

	assert.Empty(t, Tokenize("???"))
}

func TestTransformNormalized(t *testing.T) {
	v := &Vectorizer{
		Vocab: map[string]int{"admin": 0, "login": 1, "admin login": 2},
		IDF:   []float64{1.2, 1.0, 2.5},
	}

	rows := v.Transform([]string{"/admin/login", "/nothing/known"})
	require.Len(t, rows, 2)

	var norm float64
	for _, x := range rows[0] {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)

	// Out-of-vocabulary input yields the zero vector, not an error.
	for _, x := range rows[1] {
		assert.Equal(t, float32(0), x)
	}
}

func TestLinearProba(t *testing.T) {
	m := &Linear{Weights: []float64{2, 0}, Bias: -1}

	assert.InDelta(t, 1/(1+math.Exp(1)), m.Proba([]float32{0, 5}), 1e-9)
	assert.InDelta(t, 1/(1+math.Exp(-1)), m.Proba([]float32{1, 5}), 1e-9)
	assert.Greater(t, m.Proba([]float32{3, 0}), m.Proba([]float32{1, 0}))
}

func TestMulticlassBest(t *testing.T) {
	m := &Multiclass{
		Classes: []string{"normal", "sql_injection", "xss"},
		Weights: [][]float64{{0, 0}, {4, 0}, {0, 4}},
		Biases:  []float64{0.5, 0, 0},
	}

	label, score := m.Best([]float32{1, 0})
	assert.Equal(t, "sql_injection", label)
	assert.Greater(t, score, 0.5)

	label, _ = m.Best([]float32{0, 1})
	assert.Equal(t, "xss", label)

	label, score = m.Best([]float32{0, 0})
	assert.Equal(t, "normal", label)
	assert.Less(t, score, 1.0)
}
