package model

import (
	"fmt"
	"math"
	"time"

	"github.com/logsieve/logsieve/internal/encoder"
	"github.com/logsieve/logsieve/internal/features"
)

// Meta is the bundle's metadata document. PatternCols is the authoritative
// dimension contract: the exact pattern+stat column list the model was
// trained with, which the extractor must reproduce bit for bit.
type Meta struct {
	Version      string    `json:"version"`
	TrainedAt    time.Time `json:"trained_at"`
	SampleCount  int       `json:"sample_count"`
	PositiveRate float64   `json:"positive_rate"`
	PatternCols  []string  `json:"pattern_cols"`
}

// Linear is a logistic-regression scorer: probability = sigmoid(w·x + b).
type Linear struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

// Proba returns the positive-class probability for one feature row.
func (m *Linear) Proba(x []float32) float64 {
	z := m.Bias
	for i, w := range m.Weights {
		z += w * float64(x[i])
	}
	return 1 / (1 + math.Exp(-z))
}

// Multiclass is a softmax scorer over attack-type classes.
type Multiclass struct {
	Classes []string    `json:"classes"`
	Weights [][]float64 `json:"weights"` // one row per class
	Biases  []float64   `json:"biases"`
}

// Best returns the highest-probability class and its probability.
func (m *Multiclass) Best(x []float32) (string, float64) {
	logits := make([]float64, len(m.Classes))
	maxLogit := math.Inf(-1)
	for c := range m.Classes {
		z := m.Biases[c]
		for i, w := range m.Weights[c] {
			z += w * float64(x[i])
		}
		logits[c] = z
		if z > maxLogit {
			maxLogit = z
		}
	}

	var sum float64
	for c, z := range logits {
		logits[c] = math.Exp(z - maxLogit)
		sum += logits[c]
	}

	best, bestP := 0, 0.0
	for c, e := range logits {
		p := e / sum
		if p > bestP {
			best, bestP = c, p
		}
	}
	return m.Classes[best], bestP
}

// TypeScore is a Stage-2 result for one record. Label is empty when the
// classifier called the record normal.
type TypeScore struct {
	Label string
	Score float64
}

// Bundle is the versioned set of trained artifacts needed to run inference.
// Type may be nil: a bundle trained without an attack-type classifier still
// serves Stage 1, and records score as attack with no type.
type Bundle struct {
	Vectorizer    *Vectorizer
	MethodEncoder *encoder.Safe
	AgentEncoder  *encoder.Safe
	Binary        *Linear
	Type          *Multiclass
	Meta          Meta
}

// HasTypeModel reports whether Stage 2 is available.
func (b *Bundle) HasTypeModel() bool { return b.Type != nil }

// Validate checks internal consistency of the loaded artifacts.
func (b *Bundle) Validate() error {
	if b.Vectorizer == nil || b.Binary == nil || b.MethodEncoder == nil || b.AgentEncoder == nil {
		return fmt.Errorf("bundle v%s: missing artifacts", b.Meta.Version)
	}
	if len(b.Meta.PatternCols) == 0 {
		return fmt.Errorf("bundle v%s: meta has no pattern columns", b.Meta.Version)
	}
	wantBin := b.Vectorizer.Dim() + binaryMetaDim + len(b.Meta.PatternCols)
	if len(b.Binary.Weights) != wantBin {
		return fmt.Errorf("bundle v%s: binary classifier expects %d features, artifacts provide %d",
			b.Meta.Version, len(b.Binary.Weights), wantBin)
	}
	if b.Type != nil {
		if len(b.Type.Classes) == 0 || len(b.Type.Weights) != len(b.Type.Classes) || len(b.Type.Biases) != len(b.Type.Classes) {
			return fmt.Errorf("bundle v%s: type classifier artifacts inconsistent", b.Meta.Version)
		}
		wantType := b.Vectorizer.Dim() + len(b.Meta.PatternCols) + typeMetaDim
		for c, w := range b.Type.Weights {
			if len(w) != wantType {
				return fmt.Errorf("bundle v%s: type class %q expects %d features, artifacts provide %d",
					b.Meta.Version, b.Type.Classes[c], len(w), wantType)
			}
		}
	}
	return nil
}

// Meta feature widths for the two stages. Stage 1 sees status, content
// length, method, agent; Stage 2 sees status, method, agent.
const (
	binaryMetaDim = 4
	typeMetaDim   = 3
)

// ScoreBinary runs Stage 1 over the whole batch and returns one attack
// probability per record.
func (b *Bundle) ScoreBinary(batch *features.Batch) ([]float64, error) {
	text := b.Vectorizer.Transform(batch.URLs)
	out := make([]float64, batch.N)
	dim := b.Vectorizer.Dim() + binaryMetaDim + len(batch.Cols)
	if dim != len(b.Binary.Weights) {
		return nil, fmt.Errorf("binary feature dimension mismatch: built %d, model expects %d", dim, len(b.Binary.Weights))
	}
	row := make([]float32, dim)
	for i := 0; i < batch.N; i++ {
		assembleRow(row, text[i],
			[]float32{batch.Status[i], batch.ContentLength[i], batch.Method[i], batch.Agent[i]},
			batch.Pattern[i])
		out[i] = b.Binary.Proba(row)
	}
	return out, nil
}

// ScoreType runs Stage 2 for the selected record indices only, so type
// inference cost is never paid for records Stage 1 rejected. The returned
// slice is batch-sized; unselected rows keep the zero value. The label
// "normal" maps to an empty label.
func (b *Bundle) ScoreType(batch *features.Batch, selected []int) ([]TypeScore, error) {
	out := make([]TypeScore, batch.N)
	if b.Type == nil || len(selected) == 0 {
		return out, nil
	}

	urls := make([]string, len(selected))
	for i, idx := range selected {
		urls[i] = batch.URLs[idx]
	}
	text := b.Vectorizer.Transform(urls)

	dim := b.Vectorizer.Dim() + len(batch.Cols) + typeMetaDim
	if dim != len(b.Type.Weights[0]) {
		return nil, fmt.Errorf("type feature dimension mismatch: built %d, model expects %d", dim, len(b.Type.Weights[0]))
	}
	row := make([]float32, dim)
	for i, idx := range selected {
		assembleRow(row, text[i],
			batch.Pattern[idx],
			[]float32{batch.Status[idx], batch.Method[idx], batch.Agent[idx]})
		label, score := b.Type.Best(row)
		if label == "normal" {
			label = ""
		}
		out[idx] = TypeScore{Label: label, Score: score}
	}
	return out, nil
}

func assembleRow(dst []float32, parts ...[]float32) {
	n := 0
	for _, part := range parts {
		n += copy(dst[n:], part)
	}
}
