// Package features derives the fixed-width numeric feature matrix the
// classifiers consume: one boolean column per pattern in the signature
// table, three structural stats, and encoded categorical fields. Column
// count and order are a hard contract with the trained model bundle.
package features

import (
	"fmt"
	"strings"

	"github.com/logsieve/logsieve/internal/accesslog"
	"github.com/logsieve/logsieve/internal/encoder"
	"github.com/logsieve/logsieve/internal/patterns"
)

// Stat feature clamps. url_len is bounded so one pathological request line
// cannot blow out the feature range the model was trained on.
const (
	maxURLLen     = 4096
	maxParamCount = 50
)

var statCols = []string{"url_len", "param_count", "special_char_ratio"}

const specialChars = `!@#$%^&*()+=[]{}|;:,.<>?`

// Batch is the extracted feature set for one prediction batch. All values
// are float32, the dtype the scorers were trained with; mixing widths here
// would silently change the layout the model sees.
type Batch struct {
	N    int
	URLs []string // normalized, row-aligned

	// Pattern holds one row per record: pattern flags followed by stats,
	// column order given by Cols.
	Pattern [][]float32
	Cols    []string

	Status        []float32
	ContentLength []float32
	Method        []float32
	Agent         []float32
}

// Extractor computes feature batches against a fixed pattern table and the
// categorical encoders of the active model bundle. Immutable after
// construction and safe for concurrent use.
type Extractor struct {
	table     *patterns.Table
	methodEnc *encoder.Safe
	agentEnc  *encoder.Safe
	cols      []string
}

// New builds an extractor. The column list is computed once: pattern names
// in table order, then the stat columns.
func New(table *patterns.Table, methodEnc, agentEnc *encoder.Safe) *Extractor {
	cols := append(table.FeatureNames(), statCols...)
	return &Extractor{table: table, methodEnc: methodEnc, agentEnc: agentEnc, cols: cols}
}

// Columns returns the pattern+stat column names in matrix order.
func (e *Extractor) Columns() []string { return e.cols }

// ValidateColumns checks the extractor's column list against the list the
// bundle was trained with. Order matters; any drift is a configuration
// error, never something to pad or truncate around.
func (e *Extractor) ValidateColumns(expected []string) error {
	if len(expected) != len(e.cols) {
		return fmt.Errorf("feature dimension mismatch: extractor has %d pattern columns, bundle expects %d", len(e.cols), len(expected))
	}
	for i, name := range expected {
		if e.cols[i] != name {
			return fmt.Errorf("feature column mismatch at %d: extractor %q, bundle %q", i, e.cols[i], name)
		}
	}
	return nil
}

// Extract computes the feature batch for records. urls must be the
// row-aligned normalized URLs; a length mismatch is a programmer error.
func (e *Extractor) Extract(records []accesslog.Record, urls []string) (*Batch, error) {
	if len(records) != len(urls) {
		return nil, fmt.Errorf("records/urls length mismatch: %d != %d", len(records), len(urls))
	}

	n := len(records)
	b := &Batch{
		N:             n,
		URLs:          urls,
		Cols:          e.cols,
		Pattern:       make([][]float32, n),
		Status:        make([]float32, n),
		ContentLength: make([]float32, n),
		Method:        make([]float32, n),
		Agent:         make([]float32, n),
	}

	feats := e.table.Features()
	for i, rec := range records {
		url := urls[i]
		ua := strings.ToLower(rec.UserAgent)

		row := make([]float32, len(e.cols))
		for j, p := range feats {
			input := url
			if p.Target == patterns.TargetAgent {
				input = ua
			}
			if p.Match(input) {
				row[j] = 1
			}
		}
		row[len(feats)] = float32(clampInt(len(url), maxURLLen))
		row[len(feats)+1] = float32(clampInt(strings.Count(url, "?")+strings.Count(url, "&"), maxParamCount))
		row[len(feats)+2] = specialCharRatio(url)
		b.Pattern[i] = row

		b.Status[i] = float32(rec.StatusCode)
		if rec.ContentLength != nil {
			b.ContentLength[i] = float32(*rec.ContentLength)
		}
		b.Method[i] = float32(e.methodEnc.Transform(rec.Method))
		b.Agent[i] = float32(e.agentEnc.Transform(rec.UserAgent))
	}

	return b, nil
}

func clampInt(v, max int) int {
	if v > max {
		return max
	}
	if v < 0 {
		return 0
	}
	return v
}

// specialCharRatio is the percentage of symbol characters over URL length,
// clamped to [0,100] and truncated to an integral value to match the
// trained representation.
func specialCharRatio(url string) float32 {
	if len(url) == 0 {
		return 0
	}
	count := 0
	for i := 0; i < len(url); i++ {
		if strings.IndexByte(specialChars, url[i]) >= 0 {
			count++
		}
	}
	ratio := float64(count) / float64(len(url)) * 100
	if ratio > 100 {
		ratio = 100
	}
	return float32(int(ratio))
}
