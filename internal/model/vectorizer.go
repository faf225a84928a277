// Package model defines the trained artifact bundle the detector scores
// with: a TF-IDF URL vectorizer, categorical encoders, a binary attack
// classifier, and an optional attack-type classifier. The bundle is loaded
// read-only by the registry and shared lock-free across batches.
package model

import (
	"math"
	"strings"
)

// Vectorizer is a frozen TF-IDF transform over URL token 1–2 grams. Vocab
// maps n-gram to column index; IDF is indexed by column.
type Vectorizer struct {
	Vocab map[string]int `json:"vocab"`
	IDF   []float64      `json:"idf"`
}

// Dim returns the text feature dimensionality.
func (v *Vectorizer) Dim() int { return len(v.IDF) }

// Transform computes L2-normalized TF-IDF rows for the given normalized
// URLs. Tokens outside the frozen vocabulary are ignored.
func (v *Vectorizer) Transform(urls []string) [][]float32 {
	out := make([][]float32, len(urls))
	for i, u := range urls {
		out[i] = v.transformOne(u)
	}
	return out
}

func (v *Vectorizer) transformOne(u string) []float32 {
	row := make([]float32, len(v.IDF))
	tokens := Tokenize(u)
	if len(tokens) == 0 {
		return row
	}

	counts := make(map[int]float64, len(tokens))
	for _, tok := range tokens {
		if idx, ok := v.Vocab[tok]; ok {
			counts[idx]++
		}
	}

	var norm float64
	for idx, tf := range counts {
		w := tf * v.IDF[idx]
		row[idx] = float32(w)
		norm += w * w
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for idx := range counts {
			row[idx] *= scale
		}
	}
	return row
}

// Tokenize splits a normalized URL into word unigrams and bigrams. Runs of
// letters and digits form words; everything else is a separator.
func Tokenize(u string) []string {
	words := splitWords(u)
	if len(words) == 0 {
		return nil
	}
	tokens := make([]string, 0, len(words)*2-1)
	tokens = append(tokens, words...)
	for i := 0; i+1 < len(words); i++ {
		tokens = append(tokens, words[i]+" "+words[i+1])
	}
	return tokens
}

func splitWords(u string) []string {
	var words []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			words = append(words, b.String())
			b.Reset()
		}
	}
	for i := 0; i < len(u); i++ {
		c := u[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
			b.WriteByte(c)
		} else {
			flush()
		}
	}
	flush()
	return words
}
