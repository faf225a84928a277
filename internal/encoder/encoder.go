// Package encoder maps categorical string tokens (HTTP method, user-agent)
// to stable integer indices for the feature matrix.
package encoder

import "encoding/json"

// UnknownToken is the reserved sentinel for tokens never seen at training
// time. It always has an index, so inference never fails on new input.
const UnknownToken = "<UNK>"

// Safe is an open-vocabulary encoder. The vocabulary is learned at training
// time and frozen at inference time; unseen tokens map to the unknown
// sentinel instead of raising. A frozen encoder is safe for concurrent use.
type Safe struct {
	values []string
	lookup map[string]int
}

// New builds an encoder over the given values. The unknown sentinel is
// appended if absent, so it always resolves.
func New(values []string) *Safe {
	e := &Safe{lookup: make(map[string]int, len(values)+1)}
	for _, v := range values {
		if _, dup := e.lookup[v]; dup {
			continue
		}
		e.lookup[v] = len(e.values)
		e.values = append(e.values, v)
	}
	if _, ok := e.lookup[UnknownToken]; !ok {
		e.lookup[UnknownToken] = len(e.values)
		e.values = append(e.values, UnknownToken)
	}
	return e
}

// Transform returns the index for v, or the unknown sentinel's index.
func (e *Safe) Transform(v string) int {
	if idx, ok := e.lookup[v]; ok {
		return idx
	}
	return e.lookup[UnknownToken]
}

// Size returns the vocabulary size including the unknown sentinel.
func (e *Safe) Size() int { return len(e.values) }

// MarshalJSON serializes the vocabulary in index order.
func (e *Safe) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Values []string `json:"values"`
	}{Values: e.values})
}

// UnmarshalJSON restores an encoder from its serialized vocabulary.
func (e *Safe) UnmarshalJSON(data []byte) error {
	var raw struct {
		Values []string `json:"values"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = *New(raw.Values)
	return nil
}
