package encoder

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransformKnownAndUnknown(t *testing.T) {
	e := New([]string{"GET", "POST", "PUT"})

	assert.Equal(t, 0, e.Transform("GET"))
	assert.Equal(t, 1, e.Transform("POST"))

	// Anything outside the vocabulary maps to the shared unknown slot
	// instead of failing the batch.
	unk := e.Transform("BREW")
	assert.Equal(t, unk, e.Transform("TRACE"))
	assert.Equal(t, e.Size()-1, unk)
}

func TestUnknownSlotAlwaysPresent(t *testing.T) {
	e := New(nil)
	assert.Equal(t, 1, e.Size())
	assert.Equal(t, 0, e.Transform("anything"))
}

func TestDuplicateValuesCollapsed(t *testing.T) {
	e := New([]string{"GET", "GET", "POST"})
	assert.Equal(t, 3, e.Size())
	assert.Equal(t, 0, e.Transform("GET"))
}

func TestEncoderRoundTrip(t *testing.T) {
	e := New([]string{"GET", "POST"})
	data, err := json.Marshal(e)
	require.NoError(t, err)

	var back Safe
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, e.Size(), back.Size())
	assert.Equal(t, e.Transform("POST"), back.Transform("POST"))
	assert.Equal(t, e.Transform("nope"), back.Transform("nope"))
}
