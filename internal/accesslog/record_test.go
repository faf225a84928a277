package accesslog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Status
	}{
		{"number", `404`, 404},
		{"quoted number", `"301"`, 301},
		{"quoted with spaces", `" 200 "`, 200},
		{"dash placeholder", `"-"`, 200},
		{"garbage", `"abc"`, 200},
		{"negative", `-5`, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Status
			require.NoError(t, json.Unmarshal([]byte(tt.in), &s))
			assert.Equal(t, tt.want, s)
		})
	}
}

func TestRecordDecodeTolerant(t *testing.T) {
	raw := `{"url": "/a", "status_code": "500", "method": "post"}`
	var r Record
	require.NoError(t, json.Unmarshal([]byte(raw), &r))
	assert.Equal(t, Status(500), r.StatusCode)

	s := r.Sanitized()
	assert.Equal(t, "POST", s.Method)
}

func TestSanitizedDefaults(t *testing.T) {
	r := Record{URL: "/x"}
	s := r.Sanitized()

	assert.Equal(t, "GET", s.Method)
	assert.Equal(t, Status(200), s.StatusCode)

	// The receiver is untouched.
	assert.Equal(t, "", r.Method)
	assert.Equal(t, Status(0), r.StatusCode)
}
