package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "/index.html", "/index.html"},
		{"uppercase folded", "/Admin/Login", "/admin/login"},
		{"percent encoded", "/a%20b", "/a b"},
		{"double percent encoded", "/a%2520b", "/a b"},
		{"html entity", "/q?x=&lt;script&gt;", "/q?x=<script>"},
		{"entity wrapping percent", "/p?v=%26lt;b%26gt;", "/p?v=<b>"},
		{"malformed percent kept", "/x%zz", "/x%zz"},
		{"plus not translated", "/q?x=a+b", "/q?x=a+b"},
		{"whitespace trimmed", "  /a  ", "/a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"/a%2520b",
		"/Search?q=%27%20OR%201%3D1--",
		"/files/..%252f..%252fetc/passwd",
		"/plain",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestNormalizeDecodePassLimit(t *testing.T) {
	// Seven encoding layers exceeds the pass limit. The call must return a
	// stable value rather than decode forever.
	deep := "/x%2525252525252520y"
	out := Normalize(deep)
	// Still partially encoded once the passes run out.
	assert.Contains(t, out, "%")
}

func TestSplitPathQuery(t *testing.T) {
	path, query := SplitPathQuery("/search?q=shoes&page=2")
	assert.Equal(t, "/search", path)
	assert.Equal(t, "q=shoes&page=2", query)

	path, query = SplitPathQuery("/plain")
	assert.Equal(t, "/plain", path)
	assert.Equal(t, "", query)
}
