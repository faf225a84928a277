package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTable(t *testing.T) {
	table := Default()

	assert.Equal(t, DefaultVersion, table.Version())
	assert.Greater(t, len(table.Features()), 60)

	names := table.FeatureNames()
	seen := map[string]bool{}
	for _, n := range names {
		assert.False(t, seen[n], "duplicate feature column %q", n)
		seen[n] = true
	}

	// Column order is a model contract: two calls must agree.
	assert.Equal(t, names, table.FeatureNames())

	for _, cat := range []Category{
		SQLiHigh, SQLiLow, CodeInjection, XSS, Traversal,
		SSRF, TLSProbe, Webshell, UploadExec, Static,
	} {
		assert.Greater(t, table.GroupSize(cat), 0, "category %s has no patterns", cat)
	}
}

func TestDefaultGroupMatching(t *testing.T) {
	table := Default()

	tests := []struct {
		cat   Category
		hit   string
		clean string
	}{
		{SQLiHigh, "/items?id=1 union select password from users", "/items?id=42"},
		{Traversal, "/download?f=../../etc/passwd", "/download?f=report.pdf"},
		{XSS, "/p?c=<script>alert(1)</script>", "/p?c=hello"},
		{CodeInjection, "/run?x=eval(base64_decode(", "/run?x=start"},
		{SSRF, "/fetch?url=http://169.254.169.254/latest/meta-data", "/fetch?url=/local"},
		{Webshell, "/uploads/c99.php", "/uploads/photo.jpg"},
		{Static, "/assets/app.css", "/api/users"},
	}
	for _, tt := range tests {
		assert.True(t, table.MatchGroup(tt.cat, tt.hit), "%s should match %q", tt.cat, tt.hit)
		assert.False(t, table.MatchGroup(tt.cat, tt.clean), "%s should not match %q", tt.cat, tt.clean)
	}
}

func TestFeatureTargets(t *testing.T) {
	table := Default()
	var urlCount, agentCount int
	for _, p := range table.Features() {
		switch p.Target {
		case TargetURL:
			urlCount++
		case TargetAgent:
			agentCount++
		default:
			t.Fatalf("feature %q has unknown target %q", p.Name, p.Target)
		}
	}
	assert.Greater(t, urlCount, 0)
	assert.Greater(t, agentCount, 0)
}

func TestContainsAny(t *testing.T) {
	assert.True(t, ContainsAny("/cgi-bin/test;id", []string{";", "|"}))
	assert.False(t, ContainsAny("/plain", []string{";", "|"}))
	assert.False(t, ContainsAny("/plain", nil))
}

func TestHelperMatchers(t *testing.T) {
	table := Default()

	assert.True(t, table.BrowserAgent("mozilla/5.0 (windows nt 10.0) chrome/120.0"))
	assert.False(t, table.BrowserAgent("sqlmap/1.7"))

	assert.True(t, table.LoginPath("/auth/login"))
	assert.False(t, table.LoginPath("/products"))

	assert.True(t, table.ItemPath("/products/42"))
	assert.False(t, table.ItemPath("/products/42/reviews?sort=asc"))

	v, ok := table.QueryParam("q=select shoes&page=2")
	require.True(t, ok)
	assert.Equal(t, "select shoes", v)

	_, ok = table.QueryParam("page=2")
	assert.False(t, ok)
}
