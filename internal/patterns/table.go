// Package patterns holds the versioned signature table: named regular
// expressions that drive both feature extraction (one flag column per
// feature pattern) and rule evaluation (category-grouped signature and
// whitelist sets). The table is data, not code: it is built once at
// startup, optionally extended from a YAML file, and shared read-only.
package patterns

import (
	"fmt"
	"regexp"
	"strings"
)

// Category groups rule-evaluation patterns by the attack class (or
// whitelist class) they evidence.
type Category string

const (
	SQLiHigh      Category = "sqli_high"
	SQLiLow       Category = "sqli_low"
	CodeInjection Category = "code_injection"
	XSS           Category = "xss"
	Traversal     Category = "directory_traversal"
	SSRF          Category = "ssrf_rfi"
	TLSProbe      Category = "tls_probe"
	Webshell      Category = "webshell"
	UploadExec    Category = "upload_exec"
	Static        Category = "static_whitelist"
)

// Target selects which record field a feature pattern matches against.
type Target string

const (
	TargetURL   Target = "url"
	TargetAgent Target = "agent"
)

// Pattern is one compiled feature pattern. Name doubles as the feature
// column name, so it must be unique within a table.
type Pattern struct {
	Name   string
	Target Target
	re     *regexp.Regexp
}

// Match reports whether the pattern matches s.
func (p Pattern) Match(s string) bool { return p.re.MatchString(s) }

// Table is the immutable pattern set. Construct with Default or Load and
// share by reference; it is safe for concurrent use.
type Table struct {
	version  string
	features []Pattern
	byName   map[string]int
	groups   map[Category][]*regexp.Regexp

	healthPaths     []string
	healthAgents    []string
	sqlKeywords     []string
	riskyPunct      []string
	dangerousTokens []string
	cmdSeparators   []string
	sensitiveFiles  []string
	devopsPrefixes  []string
	searchPrefixes  []string

	browserRE   *regexp.Regexp
	loginPathRE *regexp.Regexp
	itemPathRE  *regexp.Regexp
	qParamRE    *regexp.Regexp
}

// Version identifies the table contents. It participates in cache keys so a
// reload with different patterns never reuses stale decisions.
func (t *Table) Version() string { return t.version }

// Features returns the ordered feature patterns. The order is the column
// order of the extracted feature matrix and must not change between calls.
func (t *Table) Features() []Pattern { return t.features }

// FeatureNames returns the ordered feature column names.
func (t *Table) FeatureNames() []string {
	out := make([]string, len(t.features))
	for i, p := range t.features {
		out[i] = p.Name
	}
	return out
}

// MatchGroup reports whether any pattern in the category matches s.
func (t *Table) MatchGroup(cat Category, s string) bool {
	for _, re := range t.groups[cat] {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// GroupSize returns the number of patterns registered for a category.
func (t *Table) GroupSize(cat Category) int { return len(t.groups[cat]) }

// ContainsAny reports whether s contains any of the given tokens.
func ContainsAny(s string, tokens []string) bool {
	for _, tok := range tokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}

func (t *Table) HealthPaths() []string     { return t.healthPaths }
func (t *Table) HealthAgents() []string    { return t.healthAgents }
func (t *Table) SQLKeywords() []string     { return t.sqlKeywords }
func (t *Table) RiskyPunct() []string      { return t.riskyPunct }
func (t *Table) DangerousTokens() []string { return t.dangerousTokens }
func (t *Table) CmdSeparators() []string   { return t.cmdSeparators }
func (t *Table) SensitiveFiles() []string  { return t.sensitiveFiles }
func (t *Table) DevOpsPrefixes() []string  { return t.devopsPrefixes }
func (t *Table) SearchPrefixes() []string  { return t.searchPrefixes }

// BrowserAgent reports whether ua looks like an interactive browser.
func (t *Table) BrowserAgent(ua string) bool { return t.browserRE.MatchString(ua) }

// LoginPath reports whether path is a login-like endpoint.
func (t *Table) LoginPath(path string) bool { return t.loginPathRE.MatchString(path) }

// ItemPath reports whether path is a plain item lookup such as /products/42,
// where a scanner user-agent alone is weak evidence.
func (t *Table) ItemPath(path string) bool { return t.itemPathRE.MatchString(path) }

// QueryParam extracts the value of the q= parameter from a query string.
func (t *Table) QueryParam(query string) (string, bool) {
	m := t.qParamRE.FindStringSubmatch(query)
	if m == nil {
		return "", false
	}
	return m[1], true
}

type tableBuilder struct {
	t    *Table
	errs []string
}

func (b *tableBuilder) feature(name string, target Target, expr string) {
	if _, dup := b.t.byName[name]; dup {
		b.errs = append(b.errs, fmt.Sprintf("duplicate feature %q", name))
		return
	}
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		b.errs = append(b.errs, fmt.Sprintf("feature %q: %v", name, err))
		return
	}
	b.t.byName[name] = len(b.t.features)
	b.t.features = append(b.t.features, Pattern{Name: name, Target: target, re: re})
}

func (b *tableBuilder) group(cat Category, exprs ...string) {
	for _, expr := range exprs {
		re, err := regexp.Compile("(?i)" + expr)
		if err != nil {
			b.errs = append(b.errs, fmt.Sprintf("group %s pattern %q: %v", cat, expr, err))
			continue
		}
		b.t.groups[cat] = append(b.t.groups[cat], re)
	}
}

func (b *tableBuilder) build() (*Table, error) {
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("pattern table invalid: %s", strings.Join(b.errs, "; "))
	}
	return b.t, nil
}

func newBuilder(version string) *tableBuilder {
	return &tableBuilder{t: &Table{
		version: version,
		byName:  map[string]int{},
		groups:  map[Category][]*regexp.Regexp{},
	}}
}
