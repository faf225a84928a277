package rules

import (
	"fmt"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/logsieve/logsieve/internal/attack"
	"github.com/logsieve/logsieve/internal/normalize"
	"github.com/logsieve/logsieve/internal/patterns"
	"github.com/logsieve/logsieve/internal/policy"
)

// DefaultCacheSize bounds the per-URL decision cache.
const DefaultCacheSize = 4096

// Hits are the URL-derived pattern results shared by all rules for one
// record. They depend only on the normalized URL (and the engine's pattern
// table), which is what makes them cacheable; method, user-agent, and
// status checks stay in the rules themselves.
type Hits struct {
	SQLiHigh            bool
	SQLiLow             bool
	Traversal           bool
	CodeInjection       bool
	XSS                 bool
	SSRF                bool
	TLSSequence         bool
	Webshell            bool
	UploadExec          bool
	CmdSep              bool
	HealthPath          bool
	QueryDangerous      bool
	QuerySQLiHigh       bool
	SearchParamBenign   bool
	SearchKeywordBenign bool
	StaticSuppress      bool
	LoginPath           bool
	LoginRisky          bool
	ItemPath            bool
	DevOpsPath          bool
	SearchPath          bool
}

// Engine evaluates the prioritized rule pipeline. It is immutable after New
// and safe for concurrent use; the decision cache is internally synchronized.
type Engine struct {
	table   *patterns.Table
	flags   policy.Flags
	factors policy.Factors
	rules   []Rule

	cache       *lru.Cache[string, Hits]
	cacheHits   atomic.Uint64
	cacheMisses atomic.Uint64
}

// New builds an engine over a pattern table. cacheSize bounds the per-URL
// decision cache; zero selects the default. The cache is scoped to this
// engine, so rebuilding the engine on a table or config reload naturally
// invalidates every cached decision.
func New(table *patterns.Table, flags policy.Flags, factors policy.Factors, cacheSize int) (*Engine, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, Hits](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("decision cache: %w", err)
	}

	e := &Engine{table: table, flags: flags, factors: factors, cache: cache}
	e.rules = []Rule{
		e.ruleHealthCheck(),
		e.ruleSQLiHigh(),
		e.ruleSearchContext(),
		e.ruleTraversalCommand(),
		e.ruleTraversal(),
		e.ruleUploadExec(),
		e.ruleCodeInjection(),
		e.ruleCommandInjection(),
		e.ruleXSS(),
		e.ruleSQLiLow(),
		e.ruleToolFingerprint(),
		e.ruleTLSProbe(),
		e.ruleSSRF(),
		e.ruleStatic(),
		e.ruleLoginBrowser(),
	}
	return e, nil
}

// Rules returns the rule names in evaluation order.
func (e *Engine) Rules() []string {
	out := make([]string, len(e.rules))
	for i, r := range e.rules {
		out[i] = r.Name()
	}
	return out
}

// CacheStats returns decision-cache hit and miss counts.
func (e *Engine) CacheStats() (hits, misses uint64) {
	return e.cacheHits.Load(), e.cacheMisses.Load()
}

// Evaluate runs the pipeline for one record: first fired rule wins. With no
// rule fired, the classifier's label and score pass through unchanged.
func (e *Engine) Evaluate(ctx *Context) Outcome {
	h := e.hits(ctx.URL)
	for _, rule := range e.rules {
		if out, ok := rule.Evaluate(ctx, h); ok {
			return out
		}
	}
	return Outcome{Label: ctx.Label, Score: ctx.Score}
}

// Boost applies the additive webshell adjustment: when webshell signatures
// match, the score is raised by the configured amount and the label is
// forced to webshell. Unlike the pipeline rules this is cumulative with
// whatever came before it, not a short circuit.
func (e *Engine) Boost(ctx *Context, score float64) (float64, bool) {
	if !e.flags.WebshellBoost {
		return score, false
	}
	h := e.hits(ctx.URL)
	if !h.Webshell {
		return score, false
	}
	return minScore(score+e.factors.WebshellBoost, 1.0), true
}

// Dampen applies the multiplicative path discount for recognized CI/CD,
// monitoring, and search prefixes. The caller re-checks the type threshold
// afterwards; dampening may flip a borderline verdict to benign.
func (e *Engine) Dampen(ctx *Context, score float64) (float64, bool) {
	if !e.flags.DevOpsDampening {
		return score, false
	}
	h := e.hits(ctx.URL)
	switch {
	case h.DevOpsPath:
		return score * e.factors.DevOpsReduction, true
	case h.SearchPath:
		return score * e.factors.SearchReduction, true
	}
	return score, false
}

// FallbackLabel names an attack that Stage 1 flagged but Stage 2 could not
// type, from the strongest signature family present in the URL. With no
// signature at all the verdict stays attack but the type is explicitly
// unclassified.
func (e *Engine) FallbackLabel(url string) string {
	h := e.hits(url)
	switch {
	case h.Traversal:
		return attack.DirectoryTraversal
	case h.CmdSep:
		return attack.CommandInjection
	case h.XSS:
		return attack.XSS
	case h.SQLiHigh || h.SQLiLow:
		return attack.SQLInjection
	}
	return attack.Unclassified
}

func (e *Engine) hits(url string) Hits {
	if h, ok := e.cache.Get(url); ok {
		e.cacheHits.Add(1)
		return h
	}
	e.cacheMisses.Add(1)
	h := e.computeHits(url)
	e.cache.Add(url, h)
	return h
}

func (e *Engine) computeHits(url string) Hits {
	t := e.table
	path, query := normalize.SplitPathQuery(url)

	var h Hits
	h.SQLiHigh = t.MatchGroup(patterns.SQLiHigh, url)
	h.SQLiLow = t.MatchGroup(patterns.SQLiLow, url)
	h.Traversal = t.MatchGroup(patterns.Traversal, url) || patterns.ContainsAny(url, t.SensitiveFiles())
	h.CodeInjection = t.MatchGroup(patterns.CodeInjection, url)
	h.XSS = t.MatchGroup(patterns.XSS, url)
	h.SSRF = t.MatchGroup(patterns.SSRF, url)
	h.TLSSequence = t.MatchGroup(patterns.TLSProbe, url)
	h.Webshell = t.MatchGroup(patterns.Webshell, url)
	h.UploadExec = t.MatchGroup(patterns.UploadExec, url)
	h.CmdSep = patterns.ContainsAny(url, t.CmdSeparators()) || strings.Contains(url, "cmd=")

	h.HealthPath = patterns.ContainsAny(path, t.HealthPaths())
	h.QueryDangerous = patterns.ContainsAny(query, t.DangerousTokens())
	h.QuerySQLiHigh = t.MatchGroup(patterns.SQLiHigh, query)

	h.SearchParamBenign, h.SearchKeywordBenign = e.searchAllowance(url, path, query, h)

	if t.MatchGroup(patterns.Static, path) {
		queryAttack := t.MatchGroup(patterns.XSS, query) ||
			t.MatchGroup(patterns.SQLiHigh, query) ||
			t.MatchGroup(patterns.SQLiLow, query)
		h.StaticSuppress = !queryAttack
	}

	h.LoginPath = t.LoginPath(path)
	h.LoginRisky = patterns.ContainsAny(url, []string{"'", `"`, "--", "#", ";", " union ", " select "})
	h.ItemPath = t.ItemPath(path)

	for _, prefix := range t.DevOpsPrefixes() {
		if strings.HasPrefix(path, prefix) {
			h.DevOpsPath = true
			break
		}
	}
	for _, prefix := range t.SearchPrefixes() {
		if strings.HasPrefix(path, prefix) {
			h.SearchPath = true
			break
		}
	}

	return h
}

// searchAllowance evaluates the two benign branches of the search-context
// rule. The q= parameter branch is the strong form (forced benign); the
// whole-URL keyword branch additionally requires that no risky punctuation
// appears anywhere.
func (e *Engine) searchAllowance(url, path, query string, h Hits) (paramBenign, keywordBenign bool) {
	t := e.table
	searchCtx := false
	for _, prefix := range []string{"/search", "/find"} {
		if strings.Contains(path, prefix) {
			searchCtx = true
			break
		}
	}
	if !searchCtx {
		searchCtx = patterns.ContainsAny(query, []string{"q=", "query=", "keyword=", "term="})
	}
	if !searchCtx {
		return false, false
	}

	if value, ok := t.QueryParam(query); ok {
		if patterns.ContainsAny(value, t.SQLKeywords()) && !t.MatchGroup(patterns.SQLiHigh, value) {
			return true, false
		}
	}

	if patterns.ContainsAny(url, t.SQLKeywords()) && !h.SQLiHigh {
		if !patterns.ContainsAny(url, t.RiskyPunct()) {
			return false, true
		}
	}
	return false, false
}
