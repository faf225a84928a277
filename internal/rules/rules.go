// Package rules implements the post-processing override engine that corrects
// the classifier's verdict: a priority-ordered, short-circuiting pipeline of
// heuristic checks, followed by two additive adjustment stages (webshell
// boost, path dampening). Evaluation order is a contract: later,
// more general rules exist to catch what earlier specific rules miss, and an
// unambiguous attack signature always outranks any whitelist.
package rules

import (
	"strings"

	"github.com/logsieve/logsieve/internal/attack"
)

// Context is the per-record input to rule evaluation. URL, Path, and Query
// are normalized (decoded, lower-cased); Method is upper-cased; UserAgent is
// lower-cased. Label and Score carry the classifier's Stage-2 nomination.
type Context struct {
	URL       string
	Path      string
	Query     string
	Method    string
	UserAgent string
	Status    int
	Label     string
	Score     float64
}

// Outcome is a rule decision. When no rule fires, Label and Score pass the
// classifier's values through unchanged.
//
// Override=true means the rule replaces the verdict outright and bypasses
// the threshold gate: Label=="" forces benign, anything else forces that
// attack type. Override=false with Fired=true rewrites the working
// label/score but leaves the threshold gate in charge.
type Outcome struct {
	Fired    bool
	Override bool
	Label    string
	Score    float64
	Rule     string
}

// Rule is one prioritized check. Evaluate returns its outcome and whether it
// fired; the first fired rule wins and no later rule is consulted.
type Rule interface {
	Name() string
	Evaluate(ctx *Context, h Hits) (Outcome, bool)
}

type ruleFunc struct {
	name string
	fn   func(ctx *Context, h Hits) (Outcome, bool)
}

func (r ruleFunc) Name() string { return r.name }
func (r ruleFunc) Evaluate(ctx *Context, h Hits) (Outcome, bool) {
	out, ok := r.fn(ctx, h)
	out.Rule = r.name
	return out, ok
}

func maxScore(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minScore(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

var standardMethods = map[string]struct{}{
	"GET": {}, "POST": {}, "PUT": {}, "DELETE": {}, "HEAD": {},
	"OPTIONS": {}, "PATCH": {}, "TRACE": {}, "CONNECT": {},
}

func abnormalMethod(method string) bool {
	_, ok := standardMethods[method]
	return !ok
}

// ruleHealthCheck suppresses known health/monitoring traffic: a health path
// probed by a monitoring agent (or via HEAD). It refuses to fire when the
// query carries a dangerous command token or a high-confidence SQL injection
// signature; a known attack signature must never be whitelisted away.
func (e *Engine) ruleHealthCheck() Rule {
	return ruleFunc{name: "health_check_whitelist", fn: func(ctx *Context, h Hits) (Outcome, bool) {
		if !h.HealthPath {
			return Outcome{}, false
		}
		monitored := ctx.Method == "HEAD"
		for _, agent := range e.table.HealthAgents() {
			if strings.Contains(ctx.UserAgent, agent) {
				monitored = true
				break
			}
		}
		if !monitored {
			return Outcome{}, false
		}
		if h.QueryDangerous || h.QuerySQLiHigh {
			return Outcome{}, false
		}
		return Outcome{Fired: true, Override: true, Label: "", Score: 0}, true
	}}
}

// ruleSQLiHigh fires on unambiguous SQL injection signatures. It runs before
// every whitelist except the health check (which itself defers to it), so a
// known signature can never be suppressed by a later rule.
func (e *Engine) ruleSQLiHigh() Rule {
	return ruleFunc{name: "sqli_high_confidence", fn: func(ctx *Context, h Hits) (Outcome, bool) {
		if !h.SQLiHigh {
			return Outcome{}, false
		}
		return Outcome{Fired: true, Override: true, Label: attack.SQLInjection, Score: maxScore(ctx.Score, 0.9)}, true
	}}
}

// ruleSearchContext allows bare SQL keywords on recognized search endpoints.
// The allowance is void when a high-confidence signature or risky
// punctuation co-occurs.
func (e *Engine) ruleSearchContext() Rule {
	return ruleFunc{name: "search_sql_allowance", fn: func(ctx *Context, h Hits) (Outcome, bool) {
		if h.SearchParamBenign {
			return Outcome{Fired: true, Override: true, Label: "", Score: 0.1}, true
		}
		if h.SearchKeywordBenign {
			return Outcome{Fired: true, Override: true, Label: "", Score: 0.3}, true
		}
		return Outcome{}, false
	}}
}

// ruleTraversalCommand escalates the traversal+command-separator combination
// to command injection: co-occurrence implies active exploitation, not
// passive probing, so the more severe category wins.
func (e *Engine) ruleTraversalCommand() Rule {
	return ruleFunc{name: "traversal_command_combo", fn: func(ctx *Context, h Hits) (Outcome, bool) {
		if !h.CmdSep || !h.Traversal {
			return Outcome{}, false
		}
		return Outcome{Fired: true, Override: true, Label: attack.CommandInjection, Score: maxScore(ctx.Score, 0.85)}, true
	}}
}

func (e *Engine) ruleTraversal() Rule {
	return ruleFunc{name: "directory_traversal", fn: func(ctx *Context, h Hits) (Outcome, bool) {
		if !h.Traversal {
			return Outcome{}, false
		}
		return Outcome{Fired: true, Override: true, Label: attack.DirectoryTraversal, Score: maxScore(ctx.Score, 0.85)}, true
	}}
}

// ruleUploadExec flags execution of freshly uploaded server-side scripts
// (upload paths ending in .php/.jsp/... with execution parameters). Gated by
// the post-upload filter flag.
func (e *Engine) ruleUploadExec() Rule {
	return ruleFunc{name: "post_upload_exec", fn: func(ctx *Context, h Hits) (Outcome, bool) {
		if !e.flags.PostUploadFilter || !h.UploadExec {
			return Outcome{}, false
		}
		return Outcome{Fired: true, Override: true, Label: attack.Webshell, Score: maxScore(ctx.Score, 0.9)}, true
	}}
}

func (e *Engine) ruleCodeInjection() Rule {
	return ruleFunc{name: "code_injection", fn: func(ctx *Context, h Hits) (Outcome, bool) {
		if !h.CodeInjection {
			return Outcome{}, false
		}
		return Outcome{Fired: true, Override: true, Label: attack.CodeInjection, Score: maxScore(ctx.Score, 0.85)}, true
	}}
}

func (e *Engine) ruleCommandInjection() Rule {
	return ruleFunc{name: "command_injection", fn: func(ctx *Context, h Hits) (Outcome, bool) {
		if !h.CmdSep || strings.Contains(ctx.UserAgent, "kube-probe") {
			return Outcome{}, false
		}
		return Outcome{Fired: true, Override: true, Label: attack.CommandInjection, Score: maxScore(ctx.Score, 0.8)}, true
	}}
}

func (e *Engine) ruleXSS() Rule {
	return ruleFunc{name: "xss", fn: func(ctx *Context, h Hits) (Outcome, bool) {
		if !h.XSS {
			return Outcome{}, false
		}
		return Outcome{Fired: true, Override: true, Label: attack.XSS, Score: maxScore(ctx.Score, 0.85)}, true
	}}
}

// ruleSQLiLow catches weaker SQL heuristics, or a known SQL injection tool's
// user-agent paired with a non-trivial query string.
func (e *Engine) ruleSQLiLow() Rule {
	return ruleFunc{name: "sqli_low_confidence", fn: func(ctx *Context, h Hits) (Outcome, bool) {
		if !h.SQLiLow && !(strings.Contains(ctx.UserAgent, "sqlmap") && ctx.Query != "") {
			return Outcome{}, false
		}
		return Outcome{Fired: true, Override: true, Label: attack.SQLInjection, Score: maxScore(ctx.Score, 0.85)}, true
	}}
}

// ruleToolFingerprint handles a scanner user-agent with no matching payload.
// On a plain item-lookup path the fingerprint alone is weak evidence and is
// down-weighted rather than flagged; anywhere else it is still an attack.
func (e *Engine) ruleToolFingerprint() Rule {
	return ruleFunc{name: "sqli_tool_fingerprint", fn: func(ctx *Context, h Hits) (Outcome, bool) {
		if !strings.Contains(ctx.UserAgent, "sqlmap") || h.SQLiHigh || h.SQLiLow {
			return Outcome{}, false
		}
		if h.ItemPath {
			return Outcome{Fired: true, Override: false, Label: "", Score: minScore(ctx.Score, 0.4)}, true
		}
		return Outcome{Fired: true, Override: true, Label: attack.SQLInjection, Score: 0.65}, true
	}}
}

// ruleTLSProbe detects TLS handshake bytes leaking into a text field: a
// non-HTTP scanner hitting an HTTP listener, recognizable by the escaped
// record header plus an abnormal method token or a 400 status.
func (e *Engine) ruleTLSProbe() Rule {
	return ruleFunc{name: "tls_probe", fn: func(ctx *Context, h Hits) (Outcome, bool) {
		if !h.TLSSequence || !(abnormalMethod(ctx.Method) || ctx.Status == 400) {
			return Outcome{}, false
		}
		return Outcome{Fired: true, Override: true, Label: attack.TLSProbe, Score: maxScore(ctx.Score, 0.99)}, true
	}}
}

func (e *Engine) ruleSSRF() Rule {
	return ruleFunc{name: "ssrf_rfi", fn: func(ctx *Context, h Hits) (Outcome, bool) {
		if !h.SSRF {
			return Outcome{}, false
		}
		return Outcome{Fired: true, Override: true, Label: attack.SSRFRFI, Score: maxScore(ctx.Score, 0.8)}, true
	}}
}

// ruleStatic suppresses static-asset requests, but only when the query
// string carries no attack pattern of its own.
func (e *Engine) ruleStatic() Rule {
	return ruleFunc{name: "static_resource", fn: func(ctx *Context, h Hits) (Outcome, bool) {
		if !e.flags.StaticFilter || !h.StaticSuppress {
			return Outcome{}, false
		}
		return Outcome{Fired: true, Override: false, Label: "", Score: 0.3}, true
	}}
}

// ruleLoginBrowser whitelists browser POSTs to login-like endpoints, absent
// SQL metacharacters anywhere in the URL.
func (e *Engine) ruleLoginBrowser() Rule {
	return ruleFunc{name: "login_browser_whitelist", fn: func(ctx *Context, h Hits) (Outcome, bool) {
		if ctx.Method != "POST" || !h.LoginPath || h.LoginRisky {
			return Outcome{}, false
		}
		if !e.table.BrowserAgent(ctx.UserAgent) {
			return Outcome{}, false
		}
		return Outcome{Fired: true, Override: false, Label: "", Score: 0.3}, true
	}}
}

