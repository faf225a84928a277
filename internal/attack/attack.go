// Package attack defines the attack-type labels the detector can emit.
package attack

// Attack-type labels. These are wire values: they appear in verdicts,
// threshold configuration, and persisted audit rows, so they must stay
// stable across releases.
const (
	SQLInjection       = "sql_injection"
	CommandInjection   = "command_injection"
	CodeInjection      = "code_injection"
	XSS                = "xss"
	DirectoryTraversal = "directory_traversal"
	SSRFRFI            = "ssrf_rfi"
	TLSProbe           = "tls_probe"
	Webshell           = "webshell"

	// Unclassified marks a record the binary stage flagged as an attack but
	// no classifier or heuristic could assign a concrete category to.
	Unclassified = "unclassified"
)

var known = map[string]struct{}{
	SQLInjection:       {},
	CommandInjection:   {},
	CodeInjection:      {},
	XSS:                {},
	DirectoryTraversal: {},
	SSRFRFI:            {},
	TLSProbe:           {},
	Webshell:           {},
	Unclassified:       {},
}

// Known reports whether label is a recognized attack-type label.
func Known(label string) bool {
	_, ok := known[label]
	return ok
}

// Labels returns every recognized attack-type label.
func Labels() []string {
	out := make([]string, 0, len(known))
	for label := range known {
		out = append(out, label)
	}
	return out
}
