// Package accesslog defines the normalized log record the detector consumes
// and the verdict it produces.
package accesslog

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Record is a single normalized HTTP access-log entry. Records are immutable
// once received; Sanitized returns a defaulted copy instead of mutating.
type Record struct {
	ClientIP      string `json:"client_ip"`
	Method        string `json:"method"`
	URL           string `json:"url"`
	StatusCode    Status `json:"status_code"`
	UserAgent     string `json:"user_agent"`
	Referrer      string `json:"referrer,omitempty"`
	LoggedAt      string `json:"logged_at"`
	ContentLength *int64 `json:"content_length,omitempty"`
	ContentType   string `json:"content_type,omitempty"`
}

// Status is an HTTP status code that tolerates malformed input: log shippers
// frequently emit the code as a quoted string, and some emit garbage ("-").
// Anything unparseable decodes to 200 rather than failing the batch.
type Status int

// UnmarshalJSON accepts a JSON number, a numeric string, or junk (→ 200).
func (s *Status) UnmarshalJSON(data []byte) error {
	trimmed := strings.Trim(string(data), `"`)
	n, err := strconv.Atoi(strings.TrimSpace(trimmed))
	if err != nil || n < 0 {
		*s = 200
		return nil
	}
	*s = Status(n)
	return nil
}

// MarshalJSON encodes the status as a plain number.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(s))
}

// Sanitized returns a copy of the record with per-field defaults applied:
// method "GET", empty user-agent, status 200. These mirror the defaults the
// model was trained with, so an absent field never skews a feature.
func (r Record) Sanitized() Record {
	out := r
	if strings.TrimSpace(out.Method) == "" {
		out.Method = "GET"
	}
	out.Method = strings.ToUpper(strings.TrimSpace(out.Method))
	if out.StatusCode <= 0 {
		out.StatusCode = 200
	}
	out.UserAgent = strings.TrimSpace(out.UserAgent)
	return out
}

// Verdict is the per-record detection outcome. A verdict is constructed once
// and never mutated; the rule engine builds a fresh verdict from the
// classifier's rather than editing it in place.
type Verdict struct {
	IsAttack    bool    `json:"is_attack"`
	AttackScore float64 `json:"attack_score"`
	AttackType  string  `json:"attack_type,omitempty"`
}

// Benign is the fail-safe verdict used when no model is available or the
// pipeline recovers from an internal failure.
var Benign = Verdict{IsAttack: false, AttackScore: 0, AttackType: ""}
