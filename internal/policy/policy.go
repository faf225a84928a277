// Package policy holds the decision thresholds, feature flags, and numeric
// adjustment factors the rule engine and result assembly consult. Values are
// validated once at startup; at request time they are read-only.
package policy

import (
	"fmt"

	"github.com/logsieve/logsieve/internal/attack"
)

// Default decision thresholds. Per-type values below the generic default
// reflect classes where the type classifier is systematically conservative.
const DefaultBinaryThreshold = 0.50

const defaultTypeThreshold = 0.50

// DefaultTypeThresholds returns the built-in per-attack-type threshold table.
func DefaultTypeThresholds() map[string]float64 {
	return map[string]float64{
		attack.CommandInjection:   0.40,
		attack.CodeInjection:      0.45,
		attack.SQLInjection:       0.35,
		attack.XSS:                0.45,
		attack.DirectoryTraversal: 0.50,
		attack.SSRFRFI:            0.50,
		attack.TLSProbe:           0.50,
		attack.Webshell:           0.50,
	}
}

// Thresholds is the final gate on non-overridden verdicts: a nominated label
// whose score falls below its type threshold reverts to benign.
type Thresholds struct {
	Binary float64
	ByType map[string]float64

	// AutoThreshold, when enabled, falls back to the binary threshold for
	// attack types missing from the table instead of the fixed default.
	AutoThreshold bool
}

// ForType returns the decision threshold for a label.
func (t Thresholds) ForType(label string) float64 {
	if v, ok := t.ByType[label]; ok {
		return v
	}
	if t.AutoThreshold {
		return t.Binary
	}
	return defaultTypeThreshold
}

// Accept reports whether a scored label clears its type threshold.
func (t Thresholds) Accept(label string, score float64) bool {
	return score >= t.ForType(label)
}

// Validate checks threshold ranges and that every configured type key is a
// recognized attack label. Called at startup, never at request time.
func (t Thresholds) Validate() error {
	if t.Binary < 0 || t.Binary > 1 {
		return fmt.Errorf("binary threshold %v out of range [0,1]", t.Binary)
	}
	for label, v := range t.ByType {
		if !attack.Known(label) {
			return fmt.Errorf("threshold table: unsupported attack type %q", label)
		}
		if v < 0 || v > 1 {
			return fmt.Errorf("threshold for %s: %v out of range [0,1]", label, v)
		}
	}
	return nil
}

// Flags gate whole rule categories. A disabled flag makes its rules a no-op.
type Flags struct {
	WebshellBoost    bool
	DevOpsDampening  bool
	StaticFilter     bool
	AutoThreshold    bool
	PostUploadFilter bool
}

// DefaultFlags enables everything except the post-upload filter, which needs
// upload traffic to be routed through the detector to be useful.
func DefaultFlags() Flags {
	return Flags{
		WebshellBoost:   true,
		DevOpsDampening: true,
		StaticFilter:    true,
	}
}

// Factors are the numeric adjustments feature-flagged rules apply.
type Factors struct {
	// WebshellBoost is added to the score when webshell signatures match.
	WebshellBoost float64
	// DevOpsReduction multiplies the final score for recognized CI/CD and
	// monitoring path prefixes; SearchReduction does the same for search
	// endpoints. Both are re-checked against the type threshold afterwards.
	DevOpsReduction float64
	SearchReduction float64
}

// DefaultFactors returns the built-in adjustment factors.
func DefaultFactors() Factors {
	return Factors{
		WebshellBoost:   0.15,
		DevOpsReduction: 0.60,
		SearchReduction: 0.70,
	}
}

// Validate checks factor ranges.
func (f Factors) Validate() error {
	if f.WebshellBoost < 0 || f.WebshellBoost > 1 {
		return fmt.Errorf("webshell boost %v out of range [0,1]", f.WebshellBoost)
	}
	if f.DevOpsReduction <= 0 || f.DevOpsReduction > 1 {
		return fmt.Errorf("devops reduction %v out of range (0,1]", f.DevOpsReduction)
	}
	if f.SearchReduction <= 0 || f.SearchReduction > 1 {
		return fmt.Errorf("search reduction %v out of range (0,1]", f.SearchReduction)
	}
	return nil
}
