package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/logsieve/logsieve/internal/attack"
)

func TestForType(t *testing.T) {
	th := Thresholds{Binary: 0.50, ByType: DefaultTypeThresholds()}

	assert.Equal(t, 0.35, th.ForType(attack.SQLInjection))
	assert.Equal(t, 0.40, th.ForType(attack.CommandInjection))

	// Unlisted type falls back to the fixed default.
	assert.Equal(t, 0.50, th.ForType(attack.Unclassified))

	// With auto-threshold the binary threshold is the fallback instead.
	th.Binary = 0.7
	th.AutoThreshold = true
	assert.Equal(t, 0.7, th.ForType(attack.Unclassified))
	assert.Equal(t, 0.35, th.ForType(attack.SQLInjection))
}

func TestAccept(t *testing.T) {
	th := Thresholds{Binary: 0.50, ByType: DefaultTypeThresholds()}

	assert.True(t, th.Accept(attack.SQLInjection, 0.35))
	assert.False(t, th.Accept(attack.SQLInjection, 0.34))
	assert.False(t, th.Accept(attack.XSS, 0.40))
}

func TestThresholdsValidate(t *testing.T) {
	ok := Thresholds{Binary: 0.5, ByType: DefaultTypeThresholds()}
	assert.NoError(t, ok.Validate())

	assert.Error(t, Thresholds{Binary: 1.5}.Validate())
	assert.Error(t, Thresholds{Binary: 0.5, ByType: map[string]float64{"ddos": 0.5}}.Validate())
	assert.Error(t, Thresholds{Binary: 0.5, ByType: map[string]float64{attack.XSS: -0.1}}.Validate())
}

func TestFactorsValidate(t *testing.T) {
	assert.NoError(t, DefaultFactors().Validate())

	bad := DefaultFactors()
	bad.WebshellBoost = 1.5
	assert.Error(t, bad.Validate())

	bad = DefaultFactors()
	bad.DevOpsReduction = 0
	assert.Error(t, bad.Validate())

	bad = DefaultFactors()
	bad.SearchReduction = 1.2
	assert.Error(t, bad.Validate())
}

func TestDefaultFlags(t *testing.T) {
	f := DefaultFlags()
	assert.True(t, f.WebshellBoost)
	assert.True(t, f.DevOpsDampening)
	assert.True(t, f.StaticFilter)
	assert.False(t, f.AutoThreshold)
	assert.False(t, f.PostUploadFilter)
}
