package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestEmptyTuningConfigDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	assert.Equal(t, 20.0, cfg.GetProcessNoise())
	assert.Equal(t, 1.0, cfg.GetMeasurementNoise())
	assert.Equal(t, [3]float64{1, 1, 1}, cfg.GetMeasurementNoiseDiag())
	assert.Equal(t, 1e12, cfg.GetMaxConditionNumber())
	assert.Equal(t, RuleEqual, cfg.GetAssociationRule())
	assert.True(t, cfg.GetSynthesizeCandidates())
	assert.False(t, cfg.GetSeedVelocity())
	assert.False(t, cfg.GetStrictTimeOrder())
	assert.Equal(t, 10, cfg.GetCSVRangeColumn())
	assert.Equal(t, 11, cfg.GetCSVAzimuthColumn())
	assert.Equal(t, 12, cfg.GetCSVElevationColumn())
	assert.Equal(t, 13, cfg.GetCSVTimeColumn())
	assert.True(t, cfg.GetCSVSkipHeader())
}

func TestDefaultTuningConfigMatchesAccessorDefaults(t *testing.T) {
	def := DefaultTuningConfig()
	empty := EmptyTuningConfig()

	require.NoError(t, def.Validate())
	assert.Equal(t, empty.GetProcessNoise(), def.GetProcessNoise())
	assert.Equal(t, empty.GetMeasurementNoiseDiag(), def.GetMeasurementNoiseDiag())
	assert.Equal(t, empty.GetAssociationRule(), def.GetAssociationRule())
	assert.Equal(t, empty.GetSynthesizeCandidates(), def.GetSynthesizeCandidates())
	assert.Equal(t, empty.GetCSVTimeColumn(), def.GetCSVTimeColumn())
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	assert.Equal(t, 20.0, cfg.GetProcessNoise())
	assert.Equal(t, RuleEqual, cfg.GetAssociationRule())
	assert.Equal(t, 13, cfg.GetCSVTimeColumn())
}

func TestLoadTuningConfig(t *testing.T) {
	path := writeConfig(t, "tuning.json", `{
  "process_noise": 0.5,
  "measurement_noise_diag": [1, 2, 3],
  "association_rule": "mahalanobis",
  "synthesize_candidates": false,
  "seed_velocity": true,
  "csv_time_column": 3
}`)

	cfg, err := LoadTuningConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.GetProcessNoise())
	assert.Equal(t, [3]float64{1, 2, 3}, cfg.GetMeasurementNoiseDiag())
	assert.Equal(t, RuleMahalanobis, cfg.GetAssociationRule())
	assert.False(t, cfg.GetSynthesizeCandidates())
	assert.True(t, cfg.GetSeedVelocity())
	assert.Equal(t, 3, cfg.GetCSVTimeColumn())
	// unspecified fields fall back
	assert.Equal(t, 10, cfg.GetCSVRangeColumn())
}

func TestLoadTuningConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"wrong extension", "tuning.yaml", `{}`, ".json extension"},
		{"bad json", "bad.json", `{"process_noise":`, "failed to parse config JSON"},
		{"negative process noise", "neg.json", `{"process_noise": -1}`, "process_noise"},
		{"negative diag", "diag.json", `{"measurement_noise_diag": [1, -2, 3]}`, "measurement_noise_diag[1]"},
		{"unknown rule", "rule.json", `{"association_rule": "hungarian"}`, "association_rule"},
		{"condition number", "cond.json", `{"max_condition_number": 0.5}`, "max_condition_number"},
		{"negative column", "col.json", `{"csv_time_column": -1}`, "csv_time_column"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.body)
			_, err := LoadTuningConfig(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadTuningConfigMissingFile(t *testing.T) {
	_, err := LoadTuningConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "failed to stat config file"))
}

func TestLoadTuningConfigTooLarge(t *testing.T) {
	big := `{"process_noise": 1` + strings.Repeat(" ", 1024*1024) + `}`
	path := writeConfig(t, "big.json", big)
	_, err := LoadTuningConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}
