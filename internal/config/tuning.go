package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// Association rule names accepted by association_rule.
const (
	RuleEqual       = "equal"
	RuleMahalanobis = "mahalanobis"
)

// TuningConfig holds the parameters of one estimation run. Every field is
// optional; the Get* accessors fall back to the reference defaults, so a
// partial JSON file is safe. Values are read once at construction and never
// re-read while a run is in progress.
type TuningConfig struct {
	// Filter params
	ProcessNoise         *float64    `json:"process_noise,omitempty"`
	MeasurementNoise     *float64    `json:"measurement_noise,omitempty"`
	MeasurementNoiseDiag *[3]float64 `json:"measurement_noise_diag,omitempty"` // overrides measurement_noise per axis
	MaxConditionNumber   *float64    `json:"max_condition_number,omitempty"`

	// Loop params
	AssociationRule      *string `json:"association_rule,omitempty"`
	SynthesizeCandidates *bool   `json:"synthesize_candidates,omitempty"`
	SeedVelocity         *bool   `json:"seed_velocity,omitempty"`
	StrictTimeOrder      *bool   `json:"strict_time_order,omitempty"`

	// CSV ingestion params (0-based column indices)
	CSVRangeColumn     *int  `json:"csv_range_column,omitempty"`
	CSVAzimuthColumn   *int  `json:"csv_azimuth_column,omitempty"`
	CSVElevationColumn *int  `json:"csv_elevation_column,omitempty"`
	CSVTimeColumn      *int  `json:"csv_time_column,omitempty"`
	CSVSkipHeader      *bool `json:"csv_skip_header,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated
// with its default value.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		ProcessNoise:         ptrFloat64(20),
		MeasurementNoise:     ptrFloat64(1.0),
		MaxConditionNumber:   ptrFloat64(1e12),
		AssociationRule:      ptrString(RuleEqual),
		SynthesizeCandidates: ptrBool(true),
		SeedVelocity:         ptrBool(false),
		StrictTimeOrder:      ptrBool(false),
		CSVRangeColumn:       ptrInt(10),
		CSVAzimuthColumn:     ptrInt(11),
		CSVElevationColumn:   ptrInt(12),
		CSVTimeColumn:        ptrInt(13),
		CSVSkipHeader:        ptrBool(true),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be at most 1MB. Fields omitted
// from the JSON file fall back to their defaults.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents up to the repository root. Panics if the file
// cannot be loaded; intended for tests.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/radartrack/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.ProcessNoise != nil {
		if *c.ProcessNoise < 0 || !isFinite(*c.ProcessNoise) {
			return fmt.Errorf("process_noise must be a finite non-negative number, got %v", *c.ProcessNoise)
		}
	}

	if c.MeasurementNoise != nil {
		if *c.MeasurementNoise < 0 || !isFinite(*c.MeasurementNoise) {
			return fmt.Errorf("measurement_noise must be a finite non-negative number, got %v", *c.MeasurementNoise)
		}
	}

	if c.MeasurementNoiseDiag != nil {
		for i, v := range c.MeasurementNoiseDiag {
			if v < 0 || !isFinite(v) {
				return fmt.Errorf("measurement_noise_diag[%d] must be a finite non-negative number, got %v", i, v)
			}
		}
	}

	if c.MaxConditionNumber != nil && *c.MaxConditionNumber <= 1 {
		return fmt.Errorf("max_condition_number must be greater than 1, got %v", *c.MaxConditionNumber)
	}

	if c.AssociationRule != nil {
		switch *c.AssociationRule {
		case RuleEqual, RuleMahalanobis:
		default:
			return fmt.Errorf("association_rule must be %q or %q, got %q", RuleEqual, RuleMahalanobis, *c.AssociationRule)
		}
	}

	for name, col := range map[string]*int{
		"csv_range_column":     c.CSVRangeColumn,
		"csv_azimuth_column":   c.CSVAzimuthColumn,
		"csv_elevation_column": c.CSVElevationColumn,
		"csv_time_column":      c.CSVTimeColumn,
	} {
		if col != nil && *col < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", name, *col)
		}
	}

	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// GetProcessNoise returns the process_noise value or the default.
func (c *TuningConfig) GetProcessNoise() float64 {
	if c.ProcessNoise == nil {
		return 20
	}
	return *c.ProcessNoise
}

// GetMeasurementNoise returns the measurement_noise value or the default.
func (c *TuningConfig) GetMeasurementNoise() float64 {
	if c.MeasurementNoise == nil {
		return 1.0
	}
	return *c.MeasurementNoise
}

// GetMeasurementNoiseDiag returns the per-axis measurement noise variances.
// When measurement_noise_diag is unset, measurement_noise is used on every axis.
func (c *TuningConfig) GetMeasurementNoiseDiag() [3]float64 {
	if c.MeasurementNoiseDiag != nil {
		return *c.MeasurementNoiseDiag
	}
	r := c.GetMeasurementNoise()
	return [3]float64{r, r, r}
}

// GetMaxConditionNumber returns the max_condition_number value or the default.
func (c *TuningConfig) GetMaxConditionNumber() float64 {
	if c.MaxConditionNumber == nil {
		return 1e12
	}
	return *c.MaxConditionNumber
}

// GetAssociationRule returns the association_rule value or the default.
func (c *TuningConfig) GetAssociationRule() string {
	if c.AssociationRule == nil || *c.AssociationRule == "" {
		return RuleEqual
	}
	return *c.AssociationRule
}

// GetSynthesizeCandidates returns the synthesize_candidates value or the default.
func (c *TuningConfig) GetSynthesizeCandidates() bool {
	if c.SynthesizeCandidates == nil {
		return true
	}
	return *c.SynthesizeCandidates
}

// GetSeedVelocity returns the seed_velocity value or the default.
func (c *TuningConfig) GetSeedVelocity() bool {
	if c.SeedVelocity == nil {
		return false
	}
	return *c.SeedVelocity
}

// GetStrictTimeOrder returns the strict_time_order value or the default.
func (c *TuningConfig) GetStrictTimeOrder() bool {
	if c.StrictTimeOrder == nil {
		return false
	}
	return *c.StrictTimeOrder
}

// GetCSVRangeColumn returns the csv_range_column value or the default.
func (c *TuningConfig) GetCSVRangeColumn() int {
	if c.CSVRangeColumn == nil {
		return 10
	}
	return *c.CSVRangeColumn
}

// GetCSVAzimuthColumn returns the csv_azimuth_column value or the default.
func (c *TuningConfig) GetCSVAzimuthColumn() int {
	if c.CSVAzimuthColumn == nil {
		return 11
	}
	return *c.CSVAzimuthColumn
}

// GetCSVElevationColumn returns the csv_elevation_column value or the default.
func (c *TuningConfig) GetCSVElevationColumn() int {
	if c.CSVElevationColumn == nil {
		return 12
	}
	return *c.CSVElevationColumn
}

// GetCSVTimeColumn returns the csv_time_column value or the default.
func (c *TuningConfig) GetCSVTimeColumn() int {
	if c.CSVTimeColumn == nil {
		return 13
	}
	return *c.CSVTimeColumn
}

// GetCSVSkipHeader returns the csv_skip_header value or the default.
func (c *TuningConfig) GetCSVSkipHeader() bool {
	if c.CSVSkipHeader == nil {
		return true
	}
	return *c.CSVSkipHeader
}
