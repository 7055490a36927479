package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/colour.registry/internal/anchor"
	"github.com/banshee-data/colour.registry/internal/matching"
)

// DefaultConfigPath is the path to the canonical calibration defaults file.
const DefaultConfigPath = "config/calibration.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// ToleranceConfig is the per-axis tolerance given to seeded anchors.
type ToleranceConfig struct {
	Hue *float64 `json:"hue,omitempty" yaml:"hue,omitempty"`
	Sat *float64 `json:"sat,omitempty" yaml:"sat,omitempty"`
	Val *float64 `json:"val,omitempty" yaml:"val,omitempty"`
}

// CalibrationConfig holds the tunables of the relaxation pass, the sample
// pipeline and the palette seeder. Every field is optional; the Get*
// methods supply defaults for anything left out.
type CalibrationConfig struct {
	// Relaxation
	Threshold *float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	MaxPasses *int     `json:"max_passes,omitempty" yaml:"max_passes,omitempty"`
	Dampener  *float64 `json:"dampener,omitempty" yaml:"dampener,omitempty"`

	// Sample pipeline
	ProbeFraction  *float64 `json:"probe_fraction,omitempty" yaml:"probe_fraction,omitempty"`
	SampleDampener *float64 `json:"sample_dampener,omitempty" yaml:"sample_dampener,omitempty"`
	HistoryLimit   *int     `json:"history_limit,omitempty" yaml:"history_limit,omitempty"`

	// Seeding
	DefaultMaxDrift  *float64         `json:"default_max_drift,omitempty" yaml:"default_max_drift,omitempty"`
	DefaultTolerance *ToleranceConfig `json:"default_tolerance,omitempty" yaml:"default_tolerance,omitempty"`
	PoleRadius       *float64         `json:"pole_radius,omitempty" yaml:"pole_radius,omitempty"`

	CalibrateOnLoad *bool   `json:"calibrate_on_load,omitempty" yaml:"calibrate_on_load,omitempty"`
	Listen          *string `json:"listen,omitempty" yaml:"listen,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }

// EmptyCalibrationConfig returns a config with every field unset.
func EmptyCalibrationConfig() *CalibrationConfig {
	return &CalibrationConfig{}
}

// DefaultCalibrationConfig returns a config with every field set to its
// default, matching config/calibration.defaults.json.
func DefaultCalibrationConfig() *CalibrationConfig {
	return &CalibrationConfig{
		Threshold:       ptrFloat64(0.01),
		MaxPasses:       ptrInt(10),
		Dampener:        ptrFloat64(0.2),
		ProbeFraction:   ptrFloat64(0.05),
		SampleDampener:  ptrFloat64(0.2),
		HistoryLimit:    ptrInt(0),
		DefaultMaxDrift: ptrFloat64(anchor.DefaultMaxDrift),
		DefaultTolerance: &ToleranceConfig{
			Hue: ptrFloat64(10),
			Sat: ptrFloat64(10),
			Val: ptrFloat64(10),
		},
		PoleRadius:      ptrFloat64(0),
		CalibrateOnLoad: ptrBool(true),
		Listen:          ptrString(":8080"),
	}
}

// LoadCalibrationConfig loads a config from a .json, .yaml or .yml file
// no larger than 1MB. Omitted fields fall back to the Get* defaults.
func LoadCalibrationConfig(path string) (*CalibrationConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyCalibrationConfig()
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", cleanPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory
// or one of its parents. Panics if the file cannot be loaded, intended for
// test setup.
func MustLoadDefaultConfig() *CalibrationConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadCalibrationConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the values that are set.
func (c *CalibrationConfig) Validate() error {
	if c.Threshold != nil && *c.Threshold <= 0 {
		return fmt.Errorf("threshold must be positive, got %f", *c.Threshold)
	}
	if c.MaxPasses != nil && *c.MaxPasses < 1 {
		return fmt.Errorf("max_passes must be at least 1, got %d", *c.MaxPasses)
	}
	if c.Dampener != nil && (*c.Dampener <= 0 || *c.Dampener > 1) {
		return fmt.Errorf("dampener must be in (0, 1], got %f", *c.Dampener)
	}
	if c.ProbeFraction != nil && (*c.ProbeFraction <= 0 || *c.ProbeFraction > 1) {
		return fmt.Errorf("probe_fraction must be in (0, 1], got %f", *c.ProbeFraction)
	}
	if c.SampleDampener != nil && (*c.SampleDampener <= 0 || *c.SampleDampener > 1) {
		return fmt.Errorf("sample_dampener must be in (0, 1], got %f", *c.SampleDampener)
	}
	if c.HistoryLimit != nil && *c.HistoryLimit < 0 {
		return fmt.Errorf("history_limit must be non-negative, got %d", *c.HistoryLimit)
	}
	if c.DefaultMaxDrift != nil && *c.DefaultMaxDrift < 0 {
		return fmt.Errorf("default_max_drift must be non-negative, got %f", *c.DefaultMaxDrift)
	}
	if t := c.DefaultTolerance; t != nil {
		for name, v := range map[string]*float64{"hue": t.Hue, "sat": t.Sat, "val": t.Val} {
			if v != nil && *v < 0 {
				return fmt.Errorf("default_tolerance.%s must be non-negative, got %f", name, *v)
			}
		}
	}
	if c.PoleRadius != nil && *c.PoleRadius < 0 {
		return fmt.Errorf("pole_radius must be non-negative, got %f", *c.PoleRadius)
	}
	return nil
}

// GetThreshold returns the threshold value or the default.
func (c *CalibrationConfig) GetThreshold() float64 {
	if c.Threshold == nil {
		return 0.01
	}
	return *c.Threshold
}

// GetMaxPasses returns the max_passes value or the default.
func (c *CalibrationConfig) GetMaxPasses() int {
	if c.MaxPasses == nil {
		return 10
	}
	return *c.MaxPasses
}

// GetDampener returns the dampener value or the default.
func (c *CalibrationConfig) GetDampener() float64 {
	if c.Dampener == nil {
		return 0.2
	}
	return *c.Dampener
}

// GetProbeFraction returns the probe_fraction value or the default.
func (c *CalibrationConfig) GetProbeFraction() float64 {
	if c.ProbeFraction == nil {
		return anchor.DefaultProbeFraction
	}
	return *c.ProbeFraction
}

// GetSampleDampener returns the sample_dampener value or the default.
func (c *CalibrationConfig) GetSampleDampener() float64 {
	if c.SampleDampener == nil {
		return 0.2
	}
	return *c.SampleDampener
}

// GetHistoryLimit returns the history_limit value or the default (unbounded).
func (c *CalibrationConfig) GetHistoryLimit() int {
	if c.HistoryLimit == nil {
		return 0
	}
	return *c.HistoryLimit
}

// GetDefaultMaxDrift returns the default_max_drift value or the default.
func (c *CalibrationConfig) GetDefaultMaxDrift() float64 {
	if c.DefaultMaxDrift == nil {
		return anchor.DefaultMaxDrift
	}
	return *c.DefaultMaxDrift
}

// GetDefaultTolerance returns default_tolerance with 10 on any unset axis.
func (c *CalibrationConfig) GetDefaultTolerance() anchor.Tolerance {
	tol := anchor.Tolerance{Hue: 10, Sat: 10, Val: 10}
	if t := c.DefaultTolerance; t != nil {
		if t.Hue != nil {
			tol.Hue = *t.Hue
		}
		if t.Sat != nil {
			tol.Sat = *t.Sat
		}
		if t.Val != nil {
			tol.Val = *t.Val
		}
	}
	return tol
}

// GetPoleRadius returns the pole_radius value or the default (no locking).
func (c *CalibrationConfig) GetPoleRadius() float64 {
	if c.PoleRadius == nil {
		return 0
	}
	return *c.PoleRadius
}

// GetCalibrateOnLoad returns the calibrate_on_load value or the default.
func (c *CalibrationConfig) GetCalibrateOnLoad() bool {
	if c.CalibrateOnLoad == nil {
		return true
	}
	return *c.CalibrateOnLoad
}

// GetListen returns the listen address or the default.
func (c *CalibrationConfig) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return ":8080"
	}
	return *c.Listen
}

// CalibrateParams converts the relaxation settings.
func (c *CalibrationConfig) CalibrateParams() anchor.CalibrateParams {
	return anchor.CalibrateParams{
		Threshold: c.GetThreshold(),
		MaxPasses: c.GetMaxPasses(),
		Dampener:  c.GetDampener(),
	}
}

// MatcherOptions converts the sample pipeline settings. The recorder is
// left for the caller to attach.
func (c *CalibrationConfig) MatcherOptions() matching.Options {
	return matching.Options{
		ProbeFraction: c.GetProbeFraction(),
		Dampener:      c.GetSampleDampener(),
		HistoryLimit:  c.GetHistoryLimit(),
	}
}
