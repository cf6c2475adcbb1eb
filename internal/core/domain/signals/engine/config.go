// internal/core/domain/signals/engine/config.go
package engine

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Weights struct {
	Bias        float64 `yaml:"bias"`
	Stability   float64 `yaml:"stability"`
	WinRatio    float64 `yaml:"win_ratio"`
	Consistency float64 `yaml:"consistency"`
}

func (w Weights) Sum() float64 {
	return w.Bias + w.Stability + w.WinRatio + w.Consistency
}

// Config tunes the scoring core. Zero values are invalid; start from DefaultConfig.
type Config struct {
	MinHistory int `yaml:"min_history"`
	WindowSize int `yaml:"window_size"`
	SubWindow  int `yaml:"sub_window"`

	Weights Weights `yaml:"weights"`

	MediumConfidence float64 `yaml:"medium_confidence"`
	HighConfidence   float64 `yaml:"high_confidence"`

	TrendThreshold     float64       `yaml:"trend_threshold"`
	StabilityThreshold float64       `yaml:"stability_threshold"`
	MaxAvgInterval     time.Duration `yaml:"max_avg_interval"`

	// Direction rule: the boundary digit at most BoundaryMax while the rest
	// of the band holds at least BandMin.
	BoundaryMax float64 `yaml:"boundary_max"`
	BandMin     float64 `yaml:"band_min"`

	WinHistory        int `yaml:"win_history"`
	ConsistencyCycles int `yaml:"consistency_cycles"`

	BaseRuns int `yaml:"base_runs"`
	HighRuns int `yaml:"high_runs"`
}

func DefaultConfig() Config {
	return Config{
		MinHistory: 100,
		WindowSize: 100,
		SubWindow:  20,
		Weights: Weights{
			Bias:        0.40,
			Stability:   0.25,
			WinRatio:    0.15,
			Consistency: 0.20,
		},
		MediumConfidence:   0.65,
		HighConfidence:     0.80,
		TrendThreshold:     0.70,
		StabilityThreshold: 0.5,
		MaxAvgInterval:     1200 * time.Millisecond,
		BoundaryMax:        0.07,
		BandMin:            0.93,
		WinHistory:         5,
		ConsistencyCycles:  3,
		BaseRuns:           2,
		HighRuns:           3,
	}
}

func (c Config) Validate() error {
	var errs []error
	if math.Abs(c.Weights.Sum()-1) > 1e-9 {
		errs = append(errs, fmt.Errorf("weights must sum to 1, got %.4f", c.Weights.Sum()))
	}
	if c.WindowSize <= 0 || c.MinHistory < c.WindowSize {
		errs = append(errs, fmt.Errorf("min_history (%d) must be >= window_size (%d) > 0", c.MinHistory, c.WindowSize))
	}
	if c.SubWindow <= 0 || c.SubWindow > c.WindowSize {
		errs = append(errs, fmt.Errorf("sub_window must be in (0, %d]", c.WindowSize))
	}
	if c.MediumConfidence <= 0 || c.HighConfidence < c.MediumConfidence || c.HighConfidence > 1 {
		errs = append(errs, errors.New("confidence thresholds must satisfy 0 < medium <= high <= 1"))
	}
	if c.MaxAvgInterval <= 0 {
		errs = append(errs, errors.New("max_avg_interval must be positive"))
	}
	if c.WinHistory <= 0 || c.ConsistencyCycles <= 0 {
		errs = append(errs, errors.New("win_history and consistency_cycles must be positive"))
	}
	return errors.Join(errs...)
}

// LoadConfig overlays the YAML file at path on DefaultConfig. An empty path
// returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read engine config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse engine config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid engine config %s: %w", path, err)
	}
	return cfg, nil
}
