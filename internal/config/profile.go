package config

import (
	"fmt"
	"os"
	"time"

	"issuemetrics/internal/stats"

	"gopkg.in/yaml.v3"
)

// AnalysisProfile holds the default thresholds used when a command does not override them.
type AnalysisProfile struct {
	Descriptive stats.DescriptiveOptions `yaml:"descriptive"`
	Correlation stats.CorrelationOptions `yaml:"correlation"`
	Anomaly     stats.AnomalyOptions     `yaml:"anomaly"`
	// TrendBucket is the bucket size for trend charts: day, week or month.
	TrendBucket string `yaml:"trend_bucket"`
	// TopFactors is how many correlated metrics a report lists per target.
	TopFactors int `yaml:"top_factors"`
}

// DefaultProfile compares the last two weeks against the eight weeks before them.
func DefaultProfile() AnalysisProfile {
	return AnalysisProfile{
		Descriptive: stats.DefaultDescriptiveOptions(),
		Correlation: stats.DefaultCorrelationOptions(),
		Anomaly:     stats.DefaultAnomalyOptions(14, 56),
		TrendBucket: "week",
		TopFactors:  3,
	}
}

// LoadProfile reads a YAML profile. Keys absent from the file keep their default values.
func LoadProfile(path string) (*AnalysisProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", path, err)
	}

	profile := DefaultProfile()
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	return &profile, nil
}

// Validate checks the anomaly thresholds and the trend bucket.
func (p AnalysisProfile) Validate() error {
	if err := p.Anomaly.Validate(); err != nil {
		return err
	}
	switch p.TrendBucket {
	case "day", "week", "month":
	default:
		return fmt.Errorf("%w: trend_bucket must be day, week or month (got %q)", stats.ErrInvalidConfiguration, p.TrendBucket)
	}
	if p.TopFactors < 0 {
		return fmt.Errorf("%w: top_factors must not be negative", stats.ErrInvalidConfiguration)
	}
	return nil
}

// DescriptiveOptions returns the outlier thresholds for a describe call.
func (p AnalysisProfile) DescriptiveOptions() stats.DescriptiveOptions {
	return p.Descriptive
}

// CorrelationOptions returns the extraction policy for a correlate call.
func (p AnalysisProfile) CorrelationOptions() stats.CorrelationOptions {
	return p.Correlation
}

// AnomalyOptions returns a fresh option set anchored at ref. A zero ref means now.
func (p AnalysisProfile) AnomalyOptions(ref time.Time) stats.AnomalyOptions {
	opts := p.Anomaly
	opts.ReferenceDate = ref
	return opts
}
