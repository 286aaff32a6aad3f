package stats

import (
	"fmt"
	"math"
	"time"

	"issuemetrics/internal/metrics"

	"github.com/rs/zerolog/log"
)

// AnomalyOptions configures a recent-vs-baseline comparison.
// Start from DefaultAnomalyOptions; zero thresholds are taken literally.
type AnomalyOptions struct {
	RecentDays      int `json:"recentDays" yaml:"recent_days" validate:"gt=0"`
	BaselineDays    int `json:"baselineDays" yaml:"baseline_days" validate:"gt=0"`
	BaselineGapDays int `json:"baselineGapDays" yaml:"baseline_gap_days" validate:"gte=0"`
	// ReferenceDate anchors the recent window; zero means now.
	ReferenceDate time.Time `json:"referenceDate" yaml:"-"`

	ZScoreThreshold            float64 `json:"zScoreThreshold" yaml:"z_score_threshold" validate:"gte=0"`
	RelativeChangeThreshold    float64 `json:"relativeChangeThreshold" yaml:"relative_change_threshold" validate:"gte=0"`
	MinBaselineSampleSize      int     `json:"minBaselineSampleSize" yaml:"min_baseline_sample_size" validate:"gte=0"`
	MinRecentSampleSize        int     `json:"minRecentSampleSize" yaml:"min_recent_sample_size" validate:"gte=0"`
	IQRRelativeChangeThreshold float64 `json:"iqrRelativeChangeThreshold" yaml:"iqr_relative_change_threshold" validate:"gte=0"`
	QuartileShiftThreshold     float64 `json:"quartileShiftThreshold" yaml:"quartile_shift_threshold" validate:"gte=0"`
	SkewnessChangeThreshold    float64 `json:"skewnessChangeThreshold" yaml:"skewness_change_threshold" validate:"gte=0"`
	KurtosisChangeThreshold    float64 `json:"kurtosisChangeThreshold" yaml:"kurtosis_change_threshold" validate:"gte=0"`
	OutlierCountDiffThreshold  int     `json:"outlierCountDiffThreshold" yaml:"outlier_count_diff_threshold" validate:"gte=0"`

	// Statistics configures the outlier counts computed for each window.
	Statistics DescriptiveOptions `json:"statistics" yaml:"statistics"`
}

// DefaultAnomalyOptions returns the standard thresholds for the given window lengths.
func DefaultAnomalyOptions(recentDays, baselineDays int) AnomalyOptions {
	return AnomalyOptions{
		RecentDays:                 recentDays,
		BaselineDays:               baselineDays,
		ZScoreThreshold:            2,
		RelativeChangeThreshold:    0.3,
		MinBaselineSampleSize:      5,
		MinRecentSampleSize:        3,
		IQRRelativeChangeThreshold: 0.5,
		QuartileShiftThreshold:     0.5,
		SkewnessChangeThreshold:    1,
		KurtosisChangeThreshold:    2,
		OutlierCountDiffThreshold:  3,
		Statistics:                 DefaultDescriptiveOptions(),
	}
}

// Validate rejects window lengths and thresholds that can never be computed.
func (o AnomalyOptions) Validate() error {
	return validateOptions(o)
}

// Direction is the sign of the change in a metric's central value.
type Direction string

const (
	Increase  Direction = "increase"
	Decrease  Direction = "decrease"
	Unchanged Direction = "none"
)

// SignalKind names one of the anomaly heuristics.
type SignalKind string

const (
	SignalZScore           SignalKind = "z_score"
	SignalRelativeChange   SignalKind = "relative_change"
	SignalZeroVariance     SignalKind = "zero_variance_baseline"
	SignalIQRChange        SignalKind = "iqr_change"
	SignalQuartileShift    SignalKind = "quartile_shift"
	SignalShapeChange      SignalKind = "shape_change"
	SignalOutlierCountDiff SignalKind = "outlier_count_change"
)

const (
	ReasonInsufficientData = "insufficient data"
	ReasonWithinRange      = "within expected range"
)

// PeriodSnapshot is the subset of one window's statistics used in a comparison.
type PeriodSnapshot struct {
	Count        int      `json:"count"`
	Mean         *float64 `json:"mean"`
	Median       *float64 `json:"median"`
	StdDev       *float64 `json:"stddev"`
	P10          *float64 `json:"p10"`
	P25          *float64 `json:"p25"`
	P75          *float64 `json:"p75"`
	P90          *float64 `json:"p90"`
	IQR          *float64 `json:"iqr"`
	Skewness     *float64 `json:"skewness"`
	Kurtosis     *float64 `json:"kurtosis"`
	OutlierCount int      `json:"outlierCount"`
}

// MetricAnomalySummary is the verdict for one metric.
type MetricAnomalySummary struct {
	Metric         metrics.Key    `json:"metric"`
	IsAnomaly      bool           `json:"isAnomaly"`
	Direction      Direction      `json:"direction"`
	Reasons        []string       `json:"reasons"`
	Signals        []SignalKind   `json:"signals,omitempty"`
	AbsoluteChange *float64       `json:"absoluteChange"`
	RelativeChange *float64       `json:"relativeChange"`
	ZScore         *float64       `json:"zScore"`
	Baseline       PeriodSnapshot `json:"baseline"`
	Recent         PeriodSnapshot `json:"recent"`
	BaselineCount  int            `json:"baselineCount"`
	RecentCount    int            `json:"recentCount"`
}

// AnomalyResult is the outcome of comparing the recent window against the baseline.
type AnomalyResult struct {
	ReferenceDate       time.Time                            `json:"referenceDate"`
	RecentRange         metrics.TimeRange                    `json:"recentRange"`
	BaselineRange       metrics.TimeRange                    `json:"baselineRange"`
	RecentRecordCount   int                                  `json:"recentRecordCount"`
	BaselineRecordCount int                                  `json:"baselineRecordCount"`
	RecentStatistics    StatisticsResult                     `json:"recentStatistics"`
	BaselineStatistics  StatisticsResult                     `json:"baselineStatistics"`
	Metrics             map[metrics.Key]MetricAnomalySummary `json:"metrics"`
}

// AnomalousKeys lists the metrics flagged as anomalous, in canonical key order.
func (r *AnomalyResult) AnomalousKeys() []metrics.Key {
	var out []metrics.Key
	for _, k := range metrics.AllKeys() {
		if r.Metrics[k].IsAnomaly {
			out = append(out, k)
		}
	}
	return out
}

// AnomalyDetector compares a recent window of records against a baseline window.
// The date-range filter is injected; the detector does not own record selection.
type AnomalyDetector struct {
	filter metrics.RangeFilter
	now    func() time.Time
}

// NewAnomalyDetector creates a detector. A nil filter selects metrics.FilterByTimestamp.
func NewAnomalyDetector(filter metrics.RangeFilter) *AnomalyDetector {
	if filter == nil {
		filter = metrics.FilterByTimestamp
	}
	return &AnomalyDetector{
		filter: filter,
		now:    time.Now,
	}
}

// DetectAnomalies runs a detector with the default timestamp filter.
func DetectAnomalies(records []metrics.Record, opts AnomalyOptions) (*AnomalyResult, error) {
	return NewAnomalyDetector(nil).Detect(records, opts)
}

// Detect partitions records into the two windows, describes each, and compares every metric.
// Invalid options fail before any computation.
func (d *AnomalyDetector) Detect(records []metrics.Record, opts AnomalyOptions) (*AnomalyResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	ref := opts.ReferenceDate
	if ref.IsZero() {
		ref = d.now()
	}
	windows := BuildComparisonWindows(ref, opts.RecentDays, opts.BaselineDays, opts.BaselineGapDays)

	recentRecords := d.filter(records, windows.Recent)
	baselineRecords := d.filter(records, windows.Baseline)

	result := &AnomalyResult{
		ReferenceDate:       ref,
		RecentRange:         windows.Recent,
		BaselineRange:       windows.Baseline,
		RecentRecordCount:   len(recentRecords),
		BaselineRecordCount: len(baselineRecords),
		RecentStatistics:    Describe(recentRecords, opts.Statistics),
		BaselineStatistics:  Describe(baselineRecords, opts.Statistics),
		Metrics:             make(map[metrics.Key]MetricAnomalySummary, len(metrics.AllKeys())),
	}

	for _, key := range metrics.AllKeys() {
		summary := CompareWindows(key, result.BaselineStatistics[key], result.RecentStatistics[key], opts)
		result.Metrics[key] = summary

		if summary.IsAnomaly {
			log.Debug().
				Str("metric", string(key)).
				Str("direction", string(summary.Direction)).
				Strs("reasons", summary.Reasons).
				Msg("Anomaly detected")
		}
	}

	log.Debug().
		Time("recentStart", windows.Recent.Start).
		Time("baselineStart", windows.Baseline.Start).
		Int("recent", len(recentRecords)).
		Int("baseline", len(baselineRecords)).
		Msg("Anomaly windows compared")

	return result, nil
}

// CompareWindows applies the anomaly heuristics to one metric's baseline and recent statistics.
// Any firing heuristic marks the metric anomalous; the heuristics are not corrected for
// multiple comparisons.
func CompareWindows(key metrics.Key, baseline, recent MetricStatistics, opts AnomalyOptions) MetricAnomalySummary {
	s := MetricAnomalySummary{
		Metric:        key,
		Direction:     Unchanged,
		Baseline:      snapshot(baseline),
		Recent:        snapshot(recent),
		BaselineCount: baseline.Summary.Count,
		RecentCount:   recent.Summary.Count,
	}

	b, r := s.Baseline, s.Recent
	baseCentral := centralValue(b)
	recentCentral := centralValue(r)
	if baseCentral != nil && recentCentral != nil {
		change := *recentCentral - *baseCentral
		s.AbsoluteChange = ptr(change)
		if *baseCentral != 0 {
			s.RelativeChange = ptr(change / math.Abs(*baseCentral))
		}
		switch {
		case change > 0:
			s.Direction = Increase
		case change < 0:
			s.Direction = Decrease
		}
	}
	if b.Mean != nil && r.Mean != nil && b.StdDev != nil && *b.StdDev > 0 {
		s.ZScore = ptr((*r.Mean - *b.Mean) / *b.StdDev)
	}

	// 1. Insufficient data guard
	if s.BaselineCount < opts.MinBaselineSampleSize || s.RecentCount < opts.MinRecentSampleSize {
		s.Reasons = []string{ReasonInsufficientData}
		return s
	}

	fire := func(kind SignalKind, reason string) {
		s.IsAnomaly = true
		s.Reasons = append(s.Reasons, reason)
		if len(s.Signals) == 0 || s.Signals[len(s.Signals)-1] != kind {
			s.Signals = append(s.Signals, kind)
		}
	}

	// 2. Z-score of the recent mean against the baseline spread
	if s.ZScore != nil && math.Abs(*s.ZScore) >= opts.ZScoreThreshold {
		fire(SignalZScore, fmt.Sprintf("z-score %.2f reaches threshold %.2f", *s.ZScore, opts.ZScoreThreshold))
	}

	// 3. Relative change of the central value
	if s.RelativeChange != nil && math.Abs(*s.RelativeChange) >= opts.RelativeChangeThreshold {
		fire(SignalRelativeChange, fmt.Sprintf("central value changed by %.1f%% (threshold %.1f%%)", *s.RelativeChange*100, opts.RelativeChangeThreshold*100))
	}

	// 4. Any movement away from a constant baseline
	if b.StdDev != nil && *b.StdDev == 0 && s.AbsoluteChange != nil && *s.AbsoluteChange != 0 {
		fire(SignalZeroVariance, fmt.Sprintf("baseline has zero variance and central value moved by %g", *s.AbsoluteChange))
	}

	// 5. Spread (IQR) change
	if b.IQR != nil && r.IQR != nil {
		if *b.IQR == 0 {
			if *r.IQR != 0 {
				fire(SignalIQRChange, fmt.Sprintf("IQR grew from 0 to %g", *r.IQR))
			}
		} else if rel := (*r.IQR - *b.IQR) / *b.IQR; math.Abs(rel) >= opts.IQRRelativeChangeThreshold {
			fire(SignalIQRChange, fmt.Sprintf("IQR changed by %.1f%% (threshold %.1f%%)", rel*100, opts.IQRRelativeChangeThreshold*100))
		}
	}

	// 6. Quartile shift, normalized by the baseline spread
	if b.P25 != nil && b.P75 != nil && r.P25 != nil && r.P75 != nil {
		q1Shift := *r.P25 - *b.P25
		q3Shift := *r.P75 - *b.P75
		scale := quartileScale(b, baseCentral)
		if scale > 0 {
			n1, n3 := math.Abs(q1Shift)/scale, math.Abs(q3Shift)/scale
			if n1 > opts.QuartileShiftThreshold || n3 > opts.QuartileShiftThreshold {
				fire(SignalQuartileShift, fmt.Sprintf("quartiles shifted by %.2f (Q1) and %.2f (Q3) baseline spreads (threshold %.2f)", n1, n3, opts.QuartileShiftThreshold))
			}
		} else if q1Shift != 0 || q3Shift != 0 {
			fire(SignalQuartileShift, fmt.Sprintf("quartiles moved from a degenerate baseline (Q1 %+g, Q3 %+g)", q1Shift, q3Shift))
		}
	}

	// 7. Shape change
	if b.Skewness != nil && r.Skewness != nil {
		if delta := *r.Skewness - *b.Skewness; math.Abs(delta) >= opts.SkewnessChangeThreshold {
			fire(SignalShapeChange, fmt.Sprintf("skewness changed by %.2f (threshold %.2f)", delta, opts.SkewnessChangeThreshold))
		}
	}
	if b.Kurtosis != nil && r.Kurtosis != nil {
		if delta := *r.Kurtosis - *b.Kurtosis; math.Abs(delta) >= opts.KurtosisChangeThreshold {
			fire(SignalShapeChange, fmt.Sprintf("kurtosis changed by %.2f (threshold %.2f)", delta, opts.KurtosisChangeThreshold))
		}
	}

	// 8. Outlier count change
	if delta := r.OutlierCount - b.OutlierCount; absInt(delta) >= opts.OutlierCountDiffThreshold {
		fire(SignalOutlierCountDiff, fmt.Sprintf("outlier count changed by %d (threshold %d)", delta, opts.OutlierCountDiffThreshold))
	}

	if !s.IsAnomaly {
		s.Reasons = []string{ReasonWithinRange}
	}
	return s
}

func snapshot(ms MetricStatistics) PeriodSnapshot {
	return PeriodSnapshot{
		Count:        ms.Summary.Count,
		Mean:         ms.Summary.Mean,
		Median:       ms.Summary.Median,
		StdDev:       ms.Summary.StdDev,
		P10:          ms.Distribution.P10,
		P25:          ms.Distribution.P25,
		P75:          ms.Distribution.P75,
		P90:          ms.Distribution.P90,
		IQR:          ms.Distribution.IQR,
		Skewness:     ms.Distribution.Skewness,
		Kurtosis:     ms.Distribution.Kurtosis,
		OutlierCount: ms.Outliers.IQR.DetectedCount + ms.Outliers.ZScore.DetectedCount,
	}
}

// centralValue is the mean, falling back to the median.
func centralValue(p PeriodSnapshot) *float64 {
	if p.Mean != nil {
		return p.Mean
	}
	return p.Median
}

// quartileScale picks the baseline IQR, then |Q3-Q1|, then |central value|. Zero means no scale.
func quartileScale(b PeriodSnapshot, central *float64) float64 {
	if b.IQR != nil && *b.IQR != 0 {
		return math.Abs(*b.IQR)
	}
	if spread := math.Abs(*b.P75 - *b.P25); spread != 0 {
		return spread
	}
	if central != nil && *central != 0 {
		return math.Abs(*central)
	}
	return 0
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
