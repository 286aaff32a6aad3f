package stats

import (
	"math"

	"issuemetrics/internal/metrics"

	mstats "github.com/montanaflynn/stats"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
)

// DescriptiveOptions configures outlier detection for Describe.
type DescriptiveOptions struct {
	ZScoreThreshold float64 `json:"zScoreThreshold" yaml:"z_score_threshold"`
	IQRMultiplier   float64 `json:"iqrMultiplier" yaml:"iqr_multiplier"`
}

// DefaultDescriptiveOptions returns the standard thresholds (|z|>3, 1.5×IQR fences).
func DefaultDescriptiveOptions() DescriptiveOptions {
	return DescriptiveOptions{
		ZScoreThreshold: 3,
		IQRMultiplier:   1.5,
	}
}

func (o DescriptiveOptions) withDefaults() DescriptiveOptions {
	d := DefaultDescriptiveOptions()
	if o.ZScoreThreshold > 0 {
		d.ZScoreThreshold = o.ZScoreThreshold
	}
	if o.IQRMultiplier > 0 {
		d.IQRMultiplier = o.IQRMultiplier
	}
	return d
}

// Summary holds central tendency and spread. Nil fields were not computable for the sample size.
type Summary struct {
	Count                  int      `json:"count"`
	Mean                   *float64 `json:"mean"`
	Median                 *float64 `json:"median"`
	Mode                   *float64 `json:"mode"`
	Variance               *float64 `json:"variance"`
	StdDev                 *float64 `json:"stddev"`
	CoefficientOfVariation *float64 `json:"coefficientOfVariation"`
}

// Distribution holds order statistics and shape.
type Distribution struct {
	Min      *float64 `json:"min"`
	Max      *float64 `json:"max"`
	P10      *float64 `json:"p10"`
	P25      *float64 `json:"p25"`
	P75      *float64 `json:"p75"`
	P90      *float64 `json:"p90"`
	Range    *float64 `json:"range"`
	IQR      *float64 `json:"iqr"`
	Skewness *float64 `json:"skewness"`
	Kurtosis *float64 `json:"kurtosis"`
}

// OutlierSet is the result of one outlier detection method. Indices point into Samples.Values.
type OutlierSet struct {
	DetectedCount int      `json:"detectedCount"`
	Threshold     *float64 `json:"threshold"`
	LowerBound    *float64 `json:"lowerBound,omitempty"`
	UpperBound    *float64 `json:"upperBound,omitempty"`
	Indices       []int    `json:"indices,omitempty"`
}

// Outliers groups the IQR-fence and z-score detections.
type Outliers struct {
	IQR    OutlierSet `json:"iqr"`
	ZScore OutlierSet `json:"zscore"`
}

// Samples exposes the values a metric's statistics were computed from.
type Samples struct {
	Values       []float64 `json:"values"`
	IssueNumbers []int     `json:"issueNumbers"`
	MissingCount int       `json:"missingCount"`
	MinIndex     *int      `json:"minIndex"`
	MaxIndex     *int      `json:"maxIndex"`
}

// MetricStatistics is the full descriptive result for one metric.
type MetricStatistics struct {
	Metric       metrics.Key  `json:"metric"`
	Summary      Summary      `json:"summary"`
	Distribution Distribution `json:"distribution"`
	Outliers     Outliers     `json:"outliers"`
	Samples      Samples      `json:"samples"`
}

// StatisticsResult maps every metric key to its statistics.
type StatisticsResult map[metrics.Key]MetricStatistics

// Describe computes descriptive statistics for every metric key over the records.
// Only successful results contribute values; failures and absent keys count as missing.
// It never fails: statistics whose preconditions are unmet are left nil.
func Describe(records []metrics.Record, opts DescriptiveOptions) StatisticsResult {
	opts = opts.withDefaults()
	result := make(StatisticsResult, len(metrics.AllKeys()))

	for _, key := range metrics.AllKeys() {
		var values []float64
		var issues []int
		missing := 0
		for _, r := range records {
			if v, ok := r.Value(key); ok {
				values = append(values, v)
				issues = append(issues, r.IssueNumber)
			} else {
				missing++
			}
		}

		ms := DescribeValues(values, opts)
		ms.Metric = key
		ms.Samples.IssueNumbers = issues
		ms.Samples.MissingCount = missing
		result[key] = ms

		log.Debug().
			Str("metric", string(key)).
			Int("count", len(values)).
			Int("missing", missing).
			Msg("Described metric")
	}

	return result
}

// DescribeValues computes descriptive statistics for a single sample.
func DescribeValues(values []float64, opts DescriptiveOptions) MetricStatistics {
	opts = opts.withDefaults()
	n := len(values)

	ms := MetricStatistics{
		Summary: Summary{Count: n},
		Samples: Samples{Values: append([]float64(nil), values...)},
	}
	if n == 0 {
		return ms
	}

	sorted := sortedCopy(values)

	// 1. Summary
	mean, _ := mstats.Mean(values)
	median, _ := mstats.Median(values)
	ms.Summary.Mean = ptr(mean)
	ms.Summary.Median = ptr(median)
	if mode, ok := CalculateMode(values); ok {
		ms.Summary.Mode = ptr(mode)
	}
	if variance, ok := SampleVariance(values); ok {
		sd := math.Sqrt(variance)
		ms.Summary.Variance = ptr(variance)
		ms.Summary.StdDev = ptr(sd)
		if mean != 0 {
			ms.Summary.CoefficientOfVariation = ptr(sd / mean)
		}
	}

	// 2. Distribution
	minIdx := floats.MinIdx(values)
	maxIdx := floats.MaxIdx(values)
	ms.Samples.MinIndex = ptr(minIdx)
	ms.Samples.MaxIndex = ptr(maxIdx)

	d := &ms.Distribution
	d.Min = ptr(values[minIdx])
	d.Max = ptr(values[maxIdx])
	d.Range = ptr(values[maxIdx] - values[minIdx])
	d.P10 = quantilePtr(sorted, 0.10)
	d.P25 = quantilePtr(sorted, 0.25)
	d.P75 = quantilePtr(sorted, 0.75)
	d.P90 = quantilePtr(sorted, 0.90)
	if d.P25 != nil && d.P75 != nil {
		d.IQR = ptr(*d.P75 - *d.P25)
	}
	if ms.Summary.StdDev != nil && *ms.Summary.StdDev > 0 {
		if s, ok := Skewness(values); ok {
			d.Skewness = ptr(s)
		}
		if k, ok := Kurtosis(values); ok {
			d.Kurtosis = ptr(k)
		}
	}

	// 3. Outliers
	ms.Outliers.IQR = detectIQROutliers(values, d.P25, d.P75, opts.IQRMultiplier)
	ms.Outliers.ZScore = detectZScoreOutliers(values, mean, ms.Summary.StdDev, opts.ZScoreThreshold)

	return ms
}

func quantilePtr(sorted []float64, p float64) *float64 {
	if q, ok := Quantile(sorted, p); ok {
		return ptr(q)
	}
	return nil
}

// detectIQROutliers flags values outside [q1-k*iqr, q3+k*iqr]. A zero IQR detects nothing.
func detectIQROutliers(values []float64, q1, q3 *float64, k float64) OutlierSet {
	set := OutlierSet{Threshold: ptr(k)}
	if q1 == nil || q3 == nil {
		return set
	}
	iqr := *q3 - *q1
	if iqr == 0 {
		return set
	}

	lower := *q1 - k*iqr
	upper := *q3 + k*iqr
	set.LowerBound = ptr(lower)
	set.UpperBound = ptr(upper)
	for i, v := range values {
		if v < lower || v > upper {
			set.Indices = append(set.Indices, i)
		}
	}
	set.DetectedCount = len(set.Indices)
	return set
}

// detectZScoreOutliers flags |z| > threshold. Without a positive stddev nothing is detected.
func detectZScoreOutliers(values []float64, mean float64, sd *float64, threshold float64) OutlierSet {
	set := OutlierSet{Threshold: ptr(threshold)}
	if sd == nil || *sd == 0 {
		return set
	}
	for i, v := range values {
		if math.Abs((v-mean) / *sd) > threshold {
			set.Indices = append(set.Indices, i)
		}
	}
	set.DetectedCount = len(set.Indices)
	return set
}
