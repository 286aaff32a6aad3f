package stats

import (
	"errors"
	"slices"
	"testing"
	"time"

	"issuemetrics/internal/metrics"
)

var anomalyRef = time.Date(2024, time.April, 30, 12, 0, 0, 0, time.UTC)

// windowRecords places baseline values early in April and recent values in the last week.
func windowRecords(key metrics.Key, baseline, recent []float64) []metrics.Record {
	var records []metrics.Record
	issue := 1
	for i, v := range baseline {
		ts := time.Date(2024, time.April, 1+i%20, 9, 0, 0, 0, time.UTC)
		records = append(records, record(issue, ts, map[metrics.Key]float64{key: v}))
		issue++
	}
	for i, v := range recent {
		ts := time.Date(2024, time.April, 25+i%5, 9, 0, 0, 0, time.UTC)
		records = append(records, record(issue, ts, map[metrics.Key]float64{key: v}))
		issue++
	}
	return records
}

func anomalyOptions() AnomalyOptions {
	opts := DefaultAnomalyOptions(7, 28)
	opts.ReferenceDate = anomalyRef
	return opts
}

func TestDetectAnomalies_ZeroVarianceBaseline(t *testing.T) {
	records := windowRecords(metrics.LeadTime, []float64{10, 10, 10, 10, 10}, []float64{10, 10, 10, 10, 12})

	result, err := DetectAnomalies(records, anomalyOptions())
	if err != nil {
		t.Fatalf("DetectAnomalies failed: %v", err)
	}

	s := result.Metrics[metrics.LeadTime]
	if !s.IsAnomaly {
		t.Fatalf("Expected anomaly, got reasons %v", s.Reasons)
	}
	if s.Direction != Increase {
		t.Errorf("Expected direction increase, got %s", s.Direction)
	}
	if !slices.Equal(s.Signals, []SignalKind{SignalZeroVariance}) {
		t.Errorf("Expected only the zero-variance signal, got %v (%v)", s.Signals, s.Reasons)
	}
	if s.ZScore != nil {
		t.Errorf("Expected no z-score against a zero-variance baseline, got %v", *s.ZScore)
	}
	approx(t, "absolute change", s.AbsoluteChange, 0.4)
	approx(t, "relative change", s.RelativeChange, 0.04)
	if s.BaselineCount != 5 || s.RecentCount != 5 {
		t.Errorf("Expected 5/5 samples, got %d/%d", s.BaselineCount, s.RecentCount)
	}
}

func TestDetectAnomalies_WithinExpectedRange(t *testing.T) {
	records := windowRecords(metrics.CycleTime,
		[]float64{4, 4, 4, 4, 4, 6, 6, 6, 6, 6},
		[]float64{4.1, 4.1, 5.1, 6.1, 6.1},
	)

	result, err := DetectAnomalies(records, anomalyOptions())
	if err != nil {
		t.Fatalf("DetectAnomalies failed: %v", err)
	}

	s := result.Metrics[metrics.CycleTime]
	if s.IsAnomaly {
		t.Fatalf("Expected no anomaly, got reasons %v", s.Reasons)
	}
	if !slices.Equal(s.Reasons, []string{ReasonWithinRange}) {
		t.Errorf("Expected reasons [%q], got %v", ReasonWithinRange, s.Reasons)
	}
	if s.Direction != Increase {
		t.Errorf("Expected direction increase from mean 5 to 5.1, got %s", s.Direction)
	}
	approx(t, "baseline mean", s.Baseline.Mean, 5)
	approx(t, "recent mean", s.Recent.Mean, 5.1)
	approx(t, "recent stddev", s.Recent.StdDev, 1)
	if s.ZScore == nil || *s.ZScore <= 0 || *s.ZScore >= 0.2 {
		t.Errorf("Expected a small positive z-score, got %v", s.ZScore)
	}
}

func TestDetectAnomalies_InsufficientData(t *testing.T) {
	records := windowRecords(metrics.ReviewTime, []float64{100, 200}, []float64{900, 950, 1000})

	result, err := DetectAnomalies(records, anomalyOptions())
	if err != nil {
		t.Fatalf("DetectAnomalies failed: %v", err)
	}

	s := result.Metrics[metrics.ReviewTime]
	if s.IsAnomaly {
		t.Error("Expected insufficient data to suppress every signal")
	}
	if !slices.Equal(s.Reasons, []string{ReasonInsufficientData}) {
		t.Errorf("Expected only %q, got %v", ReasonInsufficientData, s.Reasons)
	}
	if s.BaselineCount != 2 {
		t.Errorf("Expected baseline count 2, got %d", s.BaselineCount)
	}
	if s.Direction != Increase {
		t.Errorf("Expected direction to still be derived, got %s", s.Direction)
	}

	empty := result.Metrics[metrics.Complexity]
	if empty.IsAnomaly || empty.Direction != Unchanged || empty.AbsoluteChange != nil {
		t.Errorf("Expected an empty metric to be neutral, got %+v", empty)
	}
}

func TestDetectAnomalies_ShiftFiresSeveralSignals(t *testing.T) {
	records := windowRecords(metrics.LeadTime,
		[]float64{10, 11, 9, 10, 10, 11, 9, 10},
		[]float64{20, 21, 19, 20},
	)

	result, err := DetectAnomalies(records, anomalyOptions())
	if err != nil {
		t.Fatalf("DetectAnomalies failed: %v", err)
	}

	s := result.Metrics[metrics.LeadTime]
	if !s.IsAnomaly || s.Direction != Increase {
		t.Fatalf("Expected an increasing anomaly, got %+v", s)
	}
	for _, want := range []SignalKind{SignalZScore, SignalRelativeChange, SignalQuartileShift} {
		if !slices.Contains(s.Signals, want) {
			t.Errorf("Expected signal %s, got %v", want, s.Signals)
		}
	}
	if len(s.Reasons) < 3 {
		t.Errorf("Expected a reason per fired signal, got %v", s.Reasons)
	}
	if keys := result.AnomalousKeys(); !slices.Equal(keys, []metrics.Key{metrics.LeadTime}) {
		t.Errorf("Expected only lead time flagged, got %v", keys)
	}
}

func TestDetectAnomalies_Decrease(t *testing.T) {
	records := windowRecords(metrics.PlanVsActual,
		[]float64{2, 2.2, 1.8, 2, 2.1, 1.9},
		[]float64{1, 1.1, 0.9},
	)

	result, err := DetectAnomalies(records, anomalyOptions())
	if err != nil {
		t.Fatalf("DetectAnomalies failed: %v", err)
	}
	s := result.Metrics[metrics.PlanVsActual]
	if !s.IsAnomaly || s.Direction != Decrease {
		t.Errorf("Expected a decreasing anomaly, got %s %v", s.Direction, s.Reasons)
	}
	if s.RelativeChange == nil || *s.RelativeChange > -0.3 {
		t.Errorf("Expected relative change below -30%%, got %v", s.RelativeChange)
	}
}

func TestDetectAnomalies_WindowsAndPartitioning(t *testing.T) {
	records := windowRecords(metrics.LeadTime, []float64{1, 2, 3, 4, 5}, []float64{1, 2, 3})
	// Before the baseline and after the reference date
	records = append(records,
		record(100, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), map[metrics.Key]float64{metrics.LeadTime: 50}),
		record(101, time.Date(2024, time.May, 2, 0, 0, 0, 0, time.UTC), map[metrics.Key]float64{metrics.LeadTime: 50}),
	)

	opts := anomalyOptions()
	result, err := DetectAnomalies(records, opts)
	if err != nil {
		t.Fatalf("DetectAnomalies failed: %v", err)
	}

	w := BuildComparisonWindows(anomalyRef, 7, 28, 0)
	if !result.RecentRange.Start.Equal(w.Recent.Start) || !result.BaselineRange.End.Equal(w.Baseline.End) {
		t.Errorf("Unexpected windows %+v / %+v", result.RecentRange, result.BaselineRange)
	}
	if result.BaselineRecordCount != 5 || result.RecentRecordCount != 3 {
		t.Errorf("Expected 5 baseline and 3 recent records, got %d/%d", result.BaselineRecordCount, result.RecentRecordCount)
	}
	if n := result.RecentStatistics[metrics.LeadTime].Summary.Count; n != 3 {
		t.Errorf("Expected 3 recent lead time values, got %d", n)
	}
}

func TestAnomalyDetector_UsesInjectedFilter(t *testing.T) {
	calls := 0
	var ranges []metrics.TimeRange
	filter := func(records []metrics.Record, tr metrics.TimeRange) []metrics.Record {
		calls++
		ranges = append(ranges, tr)
		return records
	}

	records := windowRecords(metrics.LeadTime, []float64{1, 2, 3}, nil)
	d := NewAnomalyDetector(filter)
	result, err := d.Detect(records, anomalyOptions())
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected the filter to be called once per window, got %d", calls)
	}
	if len(ranges) == 2 && !ranges[0].End.After(ranges[1].End) {
		t.Error("Expected the recent window to be filtered first")
	}
	if result.RecentRecordCount != 3 || result.BaselineRecordCount != 3 {
		t.Errorf("Expected the filter output to be used verbatim, got %d/%d", result.RecentRecordCount, result.BaselineRecordCount)
	}
}

func TestAnomalyDetector_DefaultsReferenceDateToNow(t *testing.T) {
	d := NewAnomalyDetector(nil)
	d.now = func() time.Time { return anomalyRef }

	opts := DefaultAnomalyOptions(7, 28)
	result, err := d.Detect(nil, opts)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if !result.ReferenceDate.Equal(anomalyRef) {
		t.Errorf("Expected reference date %v, got %v", anomalyRef, result.ReferenceDate)
	}
	if len(result.Metrics) != len(metrics.AllKeys()) {
		t.Errorf("Expected a summary for every key, got %d", len(result.Metrics))
	}
}

func TestDetectAnomalies_InvalidOptions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AnomalyOptions)
	}{
		{"ZeroRecentDays", func(o *AnomalyOptions) { o.RecentDays = 0 }},
		{"NegativeBaselineDays", func(o *AnomalyOptions) { o.BaselineDays = -3 }},
		{"NegativeGap", func(o *AnomalyOptions) { o.BaselineGapDays = -1 }},
		{"NegativeThreshold", func(o *AnomalyOptions) { o.ZScoreThreshold = -2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := anomalyOptions()
			tt.mutate(&opts)
			result, err := DetectAnomalies(nil, opts)
			if !errors.Is(err, ErrInvalidConfiguration) {
				t.Errorf("Expected ErrInvalidConfiguration, got %v", err)
			}
			if result != nil {
				t.Error("Expected no result on invalid options")
			}
		})
	}
}

func TestDetectAnomalies_Deterministic(t *testing.T) {
	records := windowRecords(metrics.LeadTime,
		[]float64{10, 11, 9, 10, 10, 11, 9, 10},
		[]float64{20, 21, 19, 20},
	)
	first, err := DetectAnomalies(records, anomalyOptions())
	if err != nil {
		t.Fatalf("DetectAnomalies failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, _ := DetectAnomalies(records, anomalyOptions())
		for _, k := range metrics.AllKeys() {
			a, b := first.Metrics[k], again.Metrics[k]
			if a.IsAnomaly != b.IsAnomaly || a.Direction != b.Direction || !slices.Equal(a.Reasons, b.Reasons) {
				t.Fatalf("Run %d: %s differs between calls", i, k)
			}
		}
	}
}

func TestCompareWindows_QuartileShiftDegenerateScale(t *testing.T) {
	opts := DefaultAnomalyOptions(7, 28)
	opts.RelativeChangeThreshold = 10
	baseline := DescribeValues([]float64{0, 0, 0, 0, 0}, opts.Statistics)
	recent := DescribeValues([]float64{0, 0, 0, 1}, opts.Statistics)

	s := CompareWindows(metrics.Complexity, baseline, recent, opts)
	if !slices.Contains(s.Signals, SignalQuartileShift) {
		t.Errorf("Expected quartile shift to fire against a degenerate scale, got %v", s.Signals)
	}
}

// windowStats builds a ten-sample window with mean/median 10, stddev 2 and the given quartiles.
func windowStats(p25, p75 float64) MetricStatistics {
	ms := MetricStatistics{Summary: Summary{
		Count:  10,
		Mean:   ptr(10.0),
		Median: ptr(10.0),
		StdDev: ptr(2.0),
	}}
	d := &ms.Distribution
	d.P10 = ptr(p25 - 1)
	d.P25 = ptr(p25)
	d.P75 = ptr(p75)
	d.P90 = ptr(p75 + 1)
	d.IQR = ptr(p75 - p25)
	d.Skewness = ptr(0.0)
	d.Kurtosis = ptr(0.0)
	return ms
}

func TestCompareWindows_SingleSignals(t *testing.T) {
	tests := []struct {
		name     string
		baseline MetricStatistics
		recent   func(*MetricStatistics)
		mutate   func(*AnomalyOptions)
		want     []SignalKind
		reasons  int
	}{
		{
			name:     "IQRChange",
			baseline: windowStats(9, 11),
			recent: func(ms *MetricStatistics) {
				ms.Distribution.P25, ms.Distribution.P75, ms.Distribution.IQR = ptr(8.0), ptr(12.0), ptr(4.0)
			},
			mutate:  func(o *AnomalyOptions) { o.QuartileShiftThreshold = 10 },
			want:    []SignalKind{SignalIQRChange},
			reasons: 1,
		},
		{
			name:     "IQRGrowsFromZero",
			baseline: windowStats(10, 10),
			recent: func(ms *MetricStatistics) {
				ms.Distribution.P25, ms.Distribution.P75, ms.Distribution.IQR = ptr(9.5), ptr(10.5), ptr(1.0)
			},
			want:    []SignalKind{SignalIQRChange},
			reasons: 1,
		},
		{
			name:     "IQRBelowThreshold",
			baseline: windowStats(9, 11),
			recent: func(ms *MetricStatistics) {
				ms.Distribution.P25, ms.Distribution.P75, ms.Distribution.IQR = ptr(8.75), ptr(11.25), ptr(2.5)
			},
		},
		{
			name:     "QuartileShift",
			baseline: windowStats(9, 11),
			recent: func(ms *MetricStatistics) {
				ms.Distribution.P25, ms.Distribution.P75 = ptr(11.0), ptr(13.0)
			},
			want:    []SignalKind{SignalQuartileShift},
			reasons: 1,
		},
		{
			name:     "QuartileShiftAtThresholdDoesNotFire",
			baseline: windowStats(9, 11),
			recent: func(ms *MetricStatistics) {
				ms.Distribution.P25, ms.Distribution.P75 = ptr(10.0), ptr(12.0)
			},
		},
		{
			name:     "SkewnessAtThreshold",
			baseline: windowStats(9, 11),
			recent:   func(ms *MetricStatistics) { ms.Distribution.Skewness = ptr(1.0) },
			want:     []SignalKind{SignalShapeChange},
			reasons:  1,
		},
		{
			name:     "SkewnessBelowThreshold",
			baseline: windowStats(9, 11),
			recent:   func(ms *MetricStatistics) { ms.Distribution.Skewness = ptr(0.99) },
		},
		{
			name:     "KurtosisAtThreshold",
			baseline: windowStats(9, 11),
			recent:   func(ms *MetricStatistics) { ms.Distribution.Kurtosis = ptr(-2.0) },
			want:     []SignalKind{SignalShapeChange},
			reasons:  1,
		},
		{
			name:     "KurtosisBelowThreshold",
			baseline: windowStats(9, 11),
			recent:   func(ms *MetricStatistics) { ms.Distribution.Kurtosis = ptr(1.99) },
		},
		{
			name:     "SkewnessAndKurtosisShareOneSignal",
			baseline: windowStats(9, 11),
			recent: func(ms *MetricStatistics) {
				ms.Distribution.Skewness = ptr(3.0)
				ms.Distribution.Kurtosis = ptr(11.0)
			},
			want:    []SignalKind{SignalShapeChange},
			reasons: 2,
		},
		{
			name:     "OutlierCountAtThreshold",
			baseline: windowStats(9, 11),
			recent: func(ms *MetricStatistics) {
				ms.Outliers.IQR.DetectedCount = 2
				ms.Outliers.ZScore.DetectedCount = 1
			},
			want:    []SignalKind{SignalOutlierCountDiff},
			reasons: 1,
		},
		{
			name:     "OutlierCountBelowThreshold",
			baseline: windowStats(9, 11),
			recent:   func(ms *MetricStatistics) { ms.Outliers.IQR.DetectedCount = 2 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultAnomalyOptions(7, 28)
			if tt.mutate != nil {
				tt.mutate(&opts)
			}
			recent := windowStats(*tt.baseline.Distribution.P25, *tt.baseline.Distribution.P75)
			tt.recent(&recent)

			s := CompareWindows(metrics.CycleTime, tt.baseline, recent, opts)

			if len(tt.want) == 0 {
				if s.IsAnomaly {
					t.Fatalf("Expected no anomaly, got %v (%v)", s.Signals, s.Reasons)
				}
				if !slices.Equal(s.Reasons, []string{ReasonWithinRange}) {
					t.Errorf("Expected reasons [%q], got %v", ReasonWithinRange, s.Reasons)
				}
				return
			}
			if !s.IsAnomaly {
				t.Fatalf("Expected an anomaly, got reasons %v", s.Reasons)
			}
			if !slices.Equal(s.Signals, tt.want) {
				t.Errorf("Expected signals %v, got %v (%v)", tt.want, s.Signals, s.Reasons)
			}
			if len(s.Reasons) != tt.reasons {
				t.Errorf("Expected %d reasons, got %v", tt.reasons, s.Reasons)
			}
			if s.Direction != Unchanged {
				t.Errorf("Expected direction none with equal means, got %s", s.Direction)
			}
		})
	}
}
