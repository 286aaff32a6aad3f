package report

import (
	"context"
	"fmt"
	"sync"
	"time"

	"issuemetrics/internal/config"
	"issuemetrics/internal/metrics"
	"issuemetrics/internal/stats"
	"issuemetrics/internal/visuals"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Request selects which analyses a report runs. Nil Regression or Anomaly skips that engine.
type Request struct {
	Descriptive stats.DescriptiveOptions
	Correlation stats.CorrelationOptions
	Regression  *stats.RegressionConfig
	Anomaly     *stats.AnomalyOptions
	// TopFactors is how many correlated metrics to list per key; 0 disables the ranking.
	TopFactors int
	// Charts renders Mermaid charts into the report.
	Charts      bool
	TrendBucket string
}

// RequestFromProfile builds a request running every analysis except regression.
func RequestFromProfile(p config.AnalysisProfile, ref time.Time, charts bool) Request {
	anomaly := p.AnomalyOptions(ref)
	return Request{
		Descriptive: p.DescriptiveOptions(),
		Correlation: p.CorrelationOptions(),
		Anomaly:     &anomaly,
		TopFactors:  p.TopFactors,
		Charts:      charts,
		TrendBucket: p.TrendBucket,
	}
}

// Report is the combined output of one analysis run.
type Report struct {
	RunID       string                                  `json:"runId"`
	GeneratedAt time.Time                               `json:"generatedAt"`
	RecordCount int                                     `json:"recordCount"`
	Statistics  stats.StatisticsResult                  `json:"statistics"`
	Correlation *stats.CorrelationAnalysis              `json:"correlation,omitempty"`
	TopFactors  map[metrics.Key][]stats.CorrelationCell `json:"topFactors,omitempty"`
	Regression  *stats.RegressionSummary                `json:"regression,omitempty"`
	Anomalies   *stats.AnomalyResult                    `json:"anomalies,omitempty"`
	Charts      []string                                `json:"charts,omitempty"`
	Errors      map[string]string                       `json:"errors,omitempty"`
}

// Run executes the requested engines concurrently over the same records.
//
// Invalid configuration and an empty dataset fail before any engine starts. Errors from
// the data itself (too few samples, a singular design matrix) are recorded in
// Report.Errors so the other analyses still complete.
func Run(ctx context.Context, records []metrics.Record, req Request) (*Report, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no records to analyze", stats.ErrEmptyInput)
	}
	if req.Regression != nil {
		if err := req.Regression.Validate(); err != nil {
			return nil, err
		}
	}
	if req.Anomaly != nil {
		if err := req.Anomaly.Validate(); err != nil {
			return nil, err
		}
	}

	rep := &Report{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		RecordCount: len(records),
	}

	var mu sync.Mutex
	recordErr := func(engine string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if rep.Errors == nil {
			rep.Errors = make(map[string]string)
		}
		rep.Errors[engine] = err.Error()
		log.Warn().Err(err).Str("runId", rep.RunID).Str("engine", engine).Msg("Analysis step failed")
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := gCtx.Err(); err != nil {
			return err
		}
		rep.Statistics = stats.Describe(records, req.Descriptive)
		return nil
	})

	g.Go(func() error {
		if err := gCtx.Err(); err != nil {
			return err
		}
		analysis := stats.Correlate(records, req.Correlation)
		rep.Correlation = &analysis
		if req.TopFactors > 0 {
			rep.TopFactors = make(map[metrics.Key][]stats.CorrelationCell)
			for _, k := range metrics.AllKeys() {
				if top := stats.TopFactors(analysis.Summary, k, stats.Spearman, req.TopFactors); len(top) > 0 {
					rep.TopFactors[k] = top
				}
			}
		}
		return nil
	})

	if req.Regression != nil {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			summary, err := stats.FitRegression(records, *req.Regression)
			if err != nil {
				recordErr("regression", err)
				return nil
			}
			rep.Regression = summary
			return nil
		})
	}

	if req.Anomaly != nil {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			result, err := stats.DetectAnomalies(records, *req.Anomaly)
			if err != nil {
				recordErr("anomalies", err)
				return nil
			}
			rep.Anomalies = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if req.Charts {
		rep.Charts = renderCharts(rep, records, req.TrendBucket)
	}

	log.Info().
		Str("runId", rep.RunID).
		Int("records", rep.RecordCount).
		Int("errors", len(rep.Errors)).
		Msg("Report generated")

	return rep, nil
}

func renderCharts(rep *Report, records []metrics.Record, bucket string) []string {
	var charts []string
	for _, k := range metrics.AllKeys() {
		if c := visuals.GeneratePercentileChart(rep.Statistics[k]); c != "" {
			charts = append(charts, c)
		}
	}
	if rep.Correlation != nil {
		for _, m := range stats.CorrelationMethods() {
			if c := visuals.GenerateCorrelationTable(m, rep.Correlation.Matrices[m]); c != "" {
				charts = append(charts, c)
			}
		}
	}
	if rep.Anomalies != nil {
		span := metrics.TimeRange{Start: rep.Anomalies.BaselineRange.Start, End: rep.Anomalies.RecentRange.End}
		for _, k := range rep.Anomalies.AnomalousKeys() {
			if c := visuals.GenerateComparisonChart(rep.Anomalies.Metrics[k]); c != "" {
				charts = append(charts, c)
			}
			if c := visuals.GenerateTrendChart(k, stats.GroupByBucket(records, k, span, bucket)); c != "" {
				charts = append(charts, c)
			}
		}
	}
	return charts
}
