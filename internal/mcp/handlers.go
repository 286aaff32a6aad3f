package mcp

import (
	"context"
	"fmt"

	"issuemetrics/internal/metrics"
	"issuemetrics/internal/stats"
	"issuemetrics/internal/visuals"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
)

func (s *Server) handleDescribe(_ context.Context, _ *sdk.CallToolRequest, in DescribeInput) (*sdk.CallToolResult, any, error) {
	records, err := s.selectRecords(in.Since, in.Until)
	if err != nil {
		return errorResult("describe_metrics", err), nil, nil
	}
	keys, err := parseKeys(in.Metrics)
	if err != nil {
		return errorResult("describe_metrics", err), nil, nil
	}

	all := stats.Describe(records, s.cfg.Profile.DescriptiveOptions())
	selected := make(stats.StatisticsResult, len(keys))
	var charts []string
	for _, k := range keys {
		selected[k] = all[k]
		if in.Charts {
			if c := visuals.GeneratePercentileChart(all[k]); c != "" {
				charts = append(charts, c)
			}
		}
	}

	res := map[string]any{
		"recordCount": len(records),
		"statistics":  selected,
	}
	if len(charts) > 0 {
		res["charts"] = charts
	}
	return s.textResult(res), nil, nil
}

func (s *Server) handleCorrelate(_ context.Context, _ *sdk.CallToolRequest, in CorrelateInput) (*sdk.CallToolResult, any, error) {
	records, err := s.selectRecords(in.Since, in.Until)
	if err != nil {
		return errorResult("correlate_metrics", err), nil, nil
	}

	methods := stats.CorrelationMethods()
	if in.Method != "" {
		m := stats.CorrelationMethod(in.Method)
		if m != stats.Pearson && m != stats.Spearman {
			return errorResult("correlate_metrics", fmt.Errorf("%w: unknown correlation method %q", stats.ErrInvalidConfiguration, in.Method)), nil, nil
		}
		methods = []stats.CorrelationMethod{m}
	}

	opts := s.cfg.Profile.CorrelationOptions()
	if in.OmitMissing != nil {
		opts.OmitMissing = *in.OmitMissing
	}
	analysis := stats.Correlate(records, opts)

	if in.Target != "" {
		target, err := metrics.ParseKey(in.Target)
		if err != nil {
			return errorResult("correlate_metrics", fmt.Errorf("%w: %v", stats.ErrInvalidConfiguration, err)), nil, nil
		}
		top := in.Top
		if top <= 0 {
			top = s.cfg.Profile.TopFactors
		}
		factors := make(map[stats.CorrelationMethod][]stats.CorrelationCell, len(methods))
		for _, m := range methods {
			factors[m] = stats.TopFactors(analysis.Summary, target, m, top)
		}
		return s.textResult(map[string]any{
			"target":      target,
			"sampleSize":  analysis.SampleSize,
			"omitMissing": analysis.OmitMissing,
			"factors":     factors,
		}), nil, nil
	}

	filtered := stats.CorrelationAnalysis{
		RecordCount: analysis.RecordCount,
		SampleSize:  analysis.SampleSize,
		OmitMissing: analysis.OmitMissing,
		Matrices:    make(map[stats.CorrelationMethod]stats.CorrelationMatrix, len(methods)),
	}
	for _, m := range methods {
		filtered.Matrices[m] = analysis.Matrices[m]
	}
	for _, c := range analysis.Summary {
		if _, ok := filtered.Matrices[c.Method]; ok {
			filtered.Summary = append(filtered.Summary, c)
		}
	}
	return s.textResult(filtered), nil, nil
}

func (s *Server) handleRegression(_ context.Context, _ *sdk.CallToolRequest, in RegressionInput) (*sdk.CallToolResult, any, error) {
	records, err := s.selectRecords(in.Since, in.Until)
	if err != nil {
		return errorResult("fit_regression", err), nil, nil
	}

	predictors := make([]metrics.Key, 0, len(in.Predictors))
	for _, p := range in.Predictors {
		predictors = append(predictors, metrics.Key(p))
	}
	cfg := stats.NewRegressionConfig(metrics.Key(in.Target), predictors...)
	cfg.IncludeIntercept = !in.NoIntercept

	summary, err := stats.FitRegression(records, cfg)
	if err != nil {
		return errorResult("fit_regression", err), nil, nil
	}
	return s.textResult(summary), nil, nil
}

func (s *Server) handleAnomalies(_ context.Context, _ *sdk.CallToolRequest, in AnomalyInput) (*sdk.CallToolResult, any, error) {
	ref := s.now()
	if in.ReferenceDate != "" {
		d, err := parseDate(in.ReferenceDate)
		if err != nil {
			return errorResult("detect_anomalies", err), nil, nil
		}
		ref = d
	}

	opts := s.cfg.Profile.AnomalyOptions(ref)
	if in.RecentDays != 0 {
		opts.RecentDays = in.RecentDays
	}
	if in.BaselineDays != 0 {
		opts.BaselineDays = in.BaselineDays
	}
	if in.GapDays != 0 {
		opts.BaselineGapDays = in.GapDays
	}

	result, err := stats.NewAnomalyDetector(metrics.FilterByTimestamp).Detect(s.store.Records(), opts)
	if err != nil {
		return errorResult("detect_anomalies", err), nil, nil
	}

	anomalous := result.AnomalousKeys()
	log.Info().
		Int("anomalies", len(anomalous)).
		Time("referenceDate", ref).
		Msg("Anomaly detection completed")

	res := map[string]any{
		"anomalousMetrics": anomalous,
		"result":           result,
	}
	if in.Charts {
		var charts []string
		for _, k := range anomalous {
			if c := visuals.GenerateComparisonChart(result.Metrics[k]); c != "" {
				charts = append(charts, c)
			}
		}
		if len(charts) > 0 {
			res["charts"] = charts
		}
	}
	return s.textResult(res), nil, nil
}
