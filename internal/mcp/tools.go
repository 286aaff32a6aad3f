package mcp

import (
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// DescribeInput are the arguments of describe_metrics.
type DescribeInput struct {
	Metrics []string `json:"metrics,omitempty" jsonschema:"Metric keys to include (leadTime, cycleTime, reviewTime, commentCount, complexity, planVsActual). Default: all."`
	Since   string   `json:"since,omitempty" jsonschema:"Only records whose timestamp is on or after this date (YYYY-MM-DD)."`
	Until   string   `json:"until,omitempty" jsonschema:"Only records whose timestamp is on or before this date (YYYY-MM-DD)."`
	Charts  bool     `json:"charts,omitempty" jsonschema:"Include Mermaid percentile charts."`
}

// CorrelateInput are the arguments of correlate_metrics.
type CorrelateInput struct {
	Method      string `json:"method,omitempty" jsonschema:"pearson or spearman. Default: both."`
	Target      string `json:"target,omitempty" jsonschema:"If set, return only the strongest factors for this metric key."`
	Top         int    `json:"top,omitempty" jsonschema:"Number of factors to return with target. Default: profile setting."`
	OmitMissing *bool  `json:"omit_missing,omitempty" jsonschema:"Use only records where all six metrics succeeded. Default: profile setting."`
	Since       string `json:"since,omitempty" jsonschema:"Only records on or after this date (YYYY-MM-DD)."`
	Until       string `json:"until,omitempty" jsonschema:"Only records on or before this date (YYYY-MM-DD)."`
}

// RegressionInput are the arguments of fit_regression.
type RegressionInput struct {
	Target      string   `json:"target" jsonschema:"Metric key to predict."`
	Predictors  []string `json:"predictors" jsonschema:"Metric keys used as predictors. Must not contain the target."`
	NoIntercept bool     `json:"no_intercept,omitempty" jsonschema:"Fit without an intercept term."`
	Since       string   `json:"since,omitempty" jsonschema:"Only records on or after this date (YYYY-MM-DD)."`
	Until       string   `json:"until,omitempty" jsonschema:"Only records on or before this date (YYYY-MM-DD)."`
}

// AnomalyInput are the arguments of detect_anomalies.
type AnomalyInput struct {
	RecentDays    int    `json:"recent_days,omitempty" jsonschema:"Length of the recent window in days. Default: profile setting."`
	BaselineDays  int    `json:"baseline_days,omitempty" jsonschema:"Length of the baseline window in days. Default: profile setting."`
	GapDays       int    `json:"gap_days,omitempty" jsonschema:"Days left out between the baseline and the recent window."`
	ReferenceDate string `json:"reference_date,omitempty" jsonschema:"Last day of the recent window (YYYY-MM-DD). Default: today."`
	Charts        bool   `json:"charts,omitempty" jsonschema:"Include Mermaid baseline-vs-recent charts for anomalous metrics."`
}

// ReloadInput are the arguments of reload_records.
type ReloadInput struct {
	Path string `json:"path,omitempty" jsonschema:"JSONL file to load. Default: the configured records file."`
}

func (s *Server) registerTools(server *sdk.Server) {
	sdk.AddTool(server, &sdk.Tool{
		Name: "describe_metrics",
		Description: "Descriptive statistics per metric: mean, median, mode, variance, percentiles (P10/P25/P75/P90), IQR, skewness, kurtosis and IQR/z-score outliers. " +
			"Fields that cannot be computed for the sample size are null, not zero.",
	}, s.handleDescribe)

	sdk.AddTool(server, &sdk.Tool{
		Name: "correlate_metrics",
		Description: "Pearson and Spearman correlation matrices across all metrics, with sample covariance. " +
			"With omit_missing, only records where every metric succeeded are used. Constant metrics have a null coefficient.",
	}, s.handleCorrelate)

	sdk.AddTool(server, &sdk.Tool{
		Name: "fit_regression",
		Description: "Ordinary least squares regression of one metric on others. Returns coefficients, R², adjusted R², residual summary and t/F tests. " +
			"Fails on collinear predictors (singular matrix) or when there are not more complete rows than predictors.",
	}, s.handleRegression)

	sdk.AddTool(server, &sdk.Tool{
		Name: "detect_anomalies",
		Description: "Compare a recent window against an earlier baseline window for every metric. " +
			"A metric is anomalous when any heuristic fires (z-score, relative change, zero-variance baseline, IQR change, quartile shift, shape change, outlier count). " +
			"Each fired heuristic adds a reason; sparse windows report 'insufficient data'.",
	}, s.handleAnomalies)

	sdk.AddTool(server, &sdk.Tool{
		Name:        "reload_records",
		Description: "Reload metric records from a JSONL file into the server. Records with an issue number already loaded are replaced.",
	}, s.handleReload)
}
