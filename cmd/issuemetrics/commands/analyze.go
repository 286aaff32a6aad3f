package commands

import (
	"fmt"
	"strings"
	"time"

	"issuemetrics/internal/mcp"
	"issuemetrics/internal/metrics"
	"issuemetrics/internal/report"
	"issuemetrics/internal/stats"

	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

// requireRecords loads the store and rejects an empty dataset.
func requireRecords() ([]metrics.Record, error) {
	store, err := loadStore()
	if err != nil {
		return nil, err
	}
	records := store.Records()
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no records loaded", stats.ErrEmptyInput)
	}
	return records, nil
}

func parseKeyList(names []string) ([]metrics.Key, error) {
	keys := make([]metrics.Key, 0, len(names))
	for _, n := range names {
		for _, part := range strings.Split(n, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			k, err := metrics.ParseKey(part)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", stats.ErrInvalidConfiguration, err)
			}
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func newDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe",
		Short: "Descriptive statistics for every metric",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := requireRecords()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats.Describe(records, cfg.Profile.DescriptiveOptions()))
		},
	}
}

func newCorrelateCmd() *cobra.Command {
	var target string
	var top int
	cmd := &cobra.Command{
		Use:   "correlate",
		Short: "Pearson and Spearman correlation matrices",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := requireRecords()
			if err != nil {
				return err
			}
			analysis := stats.Correlate(records, cfg.Profile.CorrelationOptions())
			if target == "" {
				return printJSON(cmd.OutOrStdout(), analysis)
			}
			k, err := metrics.ParseKey(target)
			if err != nil {
				return fmt.Errorf("%w: %v", stats.ErrInvalidConfiguration, err)
			}
			if top <= 0 {
				top = cfg.Profile.TopFactors
			}
			factors := make(map[stats.CorrelationMethod][]stats.CorrelationCell)
			for _, m := range stats.CorrelationMethods() {
				factors[m] = stats.TopFactors(analysis.Summary, k, m, top)
			}
			return printJSON(cmd.OutOrStdout(), factors)
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "list the strongest factors for this metric instead of the full matrices")
	cmd.Flags().IntVar(&top, "top", 0, "number of factors listed with --target (default: profile setting)")
	return cmd
}

func newRegressCmd() *cobra.Command {
	var target string
	var predictors []string
	var noIntercept bool
	cmd := &cobra.Command{
		Use:   "regress",
		Short: "Ordinary least squares regression of one metric on others",
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := parseKeyList(predictors)
			if err != nil {
				return err
			}
			t, err := metrics.ParseKey(target)
			if err != nil {
				return fmt.Errorf("%w: %v", stats.ErrInvalidConfiguration, err)
			}
			rc := stats.NewRegressionConfig(t, keys...)
			rc.IncludeIntercept = !noIntercept
			if err := rc.Validate(); err != nil {
				return err
			}

			records, err := requireRecords()
			if err != nil {
				return err
			}
			summary, err := stats.FitRegression(records, rc)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), summary)
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "metric to predict")
	cmd.Flags().StringSliceVar(&predictors, "predictors", nil, "comma-separated predictor metrics")
	cmd.Flags().BoolVar(&noIntercept, "no-intercept", false, "fit without an intercept term")
	_ = cmd.MarkFlagRequired("target")
	_ = cmd.MarkFlagRequired("predictors")
	return cmd
}

func newAnomaliesCmd() *cobra.Command {
	var recentDays, baselineDays, gapDays int
	var referenceDate string
	cmd := &cobra.Command{
		Use:   "anomalies",
		Short: "Compare the recent window against the baseline window",
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := time.Now()
			if referenceDate != "" {
				d, err := time.Parse(dateLayout, referenceDate)
				if err != nil {
					return fmt.Errorf("%w: invalid reference date %q, expected YYYY-MM-DD", stats.ErrInvalidConfiguration, referenceDate)
				}
				ref = d
			}
			opts := cfg.Profile.AnomalyOptions(ref)
			if cmd.Flags().Changed("recent-days") {
				opts.RecentDays = recentDays
			}
			if cmd.Flags().Changed("baseline-days") {
				opts.BaselineDays = baselineDays
			}
			if cmd.Flags().Changed("gap-days") {
				opts.BaselineGapDays = gapDays
			}
			if err := opts.Validate(); err != nil {
				return err
			}

			records, err := requireRecords()
			if err != nil {
				return err
			}
			result, err := stats.DetectAnomalies(records, opts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().IntVar(&recentDays, "recent-days", 0, "length of the recent window in days")
	cmd.Flags().IntVar(&baselineDays, "baseline-days", 0, "length of the baseline window in days")
	cmd.Flags().IntVar(&gapDays, "gap-days", 0, "days skipped between baseline and recent window")
	cmd.Flags().StringVar(&referenceDate, "reference-date", "", "last day of the recent window (YYYY-MM-DD, default: today)")
	return cmd
}

func newReportCmd() *cobra.Command {
	var charts bool
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Run every analysis and print a combined report",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := requireRecords()
			if err != nil {
				return err
			}
			req := report.RequestFromProfile(cfg.Profile, time.Now(), charts || cfg.EnableMermaidCharts)
			rep, err := report.Run(cmd.Context(), records, req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rep)
		},
	}
	cmd.Flags().BoolVar(&charts, "charts", false, "include Mermaid charts")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the analyses as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := loadStore()
			if err != nil {
				return err
			}
			return mcp.NewServer(store, cfg).Serve(cmd.Context())
		},
	}
}
