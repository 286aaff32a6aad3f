package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"issuemetrics/internal/config"
	"issuemetrics/internal/logging"
	"issuemetrics/internal/metrics"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Version, Commit, and BuildDate are set at build time via ldflags.
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	verbose     bool
	recordsPath string
	cfg         *config.AppConfig
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "issuemetrics",
		Short: "Statistics and anomaly detection over per-issue delivery metrics",
		Long: `issuemetrics analyzes per-issue metrics (lead time, cycle time, review time, comment count,
complexity, plan vs actual): descriptive statistics, Pearson/Spearman correlation, OLS regression
and recent-vs-baseline anomaly detection. Run "serve" to expose the same analyses as MCP tools.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := logging.Init(verbose, ""); err != nil {
				return err
			}

			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			log.Debug().
				Str("version", Version).
				Str("commit", Commit).
				Str("buildDate", BuildDate).
				Str("command", cmd.Name()).
				Msg("issuemetrics starting")
			return nil
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&recordsPath, "records", "", "JSONL records file (default: RECORDS_FILE from the environment)")

	root.AddCommand(
		newDescribeCmd(),
		newCorrelateCmd(),
		newRegressCmd(),
		newAnomaliesCmd(),
		newReportCmd(),
		newServeCmd(),
	)
	return root
}

// Execute runs the root command; an interrupt cancels the running command's context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// loadStore reads the records file selected by --records or the configuration.
func loadStore() (*metrics.Store, error) {
	path := recordsPath
	if path == "" {
		path = cfg.RecordsFile
	}
	store := metrics.NewStore()
	if err := store.Load(path); err != nil {
		return nil, err
	}
	return store, nil
}

func printJSON(w io.Writer, data any) error {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
