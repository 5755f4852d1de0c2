package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wasteaudit/wasteaudit/auditor/internal/pipeline"
	"github.com/wasteaudit/wasteaudit/auditor/internal/source"
	"github.com/wasteaudit/wasteaudit/auditor/internal/store"
	"github.com/wasteaudit/wasteaudit/pkg/types"
)

var runFlags struct {
	branch      string
	year        int
	month       string
	path        string
	withResults bool
	metrics     bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Classify one branch-month and print the batch report",
	Example: `  auditor run --branch "LA - Downtown" --year 2025 --month February
  auditor run --config config.yaml --branch "LA - Downtown" --year 2025 --month 2 --path waste.xlsx --results`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return runBatch(ctx)
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.branch, "branch", "", "branch to classify (required)")
	f.IntVar(&runFlags.year, "year", 0, "calendar year (required)")
	f.StringVar(&runFlags.month, "month", "", "month name, abbreviation or number (required)")
	f.StringVar(&runFlags.path, "path", "", "input file for the xlsx and json sources; overrides source.path")
	f.BoolVar(&runFlags.withResults, "results", false, "print every classified event after the report")
	f.BoolVar(&runFlags.metrics, "metrics", false, "write batch metrics in Prometheus text format to stderr")
	for _, name := range []string{"branch", "year", "month"} {
		_ = runCmd.MarkFlagRequired(name)
	}
}

type runOutput struct {
	Report  *pipeline.Report   `json:"report"`
	Results []types.WasteEvent `json:"results,omitempty"`
	Error   string             `json:"error,omitempty"`
}

func runBatch(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	period, err := source.ParsePeriod(runFlags.year, runFlags.month)
	if err != nil {
		return err
	}

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	src, err := source.New(ctx, cfg.Source, runFlags.path, pool)
	if err != nil {
		return err
	}
	sink, err := store.New(ctx, cfg.Store, pool)
	if err != nil {
		return err
	}

	d, err := buildDeps(cfg, nil)
	if err != nil {
		return err
	}
	d.start()

	p := pipeline.New(d.router, pipeline.Options{
		Rules:   cfg.Rules,
		Workers: cfg.Pipeline.Workers,
		Sink:    sink,
		Metrics: d.metrics,
	})
	events, report, runErr := p.Run(ctx, src, runFlags.branch, period)

	d.close()

	if report == nil {
		return runErr
	}
	out := runOutput{Report: report}
	if runFlags.withResults {
		out.Results = events
	}
	if runErr != nil {
		out.Error = runErr.Error()
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if runFlags.metrics {
		if err := d.metrics.WriteText(os.Stderr); err != nil {
			return err
		}
	}
	if report.Total == 0 {
		return fmt.Errorf("no data found for %q in %s", runFlags.branch, period)
	}
	return runErr
}
