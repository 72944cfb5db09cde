package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"chanlun/internal/engine"
	"chanlun/internal/metrics"
	"chanlun/internal/runner"
	"chanlun/internal/store"
	"chanlun/internal/stream"
)

// batchTimeout bounds a whole batch run.
const batchTimeout = 30 * time.Minute

type batchRow struct {
	Stream      stream.Identity `json:"stream"`
	StreamID    string          `json:"stream_id"`
	Bars        int             `json:"bars"`
	Events      int             `json:"events"`
	Violations  int             `json:"violations"`
	Fingerprint string          `json:"fingerprint"`
	Elapsed     string          `json:"elapsed"`
	Error       string          `json:"error,omitempty"`
}

func newBatchCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <bars files...>",
		Short: "Analyze several bar files concurrently",
		Long: `Run one independent chain per bar file on a bounded worker pool. Each
file is its own stream, named after the file; a failing file does not stop
the others. Events go to the configured sinks as with analyze.`,
		Example: `  chanlun batch data/*.csv --interval 5m
  chanlun batch nifty.parquet banknifty.parquet --workers 2 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), batchTimeout)
			defer cancel()

			opts, err := app.engineOptions(cmd)
			if err != nil {
				return err
			}
			interval, _ := cmd.Flags().GetString("interval")
			if interval == "" {
				interval = app.Config.Stream.Interval
			}

			jobs := make([]runner.Job, 0, len(args))
			for _, path := range args {
				bars, err := store.LoadBars(path)
				if err != nil {
					return err
				}
				base := filepath.Base(path)
				jobs = append(jobs, runner.Job{
					Identity: stream.Identity{
						Symbol:     strings.ToUpper(strings.TrimSuffix(base, filepath.Ext(base))),
						Interval:   interval,
						Provenance: "file:" + base,
					},
					Bars: bars,
				})
			}

			popts := pipelineOptions{}
			popts.NoSinks, _ = cmd.Flags().GetBool("no-sinks")
			if save, _ := cmd.Flags().GetBool("save"); save {
				ds, err := app.openStore()
				if err != nil {
					return err
				}
				popts.Store = ds
			}
			p, err := newPipeline(ctx, app.Config, app.Logger, popts)
			if err != nil {
				return err
			}

			workers, _ := cmd.Flags().GetInt("workers")
			r, err := runner.New(opts, workers, app.Logger)
			if err != nil {
				_ = p.Close()
				return err
			}
			r.SetObserver(func(id stream.Identity, index int) engine.Observer {
				return p.observer(id, metrics.Label(id.Symbol, id.Interval, index))
			})

			start := time.Now()
			results := r.Run(ctx, jobs)
			if err := p.Close(); err != nil {
				app.Logger.Warn().Err(err).Msg("Pipeline close failed")
			}

			rows := make([]batchRow, len(results))
			for i, res := range results {
				rows[i] = batchRow{
					Stream:      res.Identity,
					StreamID:    res.StreamID.String(),
					Bars:        res.Bars,
					Events:      res.Events,
					Violations:  res.Violations,
					Fingerprint: res.Fingerprint,
					Elapsed:     FormatDuration(res.Elapsed),
				}
				if res.Err != nil {
					rows[i].Error = res.Err.Error()
				}
			}

			if output.IsJSON() {
				if err := output.JSON(rows); err != nil {
					return err
				}
			} else {
				displayBatch(output, rows, time.Since(start))
			}
			if failed := runner.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d of %d streams failed", len(failed), len(results))
			}
			return nil
		},
	}

	addEngineFlags(cmd)
	cmd.Flags().StringP("interval", "i", "", "bar interval of every file (default: stream.interval)")
	cmd.Flags().Int("workers", 4, "concurrent streams (0 = one per file)")
	cmd.Flags().Bool("save", false, "record events in the store")
	cmd.Flags().Bool("no-sinks", false, "skip the configured ledger and Kafka sinks")

	return cmd
}

func displayBatch(output *Output, rows []batchRow, elapsed time.Duration) {
	t := NewTable(output, "Stream", "Bars", "Events", "Violations", "Fingerprint", "Time", "Status")
	for _, r := range rows {
		status := output.Green("ok")
		if r.Error != "" {
			status = output.Red(TruncateString(r.Error, 60))
		}
		violations := fmt.Sprint(r.Violations)
		if r.Violations > 0 {
			violations = output.Yellow(violations)
		}
		t.AddRow(r.Stream.Symbol+"/"+r.Stream.Interval, fmt.Sprint(r.Bars), fmt.Sprint(r.Events),
			violations, ShortFingerprint(r.Fingerprint), r.Elapsed, status)
	}
	t.Render()
	output.Println()
	output.Dim("%d streams in %s", len(rows), FormatDuration(elapsed))
}
