package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	apperrors "chanlun/internal/errors"
	"chanlun/internal/store"
	"chanlun/internal/stream"
)

// addDataCommands adds bar and event storage commands.
func addDataCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newImportCmd(app))
	rootCmd.AddCommand(newExportCmd(app))
	rootCmd.AddCommand(newStreamsCmd(app))
	rootCmd.AddCommand(newEventsCmd(app))
}

func newImportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <bars.csv|bars.parquet>",
		Short: "Import bars into the store",
		Long: `Load a CSV or Parquet bar file into the SQLite store under a symbol and
interval. Bars with a timestamp already stored are replaced.

CSV files need a header with timestamp,open,high,low,close[,volume];
timestamps may be unix seconds, RFC3339, "2006-01-02 15:04:05" or a date.`,
		Example: `  chanlun import nifty_5m.csv --symbol NIFTY --interval 5m
  chanlun import bars.parquet -s BANKNIFTY -i 1m`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			symbol, interval, err := app.symbolInterval(cmd)
			if err != nil {
				return err
			}

			bars, err := store.LoadBars(args[0])
			if err != nil {
				return err
			}
			for i, b := range bars {
				if field, reason := b.Problem(); field != "" {
					return apperrors.NewBarError(i, field, reason, apperrors.ErrInvalidBar)
				}
			}

			ds, err := app.openStore()
			if err != nil {
				return err
			}
			if err := ds.SaveBars(cmd.Context(), symbol, interval, bars); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"symbol": symbol, "interval": interval, "bars": len(bars)})
			}
			output.Success("✓ Imported %d bars into %s/%s", len(bars), symbol, interval)
			return nil
		},
	}

	cmd.Flags().StringP("symbol", "s", "", "symbol to store the bars under (default: stream.symbol)")
	cmd.Flags().StringP("interval", "i", "", "bar interval (default: stream.interval)")

	return cmd
}

func newExportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <out.csv|out.parquet>",
		Short: "Export stored bars to a file",
		Example: `  chanlun export nifty.parquet --symbol NIFTY --interval 5m
  chanlun export jan.csv -s NIFTY -i 5m --from 2024-01-01 --to 2024-01-31`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			symbol, interval, err := app.symbolInterval(cmd)
			if err != nil {
				return err
			}
			from, to, err := timeRange(cmd)
			if err != nil {
				return err
			}

			ds, err := app.openStore()
			if err != nil {
				return err
			}
			bars, err := ds.GetBars(cmd.Context(), symbol, interval, from, to)
			if err != nil {
				return err
			}
			if len(bars) == 0 {
				return apperrors.NewDataError("bars", symbol+"/"+interval, "no stored bars", apperrors.ErrDataNotFound)
			}
			if err := store.SaveBarsFile(args[0], bars); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"path": args[0], "bars": len(bars)})
			}
			output.Success("✓ Wrote %d bars to %s", len(bars), args[0])
			return nil
		},
	}

	cmd.Flags().StringP("symbol", "s", "", "stored symbol (default: stream.symbol)")
	cmd.Flags().StringP("interval", "i", "", "bar interval (default: stream.interval)")
	cmd.Flags().String("from", "", "first bar time")
	cmd.Flags().String("to", "", "last bar time")

	return cmd
}

func newStreamsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "streams",
		Short: "List stored bar series",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ds, err := app.openStore()
			if err != nil {
				return err
			}
			infos, err := ds.ListStreams(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(infos)
			}
			if len(infos) == 0 {
				output.Dim("No stored bars. Use 'chanlun import' first.")
				return nil
			}
			t := NewTable(output, "Symbol", "Interval", "Bars", "First", "Last")
			for _, s := range infos {
				t.AddRow(s.Symbol, s.Interval, fmt.Sprint(s.Bars), FormatTime(s.First), FormatTime(s.Last))
			}
			t.Render()
			return nil
		},
	}
}

func newEventsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Query events recorded in the store",
		Long: `List events saved by 'analyze --save' or 'batch --save'. The stream is
named by symbol, interval and provenance exactly as it was analysed, or
directly by --stream-id.`,
		Example: `  chanlun events -s NIFTY -i 5m --provenance file:nifty_5m.csv
  chanlun events --stream-id 6b1f... --layer segment --limit 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			streamID, _ := cmd.Flags().GetString("stream-id")
			if streamID == "" {
				symbol, interval, err := app.symbolInterval(cmd)
				if err != nil {
					return err
				}
				provenance, _ := cmd.Flags().GetString("provenance")
				if provenance == "" {
					provenance = app.Config.Stream.Provenance
				}
				streamID = stream.Identity{Symbol: symbol, Interval: interval, Provenance: provenance}.ID().String()
			}

			filter := store.EventFilter{}
			filter.Layer, _ = cmd.Flags().GetString("layer")
			filter.Kind, _ = cmd.Flags().GetString("kind")
			filter.Limit, _ = cmd.Flags().GetInt("limit")
			filter.FromSeq, _ = cmd.Flags().GetUint64("from-seq")

			ds, err := app.openStore()
			if err != nil {
				return err
			}
			rows, err := ds.GetEvents(cmd.Context(), streamID, filter)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(rows)
			}
			if len(rows) == 0 {
				output.Dim("No events for stream %s", streamID)
				return nil
			}
			output.Dim("stream %s", streamID)
			displayEvents(output, rows, 0)
			return nil
		},
	}

	cmd.Flags().StringP("symbol", "s", "", "stream symbol (default: stream.symbol)")
	cmd.Flags().StringP("interval", "i", "", "bar interval (default: stream.interval)")
	cmd.Flags().String("provenance", "", "stream provenance (default: stream.provenance)")
	cmd.Flags().String("stream-id", "", "stream UUID, overrides symbol/interval/provenance")
	cmd.Flags().String("layer", "", "only this layer (stroke, segment, pivot, move, divergence, bsp, invariant)")
	cmd.Flags().String("kind", "", "only this kind, e.g. segment.settle")
	cmd.Flags().Uint64("from-seq", 0, "only events with seq at or above this")
	cmd.Flags().Int("limit", 100, "maximum events (0 = all)")

	return cmd
}

// symbolInterval resolves the --symbol and --interval flags against the
// configured stream defaults.
func (a *App) symbolInterval(cmd *cobra.Command) (string, string, error) {
	symbol, _ := cmd.Flags().GetString("symbol")
	interval, _ := cmd.Flags().GetString("interval")
	if symbol == "" {
		symbol = a.Config.Stream.Symbol
	}
	if interval == "" {
		interval = a.Config.Stream.Interval
	}
	if symbol == "" {
		return "", "", apperrors.NewValidationError("symbol", symbol, "--symbol is required")
	}
	return strings.ToUpper(symbol), interval, nil
}
