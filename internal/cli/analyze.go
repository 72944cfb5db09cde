package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"chanlun/internal/engine"
	apperrors "chanlun/internal/errors"
	"chanlun/internal/ledger"
	"chanlun/internal/logging"
	"chanlun/internal/metrics"
	"chanlun/internal/models"
	"chanlun/internal/store"
	"chanlun/internal/stream"
)

// addAnalysisCommands adds the commands that run the engine.
func addAnalysisCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newAnalyzeCmd(app))
	rootCmd.AddCommand(newFingerprintCmd(app))
	rootCmd.AddCommand(newReplayCmd(app))
	rootCmd.AddCommand(newBatchCmd(app))
}

// source is one stream's bars with the identity they are analysed under.
type source struct {
	id   stream.Identity
	bars []models.Bar
}

func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("symbol", "s", "", "stream symbol (default: stream.symbol, else the file name)")
	cmd.Flags().StringP("interval", "i", "", "bar interval (default: stream.interval)")
	cmd.Flags().String("provenance", "", "stream provenance (default: file:<name> or sqlite)")
	cmd.Flags().String("from", "", "first bar time when reading from the store")
	cmd.Flags().String("to", "", "last bar time when reading from the store")
}

func addEngineFlags(cmd *cobra.Command) {
	cmd.Flags().String("stroke-mode", "", "stroke mode: strict or wide (default: engine.stroke_mode)")
	cmd.Flags().String("segment-algo", "", "segment algorithm: v0 or v1 (default: engine.segment_algo)")
	cmd.Flags().Int("max-levels", 0, "recursion depth (default: engine.max_levels)")
}

// engineOptions applies command-line overrides to the configured options.
func (a *App) engineOptions(cmd *cobra.Command) (engine.Options, error) {
	opts := a.Config.EngineOptions()
	if v, _ := cmd.Flags().GetString("stroke-mode"); v != "" {
		opts.StrokeMode = models.StrokeMode(v)
	}
	if v, _ := cmd.Flags().GetString("segment-algo"); v != "" {
		opts.SegmentAlgo = models.SegmentAlgo(v)
	}
	if v, _ := cmd.Flags().GetInt("max-levels"); v != 0 {
		opts.MaxLevels = v
	}
	return opts, opts.Validate()
}

// loadSource reads bars from path, or from the store when path is empty.
func (a *App) loadSource(ctx context.Context, cmd *cobra.Command, path string) (source, error) {
	symbol, _ := cmd.Flags().GetString("symbol")
	interval, _ := cmd.Flags().GetString("interval")
	provenance, _ := cmd.Flags().GetString("provenance")
	if interval == "" {
		interval = a.Config.Stream.Interval
	}

	if path != "" {
		bars, err := store.LoadBars(path)
		if err != nil {
			return source{}, err
		}
		base := filepath.Base(path)
		if symbol == "" {
			symbol = a.Config.Stream.Symbol
		}
		if symbol == "" {
			symbol = strings.ToUpper(strings.TrimSuffix(base, filepath.Ext(base)))
		}
		if provenance == "" {
			provenance = "file:" + base
		}
		return source{id: stream.Identity{Symbol: strings.ToUpper(symbol), Interval: interval, Provenance: provenance}, bars: bars}, nil
	}

	if symbol == "" {
		symbol = a.Config.Stream.Symbol
	}
	if symbol == "" {
		return source{}, apperrors.NewValidationError("symbol", symbol, "a bar file or --symbol is required")
	}
	from, to, err := timeRange(cmd)
	if err != nil {
		return source{}, err
	}
	ds, err := a.openStore()
	if err != nil {
		return source{}, err
	}
	bars, err := ds.GetBars(ctx, strings.ToUpper(symbol), interval, from, to)
	if err != nil {
		return source{}, err
	}
	if len(bars) == 0 {
		return source{}, apperrors.NewDataError("bars", symbol+"/"+interval, "no stored bars", apperrors.ErrDataNotFound)
	}
	if provenance == "" {
		provenance = "sqlite"
	}
	return source{id: stream.Identity{Symbol: strings.ToUpper(symbol), Interval: interval, Provenance: provenance}, bars: bars}, nil
}

func timeRange(cmd *cobra.Command) (from, to time.Time, err error) {
	if v, _ := cmd.Flags().GetString("from"); v != "" {
		if from, err = store.ParseTimestamp(v); err != nil {
			return from, to, apperrors.NewValidationError("from", v, err.Error())
		}
	}
	if v, _ := cmd.Flags().GetString("to"); v != "" {
		if to, err = store.ParseTimestamp(v); err != nil {
			return from, to, apperrors.NewValidationError("to", v, err.Error())
		}
	}
	return from, to, nil
}

// runResult summarises one engine run.
type runResult struct {
	chain      *engine.Chain
	violations []string
	elapsed    time.Duration
}

// run feeds src through a new chain, publishing into p when non-nil. It stops
// before the next bar once ctx is done.
func (a *App) run(ctx context.Context, src source, opts engine.Options, p *pipeline) (runResult, error) {
	logger := logging.WithStream(a.Logger, src.id.ID().String(), src.id.Symbol, src.id.Interval)
	chain, err := engine.NewChain(opts, logger)
	if err != nil {
		return runResult{}, err
	}
	if p != nil {
		chain.SetObserver(p.observer(src.id, metrics.Label(src.id.Symbol, src.id.Interval, 0)))
	}

	res := runResult{chain: chain}
	start := time.Now()
	for _, bar := range src.bars {
		if err := ctx.Err(); err != nil {
			res.elapsed = time.Since(start)
			return res, err
		}
		snap, err := chain.Step(bar)
		if err != nil {
			res.elapsed = time.Since(start)
			return res, err
		}
		for _, v := range snap.Violations {
			res.violations = append(res.violations, fmt.Sprintf("bar %d %s %s: %s", snap.BarIndex, v.Code, v.Key, v.Detail))
		}
	}
	res.elapsed = time.Since(start)
	return res, nil
}

type levelReport struct {
	Level       int                   `json:"level"`
	Pivots      []models.Pivot        `json:"pivots"`
	Moves       []models.Move         `json:"moves"`
	Divergences []models.Divergence   `json:"divergences"`
	Points      []models.BuySellPoint `json:"points"`
}

type analysisReport struct {
	Stream      stream.Identity  `json:"stream"`
	StreamID    string           `json:"stream_id"`
	Bars        int              `json:"bars"`
	Merged      int              `json:"merged"`
	Fractals    int              `json:"fractals"`
	Strokes     []models.Stroke  `json:"strokes"`
	Segments    []models.Segment `json:"segments"`
	Levels      []levelReport    `json:"levels"`
	Events      int              `json:"events"`
	Violations  []string         `json:"violations"`
	Fingerprint string           `json:"fingerprint"`
	Elapsed     string           `json:"elapsed"`
}

func newAnalysisReport(src source, res runResult) analysisReport {
	r := analysisReport{
		Stream:      src.id,
		StreamID:    src.id.ID().String(),
		Bars:        res.chain.Len(),
		Events:      len(res.chain.Events()),
		Violations:  res.violations,
		Fingerprint: res.chain.Fingerprint(),
		Elapsed:     FormatDuration(res.elapsed),
	}
	if snap := res.chain.Last(); snap != nil {
		r.Merged = len(snap.Merged)
		r.Fractals = len(snap.Fractals)
		r.Strokes = snap.Strokes
		r.Segments = snap.Segments
		for _, l := range snap.Levels {
			r.Levels = append(r.Levels, levelReport{
				Level:       l.Level,
				Pivots:      l.Pivots,
				Moves:       l.Moves,
				Divergences: l.Divergences,
				Points:      l.Points,
			})
		}
	}
	return r
}

func newAnalyzeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [bars.csv|bars.parquet]",
		Short: "Run the structural engine over a bar series",
		Long: `Analyze a bar series and print its structure: strokes, segments, and
for every level the pivots, moves, divergences and buy/sell points.

Bars come from a CSV or Parquet file, or from the store with --symbol.
Events are delivered to the configured ledger and Kafka sinks; --save also
records them in the store.`,
		Example: `  chanlun analyze nifty_5m.csv
  chanlun analyze --symbol NIFTY --interval 5m --from 2024-01-01 --save
  chanlun analyze bars.parquet --stroke-mode wide --segment-algo v0 --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			opts, err := app.engineOptions(cmd)
			if err != nil {
				return err
			}
			src, err := app.loadSource(ctx, cmd, firstArg(args))
			if err != nil {
				return err
			}

			popts := pipelineOptions{}
			if save, _ := cmd.Flags().GetBool("save"); save {
				ds, err := app.openStore()
				if err != nil {
					return err
				}
				popts.Store = ds
			}
			popts.NoSinks, _ = cmd.Flags().GetBool("no-sinks")

			p, err := newPipeline(ctx, app.Config, app.Logger, popts)
			if err != nil {
				return err
			}
			res, runErr := app.run(ctx, src, opts, p)
			if err := p.Close(); err != nil {
				app.Logger.Warn().Err(err).Msg("Pipeline close failed")
			}
			if runErr != nil {
				if res.chain != nil {
					output.Error("Stopped at bar %d: %v", res.chain.Len(), runErr)
				}
				return runErr
			}

			report := newAnalysisReport(src, res)
			if output.IsJSON() {
				return output.JSON(report)
			}
			tail, _ := cmd.Flags().GetInt("tail")
			displayAnalysis(output, report, tail)
			if show, _ := cmd.Flags().GetBool("events"); show {
				output.Println()
				displayEvents(output, storedEvents(res.chain), tail)
			}
			if n := p.failures(); n > 0 {
				output.Warning("%d envelope deliveries failed; see the log", n)
			}
			return nil
		},
	}

	addSourceFlags(cmd)
	addEngineFlags(cmd)
	cmd.Flags().Bool("save", false, "record events in the store")
	cmd.Flags().Bool("no-sinks", false, "skip the configured ledger and Kafka sinks")
	cmd.Flags().Bool("events", false, "print the emitted events")
	cmd.Flags().Int("tail", 10, "rows to show per table")

	return cmd
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func tailOf[T any](items []T, n int) []T {
	if n <= 0 || len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}

func displayAnalysis(output *Output, r analysisReport, tail int) {
	output.Bold("%s", r.Stream.String())
	output.Dim("  stream %s", r.StreamID)
	output.Printf("  Bars %d  merged %d  fractals %d  strokes %d  segments %d  levels %d\n",
		r.Bars, r.Merged, r.Fractals, len(r.Strokes), len(r.Segments), len(r.Levels))
	output.Printf("  Events %d  fingerprint %s  in %s\n", r.Events, output.BoldText(ShortFingerprint(r.Fingerprint)), r.Elapsed)
	if len(r.Violations) > 0 {
		output.Warning("  %d invariant violations", len(r.Violations))
		for _, v := range tailOf(r.Violations, tail) {
			output.Printf("    %s\n", v)
		}
	}
	output.Println()

	if len(r.Strokes) > 0 {
		output.Bold("Strokes")
		t := NewTable(output, "#", "Bars", "Dir", "From", "To", "Status")
		first := len(r.Strokes) - len(tailOf(r.Strokes, tail))
		for i, s := range tailOf(r.Strokes, tail) {
			t.AddRow(fmt.Sprint(first+i), FormatSpan(s.StartBar, s.EndBar), output.Direction(s.Direction),
				FormatPrice(s.StartPrice), FormatPrice(s.EndPrice), output.Status(s.Confirmed))
		}
		t.Render()
		output.Println()
	}

	if len(r.Segments) > 0 {
		output.Bold("Segments")
		t := NewTable(output, "#", "Strokes", "Dir", "From", "To", "Break", "Status")
		first := len(r.Segments) - len(tailOf(r.Segments, tail))
		for i, s := range tailOf(r.Segments, tail) {
			brk := "-"
			switch {
			case s.BreakPending:
				brk = output.Yellow("pending")
			case s.Break.Valid && s.Break.Gap:
				brk = "gap"
			case s.Break.Valid:
				brk = "direct"
			}
			from := FormatPrice(s.StartPrice)
			if s.Degenerate() {
				from = output.Red(from + " !")
			}
			t.AddRow(fmt.Sprint(first+i), FormatSpan(s.StartStroke, s.EndStroke), output.Direction(s.Direction),
				from, FormatPrice(s.EndPrice), brk, output.Status(s.Confirmed))
		}
		t.Render()
		output.Println()
	}

	for _, l := range r.Levels {
		displayLevel(output, l, tail)
	}
}

func displayLevel(output *Output, l levelReport, tail int) {
	output.Bold("Level %d", l.Level)
	if len(l.Pivots) == 0 {
		output.Dim("  no pivots")
		output.Println()
		return
	}

	t := NewTable(output, "Pivot", "Components", "Zone", "Range", "Status")
	first := len(l.Pivots) - len(tailOf(l.Pivots, tail))
	for i, p := range tailOf(l.Pivots, tail) {
		t.AddRow(fmt.Sprint(first+i), FormatSpan(p.SegStart, p.SegEnd), FormatRange(p.Low, p.High),
			FormatRange(p.RangeLow, p.RangeHigh), output.Status(p.Settled))
	}
	t.Render()

	if len(l.Moves) > 0 {
		output.Println()
		t = NewTable(output, "Move", "Kind", "Dir", "Pivots", "Range", "Status")
		for i, m := range tailOf(l.Moves, tail) {
			t.AddRow(fmt.Sprint(i), string(m.Kind), output.Direction(m.Direction),
				fmt.Sprint(m.PivotCount), FormatRange(m.Low, m.High), output.Status(m.Settled))
		}
		t.Render()
	}

	if len(l.Divergences) > 0 {
		output.Println()
		t = NewTable(output, "Divergence", "Kind", "Dir", "Leg A", "Leg C", "Force A", "Force C")
		for i, d := range tailOf(l.Divergences, tail) {
			t.AddRow(fmt.Sprint(i), string(d.Kind), output.Direction(d.Direction),
				FormatSpan(d.AStart, d.AEnd), FormatSpan(d.CStart, d.CEnd),
				FormatPrice(d.ForceA), FormatPrice(d.ForceC))
		}
		t.Render()
	}

	if len(l.Points) > 0 {
		output.Println()
		t = NewTable(output, "Point", "Class", "Side", "Segment", "Price", "Status")
		for i, p := range tailOf(l.Points, tail) {
			class := string(p.Class)
			if p.OverlapsWith != "" {
				class += "+" + string(p.OverlapsWith)
			}
			t.AddRow(fmt.Sprint(i), class, output.Side(p.Side), fmt.Sprint(p.SegIndex),
				FormatPrice(p.Price), output.Status(p.Confirmed))
		}
		t.Render()
	}
	output.Println()
}

func storedEvents(chain *engine.Chain) []store.StoredEvent {
	rows, err := store.FromEvents(chain.Events())
	if err != nil {
		return nil
	}
	return rows
}

func displayEvents(output *Output, rows []store.StoredEvent, tail int) {
	output.Bold("Events")
	t := NewTable(output, "Seq", "Bar", "Time", "Kind", "Level", "Key", "ID")
	for _, e := range tailOf(rows, tail) {
		kind := e.Kind
		if e.Layer == "invariant" {
			kind = output.Red(kind)
		}
		t.AddRow(fmt.Sprint(e.Seq), fmt.Sprint(e.BarIndex), FormatUnix(e.BarTime), kind,
			fmt.Sprint(e.Level), TruncateString(e.Key, 28), e.ID)
	}
	t.Render()
}

type fingerprintReport struct {
	Stream      stream.Identity `json:"stream"`
	StreamID    string          `json:"stream_id"`
	Bars        int             `json:"bars"`
	Events      int             `json:"events"`
	Fingerprint string          `json:"fingerprint"`
	Ledger      *ledgerCheck    `json:"ledger,omitempty"`
}

type ledgerCheck struct {
	Path        string `json:"path"`
	Entries     int    `json:"entries"`
	ChainValid  bool   `json:"chain_valid"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Matches     bool   `json:"matches"`
	Error       string `json:"error,omitempty"`
}

func newFingerprintCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fingerprint [bars.csv|bars.parquet]",
		Short: "Compute a stream's event fingerprint",
		Long: `Run the engine without sinks and print the chained fingerprint of the
emitted events. Identical bars and options always produce the same value.

With --ledger, the ledger's hash chain is verified and its final
fingerprint for this stream is compared with the recomputed one.`,
		Example: `  chanlun fingerprint nifty_5m.csv
  chanlun fingerprint nifty_5m.csv --ledger ~/.config/chanlun/ledger/events.jsonl`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			opts, err := app.engineOptions(cmd)
			if err != nil {
				return err
			}
			src, err := app.loadSource(cmd.Context(), cmd, firstArg(args))
			if err != nil {
				return err
			}
			res, err := app.run(cmd.Context(), src, opts, nil)
			if err != nil {
				return err
			}

			report := fingerprintReport{
				Stream:      src.id,
				StreamID:    src.id.ID().String(),
				Bars:        res.chain.Len(),
				Events:      len(res.chain.Events()),
				Fingerprint: res.chain.Fingerprint(),
			}
			if path, _ := cmd.Flags().GetString("ledger"); path != "" {
				report.Ledger = checkLedger(path, report.StreamID, report.Fingerprint)
			}

			if output.IsJSON() {
				if err := output.JSON(report); err != nil {
					return err
				}
			} else {
				output.Bold("%s", src.id.String())
				output.Printf("  Bars %d  events %d\n", report.Bars, report.Events)
				output.Println(report.Fingerprint)
				if lc := report.Ledger; lc != nil {
					output.Println()
					displayLedgerCheck(output, lc)
				}
			}
			if lc := report.Ledger; lc != nil && (!lc.ChainValid || !lc.Matches) {
				return apperrors.NewDataError("ledger", report.StreamID, "verification failed", apperrors.ErrFingerprint)
			}
			return nil
		},
	}

	addSourceFlags(cmd)
	addEngineFlags(cmd)
	cmd.Flags().String("ledger", "", "verify a JSONL event ledger against the run")

	return cmd
}

func checkLedger(path, streamID, want string) *ledgerCheck {
	lc := &ledgerCheck{Path: path}
	f, err := os.Open(path)
	if err != nil {
		lc.Error = err.Error()
		return lc
	}
	defer f.Close()

	entries, err := ledger.Read(f)
	if err != nil {
		lc.Error = err.Error()
		return lc
	}
	lc.Entries = len(entries)
	if err := ledger.Verify(entries); err != nil {
		lc.Error = err.Error()
		return lc
	}
	lc.ChainValid = true
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].StreamID == streamID {
			lc.Fingerprint = entries[i].BarFingerprint
			break
		}
	}
	lc.Matches = lc.Fingerprint == want
	return lc
}

func displayLedgerCheck(output *Output, lc *ledgerCheck) {
	output.Bold("Ledger %s", lc.Path)
	output.Printf("  Entries %d\n", lc.Entries)
	switch {
	case lc.Error != "":
		output.Error("  ✗ %s", lc.Error)
	case lc.Fingerprint == "":
		output.Warning("  Stream not present in the ledger")
	case lc.Matches:
		output.Success("  ✓ Chain intact and fingerprint matches")
	default:
		output.Error("  ✗ Ledger fingerprint %s differs", ShortFingerprint(lc.Fingerprint))
	}
}
