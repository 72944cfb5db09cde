package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"chanlun/internal/engine"
	"chanlun/internal/logging"
	"chanlun/internal/replay"
)

func newReplayCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay [bars.csv|bars.parquet]",
		Short: "Step, seek and play a bar series through the engine",
		Long: `Replay a bar series bar by bar. --seek positions the session on an
inclusive bar index by replaying from the start, --step feeds more bars, and
--play runs to the end, printing every bar that emitted events.

The final status carries the fingerprint, which matches a straight run over
the same bars.`,
		Example: `  chanlun replay nifty_5m.csv --seek 120
  chanlun replay nifty_5m.csv --seek 120 --step 5 --events
  chanlun replay nifty_5m.csv --play --delay 200ms`,
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
			logger := logging.WithStream(app.Logger, src.id.ID().String(), src.id.Symbol, src.id.Interval)
			chain, err := engine.NewChain(opts, logger)
			if err != nil {
				return err
			}
			session := replay.NewSession(chain, src.bars, logger)
			showEvents, _ := cmd.Flags().GetBool("events")

			if cmd.Flags().Changed("seek") {
				k, _ := cmd.Flags().GetInt("seek")
				snap, err := session.Seek(k)
				if err != nil {
					return err
				}
				if snap != nil && !output.IsJSON() {
					printBar(output, snap, showEvents)
				}
			}
			if n, _ := cmd.Flags().GetInt("step"); n > 0 {
				from := chain.Len()
				if _, err := session.Step(n); err != nil {
					return err
				}
				if !output.IsJSON() {
					printSince(output, chain, from, showEvents)
				}
			}
			if play, _ := cmd.Flags().GetBool("play"); play {
				delay, _ := cmd.Flags().GetDuration("delay")
				err := session.Play(cmd.Context(), delay, func(snap *engine.Snapshot) error {
					if !output.IsJSON() && len(snap.Events) > 0 {
						printBar(output, snap, showEvents)
					}
					return nil
				})
				if err != nil {
					return err
				}
			}

			st := session.Status()
			if output.IsJSON() {
				return output.JSON(st)
			}
			output.Println()
			displayStatus(output, st)
			return nil
		},
	}

	addSourceFlags(cmd)
	addEngineFlags(cmd)
	cmd.Flags().Int("seek", -1, "position on this bar index (-1 rewinds)")
	cmd.Flags().Int("step", 0, "feed this many more bars")
	cmd.Flags().Bool("play", false, "feed the remaining bars")
	cmd.Flags().Duration("delay", 0, "pause between bars while playing")
	cmd.Flags().Bool("events", false, "print every event, not only counts")

	return cmd
}

// printSince prints the snapshots of bars fed after position from. Only the
// latest snapshot is retained by the chain, so earlier bars show events only.
func printSince(output *Output, chain *engine.Chain, from int, showEvents bool) {
	last := chain.Last()
	if last == nil {
		return
	}
	byBar := make(map[int]int)
	for _, e := range chain.Events() {
		if e.BarIndex >= from && e.BarIndex < last.BarIndex {
			byBar[e.BarIndex]++
		}
	}
	for i := from; i < last.BarIndex; i++ {
		if n := byBar[i]; n > 0 {
			output.Dim("bar %-6d %d events", i, n)
		}
	}
	printBar(output, last, showEvents)
}

func printBar(output *Output, snap *engine.Snapshot, showEvents bool) {
	line := fmt.Sprintf("bar %-6d %s  close %s  strokes %d  segments %d  levels %d",
		snap.BarIndex, FormatTime(snap.Bar.Timestamp), FormatPrice(snap.Bar.Close),
		len(snap.Strokes), len(snap.Segments), len(snap.Levels))
	if len(snap.Events) > 0 {
		line += "  " + output.BoldText(fmt.Sprintf("+%d events", len(snap.Events)))
	}
	if len(snap.Violations) > 0 {
		line += "  " + output.Red(fmt.Sprintf("%d violations", len(snap.Violations)))
	}
	output.Println(line)
	if !showEvents {
		return
	}
	for _, e := range snap.Events {
		kind := string(e.Kind)
		if e.IsViolation() {
			kind = output.Red(kind)
		}
		output.Printf("    %s L%d %s %s\n", PadRight(kind, 24), e.Level, e.Key, output.DimText(e.ID))
	}
}

func displayStatus(output *Output, st replay.Status) {
	state := "paused"
	if st.Done {
		state = "done"
	}
	output.Bold("Replay %s at %d/%d", state, st.Position, st.Total)
	output.Printf("  Events %d  violations %d\n", st.Events, st.Violations)
	output.Printf("  Fingerprint %s\n", st.Fingerprint)
	if st.Total > 0 {
		width := 40
		filled := st.Position * width / st.Total
		output.Dim("  [%s%s]", strings.Repeat("█", filled), strings.Repeat("·", width-filled))
	}
}
