package cli

import (
	"github.com/spf13/cobra"
)

// addHelpCommands adds help and documentation commands.
func addHelpCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newCommandsCmd())
	rootCmd.AddCommand(newExamplesCmd())
}

type commandHelp struct {
	cmd  string
	desc string
}

var commandCategories = []struct {
	name     string
	commands []commandHelp
}{
	{
		name: "Analysis",
		commands: []commandHelp{
			{"analyze [file]", "Strokes, segments, levels, divergences and buy/sell points"},
			{"replay [file]", "Seek, step or play bars through the engine"},
			{"fingerprint [file]", "Chained event fingerprint, optionally checked against a ledger"},
			{"batch <files...>", "Several streams on a worker pool"},
		},
	},
	{
		name: "Data",
		commands: []commandHelp{
			{"import <file>", "Load CSV or Parquet bars into the store"},
			{"export <file>", "Write stored bars to CSV or Parquet"},
			{"streams", "List stored bar series"},
			{"events", "Query events saved with --save"},
		},
	},
	{
		name: "Utility",
		commands: []commandHelp{
			{"config show/path/validate", "Configuration"},
			{"version", "Version information"},
			{"examples", "Common workflows"},
		},
	},
}

func newCommandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List all commands by category",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				out := make(map[string]map[string]string)
				for _, cat := range commandCategories {
					out[cat.name] = make(map[string]string)
					for _, c := range cat.commands {
						out[cat.name][c.cmd] = c.desc
					}
				}
				return output.JSON(out)
			}

			output.Bold("chanlun commands")
			output.Println()
			for _, cat := range commandCategories {
				output.Info("%s", cat.name)
				for _, c := range cat.commands {
					output.Printf("  %s %s\n", PadRight(c.cmd, 28), output.DimText(c.desc))
				}
				output.Println()
			}
			return nil
		},
	}
}

func newExamplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "examples",
		Short: "Show common workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			output.Bold("Analyse a file")
			output.Println("  chanlun analyze nifty_5m.csv --tail 5")
			output.Println("  chanlun analyze nifty_5m.csv --stroke-mode wide --segment-algo v0")
			output.Println()

			output.Bold("Keep bars and events in the store")
			output.Println("  chanlun import nifty_5m.csv -s NIFTY -i 5m")
			output.Println("  chanlun analyze -s NIFTY -i 5m --save")
			output.Println("  chanlun events -s NIFTY -i 5m --provenance sqlite --layer bsp")
			output.Println()

			output.Bold("Replay")
			output.Println("  chanlun replay nifty_5m.csv --seek 200 --events")
			output.Println("  chanlun replay nifty_5m.csv --play --delay 100ms")
			output.Println()

			output.Bold("Verify determinism")
			output.Println("  chanlun fingerprint nifty_5m.csv")
			output.Println("  CHANLUN_LEDGER_ENABLED=true chanlun analyze nifty_5m.csv")
			output.Println("  chanlun fingerprint nifty_5m.csv --ledger ~/.config/chanlun/ledger/events.jsonl")
			output.Println()

			output.Bold("Many streams")
			output.Println("  CHANLUN_METRICS_ENABLED=true chanlun batch data/*.parquet --workers 8")
			return nil
		},
	}
}
