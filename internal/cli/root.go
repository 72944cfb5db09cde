// Package cli provides the command-line interface for chanlun.
package cli

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"chanlun/internal/config"
	"chanlun/internal/logging"
	"chanlun/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-06-01"
)

// App holds the application dependencies.
type App struct {
	Config    *config.Config
	ConfigDir string
	Logger    zerolog.Logger

	store *store.SQLiteStore
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config:    cfg,
		ConfigDir: config.DefaultConfigDir(),
		Logger:    logger,
	}

	rootCmd := &cobra.Command{
		Use:   "chanlun",
		Short: "Chan-theory structural analysis of OHLC bar streams",
		Long: `chanlun turns OHLC bars into strokes, segments, pivots and moves,
stacks them into recursive levels and classifies divergences and buy/sell
points. Every bar emits identity-aware events with a chained fingerprint,
so any run can be replayed and verified.

Use 'chanlun examples' to see common workflows.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if dir, _ := cmd.Flags().GetString("config"); dir != "" {
				loaded, err := config.Load(dir)
				if err != nil {
					return err
				}
				app.Config = loaded
				app.ConfigDir = dir
				app.Logger = logging.NewLoggerWithConfig(loaded.LogConfig())
			}
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.closeStore()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/chanlun)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable coloured output")

	addCoreCommands(rootCmd, app)
	addAnalysisCommands(rootCmd, app)
	addDataCommands(rootCmd, app)
	addHelpCommands(rootCmd, app)

	return rootCmd
}

// openStore opens the configured SQLite store once per invocation.
func (a *App) openStore() (*store.SQLiteStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	s, err := store.NewSQLiteStore(a.Config.Store.Path)
	if err != nil {
		return nil, err
	}
	s.SetLogger(a.Logger)
	a.store = s
	a.Logger.Debug().Str("path", a.Config.Store.Path).Msg("SQLite store opened")
	return s, nil
}

func (a *App) closeStore() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("chanlun v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate the configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			path := filepath.Join(app.ConfigDir, "config.toml")
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": path})
			}
			output.Println(path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Engine")
	output.Printf("  Stroke mode:     %s\n", cfg.Engine.StrokeMode)
	output.Printf("  Segment algo:    %s\n", cfg.Engine.SegmentAlgo)
	output.Printf("  Max levels:      %d\n", cfg.Engine.MaxLevels)
	output.Printf("  MACD:            %d/%d/%d\n", cfg.Engine.MACDFast, cfg.Engine.MACDSlow, cfg.Engine.MACDSignal)
	output.Println()

	output.Bold("Stream")
	output.Printf("  Symbol:          %s\n", orDash(cfg.Stream.Symbol))
	output.Printf("  Interval:        %s\n", cfg.Stream.Interval)
	output.Printf("  Provenance:      %s\n", cfg.Stream.Provenance)
	output.Println()

	output.Bold("Outputs")
	output.Printf("  Store:           %s\n", cfg.Store.Path)
	output.Printf("  Ledger:          %s\n", enabledPath(cfg.Ledger.Enabled, cfg.Ledger.Path))
	output.Printf("  Kafka:           %s\n", enabledPath(cfg.Kafka.Enabled, fmt.Sprintf("%v → %s", cfg.Kafka.Brokers, cfg.Kafka.Topic)))
	output.Printf("  Metrics:         %s\n", enabledPath(cfg.Metrics.Enabled, cfg.Metrics.Listen))
	output.Println()

	output.Bold("Logging")
	output.Printf("  Level:           %s\n", cfg.Logging.Level)
	output.Printf("  File:            %s\n", enabledPath(cfg.Logging.File, cfg.Logging.FilePath))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func enabledPath(enabled bool, detail string) string {
	if !enabled {
		return "disabled"
	}
	return detail
}
