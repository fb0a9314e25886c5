package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shelfwatch/shelfwatch/config"
)

const version = "0.1.0"

func main() {
	root := &cobra.Command{
		Use:           "shelfwatch",
		Short:         "Product page scraper with price tracking",
		Long:          "Shelfwatch scrapes product pages across an escalating fetch ladder,\nextracts normalized records and tracks prices over time.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(scrapeCmd())
	root.AddCommand(compareCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("shelfwatch " + version)
		},
	}
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
