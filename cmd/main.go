package main

import (
	"context"
	"errors"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytlink/internal/shared"
)

const defaultConfigPath = "config.toml"

// loadConfig reads path when it exists and falls back to the embedded defaults otherwise.
func loadConfig(logger *log.Logger, path string) *shared.Config {
	if _, err := os.Stat(path); err != nil {
		logger.Debug("config file not found, using defaults", "path", path)
		return shared.DefaultConfig()
	}
	config, err := shared.LoadConfig(path)
	if err != nil {
		logger.Warn("failed to load config, using defaults", "path", path, "error", err)
		return shared.DefaultConfig()
	}
	return config
}

func main() {
	logger := shared.NewLogger(nil)
	var runner *Runner

	app := &cli.Command{
		Name:    "ytlink",
		Usage:   "Link a YouTube channel, browse and save videos, and upload from the terminal or the web",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   defaultConfigPath,
				Sources: cli.EnvVars("YTLINK_CONFIG"),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool("debug") {
				shared.SetLogLevel(logger, log.DebugLevel)
			}
			path := cmd.String("config")
			runner.config = loadConfig(logger, path)
			runner.configPath = path
			return ctx, nil
		},
	}

	runner = NewRunner(RunnerOpts{Logger: logger, ConfigPath: defaultConfigPath})
	app.Commands = runner.register()

	err := app.Run(context.Background(), os.Args)
	if closeErr := runner.Close(); closeErr != nil {
		logger.Warn("failed to close database", "error", closeErr)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		logger.Fatalf("application error: %v", err)
	}
}
