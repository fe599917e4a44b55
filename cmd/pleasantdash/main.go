package main

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pleasantbot/pleasantdash/internal/config"
)

const defaultConfigPath = "configs/pleasantdash.yaml"

var (
	configPath string
	botURL     string
	envFiles   []string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "pleasantdash",
		Short:         "PleasantBot dashboard and bot API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "path to configuration file (.yaml or .toml)")
	rootCmd.PersistentFlags().StringVar(&botURL, "bot-url", "", "bot API base URL, overrides bot.url")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files loaded before the config")

	rootCmd.AddCommand(
		newServeCmd(),
		newBotCmd(),
		newCommandsCmd(),
		newQuotesCmd(),
		newStatsCmd(),
		newBansCmd(),
		newAuthCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the env files and the config. A missing file at the
// default path yields the defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := config.LoadEnvFiles(envFiles...); err != nil {
		return nil, err
	}

	var cfg *config.Config
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config") {
		cfg = config.Default()
	} else {
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, err
		}
	}

	if botURL != "" {
		cfg.Bot.URL = botURL
	}
	slog.SetDefault(newLogger(cfg.Log))
	return cfg, nil
}

func newLogger(lc config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(lc.Level) {
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
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
