package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pleasantbot/pleasantdash/internal/api"
	"github.com/pleasantbot/pleasantdash/internal/botserver"
	"github.com/pleasantbot/pleasantdash/internal/config"
	"github.com/pleasantbot/pleasantdash/internal/health"
	"github.com/pleasantbot/pleasantdash/internal/metrics"
	"github.com/pleasantbot/pleasantdash/internal/store"
)

const shutdownTimeout = 60 * time.Second

func newServeCmd() *cobra.Command {
	var withBot bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return serve(cfg, withBot)
		},
	}
	cmd.Flags().BoolVar(&withBot, "with-bot", false, "also run the bot API from backend.database")
	return cmd
}

func newBotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Serve the bot API over a local database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			stop, err := startBot(cfg.Backend)
			if err != nil {
				return err
			}
			waitForSignal()
			return stop()
		},
	}
	cmd.AddCommand(newChatCmd(), newQuoteCmd(), newBanCmd())
	return cmd
}

// startBot opens the database and serves the bot API on it.
func startBot(bc config.BackendConfig) (func() error, error) {
	st, err := store.NewSQLiteStore(bc.Database)
	if err != nil {
		return nil, fmt.Errorf("opening bot database: %w", err)
	}
	srv := botserver.New(st)
	if err := srv.Start(bc.Listen); err != nil {
		st.Close()
		return nil, fmt.Errorf("starting bot API: %w", err)
	}
	slog.Info("bot API ready", "addr", bc.Listen, "database", bc.Database)

	return func() error {
		if err := srv.Stop(); err != nil {
			slog.Warn("bot API shutdown", "err", err)
		}
		return st.Close()
	}, nil
}

func serve(cfg *config.Config, withBot bool) error {
	slog.Info("PleasantDash starting...")

	var stopBot func() error
	if withBot {
		var err error
		if stopBot, err = startBot(cfg.Backend); err != nil {
			return err
		}
	}

	m := metrics.New()
	hc := health.NewChecker(m, cfg.HealthCheck)
	hc.Start()

	srv := api.NewServer(cfg, hc, m)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("starting dashboard: %w", err)
	}

	// Set up config hot-reload
	var watcher *config.Watcher
	if _, err := os.Stat(configPath); err == nil {
		watcher, err = config.NewWatcher(configPath, func(newCfg *config.Config) {
			slog.Info("reloading configuration...")
			if botURL != "" {
				newCfg.Bot.URL = botURL
			}
			srv.UpdateConfig(newCfg)
		})
		if err != nil {
			slog.Warn("config hot-reload not available", "err", err)
		}
	}

	slog.Info("PleasantDash ready", "addr", cfg.Listen.Addr(), "bot_url", cfg.Bot.URL)
	printBanner(cfg)

	waitForSignal()

	// Graceful shutdown with timeout
	done := make(chan struct{})
	go func() {
		if watcher != nil {
			watcher.Stop()
		}
		srv.Stop()
		hc.Stop()
		if stopBot != nil {
			stopBot()
		}
		close(done)
	}()

	select {
	case <-done:
		slog.Info("PleasantDash stopped")
		return nil
	case <-time.After(shutdownTimeout):
		return fmt.Errorf("shutdown timed out after %s", shutdownTimeout)
	}
}

func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received signal, shutting down...", "signal", sig)
}
