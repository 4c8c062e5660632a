package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"webuibot/internal/bus"
	"webuibot/internal/channel"
	"webuibot/internal/config"
	"webuibot/internal/domain"
	"webuibot/internal/logging"
	"webuibot/internal/metrics"
	"webuibot/internal/provider"
	"webuibot/internal/relay"
)

var (
	version = "0.1.0"
	logger  *slog.Logger
	envFile string // overridable via --env-file flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "webuibot",
		Short: "Telegram relay for Open WebUI chat completions",
		Long:  "webuibot forwards Telegram messages to an Open WebUI compatible chat endpoint and replies with the generated answer.",
	}

	root.PersistentFlags().StringVarP(&envFile, "env-file", "e", "", "path to a dotenv file (default: config/.env, then .env)")

	root.AddCommand(runCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(initCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(configCmd())
	root.AddCommand(daemonCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig pre-populates the environment from the dotenv file, then
// resolves and validates the configuration.
func loadConfig() (*config.Config, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return nil, err
	}
	return config.Load()
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the Telegram relay",
		RunE:  runBot,
	}
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := logging.Setup(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	logger = log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messageBus := bus.New(100, logger)

	prov := provider.NewOpenWebUI(provider.OpenWebUIConfig{
		Endpoint:     cfg.ChatEndpoint,
		AuthToken:    cfg.AuthToken,
		Model:        cfg.Model,
		CollectionID: cfg.CollectionID,
		SystemPrompt: cfg.SystemPrompt,
		Logger:       logger,
	})
	if err := prov.Healthy(ctx); err != nil {
		logger.Warn("endpoint not reachable at startup", "endpoint", cfg.ChatEndpoint, "err", err)
	} else {
		logger.Info("endpoint reachable", "endpoint", cfg.ChatEndpoint, "model", cfg.Model)
	}

	rl := relay.New(relay.Config{
		Provider: prov,
		Bus:      messageBus,
		Welcome:  cfg.WelcomeMessage,
		Logger:   logger,
	})
	go rl.Run(ctx)

	startMetrics(ctx, cfg.MetricsAddr)

	tg := channel.NewTelegram(channel.TelegramConfig{
		Token:  cfg.TelegramToken,
		Logger: logger,
	})
	chErr := make(chan error, 1)
	go func() { chErr <- tg.Start(ctx, messageBus) }()

	logger.Info("webuibot started. Press Ctrl+C to stop.", "version", version)

	select {
	case err := <-chErr:
		if err != nil {
			logger.Error("telegram channel failed", "err", err)
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down...")
	return shutdown(tg, messageBus)
}

// shutdown stops the channel and closes the bus, bounded by a timeout so
// a stuck handler cannot hold the process forever.
func shutdown(ch domain.Channel, messageBus *bus.InMemoryBus) error {
	const shutdownTimeout = 10 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := ch.Stop(); err != nil {
			logger.Warn("channel stop failed", "err", err)
		}
		messageBus.Close()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
		return nil
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		return errors.New("shutdown timed out")
	}
}

// startMetrics serves Prometheus exposition on addr when configured.
// The listener dies with ctx.
func startMetrics(ctx context.Context, addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Collector.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Info("metrics listener started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listener failed", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat with the endpoint from the terminal",
		RunE:  runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// The REPL owns stdout, so chat keeps the stderr bootstrap logger
	// instead of the stdout+file setup used by run.

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messageBus := bus.New(100, logger)
	defer messageBus.Close()

	prov := provider.NewOpenWebUI(provider.OpenWebUIConfig{
		Endpoint:     cfg.ChatEndpoint,
		AuthToken:    cfg.AuthToken,
		Model:        cfg.Model,
		CollectionID: cfg.CollectionID,
		SystemPrompt: cfg.SystemPrompt,
		Logger:       logger,
	})
	rl := relay.New(relay.Config{
		Provider: prov,
		Bus:      messageBus,
		Welcome:  cfg.WelcomeMessage,
		Logger:   logger,
	})
	go rl.Run(ctx)

	cli := channel.NewCLI(channel.CLIConfig{Logger: logger})
	return cli.Start(ctx, messageBus)
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the resolved configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print the resolved configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			for _, v := range config.Vars(config.Sanitize(cfg)) {
				fmt.Printf("%s=%s\n", v.Name, v.Value)
			}
			return nil
		},
	})

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("webuibot v%s\n", version)
		},
	}
}
