package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/voxwire/voxwire-go/internal/config"
	"github.com/voxwire/voxwire-go/relay"
	"github.com/voxwire/voxwire-go/server"
	"github.com/voxwire/voxwire-go/tool"
)

var (
	flagPort      int
	flagPublicURL string
	flagEnvFile   string
	flagDebug     bool
)

var rootCmd = &cobra.Command{
	Use:   "voxwire",
	Short: "Bridge phone calls to a realtime voice model",
	Long: `voxwire connects a Twilio Media Stream (or a browser microphone
session) to a hosted realtime voice model and mirrors the conversation to a
monitoring UI over /logs.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func serve() error {
	if err := config.LoadEnvFile(flagEnvFile); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if flagPort != 0 {
		cfg.Port = flagPort
	}
	if flagPublicURL != "" {
		cfg.PublicURL = flagPublicURL
	}
	cfg.Debug = cfg.Debug || flagDebug

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	registry := tool.NewRegistry()

	opts := []relay.Option{
		relay.WithKey(cfg.OpenAIKey),
		relay.WithModel(cfg.Model),
		relay.WithVoice(cfg.Voice),
		relay.WithLogger(logger),
		relay.WithRegistry(registry),
	}
	if cfg.Instructions != "" {
		opts = append(opts, relay.WithInstructions(cfg.Instructions))
	}
	rly := relay.New(opts...)

	registry.Register(
		tool.Func("get_time", "Get the current date and time", nil),
		func(ctx context.Context, args map[string]any) (any, error) {
			return time.Now().Format(time.RFC3339), nil
		},
	)
	registry.Register(
		tool.Func("end_call", "End the call when the conversation is over", nil),
		func(ctx context.Context, args map[string]any) (any, error) {
			rly.HangUp()
			return "OK", nil
		},
	)

	srv := server.New(cfg, rly, logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			slog.Int("port", cfg.Port),
			slog.String("public_url", cfg.PublicURL),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info("shutting down")
	rly.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}

func init() {
	serveCmd.Flags().IntVar(&flagPort, "port", 0, "Listen port (overrides PORT)")
	serveCmd.Flags().StringVar(&flagPublicURL, "public-url", "", "Public base URL (overrides PUBLIC_URL)")
	serveCmd.Flags().StringVar(&flagEnvFile, "env-file", ".env", "Path to a .env file")
	serveCmd.Flags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
