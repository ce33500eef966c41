package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/perspectives-ai/rag/config"
	"github.com/perspectives-ai/rag/internal/app"
	"github.com/perspectives-ai/rag/internal/logging"
	"github.com/perspectives-ai/rag/internal/observability"
)

var version = "0.1.0"

// cli carries what PersistentPreRunE loaded to the subcommands
type cli struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
	tracer     *observability.TracerProvider
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:     "perspectives-ai",
		Short:   "Question answering over a research document collection",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.tracer == nil {
				return nil
			}
			return c.tracer.Shutdown(context.Background())
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&c.configPath, "config", config.DefaultPath(), "Config file path")

	rootCmd.AddCommand(
		c.serveCmd(),
		c.ingestCmd(),
		c.askCmd(),
		c.chatCmd(),
		c.documentsCmd(),
		c.migrateCmd(),
		c.providersCmd(),
		c.configCmd(),
	)
	return rootCmd
}

func (c *cli) setup(ctx context.Context) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	c.cfg = cfg
	c.logger = logging.New(os.Stderr, logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Debug:  cfg.Debug,
	})
	for _, w := range cfg.Validate() {
		c.logger.Warn("config", "warning", w)
	}

	c.tracer, err = observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	return nil
}

func (c *cli) open(ctx context.Context) (*app.App, error) {
	return app.New(ctx, c.cfg, c.logger)
}

// openCorpus opens the app for querying. An in-memory catalog is filled
// from the documents directory first.
func (c *cli) openCorpus(ctx context.Context) (*app.App, error) {
	a, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := a.Preload(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}
