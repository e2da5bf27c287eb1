package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joelkehle/lucidra-engine/internal/assessment"
	"github.com/joelkehle/lucidra-engine/internal/config"
	"github.com/joelkehle/lucidra-engine/internal/findings"
	"github.com/joelkehle/lucidra-engine/internal/httpapi"
	"github.com/joelkehle/lucidra-engine/internal/render"
	"github.com/joelkehle/lucidra-engine/internal/session"
	"github.com/joelkehle/lucidra-engine/internal/store"
	"github.com/joelkehle/lucidra-engine/internal/telemetry"
)

const shutdownGrace = 10 * time.Second

func serveCmd(configPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides LUCIDRA_HTTP_ADDR)")
	return cmd
}

func serve(parent context.Context, cfg *config.Config, logger *zap.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.Endpoint, cfg.Telemetry.ServiceName, logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	engine, err := buildEngine(cfg, cfg.FindingSources(), logger)
	if err != nil {
		return err
	}
	defs, err := loadDefinitions(cfg)
	if err != nil {
		return fmt.Errorf("load sections: %w", err)
	}
	svc := session.NewService(st, engine, session.WithLogger(logger), session.WithDefinitions(defs))
	handler := httpapi.NewServer(svc,
		httpapi.WithLogger(logger),
		httpapi.WithRenderer(render.New(render.WithChromePath(cfg.ChromePath))))

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("lucidra listening",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("store", storeKind(cfg)),
		zap.Bool("external_findings", engine.HasProvider()))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("lucidra stopped")
	return nil
}

func openStore(cfg *config.Config) (store.API, error) {
	if cfg.DBPath == "" {
		return store.NewMemory(), nil
	}
	st, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

func storeKind(cfg *config.Config) string {
	if cfg.DBPath == "" {
		return "memory"
	}
	return "sqlite"
}

// buildEngine wires the selected findings sources into an engine. No
// sources leaves the engine local-only.
func buildEngine(cfg *config.Config, sources []string, logger *zap.Logger) (*assessment.Engine, error) {
	provider, err := findings.Build(sources, findings.BuildOptions{
		Timeout:     cfg.Findings.Timeout,
		OpenAIModel: cfg.Findings.OpenAIModel,
		StaticPath:  cfg.Findings.StaticPath,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("findings: %w", err)
	}
	opts := []assessment.Option{assessment.WithLogger(logger)}
	if provider != nil {
		opts = append(opts, assessment.WithProvider(provider))
	}
	return assessment.NewEngine(opts...), nil
}
