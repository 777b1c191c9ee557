package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/insolvency-docs/internal/app"
	"github.com/joseph-ayodele/insolvency-docs/internal/common"
	"github.com/joseph-ayodele/insolvency-docs/internal/core"
	"github.com/joseph-ayodele/insolvency-docs/internal/core/async"
	"github.com/joseph-ayodele/insolvency-docs/internal/export"
	"github.com/joseph-ayodele/insolvency-docs/internal/ingest"
	"github.com/joseph-ayodele/insolvency-docs/internal/server"
)

const shutdownGrace = 30 * time.Second

func main() {
	fs := pflag.NewFlagSet("docflowd", pflag.ExitOnError)
	cfg, err := common.Load(fs, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	logger := common.NewLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("docflowd exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *common.Config, logger *slog.Logger) error {
	docs, err := app.OpenDocuments(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer docs.Close()
	health := docs.Health

	blobs, closeBlobs, err := app.OpenBlobs(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeBlobs()

	recognizer, err := core.NewRecognizer(cfg)
	if err != nil {
		return err
	}
	pipeline := core.NewPipeline(cfg, logger)
	proxies, err := server.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}

	assessor, closeAssessor, err := app.NewAssessor(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeAssessor()
	processor := core.NewProcessor(logger.With("component", "processor"), blobs, pipeline, recognizer, docs, assessor)

	trigger, closeTrigger, err := app.NewTrigger(ctx, cfg, processor, true, logger)
	if err != nil {
		return err
	}
	defer closeTrigger()
	queue := async.NewProcessorQueue(trigger, docs,
		async.WithProcessTimeout(cfg.Queue.TaskTimeout),
		async.WithLogger(logger.With("component", "queue")),
	)

	intake := ingest.NewIntake(docs, blobs, queue, logger.With("component", "intake"))

	httpHandler := server.NewHTTP(server.Deps{
		Intake:         intake,
		Inspector:      processor,
		Documents:      docs,
		Exporter:       export.NewService(docs, logger.With("component", "export")),
		Queue:          queue,
		Health:         health,
		Logger:         logger.With("component", "http"),
		RateLimit:      cfg.Server.RateLimit,
		RateBurst:      cfg.Server.RateBurst,
		TrustedProxies: proxies,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})
	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           httpHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcSrv := server.NewGRPC(logger.With("component", "grpc"))
	grpcLis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.GRPCAddr, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http listening", "addr", cfg.Server.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("grpc health listening", "addr", cfg.Server.GRPCAddr)
		if err := grpcSrv.Server.Serve(grpcLis); err != nil {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		grpcSrv.WatchHealth(gctx, 15*time.Second, health)
		return nil
	})
	if cfg.Ingest.InboxDir != "" {
		g.Go(func() error {
			err := intake.Watch(gctx, ingest.WatchConfig{
				Roots:       []string{cfg.Ingest.InboxDir},
				InitialScan: true,
				Debounce:    cfg.Ingest.Debounce,
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("inbox watcher: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		if err := httpSrv.Shutdown(sctx); err != nil {
			logger.Warn("http shutdown", "error", err)
		}
		grpcSrv.Stop()
		if err := queue.Shutdown(sctx); err != nil {
			logger.Warn("queue shutdown", "error", err)
		}
		return nil
	})

	logger.Info("docflowd started",
		"database", cfg.Database.Driver,
		"storage", cfg.Storage.Backend,
		"analysis", cfg.Analysis.Mode,
		"ocr_policy", cfg.Extraction.OCRPolicy,
	)
	return g.Wait()
}
