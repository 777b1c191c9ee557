package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/joseph-ayodele/insolvency-docs/internal/common"
	"github.com/joseph-ayodele/insolvency-docs/internal/core"
	"github.com/joseph-ayodele/insolvency-docs/internal/mcp"
)

var version = "dev"

func main() {
	fs := pflag.NewFlagSet("docflow-mcp", pflag.ExitOnError)
	maxFileSize := fs.Int64("max-file-size", 100<<20, "largest PDF the extract tool will read, in bytes")

	cfg, err := common.Load(fs, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	// stdout carries the protocol
	logger := common.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recognizer, err := core.NewRecognizer(cfg)
	if err != nil {
		logger.Error("form catalog", "error", err)
		os.Exit(1)
	}
	processor := core.NewProcessor(logger, nil, core.NewPipeline(cfg, logger), recognizer, nil, nil)

	srv, err := mcp.NewServer(mcp.Config{
		Name:        "docflow",
		Version:     version,
		MaxFileSize: *maxFileSize,
	}, processor, recognizer, logger.With("component", "mcp"))
	if err != nil {
		logger.Error("create mcp server", "error", err)
		os.Exit(1)
	}
	if err := srv.Run(ctx); err != nil {
		logger.Error("mcp server stopped", "error", err)
		os.Exit(1)
	}
}
