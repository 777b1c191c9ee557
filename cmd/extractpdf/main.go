package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/joseph-ayodele/insolvency-docs/internal/common"
	"github.com/joseph-ayodele/insolvency-docs/internal/core"
	"github.com/joseph-ayodele/insolvency-docs/internal/export"
)

func main() {
	fs := pflag.NewFlagSet("extractpdf", pflag.ExitOnError)
	xlsxOut := fs.String("xlsx", "", "write a per-page workbook to this path")
	asJSON := fs.Bool("json", false, "print the full report as JSON instead of text")
	timeout := fs.Duration("timeout", 10*time.Minute, "overall extraction timeout")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: extractpdf [flags] <file.pdf>")
		fs.PrintDefaults()
	}

	cfg, err := common.Load(fs, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	logger := common.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}
	path := fs.Arg(0)
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		logger.Error("not a PDF", "path", path)
		os.Exit(2)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("read input", "path", path, "error", err)
		os.Exit(1)
	}

	recognizer, err := core.NewRecognizer(cfg)
	if err != nil {
		logger.Error("form catalog", "error", err)
		os.Exit(1)
	}
	processor := core.NewProcessor(logger, nil, core.NewPipeline(cfg, logger), recognizer, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	report, err := processor.Inspect(ctx, data)
	if err != nil && report == nil {
		logger.Error("text extraction failed", "path", path, "code", common.CodeOf(err).String(), "error", err)
		os.Exit(1)
	}
	res := report.Extraction
	logger.Info("text extraction finished",
		"path", path,
		"pages", res.TotalPages,
		"successful_pages", res.SuccessfulPages,
		"ocr_pages", res.OCRPages(),
		"form_type", report.FormType,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if *xlsxOut != "" {
		body, xerr := export.PagesXLSX(res)
		if xerr != nil {
			logger.Error("build workbook", "error", xerr)
			os.Exit(1)
		}
		if xerr := os.WriteFile(*xlsxOut, body, 0o644); xerr != nil {
			logger.Error("write workbook", "path", *xlsxOut, "error", xerr)
			os.Exit(1)
		}
	}

	if *asJSON {
		writeJSON(os.Stdout, report)
	} else {
		fmt.Fprint(os.Stdout, res.Text)
	}

	if err != nil {
		logger.Error("no meaningful text", "error", err)
		os.Exit(1)
	}
}

func writeJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
