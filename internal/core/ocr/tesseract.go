package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// TesseractConfig controls the tesseract CLI invocation.
type TesseractConfig struct {
	Binary      string // default "tesseract"
	TessdataDir string
	PSM         int // 0 leaves tesseract's default
	OEM         int // negative leaves tesseract's default
	TempDir     string
}

// Tesseract is an Engine backed by the tesseract command line tool.
type Tesseract struct {
	cfg    TesseractConfig
	runner Runner
	logger *slog.Logger
}

type TesseractOption func(*Tesseract)

// WithRunner swaps the command runner (tests).
func WithRunner(r Runner) TesseractOption {
	return func(t *Tesseract) {
		if r != nil {
			t.runner = r
		}
	}
}

func NewTesseract(cfg TesseractConfig, logger *slog.Logger, opts ...TesseractOption) *Tesseract {
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tesseract{cfg: cfg, runner: ExecRunner{}, logger: logger}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Recognize writes image to a scratch file and runs
// `tesseract <file> stdout -l <lang>` on it.
func (t *Tesseract) Recognize(ctx context.Context, image []byte, lang string, progress ProgressFunc) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("tesseract: empty image")
	}
	progress.report(StatusInitializing, 0)

	dir, err := os.MkdirTemp(t.cfg.TempDir, "ocr-*")
	if err != nil {
		return "", fmt.Errorf("tesseract: temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "page"+imageExt(image))
	if err := os.WriteFile(path, image, 0o600); err != nil {
		return "", fmt.Errorf("tesseract: write image: %w", err)
	}

	args := []string{path, "stdout", "-l", lang}
	if t.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(t.cfg.PSM))
	}
	if t.cfg.OEM >= 0 {
		args = append(args, "--oem", strconv.Itoa(t.cfg.OEM))
	}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}

	progress.report(StatusRecognizing, 0.1)
	out, errb, err := t.runner.Run(ctx, t.cfg.Binary, t.logger, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("tesseract: %w", ctxErr)
		}
		if msg := strings.TrimSpace(string(errb)); msg != "" {
			return "", fmt.Errorf("tesseract: %w: %s", err, truncate(msg, 512))
		}
		return "", fmt.Errorf("tesseract: %w", err)
	}
	progress.report(StatusDone, 1)
	return string(out), nil
}

func imageExt(b []byte) string {
	switch http.DetectContentType(b) {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/bmp":
		return ".bmp"
	default:
		return ".img"
	}
}
