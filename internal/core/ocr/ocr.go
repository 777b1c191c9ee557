// Package ocr wraps an external OCR engine and cleans what it returns.
package ocr

import (
	"context"
	"log/slog"
)

// DefaultLanguage is the tesseract language model used for all documents.
const DefaultLanguage = "eng"

// Progress statuses reported while an image is recognized.
const (
	StatusInitializing = "initializing"
	StatusRecognizing  = "recognizing text"
	StatusDone         = "done"
)

// Progress is one observability event from an engine run.
type Progress struct {
	Status   string
	Fraction float64
}

// ProgressFunc receives progress events. A nil func is valid and ignored.
type ProgressFunc func(Progress)

func (f ProgressFunc) report(status string, fraction float64) {
	if f != nil {
		f(Progress{Status: status, Fraction: fraction})
	}
}

// Engine recognizes text in an encoded image.
type Engine interface {
	Recognize(ctx context.Context, image []byte, lang string, progress ProgressFunc) (string, error)
}

// Adapter runs an Engine with a fixed language and normalizes successful output.
type Adapter struct {
	engine   Engine
	lang     string
	progress ProgressFunc
	logger   *slog.Logger
}

type AdapterOption func(*Adapter)

func WithLanguage(lang string) AdapterOption {
	return func(a *Adapter) {
		if lang != "" {
			a.lang = lang
		}
	}
}

// WithProgress replaces the default progress callback, which logs at debug.
func WithProgress(fn ProgressFunc) AdapterOption {
	return func(a *Adapter) { a.progress = fn }
}

func NewAdapter(engine Engine, logger *slog.Logger, opts ...AdapterOption) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Adapter{engine: engine, lang: DefaultLanguage, logger: logger}
	a.progress = func(p Progress) {
		a.logger.Debug("ocr progress", "status", p.Status, "fraction", p.Fraction)
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Language reports the model passed to the engine.
func (a *Adapter) Language() string { return a.lang }

// PerformOCR recognizes image and returns Clean'd text. Engine errors are returned as is.
func (a *Adapter) PerformOCR(ctx context.Context, image []byte) (string, error) {
	raw, err := a.engine.Recognize(ctx, image, a.lang, a.progress)
	if err != nil {
		return "", err
	}
	return Clean(raw), nil
}
