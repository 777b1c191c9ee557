// Package pdfdoc loads PDF containers and exposes per-page text and rendering.
package pdfdoc

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/joseph-ayodele/insolvency-docs/internal/common"
)

// Document is a loaded PDF. Pages are 1-indexed.
type Document interface {
	NumPages() int
	PageText(ctx context.Context, page int) (string, error)
	PageBounds(page int) (image.Rectangle, error)
	RenderPage(page int, dpi float64) (image.Image, error)
	Close() error
}

// Info is container metadata gathered while loading.
type Info struct {
	PageCount int
	Version   string
	Encrypted bool
}

// Loader parses PDF bytes into a Document.
type Loader struct {
	logger   *slog.Logger
	validate bool
}

type LoaderOption func(*Loader)

// WithValidation runs pdfcpu's relaxed validation pass before accepting a file.
func WithValidation() LoaderOption {
	return func(l *Loader) { l.validate = true }
}

func NewLoader(logger *slog.Logger, opts ...LoaderOption) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{logger: logger}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Load parses data. Any failure wraps common.ErrLoadFailure.
func (l *Loader) Load(ctx context.Context, data []byte) (Document, error) {
	if len(data) == 0 {
		return nil, common.NewAppError("INVALID_INPUT", "empty pdf buffer", common.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := l.inspect(data)
	if err != nil {
		return nil, common.NewAppError("LOAD_FAILURE", "read pdf container", fmt.Errorf("%w: %v", common.ErrLoadFailure, err))
	}

	r, err := newTextReader(data)
	if err != nil {
		return nil, common.NewAppError("LOAD_FAILURE", "open text layer", fmt.Errorf("%w: %v", common.ErrLoadFailure, err))
	}
	if n := r.NumPage(); n != info.PageCount {
		l.logger.Warn("page count mismatch", "pdfcpu", info.PageCount, "text_reader", n)
	}

	l.logger.Debug("pdf loaded", "pages", r.NumPage(), "version", info.Version, "encrypted", info.Encrypted, "bytes", len(data))
	return &document{data: data, text: r, info: info, logger: l.logger}, nil
}

func (l *Loader) inspect(data []byte) (Info, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return Info{}, err
	}
	if err := pctx.EnsurePageCount(); err != nil {
		return Info{}, err
	}
	if l.validate {
		if err := api.ValidateContext(pctx); err != nil {
			return Info{}, err
		}
	}
	return Info{
		PageCount: pctx.PageCount,
		Version:   pctx.HeaderVersion.String(),
		Encrypted: pctx.Encrypt != nil,
	}, nil
}

// newTextReader guards against panics inside the parser on malformed xref tables.
func newTextReader(data []byte) (r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pdf reader panic: %v", rec)
		}
	}()
	return pdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

type document struct {
	data   []byte
	text   *pdf.Reader
	info   Info
	logger *slog.Logger

	renderOnce sync.Once
	render     *fitz.Document
	renderErr  error
}

func (d *document) NumPages() int { return d.text.NumPage() }

// Info returns the metadata gathered at load time.
func (d *document) Info() Info { return d.info }

// PageText returns the page's native text layer. Parser panics become
// errors wrapping common.ErrPageExtraction.
func (d *document) PageText(ctx context.Context, page int) (text string, err error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if page < 1 || page > d.text.NumPage() {
		return "", fmt.Errorf("%w: page %d out of range 1..%d", common.ErrPageExtraction, page, d.text.NumPage())
	}
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("%w: page %d: panic: %v", common.ErrPageExtraction, page, rec)
		}
	}()

	p := d.text.Page(page)
	if p.V.IsNull() {
		return "", nil
	}
	text, err = p.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("%w: page %d: %v", common.ErrPageExtraction, page, err)
	}
	return text, nil
}

func (d *document) renderer() (*fitz.Document, error) {
	d.renderOnce.Do(func() {
		d.render, d.renderErr = fitz.NewFromMemory(d.data)
		if d.renderErr != nil {
			d.logger.Warn("renderer unavailable", "error", d.renderErr)
		}
	})
	return d.render, d.renderErr
}

func (d *document) PageBounds(page int) (image.Rectangle, error) {
	doc, err := d.renderer()
	if err != nil {
		return image.Rectangle{}, fmt.Errorf("open renderer: %w", err)
	}
	return doc.Bound(page - 1)
}

func (d *document) RenderPage(page int, dpi float64) (image.Image, error) {
	doc, err := d.renderer()
	if err != nil {
		return nil, fmt.Errorf("open renderer: %w", err)
	}
	img, err := doc.ImageDPI(page-1, dpi)
	if err != nil {
		return nil, err
	}
	return img, nil
}

func (d *document) Close() error {
	if d.render != nil {
		return d.render.Close()
	}
	return nil
}
