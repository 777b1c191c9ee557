package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joseph-ayodele/insolvency-docs/constants"
	"github.com/joseph-ayodele/insolvency-docs/internal/common"
	"github.com/joseph-ayodele/insolvency-docs/internal/core/pageclass"
	"github.com/joseph-ayodele/insolvency-docs/internal/core/pdfdoc"
)

// Options tune the pipeline. Zero values take the defaults noted per field.
type Options struct {
	// Policy decides which pages go to OCR. Default pageclass.InlinePolicy.
	Policy *pageclass.Policy
	// PageOCRTimeout bounds rasterize+OCR for one page. Zero waits forever.
	PageOCRTimeout time.Duration
	// MinTextLength is the fewest non-space characters accepted across the
	// document. Default 10.
	MinTextLength int
	// MinPageTextLength is the trimmed length at least one page must reach.
	// Default 3.
	MinPageTextLength int
	// OCROnExtractionFailure sends pages whose text layer cannot be read to
	// OCR instead of marking them failed straight away.
	OCROnExtractionFailure bool
}

// Pipeline extracts text from whole PDF documents, one page at a time.
type Pipeline struct {
	loader     DocumentLoader
	rasterizer PageRasterizer
	ocr        Recognizer
	policy     pageclass.Policy
	opts       Options
	logger     *slog.Logger
}

func NewPipeline(loader DocumentLoader, rasterizer PageRasterizer, ocr Recognizer, opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	policy := pageclass.InlinePolicy()
	if opts.Policy != nil {
		policy = *opts.Policy
	}
	if opts.MinTextLength <= 0 {
		opts.MinTextLength = 10
	}
	if opts.MinPageTextLength <= 0 {
		opts.MinPageTextLength = 3
	}
	return &Pipeline{
		loader:     loader,
		rasterizer: rasterizer,
		ocr:        ocr,
		policy:     policy,
		opts:       opts,
		logger:     logger,
	}
}

// ExtractTextFromPDF runs the whole document through native extraction and,
// where needed, OCR. Page failures are recorded in the result; only empty
// input, an unreadable container, cancellation or a document without
// meaningful text are returned as errors.
func (p *Pipeline) ExtractTextFromPDF(ctx context.Context, data []byte) (*Result, error) {
	start := time.Now()
	logger := common.LoggerFrom(ctx, p.logger)

	if len(data) == 0 {
		return nil, common.NewAppError("INVALID_INPUT", "empty pdf buffer", common.ErrInvalidInput)
	}

	doc, err := p.loader.Load(ctx, data)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if !errors.Is(err, common.ErrLoadFailure) && !errors.Is(err, common.ErrInvalidInput) {
			err = common.NewAppError("LOAD_FAILURE", "load pdf", fmt.Errorf("%w: %v", common.ErrLoadFailure, err))
		}
		logger.Error("pdf load failed", "bytes", len(data), "error", err)
		return nil, err
	}
	defer func() {
		if cerr := doc.Close(); cerr != nil {
			logger.Warn("close pdf", "error", cerr)
		}
	}()

	total := doc.NumPages()
	res := &Result{
		TotalPages: total,
		Pages:      make([]PageResult, 0, total),
	}
	logger.Debug("pdf extraction start", "pages", total, "policy", p.policy.Name)

	for n := 1; n <= total; n++ {
		if err := ctx.Err(); err != nil {
			logger.Warn("pdf extraction cancelled", "page", n, "error", err)
			return nil, err
		}
		pr, pageErrs := p.processPage(ctx, logger, doc, n)
		res.Pages = append(res.Pages, pr)
		res.Errors = append(res.Errors, pageErrs...)
		if pr.Outcome != constants.PageOutcomeFailed {
			res.SuccessfulPages++
		}
	}

	res.Text = joinPages(res.Pages)
	res.Duration = time.Since(start)

	if !hasMeaningfulText(res.Pages, p.opts.MinTextLength, p.opts.MinPageTextLength) {
		logger.Error("pdf extraction produced no meaningful text",
			"pages", total, "successful_pages", res.SuccessfulPages, "errors", len(res.Errors))
		return nil, &Error{
			Result: res,
			Err: common.NewAppError("NO_MEANINGFUL_TEXT",
				fmt.Sprintf("%d of %d pages read, under %d characters of text", res.SuccessfulPages, total, p.opts.MinTextLength),
				common.ErrNoMeaningfulText),
		}
	}

	logger.Info("pdf extraction complete",
		"pages", total,
		"successful_pages", res.SuccessfulPages,
		"ocr_pages", res.OCRPages(),
		"errors", len(res.Errors),
		"chars", utf8.RuneCountInString(res.Text),
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// processPage never returns an error; failures become PageErrors.
func (p *Pipeline) processPage(ctx context.Context, logger *slog.Logger, doc pdfdoc.Document, n int) (pr PageResult, errs []PageError) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("page processing panicked", "page", n, "panic", rec)
			pr = PageResult{Page: n, Outcome: constants.PageOutcomeFailed}
			errs = append(errs, PageError{Page: n, Stage: StageUnknown, Err: fmt.Errorf("%w: panic: %v", common.ErrPageExtraction, rec)})
		}
	}()

	native, nativeErr := doc.PageText(ctx, n)
	if nativeErr != nil {
		logger.Warn("page text extraction failed", "page", n, "error", nativeErr)
		errs = append(errs, PageError{Page: n, Stage: StageNative, Err: wrapPageErr(nativeErr, common.ErrPageExtraction)})
		if !p.opts.OCROnExtractionFailure {
			return PageResult{Page: n, Outcome: constants.PageOutcomeFailed}, errs
		}
	}

	native = strings.TrimSpace(native)
	decision := p.policy.ClassifyResult(native, nativeErr)
	pr = PageResult{
		Page:         n,
		Text:         native,
		Outcome:      constants.PageOutcomeNativeText,
		NativeLength: decision.Metrics.TextLength,
		Scanned:      decision.Scanned,
		Reasons:      decision.Reasons,
	}
	if nativeErr != nil {
		pr.Outcome = constants.PageOutcomeFailed
	}
	if !decision.Scanned {
		logger.Debug("page native text", "page", n, "chars", decision.Metrics.TextLength)
		return pr, errs
	}

	text, stage, err := p.recognizePage(ctx, doc, n)
	if err != nil {
		logger.Warn("page ocr failed, keeping native text", "page", n, "stage", stage, "native_chars", decision.Metrics.TextLength, "error", err)
		errs = append(errs, PageError{Page: n, Stage: stage, Err: err})
		return pr, errs
	}
	if strings.TrimSpace(text) == "" {
		logger.Debug("page ocr returned no text", "page", n)
		return pr, errs
	}

	logger.Debug("page recovered with ocr", "page", n, "native_chars", decision.Metrics.TextLength, "ocr_chars", utf8.RuneCountInString(text))
	pr.Text = text
	pr.Outcome = constants.PageOutcomeOCRRecovered
	return pr, errs
}

// recognizePage rasterizes and OCRs page n under the per-page timeout.
func (p *Pipeline) recognizePage(ctx context.Context, doc pdfdoc.Document, n int) (string, string, error) {
	if p.opts.PageOCRTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.PageOCRTimeout)
		defer cancel()
	}

	img, err := p.rasterizer.Rasterize(ctx, doc, n)
	if err != nil {
		return "", StageRasterize, wrapPageErr(err, common.ErrRasterize)
	}
	text, err := p.ocr.PerformOCR(ctx, img.Data)
	if err != nil {
		return "", StageOCR, wrapPageErr(err, common.ErrOCRFailure)
	}
	return text, StageOCR, nil
}

func wrapPageErr(err, kind error) error {
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}
