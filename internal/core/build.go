package core

import (
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/insolvency-docs/internal/common"
	"github.com/joseph-ayodele/insolvency-docs/internal/core/extract"
	"github.com/joseph-ayodele/insolvency-docs/internal/core/forms"
	"github.com/joseph-ayodele/insolvency-docs/internal/core/ocr"
	"github.com/joseph-ayodele/insolvency-docs/internal/core/pageclass"
	"github.com/joseph-ayodele/insolvency-docs/internal/core/pdfdoc"
	"github.com/joseph-ayodele/insolvency-docs/internal/core/raster"
)

// NewPipeline assembles the extraction pipeline from configuration:
// pdfcpu-validated loading, go-fitz rasterization and tesseract OCR.
func NewPipeline(cfg *common.Config, logger *slog.Logger) *extract.Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	x := cfg.Extraction

	policy := pageclass.ByName(x.OCRPolicy)
	switch policy.Name {
	case "strict":
		policy.MinChars = x.StrictMinChars
		policy.MinWords = x.StrictMinWords
		policy.MaxDigitPercent = x.StrictMaxDigitPercent
		policy.MinLetterPercent = x.StrictMinLetterPercent
	default:
		policy.MinChars = x.InlineMinChars
	}

	engine := ocr.NewTesseract(ocr.TesseractConfig{
		Binary:      cfg.OCR.Tesseract,
		TessdataDir: cfg.OCR.TessdataDir,
		PSM:         cfg.OCR.PSM,
		OEM:         cfg.OCR.OEM,
		TempDir:     cfg.OCR.TempDir,
	}, logger.With("component", "tesseract"))

	return extract.NewPipeline(
		pdfdoc.NewLoader(logger.With("component", "pdfdoc"), pdfdoc.WithValidation()),
		raster.New(raster.Options{
			Scale:       x.RenderScale,
			MaxWidth:    x.MaxWidth,
			Threshold:   uint8(x.BinarizeThreshold),
			JPEGQuality: x.JPEGQuality,
		}, logger.With("component", "raster")),
		ocr.NewAdapter(engine, logger.With("component", "ocr"), ocr.WithLanguage(cfg.OCR.Language)),
		extract.Options{
			Policy:            &policy,
			PageOCRTimeout:    cfg.OCR.PageTimeout,
			MinTextLength:     x.MinTextLength,
			MinPageTextLength: x.MinPageTextLength,
		},
		logger.With("component", "extract"),
	)
}

// NewRecognizer uses the configured YAML catalog, or the built-in one.
func NewRecognizer(cfg *common.Config) (*forms.Recognizer, error) {
	if cfg.Extraction.FormCatalogPath == "" {
		return forms.NewRecognizer(forms.DefaultCatalog()), nil
	}
	catalog, err := forms.LoadCatalog(cfg.Extraction.FormCatalogPath)
	if err != nil {
		return nil, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("form catalog %s", cfg.Extraction.FormCatalogPath), err)
	}
	return forms.NewRecognizer(catalog), nil
}
