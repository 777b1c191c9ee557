package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/insolvency-docs/constants"
	"github.com/joseph-ayodele/insolvency-docs/internal/analysis"
	"github.com/joseph-ayodele/insolvency-docs/internal/common"
	"github.com/joseph-ayodele/insolvency-docs/internal/core/async"
	"github.com/joseph-ayodele/insolvency-docs/internal/core/extract"
	"github.com/joseph-ayodele/insolvency-docs/internal/core/forms"
	"github.com/joseph-ayodele/insolvency-docs/internal/repository"
)

// BlobFetcher reads stored document bytes.
type BlobFetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// TextExtractor is satisfied by *extract.Pipeline.
type TextExtractor interface {
	ExtractTextFromPDF(ctx context.Context, data []byte) (*extract.Result, error)
}

// DocumentSink receives everything the processor learns about a document.
type DocumentSink interface {
	SaveExtraction(ctx context.Context, documentID string, rec repository.ExtractionRecord) error
	UpsertExtractedFields(ctx context.Context, documentID string, fields forms.Fields) error
	SaveAssessment(ctx context.Context, documentID string, riskLevel string, body []byte) error
}

// Assessor produces an optional risk assessment from extracted text.
type Assessor interface {
	Assess(ctx context.Context, in analysis.AssessmentInput) (*analysis.Assessment, error)
}

// Report is the outcome of inspecting one PDF without persisting anything.
type Report struct {
	Extraction *extract.Result    `json:"extraction"`
	FormType   constants.FormType `json:"formType"`
	Fields     forms.Fields       `json:"fields"`
	Validation forms.Validation   `json:"validation"`
}

// Processor is the local analysis trigger: fetch, extract, recognize, persist.
type Processor struct {
	logger     *slog.Logger
	blobs      BlobFetcher
	extractor  TextExtractor
	recognizer *forms.Recognizer
	docs       DocumentSink
	assessor   Assessor
}

func NewProcessor(
	logger *slog.Logger,
	blobs BlobFetcher,
	extractor TextExtractor,
	recognizer *forms.Recognizer,
	docs DocumentSink,
	assessor Assessor,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if recognizer == nil {
		recognizer = forms.NewRecognizer(forms.DefaultCatalog())
	}
	return &Processor{
		logger:     logger,
		blobs:      blobs,
		extractor:  extractor,
		recognizer: recognizer,
		docs:       docs,
		assessor:   assessor,
	}
}

// Inspect extracts text and form fields from data. A NoMeaningfulText failure
// is returned together with a report holding the partial extraction.
func (p *Processor) Inspect(ctx context.Context, data []byte) (*Report, error) {
	res, err := p.extractor.ExtractTextFromPDF(ctx, data)
	if err != nil {
		var xerr *extract.Error
		if errors.As(err, &xerr) && xerr.Result != nil {
			return &Report{Extraction: xerr.Result, FormType: constants.FormTypeUnknown, Fields: forms.Fields{}}, err
		}
		return nil, err
	}

	fields := p.recognizer.ExtractFormFields(res.Text)
	formType := p.recognizer.IdentifyFormType(res.Text)
	if v, ok := fields.Get(forms.FieldFormType); ok {
		if ft, ok := constants.ParseFormType(v); ok {
			formType = ft
		}
	}
	return &Report{
		Extraction: res,
		FormType:   formType,
		Fields:     fields,
		Validation: forms.ValidateFormFields(fields),
	}, nil
}

// Analyze implements async.AnalysisTrigger.
func (p *Processor) Analyze(ctx context.Context, req async.AnalysisRequest) error {
	logger := p.logger.With("document_id", req.DocumentID, "document_type", req.DocumentType)
	start := time.Now()

	data, err := p.blobs.Fetch(ctx, req.StoragePath)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", req.StoragePath, err)
	}

	report, err := p.Inspect(ctx, data)
	if err != nil {
		if report != nil {
			// keep the page report so callers can see what was read
			if serr := p.docs.SaveExtraction(ctx, req.DocumentID, extractionRecord(report.Extraction, err)); serr != nil {
				logger.Warn("save partial extraction failed", "error", serr)
			}
		}
		return fmt.Errorf("extract: %w", err)
	}
	res := report.Extraction

	if err := p.docs.SaveExtraction(ctx, req.DocumentID, extractionRecord(res, nil)); err != nil {
		return fmt.Errorf("save extraction: %w", err)
	}

	body, err := report.Fields.JSON()
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	if err := forms.ValidateJSON(body); err != nil {
		return common.NewAppError("VALIDATION_ERROR", "extracted fields rejected by schema", fmt.Errorf("%w: %v", common.ErrValidation, err))
	}
	if err := p.docs.UpsertExtractedFields(ctx, req.DocumentID, report.Fields); err != nil {
		return fmt.Errorf("upsert fields: %w", err)
	}
	if !report.Validation.Complete {
		logger.Warn("form fields incomplete", "form_type", report.FormType, "missing", report.Validation.Missing)
	}

	if p.assessor != nil {
		a, err := p.assessor.Assess(ctx, analysis.AssessmentInput{
			DocumentID:   req.DocumentID,
			DocumentType: req.DocumentType,
			FormType:     report.FormType,
			Fields:       report.Fields,
			Text:         res.Text,
		})
		if err != nil {
			return fmt.Errorf("assess: %w", err)
		}
		raw, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("encode assessment: %w", err)
		}
		if err := p.docs.SaveAssessment(ctx, req.DocumentID, a.RiskLevel, raw); err != nil {
			return fmt.Errorf("save assessment: %w", err)
		}
	}

	logger.Info("document analyzed",
		"form_type", report.FormType,
		"fields", len(report.Fields),
		"pages", res.TotalPages,
		"successful_pages", res.SuccessfulPages,
		"ocr_pages", res.OCRPages(),
		"page_errors", len(res.Errors),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func extractionRecord(res *extract.Result, failure error) repository.ExtractionRecord {
	rec := repository.ExtractionRecord{
		Text:            res.Text,
		SuccessfulPages: res.SuccessfulPages,
		TotalPages:      res.TotalPages,
	}
	if report, err := json.Marshal(struct {
		Pages  []extract.PageResult `json:"pages"`
		Errors []extract.PageError  `json:"errors"`
	}{res.Pages, res.Errors}); err == nil {
		rec.PageReport = report
	}
	if failure != nil {
		rec.Error = failure.Error()
	}
	return rec
}
