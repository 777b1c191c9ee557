package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/insolvency-docs/internal/core/extract"
	"github.com/joseph-ayodele/insolvency-docs/internal/core/forms"
	"github.com/joseph-ayodele/insolvency-docs/internal/repository"
)

// DocumentLister is the part of the document repository exports read from.
type DocumentLister interface {
	List(ctx context.Context, opts repository.ListOptions) ([]*repository.Document, error)
}

// Service is a tiny façade over the repository that produces XLSX bytes for exports.
type Service struct {
	docs   DocumentLister
	logger *slog.Logger
}

func NewService(docs DocumentLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{docs: docs, logger: logger}
}

const (
	DocumentsSheet = "Documents"
	PagesSheet     = "Pages"
)

var documentHeaders = []string{
	"Document ID",
	"Filename",
	"Status",
	"Form Number",
	"Form Type",
	"Client",
	"Trustee",
	"Date Signed",
	"Pages OK",
	"Pages Total",
	"Error",
	"Updated At",
}

// DocumentsXLSX returns a workbook with one row per document matching opts.
func (s *Service) DocumentsXLSX(ctx context.Context, opts repository.ListOptions) ([]byte, error) {
	start := time.Now()

	docs, err := s.docs.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}

	f, err := newWorkbook(DocumentsSheet, documentHeaders)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	for i, d := range docs {
		row := i + 2
		errText := d.ExtractionError
		if errText == "" {
			errText = d.StatusDetail
		}
		if err := writeRow(f, DocumentsSheet, row,
			d.ID,
			d.Filename,
			string(d.Status),
			d.Fields[forms.FieldFormNumber],
			d.Fields[forms.FieldFormType],
			d.Fields[forms.FieldClientName],
			d.Fields[forms.FieldTrusteeName],
			d.Fields[forms.FieldDateSigned],
			d.SuccessfulPages,
			d.TotalPages,
			truncate(errText, 140),
			d.UpdatedAt.UTC().Format(time.RFC3339),
		); err != nil {
			return nil, fmt.Errorf("write document %s: %w", d.ID, err)
		}
	}

	if err := setWidths(f, DocumentsSheet, []colWidth{
		{"A", "A", 38}, // id
		{"B", "B", 28}, // filename
		{"C", "E", 20},
		{"F", "G", 26}, // names
		{"K", "K", 48}, // error
		{"L", "L", 22},
	}); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"status", opts.Status,
		"rows", len(docs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

var pageHeaders = []string{"Page", "Outcome", "Scanned", "Native Length", "Reasons", "Error"}

// PagesXLSX returns a per-page report of one extraction.
func PagesXLSX(res *extract.Result) ([]byte, error) {
	f, err := newWorkbook(PagesSheet, pageHeaders)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	errs := make(map[int]string, len(res.Errors))
	for _, e := range res.Errors {
		errs[e.Page] = e.Error()
	}
	for i, p := range res.Pages {
		reasons := ""
		for j, r := range p.Reasons {
			if j > 0 {
				reasons += "; "
			}
			reasons += r
		}
		if err := writeRow(f, PagesSheet, i+2, p.Page, string(p.Outcome), p.Scanned, p.NativeLength, reasons, errs[p.Page]); err != nil {
			return nil, fmt.Errorf("write page %d: %w", p.Page, err)
		}
	}
	if err := setWidths(f, PagesSheet, []colWidth{{"B", "B", 16}, {"E", "F", 48}}); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// newWorkbook creates a file whose only sheet is sheet, with a header row.
func newWorkbook(sheet string, headers []string) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		_ = f.Close()
		return nil, err
	}
	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	f.SetActiveSheet(idx)
	if err := writeRow(f, sheet, 1, stringsToAny(headers)...); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("cell %s: %w", cell, err)
		}
	}
	return nil
}

type colWidth struct {
	from, to string
	width    float64
}

func setWidths(f *excelize.File, sheet string, widths []colWidth) error {
	for _, w := range widths {
		if err := f.SetColWidth(sheet, w.from, w.to, w.width); err != nil {
			return fmt.Errorf("column width %s:%s: %w", w.from, w.to, err)
		}
	}
	return nil
}

func stringsToAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
