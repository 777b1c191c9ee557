package extract

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/joseph-ayodele/insolvency-docs/constants"
)

// Stages a page error can come from.
const (
	StageNative    = "native"
	StageRasterize = "rasterize"
	StageOCR       = "ocr"
	StageUnknown   = "unknown"
)

// PageResult is what one page contributed to the document text.
type PageResult struct {
	Page         int                   `json:"page"`
	Text         string                `json:"text"`
	Outcome      constants.PageOutcome `json:"outcome"`
	NativeLength int                   `json:"nativeLength"`
	Scanned      bool                  `json:"scanned"`
	Reasons      []string              `json:"reasons,omitempty"`
}

// PageError records a recovered page-level failure.
type PageError struct {
	Page  int
	Stage string
	Err   error
}

func (e PageError) Error() string {
	return fmt.Sprintf("page %d (%s): %v", e.Page, e.Stage, e.Err)
}

func (e PageError) Unwrap() error { return e.Err }

func (e PageError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Page  int    `json:"page"`
		Stage string `json:"stage"`
		Error string `json:"error"`
	}{e.Page, e.Stage, e.Err.Error()})
}

// Result is the extraction report for one document.
type Result struct {
	Text            string        `json:"text"`
	SuccessfulPages int           `json:"successfulPages"`
	TotalPages      int           `json:"totalPages"`
	Errors          []PageError   `json:"errors"`
	Pages           []PageResult  `json:"pages"`
	Duration        time.Duration `json:"-"`
}

// Partial reports whether some but not all pages produced text.
func (r *Result) Partial() bool {
	return r.SuccessfulPages > 0 && r.SuccessfulPages < r.TotalPages
}

// OCRPages counts pages whose text came from OCR.
func (r *Result) OCRPages() int {
	n := 0
	for _, p := range r.Pages {
		if p.Outcome == constants.PageOutcomeOCRRecovered {
			n++
		}
	}
	return n
}

// Placeholder is the line written in place of a failed page.
func Placeholder(page int) string {
	return fmt.Sprintf("[Error processing page %d]", page)
}

// joinPages builds the document text once, in page order, one line per page.
func joinPages(pages []PageResult) string {
	var b strings.Builder
	for _, p := range pages {
		if p.Outcome == constants.PageOutcomeFailed {
			b.WriteString(Placeholder(p.Page))
		} else {
			b.WriteString(p.Text)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// hasMeaningfulText reports whether the pages that produced text hold at
// least minTotal non-space runes, with at least one page reaching minPage
// trimmed runes. Placeholders and page separators never count.
func hasMeaningfulText(pages []PageResult, minTotal, minPage int) bool {
	total, longest := 0, 0
	for _, p := range pages {
		if p.Outcome == constants.PageOutcomeFailed {
			continue
		}
		for _, r := range p.Text {
			if !unicode.IsSpace(r) {
				total++
			}
		}
		longest = max(longest, utf8.RuneCountInString(strings.TrimSpace(p.Text)))
	}
	return total >= minTotal && longest >= minPage
}

// Error is a document-level failure. Result is set when pages were
// processed before the failure was decided.
type Error struct {
	Result *Result
	Err    error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
