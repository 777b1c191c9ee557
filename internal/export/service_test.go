package export

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/insolvency-docs/constants"
	"github.com/joseph-ayodele/insolvency-docs/internal/core/extract"
	"github.com/joseph-ayodele/insolvency-docs/internal/core/forms"
	"github.com/joseph-ayodele/insolvency-docs/internal/repository"
)

type stubLister struct {
	docs []*repository.Document
	got  repository.ListOptions
	err  error
}

func (s *stubLister) List(_ context.Context, opts repository.ListOptions) ([]*repository.Document, error) {
	s.got = opts
	return s.docs, s.err
}

func readRows(t *testing.T, b []byte, sheet string) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	return rows
}

func TestDocumentsXLSX(t *testing.T) {
	updated := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)
	lister := &stubLister{docs: []*repository.Document{
		{
			ID:       "doc-1",
			Filename: "claim.pdf",
			Status:   constants.DocumentStatusComplete,
			Fields: forms.Fields{
				forms.FieldFormNumber: "31",
				forms.FieldFormType:   "proof-of-claim",
				forms.FieldClientName: "John Smith",
				forms.FieldDateSigned: "March 5, 2024",
			},
			SuccessfulPages: 2,
			TotalPages:      2,
			UpdatedAt:       updated,
		},
		{
			ID:              "doc-2",
			Filename:        "scan.pdf",
			Status:          constants.DocumentStatusFailed,
			ExtractionError: strings.Repeat("x", 300),
			TotalPages:      3,
			UpdatedAt:       updated,
		},
	}}

	b, err := NewService(lister, nil).DocumentsXLSX(context.Background(), repository.ListOptions{Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, 50, lister.got.Limit)

	rows := readRows(t, b, DocumentsSheet)
	require.Len(t, rows, 3)
	assert.Equal(t, documentHeaders, rows[0])
	assert.Equal(t, []string{
		"doc-1", "claim.pdf", "complete", "31", "proof-of-claim", "John Smith", "", "March 5, 2024",
		"2", "2", "", "2024-03-05T14:30:00Z",
	}, rows[1])
	assert.Equal(t, "failed", rows[2][2])
	assert.Equal(t, "0", rows[2][8])
	assert.True(t, strings.HasSuffix(rows[2][10], "…"))
}

func TestDocumentsXLSX_ListError(t *testing.T) {
	_, err := NewService(&stubLister{err: errors.New("db down")}, nil).DocumentsXLSX(context.Background(), repository.ListOptions{})
	assert.ErrorContains(t, err, "db down")
}

func TestPagesXLSX(t *testing.T) {
	res := &extract.Result{
		Pages: []extract.PageResult{
			{Page: 1, Outcome: constants.PageOutcomeNativeText, NativeLength: 420},
			{Page: 2, Outcome: constants.PageOutcomeOCRRecovered, Scanned: true, Reasons: []string{"short text", "image heavy"}},
			{Page: 3, Outcome: constants.PageOutcomeFailed},
		},
		Errors: []extract.PageError{{Page: 3, Stage: extract.StageNative, Err: errors.New("bad stream")}},
	}
	b, err := PagesXLSX(res)
	require.NoError(t, err)

	rows := readRows(t, b, PagesSheet)
	require.Len(t, rows, 4)
	assert.Equal(t, pageHeaders, rows[0])
	assert.Equal(t, []string{"1", "native-text", "FALSE", "420"}, rows[1])
	assert.Equal(t, "short text; image heavy", rows[2][4])
	assert.Equal(t, "page 3 (native): bad stream", rows[3][5])
}

func TestWriteRow_MissingSheet(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	assert.Error(t, writeRow(f, "Nope", 2, "a", 1))
	assert.NoError(t, writeRow(f, "Sheet1", 2, "a", 1))

	assert.Error(t, setWidths(f, "Sheet1", []colWidth{{"A", "A", 300}}))
	assert.Error(t, setWidths(f, "Nope", []colWidth{{"A", "A", 10}}))
}
