package core

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/insolvency-docs/constants"
	"github.com/joseph-ayodele/insolvency-docs/internal/analysis"
	"github.com/joseph-ayodele/insolvency-docs/internal/common"
	"github.com/joseph-ayodele/insolvency-docs/internal/core/async"
	"github.com/joseph-ayodele/insolvency-docs/internal/core/extract"
	"github.com/joseph-ayodele/insolvency-docs/internal/core/forms"
	"github.com/joseph-ayodele/insolvency-docs/internal/repository"
)

type mapBlobs map[string][]byte

func (m mapBlobs) Fetch(_ context.Context, key string) ([]byte, error) {
	b, ok := m[key]
	if !ok {
		return nil, common.ErrNotFound
	}
	return b, nil
}

type stubExtractor struct {
	res *extract.Result
	err error
}

func (s stubExtractor) ExtractTextFromPDF(context.Context, []byte) (*extract.Result, error) {
	return s.res, s.err
}

type memorySink struct {
	extraction map[string]repository.ExtractionRecord
	fields     map[string]forms.Fields
	risk       map[string]string
	fieldsErr  error
}

func newMemorySink() *memorySink {
	return &memorySink{
		extraction: map[string]repository.ExtractionRecord{},
		fields:     map[string]forms.Fields{},
		risk:       map[string]string{},
	}
}

func (m *memorySink) SaveExtraction(_ context.Context, id string, rec repository.ExtractionRecord) error {
	m.extraction[id] = rec
	return nil
}

func (m *memorySink) UpsertExtractedFields(_ context.Context, id string, fields forms.Fields) error {
	if m.fieldsErr != nil {
		return m.fieldsErr
	}
	m.fields[id] = fields
	return nil
}

func (m *memorySink) SaveAssessment(_ context.Context, id string, riskLevel string, _ []byte) error {
	m.risk[id] = riskLevel
	return nil
}

type stubAssessor struct {
	got analysis.AssessmentInput
	err error
}

func (s *stubAssessor) Assess(_ context.Context, in analysis.AssessmentInput) (*analysis.Assessment, error) {
	s.got = in
	if s.err != nil {
		return nil, s.err
	}
	return &analysis.Assessment{RiskLevel: "low", Issues: []string{}}, nil
}

const claimText = "FORM 31 Proof of Claim\nIn the matter of the bankruptcy of John Smith\nCreditor's Name: Acme Lending Corp\nLicensed Insolvency Trustee: Jane Doe\nDated this 5th day of March, 2024\n"

func claimResult() *extract.Result {
	return &extract.Result{
		Text:            claimText,
		SuccessfulPages: 2,
		TotalPages:      2,
		Pages: []extract.PageResult{
			{Page: 1, Outcome: constants.PageOutcomeNativeText},
			{Page: 2, Outcome: constants.PageOutcomeOCRRecovered},
		},
	}
}

func TestProcessor_Analyze(t *testing.T) {
	sink := newMemorySink()
	assessor := &stubAssessor{}
	p := NewProcessor(nil, mapBlobs{"documents/d1/claim.pdf": []byte("%PDF")},
		stubExtractor{res: claimResult()}, nil, sink, assessor)

	err := p.Analyze(context.Background(), async.AnalysisRequest{
		DocumentID: "d1", StoragePath: "documents/d1/claim.pdf", DocumentType: constants.DocumentTypeForm,
	})
	require.NoError(t, err)

	rec := sink.extraction["d1"]
	assert.Equal(t, claimText, rec.Text)
	assert.Equal(t, 2, rec.SuccessfulPages)
	assert.Empty(t, rec.Error)
	var report struct {
		Pages []extract.PageResult `json:"pages"`
	}
	require.NoError(t, json.Unmarshal(rec.PageReport, &report))
	assert.Len(t, report.Pages, 2)

	f := sink.fields["d1"]
	assert.Equal(t, "31", f[forms.FieldFormNumber])
	assert.Equal(t, "proof-of-claim", f[forms.FieldFormType])
	assert.Equal(t, "John Smith", f[forms.FieldClientName])

	assert.Equal(t, "low", sink.risk["d1"])
	assert.Equal(t, constants.FormTypeProofOfClaim, assessor.got.FormType)
	assert.Equal(t, claimText, assessor.got.Text)
}

func TestProcessor_AnalyzeFetchFailure(t *testing.T) {
	p := NewProcessor(nil, mapBlobs{}, stubExtractor{}, nil, newMemorySink(), nil)
	err := p.Analyze(context.Background(), async.AnalysisRequest{DocumentID: "d2", StoragePath: "missing.pdf"})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestProcessor_AnalyzeNoMeaningfulTextKeepsReport(t *testing.T) {
	partial := &extract.Result{Text: "[Error processing page 1]\n", TotalPages: 1}
	xerr := &extract.Error{Result: partial, Err: common.NewAppError("NO_MEANINGFUL_TEXT", "empty", common.ErrNoMeaningfulText)}
	sink := newMemorySink()
	p := NewProcessor(nil, mapBlobs{"k": []byte("%PDF")}, stubExtractor{err: xerr}, nil, sink, nil)

	err := p.Analyze(context.Background(), async.AnalysisRequest{DocumentID: "d3", StoragePath: "k"})
	require.ErrorIs(t, err, common.ErrNoMeaningfulText)
	rec, ok := sink.extraction["d3"]
	require.True(t, ok)
	assert.Equal(t, 1, rec.TotalPages)
	assert.Contains(t, rec.Error, "NO_MEANINGFUL_TEXT")
	assert.Empty(t, sink.fields)
}

func TestProcessor_AnalyzeSinkAndAssessorErrors(t *testing.T) {
	sink := newMemorySink()
	sink.fieldsErr = errors.New("disk full")
	p := NewProcessor(nil, mapBlobs{"k": []byte("%PDF")}, stubExtractor{res: claimResult()}, nil, sink, nil)
	assert.ErrorContains(t, p.Analyze(context.Background(), async.AnalysisRequest{DocumentID: "d4", StoragePath: "k"}), "disk full")

	p = NewProcessor(nil, mapBlobs{"k": []byte("%PDF")}, stubExtractor{res: claimResult()}, nil, newMemorySink(),
		&stubAssessor{err: errors.New("vertex quota")})
	assert.ErrorContains(t, p.Analyze(context.Background(), async.AnalysisRequest{DocumentID: "d5", StoragePath: "k"}), "vertex quota")
}

func TestProcessor_Inspect(t *testing.T) {
	p := NewProcessor(nil, nil, stubExtractor{res: &extract.Result{
		Text: "NOTICE OF MEETING OF CREDITORS\nDebtor's Name: Mary Brown\n", SuccessfulPages: 1, TotalPages: 1,
	}}, nil, nil, nil)

	report, err := p.Inspect(context.Background(), []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, constants.FormTypeMeetingOfCreditors, report.FormType)
	assert.Equal(t, "Mary Brown", report.Fields[forms.FieldClientName])
	assert.False(t, report.Validation.Complete)
	assert.Contains(t, report.Validation.Missing, forms.FieldFormNumber)
	assert.Contains(t, report.Validation.Missing, forms.FieldDateSigned)
}

func TestProcessor_InspectLoadFailure(t *testing.T) {
	p := NewProcessor(nil, nil, stubExtractor{err: common.ErrLoadFailure}, nil, nil, nil)
	report, err := p.Inspect(context.Background(), []byte("junk"))
	assert.Nil(t, report)
	assert.ErrorIs(t, err, common.ErrLoadFailure)
}
