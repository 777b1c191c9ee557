package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/insolvency-docs/constants"
	"github.com/joseph-ayodele/insolvency-docs/internal/common"
	"github.com/joseph-ayodele/insolvency-docs/internal/core"
	"github.com/joseph-ayodele/insolvency-docs/internal/core/extract"
)

type stubInspector struct {
	report *core.Report
	err    error
	calls  int
}

func (s *stubInspector) Inspect(context.Context, []byte) (*core.Report, error) {
	s.calls++
	return s.report, s.err
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: args}}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
		if tc, ok := c.(*mcp.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no text content in result")
	return ""
}

func writePDF(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("%PDF-1.4\n%%EOF\n"), 0o644))
	return p
}

func TestNewServer_RequiresInspector(t *testing.T) {
	_, err := NewServer(Config{}, nil, nil, nil)
	assert.Error(t, err)
}

func TestExtractPDFText(t *testing.T) {
	insp := &stubInspector{report: &core.Report{
		Extraction: &extract.Result{
			Text:            "FORM 31\n[Error processing page 2]\n",
			SuccessfulPages: 1,
			TotalPages:      2,
			Pages: []extract.PageResult{
				{Page: 1, Outcome: constants.PageOutcomeOCRRecovered},
				{Page: 2, Outcome: constants.PageOutcomeFailed},
			},
			Errors: []extract.PageError{{Page: 2, Stage: extract.StageOCR, Err: common.ErrOCRFailure}},
		},
		FormType: constants.FormTypeProofOfClaim,
	}}
	s, err := NewServer(Config{}, insp, nil, nil)
	require.NoError(t, err)

	res, err := s.handleExtractPDFText(context.Background(), callRequest(map[string]any{"path": writePDF(t, "claim.pdf")}))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	var out extractResponse
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	assert.Equal(t, 2, out.TotalPages)
	assert.Equal(t, 1, out.SuccessfulPages)
	assert.Equal(t, 1, out.OCRPages)
	assert.Equal(t, constants.FormTypeProofOfClaim, out.FormType)
	assert.Equal(t, []string{"page 2 (ocr): ocr failed"}, out.Errors)
}

func TestExtractPDFText_Errors(t *testing.T) {
	insp := &stubInspector{err: common.NewAppError("LOAD_FAILURE", "broken xref", common.ErrLoadFailure)}
	s, err := NewServer(Config{MaxFileSize: 4}, insp, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	res, err := s.handleExtractPDFText(ctx, callRequest(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, _ = s.handleExtractPDFText(ctx, callRequest(map[string]any{"path": writePDF(t, "notes.txt")}))
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "not a PDF")

	res, _ = s.handleExtractPDFText(ctx, callRequest(map[string]any{"path": writePDF(t, "big.pdf")}))
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "too large")
	assert.Zero(t, insp.calls)

	s.cfg.MaxFileSize = 1 << 20
	res, _ = s.handleExtractPDFText(ctx, callRequest(map[string]any{"path": writePDF(t, "broken.pdf")}))
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "InvalidArgument")
}

func TestIdentifyForm(t *testing.T) {
	s, err := NewServer(Config{}, &stubInspector{}, nil, nil)
	require.NoError(t, err)

	text := "FORM 47 Consumer Proposal\nIn the matter of the consumer proposal of Mary Brown\nDated this 12th day of June, 2023\n"
	res, err := s.handleIdentifyForm(context.Background(), callRequest(map[string]any{"text": text}))
	require.NoError(t, err)

	var out struct {
		FormType   string            `json:"formType"`
		Fields     map[string]string `json:"fields"`
		Validation struct {
			Complete bool `json:"complete"`
		} `json:"validation"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	assert.Equal(t, "consumer-proposal", out.FormType)
	assert.Equal(t, "47", out.Fields["formNumber"])

	res, _ = s.handleIdentifyForm(context.Background(), callRequest(map[string]any{"text": "nothing to see"}))
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	assert.Equal(t, "unknown", out.FormType)
	assert.False(t, out.Validation.Complete)
}

func TestClassifyPageText(t *testing.T) {
	s, err := NewServer(Config{}, &stubInspector{}, nil, nil)
	require.NoError(t, err)

	var out struct {
		Policy  string   `json:"policy"`
		Scanned bool     `json:"scanned"`
		Reasons []string `json:"reasons"`
	}
	res, _ := s.handleClassifyPageText(context.Background(), callRequest(map[string]any{"text": "12 34 56"}))
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	assert.Equal(t, "inline", out.Policy)
	assert.True(t, out.Scanned)

	res, _ = s.handleClassifyPageText(context.Background(), callRequest(map[string]any{"text": "12 34 56", "policy": "strict"}))
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	assert.Equal(t, "strict", out.Policy)
	assert.Contains(t, out.Reasons, "digit_heavy")
}
