package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"cloud.google.com/go/vertexai/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/insolvency-docs/constants"
	"github.com/joseph-ayodele/insolvency-docs/internal/core/forms"
)

type fakeGenerator struct {
	prompt string
	resp   *genai.GenerateContentResponse
	err    error
}

func (f *fakeGenerator) GenerateContent(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	for _, p := range parts {
		if txt, ok := p.(genai.Text); ok {
			f.prompt += string(txt)
		}
	}
	return f.resp, f.err
}

func textResponse(s string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []genai.Part{genai.Text(s)}}}},
	}
}

func TestVertexAssessor_Assess(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("```json\n{\"riskLevel\":\"HIGH\",\"issues\":[\"missing signature\"],\"summary\":\"Proof of claim.\"}\n```")}
	v := &VertexAssessor{model: gen, modelName: "gemini-1.5-pro", logger: discardLogger()}

	a, err := v.Assess(context.Background(), AssessmentInput{
		DocumentID: "doc-1",
		FormType:   constants.FormTypeProofOfClaim,
		Fields:     forms.Fields{forms.FieldFormNumber: "31"},
		Text:       "FORM 31 Proof of Claim",
	})
	require.NoError(t, err)
	assert.Equal(t, "high", a.RiskLevel)
	assert.Equal(t, []string{"missing signature"}, a.Issues)
	assert.Equal(t, "gemini-1.5-pro", a.Model)
	assert.Contains(t, gen.prompt, "proof-of-claim")
	assert.Contains(t, gen.prompt, `"formNumber":"31"`)
	assert.Contains(t, gen.prompt, "FORM 31 Proof of Claim")
}

func TestVertexAssessor_TruncatesText(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse(`{"riskLevel":"low","summary":"ok"}`)}
	v := &VertexAssessor{model: gen, logger: discardLogger()}

	a, err := v.Assess(context.Background(), AssessmentInput{Text: strings.Repeat("é", maxPromptText)})
	require.NoError(t, err)
	assert.Equal(t, []string{}, a.Issues)
	assert.Less(t, len(gen.prompt), maxPromptText+len(assessorUserPrompt)+100)
}

func TestVertexAssessor_Errors(t *testing.T) {
	v := &VertexAssessor{model: &fakeGenerator{err: errors.New("quota")}, logger: discardLogger()}
	_, err := v.Assess(context.Background(), AssessmentInput{})
	assert.ErrorContains(t, err, "quota")

	for name, resp := range map[string]*genai.GenerateContentResponse{
		"nil":       nil,
		"no parts":  {Candidates: []*genai.Candidate{{Content: &genai.Content{}}}},
		"not json":  textResponse("looks fine to me"),
		"bad level": textResponse(`{"riskLevel":"catastrophic"}`),
	} {
		t.Run(name, func(t *testing.T) {
			v := &VertexAssessor{model: &fakeGenerator{resp: resp}, logger: discardLogger()}
			_, err := v.Assess(context.Background(), AssessmentInput{})
			assert.Error(t, err)
		})
	}
}

func TestNewVertexAssessor_RequiresProject(t *testing.T) {
	_, err := NewVertexAssessor(context.Background(), "", "us-central1", "gemini-1.5-pro", nil)
	assert.Error(t, err)
}
