package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"cloud.google.com/go/vertexai/genai"

	"github.com/joseph-ayodele/insolvency-docs/constants"
	"github.com/joseph-ayodele/insolvency-docs/internal/core/forms"
)

const assessorSystemPrompt = "You review Canadian insolvency filings (bankruptcies, proposals, proofs of claim) for a licensed insolvency trustee. You must output a single valid JSON object."

const assessorUserPrompt = `Review the document below and assess it.

Return a JSON object with exactly these keys:
- "riskLevel": one of "low", "medium", "high".
- "issues": an array of short strings, one per problem found (missing signatures, inconsistent dates, missing required fields, amounts that do not add up). Empty if none.
- "summary": two or three sentences describing the document.

Form type: %s
Extracted fields: %s

Document text:
%s`

// maxPromptText bounds how much document text is sent to the model.
const maxPromptText = 60000

// AssessmentInput is what the assessor sees of a processed document.
type AssessmentInput struct {
	DocumentID   string
	DocumentType constants.DocumentType
	FormType     constants.FormType
	Fields       forms.Fields
	Text         string
}

// Assessment is the model's verdict.
type Assessment struct {
	RiskLevel string   `json:"riskLevel"`
	Issues    []string `json:"issues"`
	Summary   string   `json:"summary"`
	Model     string   `json:"model,omitempty"`
}

// generator is the part of *genai.GenerativeModel the assessor uses.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// VertexAssessor asks a Gemini model on Vertex AI for a risk assessment.
type VertexAssessor struct {
	model     generator
	modelName string
	client    *genai.Client
	logger    *slog.Logger
}

// NewVertexAssessor creates the client and configures a JSON-only model.
func NewVertexAssessor(ctx context.Context, projectID, region, modelName string, logger *slog.Logger) (*VertexAssessor, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexAssessor: projectID and region cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	client, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(assessorSystemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.1),
	}
	return &VertexAssessor{model: model, modelName: modelName, client: client, logger: logger}, nil
}

func (v *VertexAssessor) Close() error {
	if v.client != nil {
		return v.client.Close()
	}
	return nil
}

// Assess sends the text and fields to the model and decodes its JSON answer.
func (v *VertexAssessor) Assess(ctx context.Context, in AssessmentInput) (*Assessment, error) {
	fieldsJSON, err := in.Fields.JSON()
	if err != nil {
		return nil, err
	}
	text := in.Text
	if len(text) > maxPromptText {
		text = text[:maxPromptText]
		for !utf8.ValidString(text) {
			text = text[:len(text)-1]
		}
	}
	prompt := fmt.Sprintf(assessorUserPrompt, in.FormType, fieldsJSON, text)

	resp, err := v.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		v.logger.Error("vertex generate failed", "document_id", in.DocumentID, "error", err)
		return nil, fmt.Errorf("generate content: %w", err)
	}
	a, err := parseAssessment(resp)
	if err != nil {
		v.logger.Error("vertex response unusable", "document_id", in.DocumentID, "error", err)
		return nil, err
	}
	a.Model = v.modelName
	v.logger.Info("document assessed", "document_id", in.DocumentID, "risk_level", a.RiskLevel, "issues", len(a.Issues))
	return a, nil
}

func parseAssessment(resp *genai.GenerateContentResponse) (*Assessment, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("empty model response")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	raw := strings.TrimSpace(b.String())
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "```"), "```")

	var a Assessment
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &a); err != nil {
		return nil, fmt.Errorf("decode assessment: %w", err)
	}
	a.RiskLevel = strings.ToLower(strings.TrimSpace(a.RiskLevel))
	switch a.RiskLevel {
	case "low", "medium", "high":
	default:
		return nil, fmt.Errorf("unexpected risk level %q", a.RiskLevel)
	}
	if a.Issues == nil {
		a.Issues = []string{}
	}
	return &a, nil
}
