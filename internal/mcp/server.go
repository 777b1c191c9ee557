// Package mcp exposes PDF text extraction and form recognition as MCP tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joseph-ayodele/insolvency-docs/constants"
	"github.com/joseph-ayodele/insolvency-docs/internal/common"
	"github.com/joseph-ayodele/insolvency-docs/internal/core"
	"github.com/joseph-ayodele/insolvency-docs/internal/core/forms"
	"github.com/joseph-ayodele/insolvency-docs/internal/core/pageclass"
)

// Inspector is satisfied by *core.Processor.
type Inspector interface {
	Inspect(ctx context.Context, data []byte) (*core.Report, error)
}

type Config struct {
	Name        string
	Version     string
	MaxFileSize int64 // default 100 MiB
}

type Server struct {
	cfg        Config
	inspector  Inspector
	recognizer *forms.Recognizer
	logger     *slog.Logger
	mcpServer  *server.MCPServer
}

func NewServer(cfg Config, inspector Inspector, recognizer *forms.Recognizer, logger *slog.Logger) (*Server, error) {
	if inspector == nil {
		return nil, fmt.Errorf("inspector cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if recognizer == nil {
		recognizer = forms.NewRecognizer(nil)
	}
	if cfg.Name == "" {
		cfg.Name = "docflow"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 100 << 20
	}

	s := &Server{
		cfg:        cfg,
		inspector:  inspector,
		recognizer: recognizer,
		logger:     logger,
		mcpServer:  server.NewMCPServer(cfg.Name, cfg.Version, server.WithToolCapabilities(false)),
	}
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"extract_pdf_text",
		mcp.WithDescription("Extract the text of a PDF, using OCR for scanned pages, and report per-page outcomes"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Full path to the PDF file"),
		),
	), s.handleExtractPDFText)

	s.mcpServer.AddTool(mcp.NewTool(
		"identify_form",
		mcp.WithDescription("Identify the insolvency form type of a text and extract its labelled fields"),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Document text, e.g. the output of extract_pdf_text"),
		),
	), s.handleIdentifyForm)

	s.mcpServer.AddTool(mcp.NewTool(
		"classify_page_text",
		mcp.WithDescription("Decide whether a page's native text looks like a scanned page that needs OCR"),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Native text of one page"),
		),
		mcp.WithString("policy",
			mcp.Description("inline (length only, default) or strict (length, words, digit and letter density)"),
			mcp.Enum("inline", "strict"),
		),
	), s.handleClassifyPageText)
}

type extractResponse struct {
	Path            string             `json:"path"`
	TotalPages      int                `json:"totalPages"`
	SuccessfulPages int                `json:"successfulPages"`
	OCRPages        int                `json:"ocrPages"`
	Errors          []string           `json:"errors,omitempty"`
	FormType        constants.FormType `json:"formType"`
	Text            string             `json:"text"`
}

func (s *Server) handleExtractPDFText(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := s.readPDF(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	report, err := s.inspector.Inspect(ctx, data)
	if err != nil {
		s.logger.Warn("mcp extract failed", "path", path, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", common.CodeOf(err), err)), nil
	}

	res := report.Extraction
	out := extractResponse{
		Path:            path,
		TotalPages:      res.TotalPages,
		SuccessfulPages: res.SuccessfulPages,
		OCRPages:        res.OCRPages(),
		FormType:        report.FormType,
		Text:            res.Text,
	}
	for _, e := range res.Errors {
		out.Errors = append(out.Errors, e.Error())
	}
	return jsonResult(out)
}

func (s *Server) handleIdentifyForm(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fields := s.recognizer.ExtractFormFields(text)
	formType := s.recognizer.IdentifyFormType(text)
	if v, ok := fields.Get(forms.FieldFormType); ok {
		if ft, ok := constants.ParseFormType(v); ok {
			formType = ft
		}
	}
	return jsonResult(map[string]any{
		"formType":   formType,
		"fields":     fields,
		"validation": forms.ValidateFormFields(fields),
	})
}

func (s *Server) handleClassifyPageText(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	policy := pageclass.ByName(request.GetString("policy", "inline"))
	d := policy.Classify(text)
	return jsonResult(map[string]any{
		"policy":  policy.Name,
		"scanned": d.Scanned,
		"reasons": d.Reasons,
		"metrics": d.Metrics,
	})
}

func (s *Server) readPDF(path string) ([]byte, error) {
	if !constants.IsAllowedFile(path) {
		return nil, fmt.Errorf("not a PDF file: %s", filepath.Base(path))
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if fi.Size() > s.cfg.MaxFileSize {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", fi.Size(), s.cfg.MaxFileSize)
	}
	return os.ReadFile(path)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

// Run serves the tools over stdio until the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server starting", "name", s.cfg.Name, "version", s.cfg.Version)
	stdio := server.NewStdioServer(s.mcpServer)
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}
