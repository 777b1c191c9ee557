// Package analysis triggers remote document analysis and produces AI risk assessments.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/insolvency-docs/internal/core/async"
)

// SendJSON posts body as JSON to url and returns the raw response body and status.
// Non-2xx responses return the body together with an error.
func SendJSON(ctx context.Context, client *http.Client, url string, body any, headers map[string]string, logger *slog.Logger) ([]byte, int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	reqID := uuid.New().String()
	start := time.Now()

	bs, err := json.Marshal(body)
	if err != nil {
		logger.Error("analysis http encode failed", "req_id", reqID, "error", err)
		return nil, 0, fmt.Errorf("encode json: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	logger.Debug("analysis http request", "req_id", reqID, "url", url, "content_length", len(bs))

	resp, err := client.Do(req)
	if err != nil {
		logger.Error("analysis http send failed", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, 0, err
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			logger.Warn("analysis http body close failed", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	logger.Info("analysis http response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return raw, resp.StatusCode, &StatusError{Code: resp.StatusCode, Body: truncate(string(raw), 300)}
	}
	return raw, resp.StatusCode, nil
}

// StatusError is a non-2xx answer from the analysis function.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("non-2xx status: %d", e.Code)
	}
	return fmt.Sprintf("non-2xx status: %d: %s", e.Code, e.Body)
}

// HTTPTrigger calls a deployed "analyze document" function over HTTP.
type HTTPTrigger struct {
	url    string
	token  string
	client *http.Client
	logger *slog.Logger
}

func NewHTTPTrigger(url, token string, timeout time.Duration, logger *slog.Logger) *HTTPTrigger {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPTrigger{url: url, token: token, client: &http.Client{Timeout: timeout}, logger: logger}
}

// Analyze implements async.AnalysisTrigger.
func (t *HTTPTrigger) Analyze(ctx context.Context, req async.AnalysisRequest) error {
	headers := map[string]string{}
	if t.token != "" {
		headers["Authorization"] = "Bearer " + t.token
	}
	_, _, err := SendJSON(ctx, t.client, t.url, req, headers, t.logger.With("document_id", req.DocumentID))
	if err != nil {
		return fmt.Errorf("analysis trigger: %w", err)
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
