// Package function holds the Cloud Functions entry points: an HTTP "analyze
// document" endpoint that remote triggers and workflows call, and a storage
// CloudEvent handler that takes in PDFs uploaded straight to the bucket.
package function

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"

	"github.com/joseph-ayodele/insolvency-docs/constants"
	"github.com/joseph-ayodele/insolvency-docs/internal/common"
	"github.com/joseph-ayodele/insolvency-docs/internal/core/async"
	"github.com/joseph-ayodele/insolvency-docs/internal/ingest"
)

// Submitter is satisfied by *ingest.Intake.
type Submitter interface {
	Submit(ctx context.Context, s ingest.Submission) (ingest.Result, error)
}

type BlobFetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// GCSEvent is the data of a storage object CloudEvent.
type GCSEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        string `json:"size"`
}

type Deps struct {
	Analyzer async.AnalysisTrigger
	Statuses async.StatusSink
	Intake   Submitter
	Blobs    BlobFetcher
	// Token, when set, must arrive as a bearer token on AnalyzeDocument.
	Token string
	// UploadPrefix limits IngestUpload to objects under this prefix.
	UploadPrefix string
	Timeout      time.Duration
	Logger       *slog.Logger
}

type Handler struct {
	Deps
}

func New(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Timeout <= 0 {
		d.Timeout = 9 * time.Minute
	}
	return &Handler{Deps: d}
}

type analyzeResponse struct {
	DocumentID string                   `json:"documentId"`
	Status     constants.DocumentStatus `json:"status"`
	Error      string                   `json:"error,omitempty"`
	Code       string                   `json:"code,omitempty"`
}

// AnalyzeDocument runs the analysis for the posted request and records its
// status transitions.
func (h *Handler) AnalyzeDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if !h.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized", "code": "UNAUTHENTICATED"})
		return
	}

	var req async.AnalysisRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "could not parse JSON: " + err.Error(), "code": "INVALID_INPUT"})
		return
	}
	v := common.NewValidator()
	v.Field("documentId", req.DocumentID, common.Required)
	v.Field("storagePath", req.StoragePath, common.Required)
	if err := common.ValidateAndReturnError(v); err != nil {
		code := common.CodeOf(err)
		writeJSON(w, common.HTTPStatus(code), analyzeResponse{DocumentID: req.DocumentID, Error: err.Error(), Code: common.ErrorCode(err, code)})
		return
	}

	ctx := common.WithRequestID(r.Context(), r.Header.Get("X-Request-ID"))
	if err := h.run(ctx, req); err != nil {
		code := common.CodeOf(err)
		writeJSON(w, common.HTTPStatus(code), analyzeResponse{
			DocumentID: req.DocumentID,
			Status:     constants.DocumentStatusFailed,
			Error:      err.Error(),
			Code:       common.ErrorCode(err, code),
		})
		return
	}
	writeJSON(w, http.StatusOK, analyzeResponse{DocumentID: req.DocumentID, Status: constants.DocumentStatusComplete})
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.Token == "" {
		return true
	}
	got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.Token)) == 1
}

// run mirrors the queue worker: processing, then complete or failed.
func (h *Handler) run(ctx context.Context, req async.AnalysisRequest) error {
	logger := h.Logger.With("document_id", req.DocumentID, "document_type", req.DocumentType)
	ctx = common.WithDocumentID(ctx, req.DocumentID)
	start := time.Now()

	processing := constants.DocumentStatusProcessing
	if req.DocumentType.IsFinancial() {
		processing = constants.DocumentStatusProcessingFinancial
	}
	h.setStatus(ctx, logger, req.DocumentID, processing, "")

	actx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()
	err := h.Analyzer.Analyze(actx, req)
	if err != nil {
		logger.Error("analysis failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		h.setStatus(context.WithoutCancel(ctx), logger, req.DocumentID, constants.DocumentStatusFailed, err.Error())
		return err
	}
	logger.Info("analysis complete", "duration_ms", time.Since(start).Milliseconds())
	h.setStatus(context.WithoutCancel(ctx), logger, req.DocumentID, constants.DocumentStatusComplete, "")
	return nil
}

func (h *Handler) setStatus(ctx context.Context, logger *slog.Logger, id string, st constants.DocumentStatus, detail string) {
	if h.Statuses == nil {
		return
	}
	if err := h.Statuses.UpdateStatus(ctx, id, st, detail); err != nil {
		logger.Warn("status update failed", "status", st, "error", err)
	}
}

// IngestUpload submits a PDF that landed under UploadPrefix. Other objects,
// including the copies intake itself writes, are ignored.
func (h *Handler) IngestUpload(ctx context.Context, e cloudevents.Event) error {
	var obj GCSEvent
	if err := json.Unmarshal(e.Data(), &obj); err != nil {
		h.Logger.Error("failed to unmarshal event data", "event_id", e.ID(), "error", err)
		return fmt.Errorf("json.Unmarshal: %w", err)
	}
	logger := h.Logger.With("gcs_bucket", obj.Bucket, "gcs_object", obj.Name, "event_id", e.ID())

	if !strings.HasPrefix(obj.Name, h.UploadPrefix) || strings.HasPrefix(obj.Name, "documents/") || !ingest.AllowedExt(path.Ext(obj.Name)) {
		logger.Debug("ignoring object outside upload prefix")
		return nil
	}
	if h.Intake == nil || h.Blobs == nil {
		return fmt.Errorf("upload intake is not configured")
	}

	data, err := h.Blobs.Fetch(ctx, obj.Name)
	if err != nil {
		logger.Error("failed to fetch uploaded object", "error", err)
		return fmt.Errorf("fetch %s: %w", obj.Name, err)
	}
	res, err := h.Intake.Submit(ctx, ingest.Submission{
		Filename:     path.Base(obj.Name),
		Content:      data,
		DocumentType: documentTypeOf(obj.Name, h.UploadPrefix),
	})
	if err != nil {
		// invalid uploads are not retried
		if common.CodeOf(err) == codes.InvalidArgument {
			logger.Warn("rejected upload", "error", err)
			return nil
		}
		logger.Error("upload intake failed", "error", err)
		return err
	}
	logger.Info("upload submitted", "document_id", res.DocumentID, "deduplicated", res.Deduplicated)
	return nil
}

// documentTypeOf reads an optional type directory: <prefix><type>/<file>.pdf.
func documentTypeOf(name, prefix string) constants.DocumentType {
	rest := strings.TrimPrefix(name, prefix)
	dir, _, found := strings.Cut(rest, "/")
	if !found || dir == "" {
		return constants.DocumentTypeGeneral
	}
	return constants.DocumentType(dir)
}

// Dispatcher hands tasks straight to a trigger instead of queueing them;
// a function instance does not outlive its request.
type Dispatcher struct {
	Trigger async.AnalysisTrigger
}

// AddTask implements ingest.Enqueuer.
func (d Dispatcher) AddTask(ctx context.Context, task async.Task) (async.Task, error) {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	task.EnqueuedAt = time.Now()
	err := d.Trigger.Analyze(ctx, async.AnalysisRequest{
		DocumentID:   task.DocumentID,
		StoragePath:  task.StoragePath,
		DocumentType: task.Type,
	})
	if err != nil {
		return async.Task{}, err
	}
	return task, nil
}

// Analyze exposes run as an async.AnalysisTrigger for the Dispatcher.
func (h *Handler) Analyze(ctx context.Context, req async.AnalysisRequest) error {
	return h.run(ctx, req)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
