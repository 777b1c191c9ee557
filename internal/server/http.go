// Package server exposes document intake, extraction and status over HTTP,
// plus a gRPC health endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"google.golang.org/grpc/codes"

	"github.com/joseph-ayodele/insolvency-docs/constants"
	"github.com/joseph-ayodele/insolvency-docs/internal/common"
	"github.com/joseph-ayodele/insolvency-docs/internal/core"
	"github.com/joseph-ayodele/insolvency-docs/internal/core/async"
	"github.com/joseph-ayodele/insolvency-docs/internal/ingest"
	"github.com/joseph-ayodele/insolvency-docs/internal/repository"
)

type Intake interface {
	Submit(ctx context.Context, s ingest.Submission) (ingest.Result, error)
	Reprocess(ctx context.Context, documentID string, priority int) (async.Task, error)
}

type Inspector interface {
	Inspect(ctx context.Context, data []byte) (*core.Report, error)
}

type Documents interface {
	Get(ctx context.Context, id string) (*repository.Document, error)
	List(ctx context.Context, opts repository.ListOptions) ([]*repository.Document, error)
}

type Exporter interface {
	DocumentsXLSX(ctx context.Context, opts repository.ListOptions) ([]byte, error)
}

type QueueStats interface {
	Stats() async.Stats
}

// Deps wires the HTTP API. Nil components disable their routes.
type Deps struct {
	Intake    Intake
	Inspector Inspector
	Documents Documents
	Exporter  Exporter
	Queue     QueueStats
	Health    func(ctx context.Context) error
	Logger    *slog.Logger

	RateLimit      float64 // requests per second per client; <= 0 disables
	RateBurst      int
	TrustedProxies []netip.Prefix // peers whose X-Forwarded-For is honored
	MaxUploadBytes int64          // default 50 MiB
}

type api struct {
	Deps
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// NewHTTP builds the router.
func NewHTTP(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 50 << 20
	}
	a := &api{Deps: d}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog(d.Logger))

	r.Get("/healthz", a.health)

	r.Route("/v1", func(r chi.Router) {
		if d.RateLimit > 0 {
			r.Use(newClientLimiter(d.RateLimit, d.RateBurst, d.TrustedProxies).middleware)
		}
		if d.Inspector != nil {
			r.Post("/extract", a.extract)
		}
		if d.Queue != nil {
			r.Get("/queue", a.queueStats)
		}
		r.Route("/documents", func(r chi.Router) {
			if d.Intake != nil {
				r.Post("/", a.upload)
				r.Post("/{id}/reprocess", a.reprocess)
			}
			if d.Exporter != nil {
				r.Get("/export.xlsx", a.exportXLSX)
			}
			if d.Documents != nil {
				r.Get("/", a.list)
				r.Get("/{id}", a.get)
			}
		})
	})
	return r
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	if a.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.Health(ctx); err != nil {
			common.LoggerFrom(r.Context(), a.Logger).Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		a.fail(w, r, badRequest(err, "invalid multipart form"))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, hdr, err := r.FormFile("file")
	if err != nil {
		a.fail(w, r, badRequest(err, "file is required"))
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		a.fail(w, r, badRequest(err, "read upload"))
		return
	}

	priority, err := intParam(r.FormValue("priority"))
	if err != nil {
		a.fail(w, r, badRequest(err, "priority must be an integer"))
		return
	}

	res, err := a.Intake.Submit(r.Context(), ingest.Submission{
		Filename:     hdr.Filename,
		Content:      content,
		DocumentType: constants.DocumentType(r.FormValue("documentType")),
		Priority:     priority,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	status := http.StatusAccepted
	if res.Deduplicated {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func (a *api) reprocess(w http.ResponseWriter, r *http.Request) {
	priority, err := intParam(r.URL.Query().Get("priority"))
	if err != nil {
		a.fail(w, r, badRequest(err, "priority must be an integer"))
		return
	}
	task, err := a.Intake.Reprocess(r.Context(), chi.URLParam(r, "id"), priority)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}

func (a *api) extract(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, a.MaxUploadBytes))
	if err != nil {
		a.fail(w, r, badRequest(err, "read body"))
		return
	}
	report, err := a.Inspector.Inspect(r.Context(), data)
	if err != nil {
		if report != nil {
			code := common.CodeOf(err)
			writeJSON(w, common.HTTPStatus(code), map[string]any{
				"error":  err.Error(),
				"code":   common.ErrorCode(err, code),
				"report": report,
			})
			return
		}
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *api) get(w http.ResponseWriter, r *http.Request) {
	doc, err := a.Documents.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (a *api) list(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	docs, err := a.Documents.List(r.Context(), opts)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if docs == nil {
		docs = []*repository.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (a *api) exportXLSX(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	b, err := a.Exporter.DocumentsXLSX(r.Context(), opts)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="documents.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (a *api) queueStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.Queue.Stats())
}

func listOptions(r *http.Request) (repository.ListOptions, error) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"))
	if err != nil || limit < 0 {
		return repository.ListOptions{}, common.NewAppError("INVALID_INPUT", "limit must be a non-negative integer", common.ErrInvalidInput)
	}
	status := constants.DocumentStatus(q.Get("status"))
	if status != "" && !status.Valid() {
		return repository.ListOptions{}, common.NewAppError("INVALID_INPUT", "unknown status "+string(status), common.ErrInvalidInput)
	}
	return repository.ListOptions{Status: status, Limit: limit}, nil
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func badRequest(err error, msg string) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return common.NewAppError("PAYLOAD_TOO_LARGE", "request body too large", err)
	}
	return common.NewAppError("INVALID_INPUT", msg, errors.Join(common.ErrInvalidInput, err))
}

// fail writes err as {error, code}. Internal failures are logged and
// reported without detail.
func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large")
		return
	}
	code := common.CodeOf(err)
	status := common.HTTPStatus(code)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		common.LoggerFrom(r.Context(), a.Logger).Error("request failed", "path", r.URL.Path, "error", err)
		if code == codes.Internal {
			msg = "internal error"
		}
	}
	writeError(w, status, common.ErrorCode(err, code), msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}
