package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/insolvency-docs/constants"
	"github.com/joseph-ayodele/insolvency-docs/internal/common"
	"github.com/joseph-ayodele/insolvency-docs/internal/core/async"
	"github.com/joseph-ayodele/insolvency-docs/internal/repository"
	"github.com/joseph-ayodele/insolvency-docs/internal/storage"
)

// DocumentStore is the part of the document repository intake writes to.
type DocumentStore interface {
	Create(ctx context.Context, doc repository.NewDocument) (*repository.Document, error)
	GetByHash(ctx context.Context, hash string) (*repository.Document, error)
	Get(ctx context.Context, id string) (*repository.Document, error)
	UpdateStatus(ctx context.Context, id string, status constants.DocumentStatus, detail string) error
}

// Enqueuer accepts analysis tasks.
type Enqueuer interface {
	AddTask(ctx context.Context, task async.Task) (async.Task, error)
}

// Submission is one uploaded document.
type Submission struct {
	Filename     string
	Content      []byte
	DocumentType constants.DocumentType
	Priority     int
}

// Result is the per-document intake outcome.
type Result struct {
	SourcePath   string    `json:"sourcePath,omitempty"`
	DocumentID   string    `json:"documentId,omitempty"`
	StoragePath  string    `json:"storagePath,omitempty"`
	HashHex      string    `json:"hash,omitempty"`
	Deduplicated bool      `json:"deduplicated"`
	TaskID       string    `json:"taskId,omitempty"`
	UploadedAt   time.Time `json:"uploadedAt"`
	Err          string    `json:"error,omitempty"`
}

var rePDFName = regexp.MustCompile(`(?i)\.pdf$`)

// pdfHeaderWindow is how far into the file the %PDF- header may appear.
const pdfHeaderWindow = 1024

// Intake stores uploads, records them as pending and queues them for analysis.
type Intake struct {
	docs   DocumentStore
	blobs  storage.BlobStore
	queue  Enqueuer
	logger *slog.Logger
	newID  func() string
	now    func() time.Time
}

func NewIntake(docs DocumentStore, blobs storage.BlobStore, queue Enqueuer, logger *slog.Logger) *Intake {
	if logger == nil {
		logger = slog.Default()
	}
	return &Intake{
		docs:   docs,
		blobs:  blobs,
		queue:  queue,
		logger: logger,
		newID:  func() string { return uuid.New().String() },
		now:    time.Now,
	}
}

func validateSubmission(s Submission) error {
	v := common.NewValidator()
	v.Field("filename", s.Filename, common.Required, common.MaxLength(255), common.Pattern(rePDFName, "a .pdf file name"))
	v.Field("documentType", string(s.DocumentType), common.OneOf(
		string(constants.DocumentTypeGeneral), string(constants.DocumentTypeForm), string(constants.DocumentTypeFinancial),
		"income-expense", "form-65", "statement-of-affairs",
	))
	v.Field("priority", s.Priority, common.IntRange(0, async.PriorityLow))
	if err := common.ValidateAndReturnError(v); err != nil {
		return err
	}
	if len(s.Content) == 0 {
		return common.NewAppError("INVALID_INPUT", "empty file", common.ErrInvalidInput)
	}
	head := s.Content
	if len(head) > pdfHeaderWindow {
		head = head[:pdfHeaderWindow]
	}
	if !bytes.Contains(head, []byte(constants.PDFMagic)) {
		return common.NewAppError("INVALID_INPUT", s.Filename+" is not a PDF", common.ErrInvalidInput)
	}
	return nil
}

// Submit stores and queues one document. Content already on file is not
// stored again; the existing document id is returned as deduplicated.
func (in *Intake) Submit(ctx context.Context, s Submission) (Result, error) {
	if err := validateSubmission(s); err != nil {
		return Result{}, err
	}
	if s.DocumentType == "" {
		s.DocumentType = constants.DocumentTypeGeneral
	}

	sum := sha256.Sum256(s.Content)
	hashHex := hex.EncodeToString(sum[:])
	logger := in.logger.With("filename", s.Filename, "hash", hashHex)

	if existing, err := in.docs.GetByHash(ctx, hashHex); err == nil {
		logger.Info("document already ingested", "document_id", existing.ID, "status", existing.Status)
		return Result{
			DocumentID:   existing.ID,
			StoragePath:  existing.StoragePath,
			HashHex:      hashHex,
			Deduplicated: true,
			UploadedAt:   existing.CreatedAt,
		}, nil
	} else if !errors.Is(err, common.ErrNotFound) {
		return Result{}, fmt.Errorf("lookup by hash: %w", err)
	}

	id := in.newID()
	key := storage.DocumentKey(id, s.Filename)
	if err := in.blobs.Put(ctx, key, s.Content); err != nil {
		logger.Error("failed to store document", "error", err)
		return Result{}, fmt.Errorf("store blob: %w", err)
	}

	doc, err := in.docs.Create(ctx, repository.NewDocument{
		ID:           id,
		Filename:     filepath.Base(s.Filename),
		StoragePath:  key,
		ContentHash:  hashHex,
		SizeBytes:    int64(len(s.Content)),
		DocumentType: s.DocumentType,
	})
	if err != nil {
		return Result{}, fmt.Errorf("record document: %w", err)
	}

	task, err := in.queue.AddTask(ctx, async.Task{
		DocumentID:  doc.ID,
		StoragePath: key,
		Type:        s.DocumentType,
		Priority:    s.Priority,
	})
	if err != nil {
		_ = in.docs.UpdateStatus(ctx, doc.ID, constants.DocumentStatusFailed, "enqueue: "+err.Error())
		return Result{}, fmt.Errorf("enqueue: %w", err)
	}

	logger.Info("document ingested", "document_id", doc.ID, "task_id", task.ID, "bytes", len(s.Content))
	return Result{
		DocumentID:  doc.ID,
		StoragePath: key,
		HashHex:     hashHex,
		TaskID:      task.ID.String(),
		UploadedAt:  doc.CreatedAt,
	}, nil
}

// Reprocess queues an existing document again.
func (in *Intake) Reprocess(ctx context.Context, documentID string, priority int) (async.Task, error) {
	v := common.NewValidator()
	v.Field("id", documentID, common.Required, common.UUID)
	if err := common.ValidateAndReturnError(v); err != nil {
		return async.Task{}, err
	}
	doc, err := in.docs.Get(ctx, documentID)
	if err != nil {
		return async.Task{}, err
	}
	if err := in.docs.UpdateStatus(ctx, doc.ID, constants.DocumentStatusPending, ""); err != nil {
		return async.Task{}, err
	}
	return in.queue.AddTask(ctx, async.Task{
		DocumentID:  doc.ID,
		StoragePath: doc.StoragePath,
		Type:        doc.DocumentType,
		Priority:    priority,
	})
}

// IngestPath submits a PDF from the local filesystem.
func (in *Intake) IngestPath(ctx context.Context, path string, docType constants.DocumentType) (Result, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Result{SourcePath: path}, fmt.Errorf("abs path: %w", err)
	}
	if !constants.IsAllowedFile(abs) {
		return Result{SourcePath: abs}, common.NewAppError("INVALID_INPUT", "unsupported or missing extension: "+filepath.Ext(abs), common.ErrInvalidInput)
	}
	b, err := os.ReadFile(abs)
	if err != nil {
		return Result{SourcePath: abs}, fmt.Errorf("read: %w", err)
	}
	res, err := in.Submit(ctx, Submission{Filename: filepath.Base(abs), Content: b, DocumentType: docType})
	res.SourcePath = abs
	return res, err
}
