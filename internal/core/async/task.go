package async

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/insolvency-docs/constants"
)

// Priorities; lower runs first.
const (
	PriorityHigh   = 1
	PriorityNormal = 5
	PriorityLow    = 9
)

// Task is one queued analysis request. It is immutable once enqueued.
type Task struct {
	ID          uuid.UUID              `json:"id"`
	DocumentID  string                 `json:"documentId"`
	StoragePath string                 `json:"storagePath"`
	Type        constants.DocumentType `json:"type"`
	Priority    int                    `json:"priority"`
	EnqueuedAt  time.Time              `json:"enqueuedAt"`
}

// AnalysisRequest is what the analysis trigger receives for a task.
type AnalysisRequest struct {
	DocumentID   string                 `json:"documentId"`
	StoragePath  string                 `json:"storagePath"`
	DocumentType constants.DocumentType `json:"documentType"`
}

// AnalysisTrigger runs the analysis for one document.
type AnalysisTrigger interface {
	Analyze(ctx context.Context, req AnalysisRequest) error
}

// AnalysisFunc adapts a function to AnalysisTrigger.
type AnalysisFunc func(ctx context.Context, req AnalysisRequest) error

func (f AnalysisFunc) Analyze(ctx context.Context, req AnalysisRequest) error { return f(ctx, req) }

// StatusSink persists document status transitions. detail is empty unless
// the status is failed.
type StatusSink interface {
	UpdateStatus(ctx context.Context, documentID string, status constants.DocumentStatus, detail string) error
}

// Queue is the enqueue side, as seen by intake.
type Queue interface {
	AddTask(ctx context.Context, task Task) (Task, error)
	Shutdown(ctx context.Context) error
}

func (t Task) request() AnalysisRequest {
	return AnalysisRequest{DocumentID: t.DocumentID, StoragePath: t.StoragePath, DocumentType: t.Type}
}

func (t Task) processingStatus() constants.DocumentStatus {
	if t.Type.IsFinancial() {
		return constants.DocumentStatusProcessingFinancial
	}
	return constants.DocumentStatusProcessing
}

// taskHeap orders by priority, then enqueue sequence.
type queuedTask struct {
	task Task
	seq  uint64
}

type taskHeap []queuedTask

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].task.Priority != h[j].task.Priority {
		return h[i].task.Priority < h[j].task.Priority
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)   { *h = append(*h, x.(queuedTask)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
