package async

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/insolvency-docs/constants"
	"github.com/joseph-ayodele/insolvency-docs/internal/common"
)

// ProcessorQueue runs analysis tasks one at a time on a single worker.
type ProcessorQueue struct {
	trigger AnalysisTrigger
	sink    StatusSink
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time

	baseCtx context.Context
	stop    context.CancelFunc

	mu        sync.Mutex
	tasks     taskHeap
	seq       uint64
	current   *Task
	closed    bool
	processed int
	failed    int

	wake chan struct{}
	done chan struct{}
}

type Option func(*ProcessorQueue)

func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(q *ProcessorQueue) {
		if l != nil {
			q.logger = l
		}
	}
}

// Stats is a point-in-time view of the queue.
type Stats struct {
	Queued     int   `json:"queued"`
	Processing *Task `json:"processing,omitempty"`
	Processed  int   `json:"processed"`
	Failed     int   `json:"failed"`
	Closed     bool  `json:"closed"`
}

// NewProcessorQueue starts the worker. Call Shutdown to stop it.
func NewProcessorQueue(trigger AnalysisTrigger, sink StatusSink, opts ...Option) *ProcessorQueue {
	q := &ProcessorQueue{
		trigger: trigger,
		sink:    sink,
		logger:  slog.Default(),
		timeout: 10 * time.Minute,
		now:     time.Now,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	q.baseCtx, q.stop = context.WithCancel(context.Background())
	go q.run()
	return q
}

// AddTask enqueues task and returns it as stored. Zero ID, priority and
// timestamp are filled in.
func (q *ProcessorQueue) AddTask(_ context.Context, task Task) (Task, error) {
	if task.DocumentID == "" {
		return Task{}, common.NewAppError("INVALID_INPUT", "task has no document id", common.ErrInvalidInput)
	}
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Priority == 0 {
		task.Priority = PriorityNormal
	}
	if task.Type == "" {
		task.Type = constants.DocumentTypeGeneral
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "document_id", task.DocumentID)
		return Task{}, common.ErrQueueClosed
	}
	task.EnqueuedAt = q.now()
	q.seq++
	heap.Push(&q.tasks, queuedTask{task: task, seq: q.seq})

	select {
	case q.wake <- struct{}{}:
	default:
	}
	q.logger.Info("queued document for analysis",
		"task_id", task.ID, "document_id", task.DocumentID,
		"type", task.Type, "priority", task.Priority, "queued", q.tasks.Len())
	return task, nil
}

// Len is the number of tasks waiting, excluding the one in flight.
func (q *ProcessorQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tasks.Len()
}

// Processing returns the task in flight, if any.
func (q *ProcessorQueue) Processing() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current == nil {
		return Task{}, false
	}
	return *q.current, true
}

func (q *ProcessorQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := Stats{Queued: q.tasks.Len(), Processed: q.processed, Failed: q.failed, Closed: q.closed}
	if q.current != nil {
		t := *q.current
		s.Processing = &t
	}
	return s
}

// Shutdown stops accepting tasks and waits for the queued ones to finish.
// If ctx ends first, the task in flight is cancelled, tasks not yet started
// are left pending, and ctx's error is returned.
func (q *ProcessorQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.wake)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		q.logger.Info("queue drained, shutdown complete")
		return nil
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context", "queued", q.Len())
		q.stop()
		<-q.done
		return ctx.Err()
	}
}

func (q *ProcessorQueue) run() {
	defer close(q.done)
	defer q.stop()
	q.logger.Info("queue worker started")
	for {
		task, ok := q.next()
		if !ok {
			q.logger.Info("queue worker stopped")
			return
		}
		q.process(task)
	}
}

// next blocks until a task is available, or returns false once the queue
// is closed and empty. After a cancelled shutdown it returns false at once
// and the tasks still queued keep their pending status.
func (q *ProcessorQueue) next() (Task, bool) {
	for {
		q.mu.Lock()
		if q.baseCtx.Err() != nil {
			for _, item := range q.tasks {
				q.logger.Warn("task left pending by shutdown", "task_id", item.task.ID, "document_id", item.task.DocumentID)
			}
			q.mu.Unlock()
			return Task{}, false
		}
		if q.tasks.Len() > 0 {
			item := heap.Pop(&q.tasks).(queuedTask)
			q.current = &item.task
			q.mu.Unlock()
			return item.task, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return Task{}, false
		}
		<-q.wake
	}
}

func (q *ProcessorQueue) process(task Task) {
	logger := q.logger.With("task_id", task.ID, "document_id", task.DocumentID)
	ctx := common.WithDocumentID(q.baseCtx, task.DocumentID)
	start := q.now()

	q.updateStatus(ctx, logger, task.DocumentID, task.processingStatus(), "")

	err := q.analyze(ctx, task)

	status, detail := constants.DocumentStatusComplete, ""
	if err != nil {
		err = fmt.Errorf("%w: %w", common.ErrQueueTaskFailure, err)
		status, detail = constants.DocumentStatusFailed, err.Error()
		logger.Error("analysis failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
	} else {
		logger.Info("analysis complete", "duration_ms", time.Since(start).Milliseconds())
	}
	// The final status is written even when the task ran out of time.
	q.updateStatus(context.WithoutCancel(ctx), logger, task.DocumentID, status, detail)

	q.mu.Lock()
	q.current = nil
	q.processed++
	if err != nil {
		q.failed++
	}
	q.mu.Unlock()
}

func (q *ProcessorQueue) analyze(ctx context.Context, task Task) (err error) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("analysis panicked: %v", rec)
		}
	}()
	if q.trigger == nil {
		return errors.New("no analysis trigger configured")
	}
	return q.trigger.Analyze(ctx, task.request())
}

func (q *ProcessorQueue) updateStatus(ctx context.Context, logger *slog.Logger, id string, status constants.DocumentStatus, detail string) {
	if q.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := q.sink.UpdateStatus(ctx, id, status, detail); err != nil {
		logger.Warn("status update failed", "status", status, "error", err)
	}
}
