package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"

	"github.com/joseph-ayodele/insolvency-docs/internal/core/async"
)

// Executions is the part of the Workflows executions API the trigger uses.
type Executions interface {
	CreateExecution(ctx context.Context, req *executionspb.CreateExecutionRequest) (*executionspb.Execution, error)
	GetExecution(ctx context.Context, req *executionspb.GetExecutionRequest) (*executionspb.Execution, error)
}

// ExecutionsClient adapts *executions.Client to Executions.
type ExecutionsClient struct {
	c *executions.Client
}

func NewExecutionsClient(ctx context.Context) (*ExecutionsClient, error) {
	c, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("executions.NewClient: %w", err)
	}
	return &ExecutionsClient{c: c}, nil
}

func (e *ExecutionsClient) CreateExecution(ctx context.Context, req *executionspb.CreateExecutionRequest) (*executionspb.Execution, error) {
	return e.c.CreateExecution(ctx, req)
}

func (e *ExecutionsClient) GetExecution(ctx context.Context, req *executionspb.GetExecutionRequest) (*executionspb.Execution, error) {
	return e.c.GetExecution(ctx, req)
}

func (e *ExecutionsClient) Close() error { return e.c.Close() }

// WorkflowName is the full resource name of a workflow.
func WorkflowName(projectID, location, workflowID string) string {
	return fmt.Sprintf("projects/%s/locations/%s/workflows/%s", projectID, location, workflowID)
}

type WorkflowOptions struct {
	// Wait polls the execution until it reaches a final state. Without it
	// Analyze returns as soon as the execution is created.
	Wait         bool
	PollInterval time.Duration
}

// WorkflowTrigger hands a document to a Cloud Workflows execution whose
// argument is the JSON analysis request.
type WorkflowTrigger struct {
	exec     Executions
	workflow string
	opts     WorkflowOptions
	logger   *slog.Logger
}

func NewWorkflowTrigger(exec Executions, workflow string, opts WorkflowOptions, logger *slog.Logger) *WorkflowTrigger {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	return &WorkflowTrigger{exec: exec, workflow: workflow, opts: opts, logger: logger}
}

// Analyze implements async.AnalysisTrigger.
func (t *WorkflowTrigger) Analyze(ctx context.Context, req async.AnalysisRequest) error {
	logger := t.logger.With("document_id", req.DocumentID, "workflow", t.workflow)
	arg, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode workflow argument: %w", err)
	}
	exe, err := t.exec.CreateExecution(ctx, &executionspb.CreateExecutionRequest{
		Parent:    t.workflow,
		Execution: &executionspb.Execution{Argument: string(arg)},
	})
	if err != nil {
		logger.Error("failed to start workflow execution", "error", err)
		return fmt.Errorf("start workflow: %w", err)
	}
	logger.Info("workflow execution started", "execution", exe.GetName())
	if !t.opts.Wait {
		return nil
	}

	ticker := time.NewTicker(t.opts.PollInterval)
	defer ticker.Stop()
	for {
		if done, err := finished(exe); done {
			if err != nil {
				logger.Error("workflow execution failed", "execution", exe.GetName(), "state", exe.GetState().String(), "error", err)
			} else {
				logger.Info("workflow execution succeeded", "execution", exe.GetName())
			}
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		exe, err = t.exec.GetExecution(ctx, &executionspb.GetExecutionRequest{Name: exe.GetName()})
		if err != nil {
			return fmt.Errorf("poll workflow execution: %w", err)
		}
	}
}

func finished(exe *executionspb.Execution) (bool, error) {
	switch exe.GetState() {
	case executionspb.Execution_SUCCEEDED:
		return true, nil
	case executionspb.Execution_FAILED, executionspb.Execution_CANCELLED, executionspb.Execution_UNAVAILABLE:
		msg := exe.GetState().String()
		if e := exe.GetError(); e != nil && e.GetPayload() != "" {
			msg += ": " + truncate(e.GetPayload(), 300)
		}
		return true, fmt.Errorf("workflow execution %s", msg)
	default:
		return false, nil
	}
}
