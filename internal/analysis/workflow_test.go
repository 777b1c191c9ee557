package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/insolvency-docs/constants"
	"github.com/joseph-ayodele/insolvency-docs/internal/core/async"
)

type fakeExecutions struct {
	mu        sync.Mutex
	createErr error
	created   []*executionspb.CreateExecutionRequest
	states    []*executionspb.Execution // returned by successive polls
	polls     int
}

func (f *fakeExecutions) CreateExecution(_ context.Context, req *executionspb.CreateExecutionRequest) (*executionspb.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, req)
	return &executionspb.Execution{Name: req.GetParent() + "/executions/e1", State: executionspb.Execution_ACTIVE}, nil
}

func (f *fakeExecutions) GetExecution(_ context.Context, req *executionspb.GetExecutionRequest) (*executionspb.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.polls
	if i >= len(f.states) {
		i = len(f.states) - 1
	}
	f.polls++
	exe := f.states[i]
	exe.Name = req.GetName()
	return exe, nil
}

var workflowReq = async.AnalysisRequest{
	DocumentID:   "doc-7",
	StoragePath:  "documents/doc-7/claim.pdf",
	DocumentType: constants.DocumentTypeForm,
}

func TestWorkflowName(t *testing.T) {
	assert.Equal(t, "projects/p/locations/us-central1/workflows/analyze", WorkflowName("p", "us-central1", "analyze"))
}

func TestWorkflowTrigger_FireAndForget(t *testing.T) {
	fx := &fakeExecutions{}
	trig := NewWorkflowTrigger(fx, "projects/p/locations/l/workflows/w", WorkflowOptions{}, discardLogger())

	require.NoError(t, trig.Analyze(context.Background(), workflowReq))
	require.Len(t, fx.created, 1)
	assert.Equal(t, "projects/p/locations/l/workflows/w", fx.created[0].GetParent())

	var arg async.AnalysisRequest
	require.NoError(t, json.Unmarshal([]byte(fx.created[0].GetExecution().GetArgument()), &arg))
	assert.Equal(t, workflowReq, arg)
	assert.Zero(t, fx.polls)
}

func TestWorkflowTrigger_WaitsForSuccess(t *testing.T) {
	fx := &fakeExecutions{states: []*executionspb.Execution{
		{State: executionspb.Execution_ACTIVE},
		{State: executionspb.Execution_SUCCEEDED},
	}}
	trig := NewWorkflowTrigger(fx, "wf", WorkflowOptions{Wait: true, PollInterval: time.Millisecond}, discardLogger())

	require.NoError(t, trig.Analyze(context.Background(), workflowReq))
	assert.Equal(t, 2, fx.polls)
}

func TestWorkflowTrigger_Failures(t *testing.T) {
	fx := &fakeExecutions{states: []*executionspb.Execution{{
		State: executionspb.Execution_FAILED,
		Error: &executionspb.Execution_Error{Payload: "no meaningful text"},
	}}}
	trig := NewWorkflowTrigger(fx, "wf", WorkflowOptions{Wait: true, PollInterval: time.Millisecond}, discardLogger())
	err := trig.Analyze(context.Background(), workflowReq)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FAILED: no meaningful text")

	fx = &fakeExecutions{createErr: errors.New("permission denied")}
	trig = NewWorkflowTrigger(fx, "wf", WorkflowOptions{Wait: true}, discardLogger())
	assert.ErrorContains(t, trig.Analyze(context.Background(), workflowReq), "permission denied")

	fx = &fakeExecutions{states: []*executionspb.Execution{{State: executionspb.Execution_ACTIVE}}}
	trig = NewWorkflowTrigger(fx, "wf", WorkflowOptions{Wait: true, PollInterval: time.Millisecond}, discardLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, trig.Analyze(ctx, workflowReq), context.DeadlineExceeded)
}
