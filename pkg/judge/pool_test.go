package judge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubExecutor returns canned responses keyed by submission ID.
type stubExecutor struct {
	mu        sync.Mutex
	responses map[string]*ExecuteResponse
	err       error
}

func (s *stubExecutor) Execute(ctx context.Context, req *ExecuteRequest) (*ExecuteResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.responses[req.SubmissionID], nil
}

type verdictRecorder struct {
	mu       sync.Mutex
	verdicts map[string]*ExecuteResponse
	errs     map[string]error
	done     chan string
}

func newVerdictRecorder() *verdictRecorder {
	return &verdictRecorder{
		verdicts: make(map[string]*ExecuteResponse),
		errs:     make(map[string]error),
		done:     make(chan string, 16),
	}
}

func (r *verdictRecorder) record(submissionID string, resp *ExecuteResponse, err error) {
	r.mu.Lock()
	r.verdicts[submissionID] = resp
	r.errs[submissionID] = err
	r.mu.Unlock()
	r.done <- submissionID
}

func (r *verdictRecorder) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.done:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for verdict %d of %d", i+1, n)
		}
	}
}

func TestPool_DeliversVerdicts(t *testing.T) {
	executor := &stubExecutor{responses: map[string]*ExecuteResponse{
		"sub-1": {Status: "accepted", ExecutionTimeMs: 42, Success: true},
		"sub-2": {Status: "wrong_answer", ExecutionTimeMs: 10, Success: false},
	}}
	recorder := newVerdictRecorder()

	pool := NewPool(executor, 2, 16, recorder.record)
	pool.Start()
	defer pool.Stop()

	require.NoError(t, pool.Submit(&ExecuteRequest{SubmissionID: "sub-1"}))
	require.NoError(t, pool.Submit(&ExecuteRequest{SubmissionID: "sub-2"}))
	recorder.wait(t, 2)

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	require.NotNil(t, recorder.verdicts["sub-1"])
	assert.True(t, recorder.verdicts["sub-1"].Success)
	require.NotNil(t, recorder.verdicts["sub-2"])
	assert.False(t, recorder.verdicts["sub-2"].Success)
}

func TestPool_BackendErrorReachesCallback(t *testing.T) {
	backendErr := errors.New("judge unreachable")
	executor := &stubExecutor{err: backendErr}
	recorder := newVerdictRecorder()

	pool := NewPool(executor, 1, 16, recorder.record)
	pool.Start()
	defer pool.Stop()

	require.NoError(t, pool.Submit(&ExecuteRequest{SubmissionID: "sub-1"}))
	recorder.wait(t, 1)

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	assert.Nil(t, recorder.verdicts["sub-1"])
	assert.ErrorIs(t, recorder.errs["sub-1"], backendErr)
}

func TestPool_SaturationRejectsInsteadOfBlocking(t *testing.T) {
	executor := &stubExecutor{responses: map[string]*ExecuteResponse{}}
	recorder := newVerdictRecorder()

	// Never started: the buffer fills and Submit must not block.
	pool := NewPool(executor, 1, 2, recorder.record)

	require.NoError(t, pool.Submit(&ExecuteRequest{SubmissionID: "a"}))
	require.NoError(t, pool.Submit(&ExecuteRequest{SubmissionID: "b"}))
	assert.ErrorIs(t, pool.Submit(&ExecuteRequest{SubmissionID: "c"}), ErrPoolSaturated)
}
