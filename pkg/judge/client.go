package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ExecuteRequest is the contract with the external execution backend. The
// backend compiles and runs the code against the problem's test cases under
// the given resource ceiling.
type ExecuteRequest struct {
	SubmissionID string `json:"submissionId"`
	ProblemID    string `json:"problemId"`
	SourceCode   string `json:"sourceCode"`
	Language     string `json:"language"`
	TimeLimitSec int    `json:"timeLimitSec"`
	MemoryLimitMB int   `json:"memoryLimitMb"`
}

// ExecuteResponse is the backend's verdict. Status is the backend's own
// classification ("solved", "wrong_answer", "timeout", ...); Success is true
// only for a full solve.
type ExecuteResponse struct {
	Status          string `json:"status"`
	ExecutionTimeMs int    `json:"executionTimeMs"`
	MemoryUsedKb    int    `json:"memoryUsedKb"`
	Stdout          string `json:"stdout,omitempty"`
	Stderr          string `json:"stderr,omitempty"`
	CompileOutput   string `json:"compileOutput,omitempty"`
	Success         bool   `json:"success"`
}

const (
	DefaultTimeLimitSec  = 5
	DefaultMemoryLimitMB = 256
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			// Generous ceiling over the execution time limit; compile time
			// and queueing on the backend side are included.
			Timeout: 60 * time.Second,
		},
	}
}

// Execute runs a submission on the backend and returns its verdict. Transport
// and backend failures come back as errors, never as a verdict.
func (c *Client) Execute(ctx context.Context, req *ExecuteRequest) (*ExecuteResponse, error) {
	if req.TimeLimitSec <= 0 {
		req.TimeLimitSec = DefaultTimeLimitSec
	}
	if req.MemoryLimitMB <= 0 {
		req.MemoryLimitMB = DefaultMemoryLimitMB
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal execute request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build execute request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("judge backend unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("judge backend returned status %d", resp.StatusCode)
	}

	result := &ExecuteResponse{}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return nil, fmt.Errorf("failed to decode judge response: %w", err)
	}
	return result, nil
}

// HealthCheck probes the backend.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("judge health check failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("judge backend unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
