package judge

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var ErrPoolSaturated = errors.New("judge pool saturated")

// VerdictFunc receives the out-of-band judging result. resp is nil when the
// backend call itself failed; err carries the cause.
type VerdictFunc func(submissionID string, resp *ExecuteResponse, err error)

// Pool runs submissions against the judge backend on a fixed set of workers.
// Submit never blocks the caller: judging is fire-and-forget and the verdict
// arrives through the callback.
type Pool struct {
	client   Executor
	callback VerdictFunc
	tasks    chan *ExecuteRequest
	workers  int
	logger   *zap.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

// Executor abstracts the backend client so tests can fake verdicts.
type Executor interface {
	Execute(ctx context.Context, req *ExecuteRequest) (*ExecuteResponse, error)
}

func NewPool(client Executor, workers, queueSize int, callback VerdictFunc) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	logger, _ := zap.NewProduction()
	return &Pool{
		client:   client,
		callback: callback,
		tasks:    make(chan *ExecuteRequest, queueSize),
		workers:  workers,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

func (p *Pool) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	p.logger.Info("Starting judge pool", zap.Int("workers", p.workers))
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Stop drains in-flight work and shuts the workers down. Queued tasks that
// never ran are reported back as failed dispatches.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	close(p.stopChan)
	p.wg.Wait()
	p.logger.Info("Judge pool stopped")
}

// Submit queues a submission for judging. Returns ErrPoolSaturated instead of
// blocking when the task buffer is full.
func (p *Pool) Submit(req *ExecuteRequest) error {
	select {
	case p.tasks <- req:
		return nil
	default:
		return ErrPoolSaturated
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case req := <-p.tasks:
			p.run(req)
		case <-p.stopChan:
			return
		}
	}
}

func (p *Pool) run(req *ExecuteRequest) {
	ctx := context.Background()
	resp, err := p.client.Execute(ctx, req)
	if err != nil {
		p.logger.Warn("Judge execution failed",
			zap.String("submissionId", req.SubmissionID),
			zap.Error(err))
	}
	p.callback(req.SubmissionID, resp, err)
}
