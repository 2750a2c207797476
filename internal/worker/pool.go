package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Priya8975/hookline/internal/engine"
)

// TaskHandler processes one claimed retry task.
type TaskHandler func(ctx context.Context, task engine.RetryTask)

// Pool runs a fixed number of goroutines that process retry tasks.
type Pool struct {
	numWorkers int
	tasks      chan engine.RetryTask
	handle     TaskHandler
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewPool creates a worker pool with the given number of workers.
func NewPool(numWorkers int, handle TaskHandler, logger *slog.Logger) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Pool{
		numWorkers: numWorkers,
		tasks:      make(chan engine.RetryTask, numWorkers*2),
		handle:     handle,
		logger:     logger,
	}
}

// Start launches the workers. They run until Stop closes the task channel.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.logger.Info("worker pool started", "num_workers", p.numWorkers)
}

// Submit hands a task to the workers, blocking while all of them are busy.
func (p *Pool) Submit(task engine.RetryTask) {
	p.tasks <- task
}

// Stop closes the task channel and waits for queued tasks to finish.
func (p *Pool) Stop() {
	close(p.tasks)
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// worker finishes every task it receives, even after ctx is cancelled, since
// claimed tasks are no longer in the queue.
func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	taskCtx := context.WithoutCancel(ctx)
	for task := range p.tasks {
		p.handle(taskCtx, task)
	}
}
