package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/martinsuchenak/gestion-impacts/internal/log"
)

// ErrPoolStopped is returned when submitting to a stopped pool.
var ErrPoolStopped = errors.New("worker pool stopped")

// Pool runs background jobs on a fixed number of goroutines
type Pool struct {
	workers int
	jobs    chan Job
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	stopped bool
}

// Job is a unit of work. Result, when set, receives the handler's error.
type Job struct {
	Name    string
	Handler func(context.Context) error
	Result  chan error
}

// NewPool creates a pool of workers goroutines; fewer than one means one.
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		workers: workers,
		jobs:    make(chan Job, 16),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start starts the workers
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	log.Info("Worker pool started", "workers", p.workers)
}

// Stop cancels running jobs and waits for the workers to exit. Queued jobs
// are dropped.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
	log.Info("Worker pool stopped")
}

// Submit queues job, blocking while the queue is full.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return ErrPoolStopped
	}

	select {
	case p.jobs <- job:
		return nil
	case <-p.ctx.Done():
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do submits a job and waits for its result.
func (p *Pool) Do(ctx context.Context, name string, handler func(context.Context) error) error {
	result := make(chan error, 1)
	if err := p.Submit(ctx, Job{Name: name, Handler: handler, Result: result}); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-p.ctx.Done():
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job := <-p.jobs:
			log.Debug("Worker executing job", "worker_id", id, "job", job.Name)

			err := job.Handler(p.ctx)
			if job.Result != nil {
				job.Result <- err
			}
		}
	}
}
