package worker

import (
	"context"
	"fmt"
	"sync"
)

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

// PanicResult is emitted in place of the result of a job that panicked
type PanicResult struct {
	Value any
}

// GetError returns the panic as an error
func (r *PanicResult) GetError() error {
	return fmt.Errorf("job panicked: %v", r.Value)
}

// Pool manages a pool of workers that execute jobs concurrently.
// A panicking job produces a PanicResult and never takes a worker down.
type Pool struct {
	workers    int
	jobQueue   chan Job
	results    chan Result
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	closeOnce  sync.Once
}

// NewPool creates a new worker pool bound to ctx
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers:    workers,
		jobQueue:   make(chan Job, workers*2),
		results:    make(chan Result, workers*2),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start starts the worker pool
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			result := p.run(job)
			select {
			case p.results <- result:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

func (p *Pool) run(job Job) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = &PanicResult{Value: r}
		}
	}()
	return job.Execute(p.ctx)
}

// Submit submits a job to the pool. Returns false if the pool was shut down.
func (p *Pool) Submit(job Job) bool {
	if p.ctx.Err() != nil {
		return false
	}
	select {
	case <-p.ctx.Done():
		return false
	case p.jobQueue <- job:
		return true
	}
}

// Wait closes the queue, waits for all submitted jobs and returns their results
// in completion order
func (p *Pool) Wait() []Result {
	close(p.jobQueue)

	go func() {
		p.wg.Wait()
		p.closeResults()
	}()

	var results []Result
	for result := range p.results {
		results = append(results, result)
	}

	return results
}

// Shutdown cancels in-flight jobs and stops the workers
func (p *Pool) Shutdown() {
	p.cancelFunc()
	p.wg.Wait()
	p.closeResults()
}

func (p *Pool) closeResults() {
	p.closeOnce.Do(func() {
		close(p.results)
	})
}

// Run submits jobs to a fresh pool and returns their results in submission order.
// Entries for jobs that did not finish before ctx was cancelled are nil.
func Run(ctx context.Context, workers int, jobs []Job) []Result {
	if len(jobs) == 0 {
		return []Result{}
	}

	pool := NewPool(ctx, workers)
	pool.Start()

	indexed := make([]Job, len(jobs))
	for i, job := range jobs {
		indexed[i] = &indexedJob{index: i, job: job}
	}

	go func() {
		for _, job := range indexed {
			if !pool.Submit(job) {
				break
			}
		}
	}()

	ordered := make([]Result, len(jobs))
	for seen := 0; seen < len(jobs); seen++ {
		select {
		case result := <-pool.results:
			if ir, ok := result.(*indexedResult); ok {
				ordered[ir.index] = ir.Result
			}
		case <-pool.ctx.Done():
			// jobs that never reported stay nil
			seen = len(jobs)
		}
	}
	pool.Shutdown()

	return ordered
}

type indexedJob struct {
	index int
	job   Job
}

func (j *indexedJob) Execute(ctx context.Context) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = &indexedResult{index: j.index, Result: &PanicResult{Value: r}}
		}
	}()
	return &indexedResult{index: j.index, Result: j.job.Execute(ctx)}
}

type indexedResult struct {
	Result
	index int
}
