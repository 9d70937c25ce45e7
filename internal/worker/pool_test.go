package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// mockResult implements Result
type mockResult struct {
	id  int
	err error
}

func (r *mockResult) GetError() error {
	return r.err
}

// mockJob implements Job
type mockJob struct {
	id        int
	duration  time.Duration
	shouldErr bool
	panics    bool
	executed  *int32 // atomic counter
}

func (j *mockJob) Execute(ctx context.Context) Result {
	if j.executed != nil {
		atomic.AddInt32(j.executed, 1)
	}
	if j.panics {
		panic("boom")
	}
	if j.duration > 0 {
		select {
		case <-time.After(j.duration):
		case <-ctx.Done():
			return &mockResult{id: j.id, err: ctx.Err()}
		}
	}
	if j.shouldErr {
		return &mockResult{id: j.id, err: errors.New("job error")}
	}
	return &mockResult{id: j.id}
}

func TestNewPool(t *testing.T) {
	ctx := context.Background()

	p1 := NewPool(ctx, 5)
	if p1.workers != 5 {
		t.Errorf("expected 5 workers, got %d", p1.workers)
	}

	p2 := NewPool(ctx, 0)
	if p2.workers != 1 {
		t.Errorf("expected default 1 worker for 0 input, got %d", p2.workers)
	}
}

func TestPool_Execution(t *testing.T) {
	pool := NewPool(context.Background(), 2)
	pool.Start()

	var executed int32
	count := 6 // fits queue + result buffers without a reader

	for i := 0; i < count; i++ {
		pool.Submit(&mockJob{executed: &executed})
	}

	results := pool.Wait()

	if len(results) != count {
		t.Errorf("expected %d results, got %d", count, len(results))
	}
	if atomic.LoadInt32(&executed) != int32(count) {
		t.Errorf("expected %d executed jobs, got %d", count, executed)
	}
}

func TestPool_PanicIsolated(t *testing.T) {
	results := Run(context.Background(), 2, []Job{
		&mockJob{id: 0},
		&mockJob{id: 1, panics: true},
		&mockJob{id: 2},
	})

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].GetError() != nil || results[2].GetError() != nil {
		t.Errorf("siblings of a panicking job should succeed")
	}
	if _, ok := results[1].(*PanicResult); !ok {
		t.Errorf("expected PanicResult for panicking job, got %T", results[1])
	}
}

func TestRun_PreservesOrder(t *testing.T) {
	jobs := make([]Job, 20)
	for i := range jobs {
		// later jobs finish first
		jobs[i] = &mockJob{id: i, duration: time.Duration(20-i) * time.Millisecond}
	}

	results := Run(context.Background(), 5, jobs)
	for i, r := range results {
		if r.(*mockResult).id != i {
			t.Fatalf("result %d has id %d", i, r.(*mockResult).id)
		}
	}
}

// concurrencyJob tracks max concurrent executions
type concurrencyJob struct {
	start    func()
	end      func()
	duration time.Duration
}

func (j *concurrencyJob) Execute(ctx context.Context) Result {
	if j.start != nil {
		j.start()
	}
	time.Sleep(j.duration)
	if j.end != nil {
		j.end()
	}
	return &mockResult{}
}

func TestRun_Concurrency(t *testing.T) {
	workers := 10

	var current int32
	var maxConcurrent int32
	var completed int32
	var mu sync.Mutex

	jobs := make([]Job, 50)
	for i := range jobs {
		jobs[i] = &concurrencyJob{
			start: func() {
				curr := atomic.AddInt32(&current, 1)
				mu.Lock()
				if curr > maxConcurrent {
					maxConcurrent = curr
				}
				mu.Unlock()
			},
			end: func() {
				atomic.AddInt32(&current, -1)
				atomic.AddInt32(&completed, 1)
			},
			duration: 10 * time.Millisecond,
		}
	}

	Run(context.Background(), workers, jobs)

	if atomic.LoadInt32(&completed) != int32(len(jobs)) {
		t.Errorf("expected %d completed jobs, got %d", len(jobs), completed)
	}

	mu.Lock()
	max := maxConcurrent
	mu.Unlock()

	if max > int32(workers) {
		t.Errorf("max concurrency %d exceeded workers %d", max, workers)
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	jobs := []Job{
		&mockJob{duration: time.Second},
		&mockJob{duration: time.Second},
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	done := make(chan []Result)
	go func() { done <- Run(ctx, 1, jobs) }()

	select {
	case results := <-done:
		if len(results) != 2 {
			t.Errorf("expected 2 slots, got %d", len(results))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	pool := NewPool(context.Background(), 2)
	pool.Start()
	pool.Shutdown()

	done := make(chan bool)
	go func() {
		done <- pool.Submit(&mockJob{})
	}()

	select {
	case ok := <-done:
		if ok {
			t.Error("Submit after shutdown should report false")
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Submit after shutdown blocked")
	}
}
