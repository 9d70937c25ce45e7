// Package federation executes plans against registered sources: stages run
// once their dependencies finish, source calls within a stage are isolated
// from one another, and failing calls are retried and failed over.
package federation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ppiankov/lupa/internal/cache"
	"github.com/ppiankov/lupa/internal/logging"
	"github.com/ppiankov/lupa/internal/metrics"
	"github.com/ppiankov/lupa/internal/model"
	"github.com/ppiankov/lupa/internal/planner"
	"github.com/ppiankov/lupa/internal/source"
)

const (
	defaultRetries     = 3
	defaultCallTimeout = 30 * time.Second
	defaultMaxParallel = 8

	// SyntheticKey holds the descriptive payload of a synthetic stage
	SyntheticKey = "synthetic"
)

// Sources is the part of the registry the executor needs
type Sources interface {
	Get(id string) (model.SourceRegistration, bool)
	ClientFor(id string) (source.Source, error)
	FallbackFor(id string) (string, bool)
}

// Options configures an Executor
type Options struct {
	Cache       cache.Cache // nil disables caching
	DefaultTTL  time.Duration
	MaxParallel int // concurrent source calls per stage
	Metrics     *metrics.Registry
	Logger      *log.Logger
}

// Executor runs execution plans. It is safe for concurrent use by
// independent investigations.
type Executor struct {
	sources     Sources
	cache       cache.Cache
	defaultTTL  time.Duration
	maxParallel int
	metrics     *metrics.Registry
	logger      *log.Logger
	flight      singleflight.Group

	// sleep waits between retries (injectable for tests)
	sleep func(ctx context.Context, d time.Duration) error
}

// Outcome is everything an executed plan produced
type Outcome struct {
	Data    model.ResultData    // stage name -> source id -> payload
	Stages  []model.StageResult // in completion order
	Skipped []string            // stages not run because a dependency failed
	Elapsed time.Duration
}

// New creates an executor over the given sources
func New(sources Sources, opts Options) *Executor {
	if opts.Cache == nil {
		opts.Cache = cache.Noop{}
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = defaultMaxParallel
	}
	return &Executor{
		sources:     sources,
		cache:       opts.Cache,
		defaultTTL:  opts.DefaultTTL,
		maxParallel: opts.MaxParallel,
		metrics:     opts.Metrics,
		logger:      logging.OrDiscard(opts.Logger),
		sleep:       sleepContext,
	}
}

// stageState tracks one stage while the plan runs
type stageState struct {
	done   chan struct{}
	status model.StageStatus // valid once done is closed; empty when skipped
}

// Execute runs plan. Each stage starts once all of its dependencies have
// finished; a stage with a failed or skipped dependency is skipped and absent
// from the outcome. The returned error is non-nil only for an invalid plan or
// a cancelled context; the outcome then holds whatever finished.
func (e *Executor) Execute(ctx context.Context, plan *model.ExecutionPlan) (*Outcome, error) {
	start := time.Now()
	if err := planner.Validate(plan); err != nil {
		return nil, err
	}

	params := plan.Parameters.Bag()
	states := make(map[string]*stageState, len(plan.Stages))
	for _, s := range plan.Stages {
		states[s.Name] = &stageState{done: make(chan struct{})}
	}

	out := &Outcome{Data: model.ResultData{}}
	var mu sync.Mutex

	var g errgroup.Group
	for _, stage := range plan.Stages {
		g.Go(func() error {
			state := states[stage.Name]
			defer close(state.done)

			if !e.awaitDependencies(ctx, stage, states) {
				mu.Lock()
				out.Skipped = append(out.Skipped, stage.Name)
				mu.Unlock()
				e.logger.Info("stage skipped", "stage", stage.Name, "depends_on", stage.DependsOn)
				return nil
			}

			result := e.runStage(ctx, stage, params, plan.CacheStrategy)
			state.status = result.Status

			mu.Lock()
			out.Stages = append(out.Stages, result)
			out.Data[stage.Name] = result.Data
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	out.Elapsed = time.Since(start)
	if err := ctx.Err(); err != nil {
		return out, fmt.Errorf("execute plan: %w", err)
	}
	return out, nil
}

// awaitDependencies blocks until every dependency is done and reports
// whether all of them produced data
func (e *Executor) awaitDependencies(ctx context.Context, stage model.Stage, states map[string]*stageState) bool {
	for _, dep := range stage.DependsOn {
		state := states[dep]
		select {
		case <-state.done:
		case <-ctx.Done():
			return false
		}
		if state.status == "" || state.status == model.StageFailed {
			return false
		}
	}
	return ctx.Err() == nil
}

func (e *Executor) runStage(ctx context.Context, stage model.Stage, params model.Params, strategy model.CacheStrategy) model.StageResult {
	if stage.Synthetic() {
		return model.StageResult{
			Name:        stage.Name,
			Status:      model.StageSuccess,
			Data:        model.StageData{SyntheticKey: model.NewNote(stage.Justification)},
			SourcesUsed: []string{},
		}
	}

	start := time.Now()
	var calls []model.SourceCallResult
	if stage.Parallel {
		calls = e.callParallel(ctx, stage, params, strategy)
	} else {
		calls = e.callSequential(ctx, stage, params, strategy)
	}

	result := aggregate(stage.Name, calls)
	result.Elapsed = time.Since(start)

	e.metrics.RecordStage(string(result.Status), result.Elapsed)
	e.logger.Info("stage finished",
		"stage", stage.Name,
		"status", result.Status,
		"sources", len(result.SourcesUsed),
		"elapsed", result.Elapsed.Round(time.Millisecond))
	return result
}

// callParallel calls every source concurrently; one call failing never
// cancels its siblings
func (e *Executor) callParallel(ctx context.Context, stage model.Stage, params model.Params, strategy model.CacheStrategy) []model.SourceCallResult {
	calls := make([]model.SourceCallResult, len(stage.Sources))

	var g errgroup.Group
	g.SetLimit(e.maxParallel)
	for i, id := range stage.Sources {
		g.Go(func() error {
			calls[i] = e.call(ctx, stage, id, params, strategy)
			return nil
		})
	}
	_ = g.Wait()
	return calls
}

// callSequential probes sources in order and stops at the first success
func (e *Executor) callSequential(ctx context.Context, stage model.Stage, params model.Params, strategy model.CacheStrategy) []model.SourceCallResult {
	var calls []model.SourceCallResult
	for _, id := range stage.Sources {
		res := e.call(ctx, stage, id, params, strategy)
		calls = append(calls, res)
		if res.Status.Succeeded() || ctx.Err() != nil {
			break
		}
	}
	return calls
}

// aggregate derives the stage status from its calls and merges successful
// payloads under the id of the source that produced them
func aggregate(name string, calls []model.SourceCallResult) model.StageResult {
	result := model.StageResult{
		Name:        name,
		Data:        model.StageData{},
		SourcesUsed: []string{},
		Calls:       calls,
	}

	seen := make(map[string]bool)
	used := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			result.SourcesUsed = append(result.SourcesUsed, id)
		}
	}

	succeeded := 0
	for _, c := range calls {
		used(c.Requested)
		used(c.SourceID)
		if !c.Status.Succeeded() {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", c.SourceID, c.Error))
			continue
		}
		succeeded++
		if prev, ok := result.Data[c.SourceID]; ok {
			prev.Records = append(prev.Records, c.Payload.Records...)
			result.Data[c.SourceID] = prev
			continue
		}
		result.Data[c.SourceID] = c.Payload
	}

	switch {
	case succeeded == len(calls) && succeeded > 0:
		result.Status = model.StageSuccess
	case succeeded > 0:
		result.Status = model.StagePartialSuccess
	default:
		result.Status = model.StageFailed
	}
	return result
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
