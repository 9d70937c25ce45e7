// Package investigation runs investigations end to end: it understands the
// query, plans and executes the source calls, extracts the session entities,
// scores the result and hands it to the configured sinks. Folding a finished
// investigation into the persistent network graph is a separate call.
package investigation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/ppiankov/lupa/internal/entity"
	"github.com/ppiankov/lupa/internal/federation"
	"github.com/ppiankov/lupa/internal/logging"
	"github.com/ppiankov/lupa/internal/metrics"
	"github.com/ppiankov/lupa/internal/model"
	"github.com/ppiankov/lupa/internal/network"
	"github.com/ppiankov/lupa/internal/score"
)

// ErrNoGraph is returned by IntegrateWithGraph when no persistent graph is configured
var ErrNoGraph = errors.New("persistent graph not configured")

// Classifier assigns an intent to a query
type Classifier interface {
	Classify(ctx context.Context, query string) model.Classification
}

// Extractor pulls parameters out of a query
type Extractor interface {
	Extract(query string) model.Parameters
}

// Planner builds the execution plan of an intent
type Planner interface {
	CreatePlan(intent model.Intent, params model.Parameters) (*model.ExecutionPlan, error)
}

// Executor runs an execution plan
type Executor interface {
	Execute(ctx context.Context, plan *model.ExecutionPlan) (*federation.Outcome, error)
}

// Options configures an Orchestrator
type Options struct {
	Sink     Sink           // nil keeps results in memory only
	Graph    *network.Graph // nil disables IntegrateWithGraph
	Detector model.DetectorConfig
	Metrics  *metrics.Registry
	Logger   *log.Logger
}

// Orchestrator sequences one investigation at a time per call. It holds no
// per-investigation state, so concurrent calls are independent.
type Orchestrator struct {
	classifier Classifier
	extractor  Extractor
	planner    Planner
	executor   Executor
	scorer     *score.Scorer
	sink       Sink
	graph      *network.Graph
	detector   model.DetectorConfig
	metrics    *metrics.Registry
	logger     *log.Logger

	now   func() time.Time
	newID func() string
}

// New creates an orchestrator over the given components
func New(classifier Classifier, extractor Extractor, planner Planner, executor Executor, opts Options) *Orchestrator {
	if opts.Detector == (model.DetectorConfig{}) {
		opts.Detector = model.DefaultDetectorConfig()
	}
	return &Orchestrator{
		classifier: classifier,
		extractor:  extractor,
		planner:    planner,
		executor:   executor,
		scorer:     score.NewScorer(),
		sink:       opts.Sink,
		graph:      opts.Graph,
		detector:   opts.Detector,
		metrics:    opts.Metrics,
		logger:     logging.OrDiscard(opts.Logger),
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Investigate runs query through the whole pipeline. It never returns an
// error: failures end with status failed, the error text retained and the
// stage results of whatever ran before the failure.
func (o *Orchestrator) Investigate(ctx context.Context, query, userID, sessionID string) (result *model.InvestigationResult) {
	result = &model.InvestigationResult{
		ID:            o.newID(),
		Query:         query,
		UserID:        userID,
		SessionID:     sessionID,
		Status:        model.InvestigationPending,
		StageResults:  []model.StageResult{},
		Entities:      []model.Entity{},
		Relationships: []model.EntityRelationship{},
		SourcesUsed:   []string{},
		StartedAt:     o.now(),
	}
	logger := o.logger.With("investigation", result.ID)

	defer func() {
		if r := recover(); r != nil {
			o.fail(result, fmt.Errorf("panic: %v", r))
		}
		o.finish(ctx, logger, result)
	}()

	// 1. Understand the query
	result.Parameters = o.extractor.Extract(query)
	result.Classification = o.classifier.Classify(ctx, query)
	result.Intent = result.Classification.Intent
	logger.Debug("query classified",
		"intent", result.Intent,
		"method", result.Classification.Method,
		"confidence", result.Classification.Confidence)

	// 2. Plan
	plan, err := o.planner.CreatePlan(result.Intent, result.Parameters)
	if err != nil {
		o.fail(result, err)
		return result
	}
	result.Plan = plan
	result.Status = model.InvestigationRunning

	// 3. Execute
	outcome, err := o.executor.Execute(ctx, plan)
	var skipped []string
	if outcome != nil {
		if outcome.Stages != nil {
			result.StageResults = outcome.Stages
		}
		result.Data = outcome.Data
		result.SourcesUsed = sourcesUsed(outcome.Stages)
		skipped = outcome.Skipped
	}
	if err != nil {
		o.fail(result, err)
		return result
	}

	// 4. Session entities
	graph := entity.NewGraph()
	graph.ExtractFromResults(result.Data)
	if entities := graph.Entities(); entities != nil {
		result.Entities = entities
	}
	if relationships := graph.Relationships(); relationships != nil {
		result.Relationships = relationships
	}

	// 5. Score
	result.Confidence, result.Score = o.scorer.Calculate(score.Input{
		Classification: result.Classification,
		Stages:         result.StageResults,
		Skipped:        skipped,
		Entities:       result.Entities,
	})

	result.Status = model.InvestigationCompleted
	return result
}

func (o *Orchestrator) fail(result *model.InvestigationResult, err error) {
	result.Status = model.InvestigationFailed
	result.Error = err.Error()
}

// finish stamps the end time and hands the result off. The sink runs even
// when ctx is already cancelled.
func (o *Orchestrator) finish(ctx context.Context, logger *log.Logger, result *model.InvestigationResult) {
	ended := o.now()
	result.EndedAt = &ended
	result.Elapsed = ended.Sub(result.StartedAt)

	o.metrics.RecordInvestigation(string(result.Intent), string(result.Status))

	if result.Status == model.InvestigationFailed {
		logger.Error("investigation failed", "err", fmt.Errorf("%w: %s", model.ErrInvestigationFailed, result.Error))
	} else {
		logger.Info("investigation completed",
			"intent", result.Intent,
			"stages", len(result.StageResults),
			"entities", len(result.Entities),
			"confidence", result.Confidence,
			"elapsed", result.Elapsed)
	}

	if o.sink == nil {
		return
	}
	if err := o.sink.Save(context.WithoutCancel(ctx), result); err != nil {
		logger.Warn("saving investigation failed", "err", err)
	}
}

// sourcesUsed lists every source that was called, in first-use order
func sourcesUsed(stages []model.StageResult) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, st := range stages {
		for _, id := range st.SourcesUsed {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

// IntegrateWithGraph folds the entities and relationships of a finished
// investigation into the persistent graph, then recomputes centrality and
// runs the detectors. It is never part of Investigate so detector work
// does not add to investigation latency.
func (o *Orchestrator) IntegrateWithGraph(ctx context.Context, investigationID string, entities []model.Entity, relationships []model.EntityRelationship) (*network.Integration, error) {
	if o.graph == nil {
		return nil, ErrNoGraph
	}
	contracts := network.BuildContractContext(entities, o.detector)
	return o.graph.IntegrateWithGraph(ctx, investigationID, entities, relationships, contracts)
}

// Integrate is IntegrateWithGraph for a result returned by Investigate.
// Only completed investigations are integrated.
func (o *Orchestrator) Integrate(ctx context.Context, result *model.InvestigationResult) (*network.Integration, error) {
	if result.Status != model.InvestigationCompleted {
		return nil, fmt.Errorf("integrate investigation %s: status is %s", result.ID, result.Status)
	}
	return o.IntegrateWithGraph(ctx, result.ID, result.Entities, result.Relationships)
}
