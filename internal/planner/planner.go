// Package planner turns an intent and its parameters into an execution plan:
// a dependency-ordered list of stages, each bound to the sources that
// currently provide the stage's capability.
package planner

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ppiankov/lupa/internal/logging"
	"github.com/ppiankov/lupa/internal/model"
)

const (
	defaultStageTimeout = 30 * time.Second
	defaultRetries      = 3

	// InformationalStage is the single stage of a plan nothing could be built for
	InformationalStage = "informational"
)

// SourceFinder resolves a capability to the sources that provide it
type SourceFinder interface {
	FindByCapability(c model.Capability) []model.SourceRegistration
}

// Options configures a Planner
type Options struct {
	Retries      int           // attempts per source call, default 3
	StageTimeout time.Duration // default per-stage timeout
	Logger       *log.Logger
}

// Planner builds execution plans from per-intent stage templates
type Planner struct {
	sources      SourceFinder
	retries      int
	stageTimeout time.Duration
	logger       *log.Logger
}

// New creates a planner that resolves sources through finder at plan time
func New(finder SourceFinder, opts Options) *Planner {
	if opts.Retries <= 0 {
		opts.Retries = defaultRetries
	}
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = defaultStageTimeout
	}
	return &Planner{
		sources:      finder,
		retries:      opts.Retries,
		stageTimeout: opts.StageTimeout,
		logger:       logging.OrDiscard(opts.Logger),
	}
}

// CreatePlan builds the plan for intent. Stages whose capability has no
// sources, or whose parameters are missing, are dropped along with
// dependencies on them; when nothing is left the plan holds a single
// informational stage.
func (p *Planner) CreatePlan(intent model.Intent, params model.Parameters) (*model.ExecutionPlan, error) {
	plan := &model.ExecutionPlan{
		Intent:        intent,
		Parameters:    params,
		CacheStrategy: CacheStrategyFor(intent),
	}

	dropped := make(map[string]bool)
	for _, st := range templateFor(intent) {
		stage, ok := p.resolve(st, params, dropped)
		if !ok {
			dropped[st.name] = true
			p.logger.Debug("stage dropped", "intent", intent, "stage", st.name, "capability", st.capability)
			continue
		}
		plan.Stages = append(plan.Stages, stage)
	}

	if len(plan.Stages) == 0 {
		plan.Stages = []model.Stage{{
			Name:          InformationalStage,
			Justification: fmt.Sprintf("no registered source provides the data needed for %s", intent),
		}}
	}

	if err := Validate(plan); err != nil {
		return nil, err
	}

	var total time.Duration
	for _, s := range plan.Stages {
		total += time.Duration(s.Timeout)
	}
	plan.EstimatedDuration = model.Duration(total)

	p.logger.Debug("plan created", "intent", intent, "stages", len(plan.Stages), "estimated", total)
	return plan, nil
}

func (p *Planner) resolve(st stageTemplate, params model.Parameters, dropped map[string]bool) (model.Stage, bool) {
	stage := model.Stage{
		Name:          st.name,
		Capability:    st.capability,
		Parallel:      st.parallel,
		Justification: st.justification,
	}

	var removed int
	for _, dep := range st.dependsOn {
		if dropped[dep] {
			removed++
			continue
		}
		stage.DependsOn = append(stage.DependsOn, dep)
	}

	if !st.applies(params) {
		return model.Stage{}, false
	}

	if st.capability == "" {
		// synthetic stages only make sense over at least one surviving input
		return stage, len(st.dependsOn) == 0 || removed < len(st.dependsOn)
	}

	regs := p.sources.FindByCapability(st.capability)
	if len(regs) == 0 {
		return model.Stage{}, false
	}

	stage.Operation = defaultOperation[st.capability]
	stage.Retries = p.retries
	stage.Timeout = model.Duration(p.stageTimeout)
	for _, reg := range regs {
		stage.Sources = append(stage.Sources, reg.ID)
		if reg.Timeout > time.Duration(stage.Timeout) {
			stage.Timeout = model.Duration(reg.Timeout)
		}
	}
	return stage, true
}

// Validate checks that stage names are unique and dependencies form a DAG
func Validate(plan *model.ExecutionPlan) error {
	if len(plan.Stages) == 0 {
		return fmt.Errorf("%w: plan has no stages", model.ErrPlanning)
	}
	if _, err := plan.TopologicalOrder(); err != nil {
		return err
	}
	return nil
}

// CacheStrategyFor picks the cache strategy of an intent class: statistical
// and retrospective data caches aggressively, investigative data moderately
func CacheStrategyFor(intent model.Intent) model.CacheStrategy {
	switch intent {
	case model.IntentBudgetAnalysis, model.IntentHealthBudget, model.IntentEducationPerformance:
		return model.CacheAggressive
	case model.IntentCorruptionIndicators, model.IntentContractAnomaly, model.IntentSupplierInvestigation:
		return model.CacheModerate
	default:
		return model.CacheMinimal
	}
}
