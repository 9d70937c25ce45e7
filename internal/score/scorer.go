package score

import (
	"fmt"
	"math"
	"strings"

	"github.com/ppiankov/lupa/internal/model"
)

const (
	classificationWeight = 0.4
	coverageWeight       = 0.4
	yieldWeight          = 0.2

	// entity count at which the yield component saturates
	yieldSaturation = 10
)

// Input is what an investigation produced, as seen by the scorer
type Input struct {
	Classification model.Classification
	Stages         []model.StageResult
	Skipped        []string // stages never run because a dependency failed
	Entities       []model.Entity
}

// Scorer calculates the investigation confidence and generates signals
type Scorer struct{}

// NewScorer creates a new scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Calculate returns the confidence in [0,1] and its transparent breakdown
func (s *Scorer) Calculate(in Input) (float64, model.Score) {
	var signals []model.Signal

	// 1. Classification (40%)
	classification, classSignal := s.classification(in.Classification)
	signals = append(signals, classSignal)

	// 2. Stage coverage (40%)
	coverage, coverageSignal := s.coverage(in.Stages, in.Skipped)
	signals = append(signals, coverageSignal)

	// 3. Entity yield (20%)
	yield, yieldSignal := s.yield(in.Entities)
	signals = append(signals, yieldSignal)

	// Diagnostics that do not change the number
	if sig, ok := s.failedStages(in.Stages); ok {
		signals = append(signals, sig)
	}
	if len(in.Skipped) > 0 {
		signals = append(signals, model.Signal{
			Type:        model.SignalSkippedStages,
			Severity:    model.SignalWarning,
			Description: fmt.Sprintf("%d stage(s) skipped after a dependency failed", len(in.Skipped)),
			Data:        map[string]any{"stages": in.Skipped},
		})
	}
	if sig, ok := s.sanctioned(in.Entities); ok {
		signals = append(signals, sig)
	}

	confidence := round(classification + coverage + yield)
	return confidence, model.Score{
		Index:      int(math.Round(confidence * 100)),
		Confidence: s.level(confidence),
		Signals:    signals,
	}
}

func (s *Scorer) classification(c model.Classification) (float64, model.Signal) {
	conf := math.Max(0, math.Min(c.Confidence, 1))
	score := conf * classificationWeight

	severity := model.SignalInfo
	if c.Method == model.MethodFallback {
		severity = model.SignalWarning
	}

	return score, model.Signal{
		Type:        model.SignalClassification,
		Severity:    severity,
		Description: fmt.Sprintf("Intent %s by %s with confidence %.2f", c.Intent, c.Method, conf),
		Data: map[string]any{
			"intent":     c.Intent,
			"method":     c.Method,
			"confidence": conf,
			"score":      score,
			"formula":    "classification_confidence * 0.4",
		},
	}
}

func (s *Scorer) coverage(stages []model.StageResult, skipped []string) (float64, model.Signal) {
	total := len(stages) + len(skipped)
	if total == 0 {
		return 0, model.Signal{
			Type:        model.SignalStageCoverage,
			Severity:    model.SignalCritical,
			Description: "No stages ran",
			Data:        map[string]any{"stages": 0, "score": 0},
		}
	}

	succeeded, partial := 0, 0
	for _, st := range stages {
		switch st.Status {
		case model.StageSuccess:
			succeeded++
		case model.StagePartialSuccess:
			partial++
		}
	}

	ratio := (float64(succeeded) + 0.5*float64(partial)) / float64(total)
	score := ratio * coverageWeight

	severity := model.SignalInfo
	if ratio < 0.5 {
		severity = model.SignalCritical
	} else if ratio < 1.0 {
		severity = model.SignalWarning
	}

	return score, model.Signal{
		Type:        model.SignalStageCoverage,
		Severity:    severity,
		Description: fmt.Sprintf("Stage coverage: %.2f", ratio),
		Data: map[string]any{
			"succeeded": succeeded,
			"partial":   partial,
			"total":     total,
			"ratio":     ratio,
			"score":     score,
			"formula":   "(success + 0.5 * partial) / (ran + skipped) * 0.4",
		},
	}
}

func (s *Scorer) yield(entities []model.Entity) (float64, model.Signal) {
	count := len(entities)
	ratio := math.Min(float64(count)/yieldSaturation, 1)
	score := ratio * yieldWeight

	severity := model.SignalInfo
	if count == 0 {
		severity = model.SignalWarning
	}

	byType := map[model.EntityType]int{}
	for _, e := range entities {
		byType[e.Type]++
	}

	return score, model.Signal{
		Type:        model.SignalEntityYield,
		Severity:    severity,
		Description: fmt.Sprintf("%d entities recognized", count),
		Data: map[string]any{
			"entities": count,
			"by_type":  byType,
			"score":    score,
			"formula":  fmt.Sprintf("min(entities / %d, 1) * 0.2", yieldSaturation),
		},
	}
}

func (s *Scorer) failedStages(stages []model.StageResult) (model.Signal, bool) {
	var failed []string
	for _, st := range stages {
		if st.Status == model.StageFailed {
			failed = append(failed, st.Name)
		}
	}
	if len(failed) == 0 {
		return model.Signal{}, false
	}

	severity := model.SignalWarning
	if len(failed) == len(stages) {
		severity = model.SignalCritical
	}
	return model.Signal{
		Type:        model.SignalFailedStages,
		Severity:    severity,
		Description: "Stages without any successful source call: " + strings.Join(failed, ", "),
		Data:        map[string]any{"stages": failed, "ran": len(stages)},
	}, true
}

func (s *Scorer) sanctioned(entities []model.Entity) (model.Signal, bool) {
	var names []string
	for _, e := range entities {
		if e.Attr(model.KeySanction) != "" {
			names = append(names, e.Name)
		}
	}
	if len(names) == 0 {
		return model.Signal{}, false
	}
	return model.Signal{
		Type:        model.SignalSanctioned,
		Severity:    model.SignalCritical,
		Description: fmt.Sprintf("%d sanctioned entit(ies) in the results", len(names)),
		Data:        map[string]any{"entities": names},
	}, true
}

// level maps the confidence to a label
func (s *Scorer) level(confidence float64) string {
	if confidence >= 0.75 {
		return "high"
	} else if confidence >= 0.5 {
		return "medium"
	}
	return "low"
}

func round(f float64) float64 {
	return math.Round(f*1000) / 1000
}
