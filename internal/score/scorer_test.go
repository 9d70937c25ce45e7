package score

import (
	"fmt"
	"math"
	"testing"

	"github.com/ppiankov/lupa/internal/model"
)

func entities(n int) []model.Entity {
	out := make([]model.Entity, n)
	for i := range out {
		out[i] = model.Entity{ID: fmt.Sprintf("company:%d", i), Type: model.EntityCompany}
	}
	return out
}

func findSignal(score model.Score, t model.SignalType) (model.Signal, bool) {
	for _, s := range score.Signals {
		if s.Type == t {
			return s, true
		}
	}
	return model.Signal{}, false
}

func TestScorer_Calculate_Weights(t *testing.T) {
	scorer := NewScorer()

	tests := []struct {
		name  string
		input Input
		want  float64
		level string
	}{
		{
			name: "everything succeeded",
			input: Input{
				Classification: model.Classification{Intent: model.IntentSupplierInvestigation, Confidence: 0.95, Method: model.MethodRule},
				Stages: []model.StageResult{
					{Name: "a", Status: model.StageSuccess},
					{Name: "b", Status: model.StageSuccess},
				},
				Entities: entities(12),
			},
			want:  0.38 + 0.4 + 0.2,
			level: "high",
		},
		{
			name: "partial and failed stages",
			input: Input{
				Classification: model.Classification{Intent: model.IntentBudgetAnalysis, Confidence: 0.6, Method: model.MethodRule},
				Stages: []model.StageResult{
					{Name: "a", Status: model.StageSuccess},
					{Name: "b", Status: model.StagePartialSuccess},
					{Name: "c", Status: model.StageFailed},
				},
				Skipped:  []string{"d"},
				Entities: entities(5),
			},
			// 0.24 + (1.5/4)*0.4 + 0.5*0.2
			want:  0.24 + 0.15 + 0.1,
			level: "low",
		},
		{
			name: "nothing ran",
			input: Input{
				Classification: model.Classification{Intent: model.IntentGeneralQuery, Confidence: 0.3, Method: model.MethodFallback},
			},
			want:  0.12,
			level: "low",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, score := scorer.Calculate(tt.input)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("confidence = %v, want %v", got, tt.want)
			}
			if score.Confidence != tt.level {
				t.Errorf("level = %q, want %q", score.Confidence, tt.level)
			}
			if score.Index != int(math.Round(tt.want*100)) {
				t.Errorf("index = %d, want %d", score.Index, int(math.Round(tt.want*100)))
			}
			if got < 0 || got > 1 {
				t.Errorf("confidence out of range: %v", got)
			}
		})
	}
}

func TestScorer_Calculate_Signals(t *testing.T) {
	scorer := NewScorer()

	sanctioned := model.Entity{
		ID:         "company:1",
		Type:       model.EntityCompany,
		Name:       "Alfa",
		Attributes: map[string]any{model.KeySanction: "Inidônea"},
	}
	_, score := scorer.Calculate(Input{
		Classification: model.Classification{Intent: model.IntentCorruptionIndicators, Confidence: 0.85, Method: model.MethodRule},
		Stages: []model.StageResult{
			{Name: "sanctions_check", Status: model.StageSuccess},
			{Name: "political_donations", Status: model.StageFailed},
		},
		Skipped:  []string{"risk_correlation"},
		Entities: []model.Entity{sanctioned},
	})

	for _, want := range []model.SignalType{
		model.SignalClassification,
		model.SignalStageCoverage,
		model.SignalEntityYield,
		model.SignalFailedStages,
		model.SignalSkippedStages,
		model.SignalSanctioned,
	} {
		if _, ok := findSignal(score, want); !ok {
			t.Errorf("missing %s signal", want)
		}
	}

	failed, _ := findSignal(score, model.SignalFailedStages)
	if failed.Severity != model.SignalWarning {
		t.Errorf("failed stages severity = %s, want warning", failed.Severity)
	}
	sanction, _ := findSignal(score, model.SignalSanctioned)
	if sanction.Severity != model.SignalCritical {
		t.Errorf("sanctioned severity = %s, want critical", sanction.Severity)
	}

	coverage, _ := findSignal(score, model.SignalStageCoverage)
	if coverage.Data["formula"] == nil {
		t.Error("coverage signal should explain its formula")
	}
}

func TestScorer_Calculate_AllStagesFailed(t *testing.T) {
	scorer := NewScorer()
	_, score := scorer.Calculate(Input{
		Classification: model.Classification{Intent: model.IntentSupplierInvestigation, Confidence: 0.95, Method: model.MethodRule},
		Stages: []model.StageResult{
			{Name: "company_lookup", Status: model.StageFailed},
		},
		Skipped: []string{"contract_search", "bidding_details"},
	})

	failed, ok := findSignal(score, model.SignalFailedStages)
	if !ok || failed.Severity != model.SignalCritical {
		t.Errorf("expected critical failed_stages signal, got %+v", failed)
	}
	coverage, _ := findSignal(score, model.SignalStageCoverage)
	if coverage.Severity != model.SignalCritical {
		t.Errorf("coverage severity = %s, want critical", coverage.Severity)
	}
	if _, ok := findSignal(score, model.SignalSanctioned); ok {
		t.Error("unexpected sanctioned signal")
	}
}

func TestScorer_Calculate_ClampsClassification(t *testing.T) {
	scorer := NewScorer()
	got, _ := scorer.Calculate(Input{
		Classification: model.Classification{Confidence: 1.7},
		Stages:         []model.StageResult{{Name: "a", Status: model.StageSuccess}},
		Entities:       entities(30),
	})
	if got != 1 {
		t.Errorf("confidence = %v, want 1", got)
	}
}
