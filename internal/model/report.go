package model

import "time"

// InvestigationStatus is the lifecycle state of an investigation
type InvestigationStatus string

const (
	InvestigationPending   InvestigationStatus = "pending"
	InvestigationRunning   InvestigationStatus = "running"
	InvestigationCompleted InvestigationStatus = "completed"
	InvestigationFailed    InvestigationStatus = "failed"
)

// Terminal reports whether no further transitions are allowed
func (s InvestigationStatus) Terminal() bool {
	return s == InvestigationCompleted || s == InvestigationFailed
}

// InvestigationResult is the complete outcome of one investigation.
// Mutated only by the orchestration flow that owns it; immutable once terminal.
type InvestigationResult struct {
	ID        string              `json:"id"`
	Query     string              `json:"query"`
	UserID    string              `json:"user_id,omitempty"`
	SessionID string              `json:"session_id,omitempty"`
	Status    InvestigationStatus `json:"status"`
	Error     string              `json:"error,omitempty"` // retained when status is failed

	Intent         Intent         `json:"intent"`
	Classification Classification `json:"classification"`
	Parameters     Parameters     `json:"parameters"`
	Plan           *ExecutionPlan `json:"plan,omitempty"`
	StageResults   []StageResult  `json:"stage_results"` // order in which stages ran
	Data           ResultData     `json:"data,omitempty"`

	Entities      []Entity             `json:"entities"`
	Relationships []EntityRelationship `json:"relationships"`
	SourcesUsed   []string             `json:"sources_used"` // deduplicated, first-use order

	Confidence float64 `json:"confidence"`
	Score      Score   `json:"score"`

	Elapsed   time.Duration `json:"elapsed"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
}

// Score represents the transparent confidence breakdown
type Score struct {
	Index      int      `json:"index"`      // confidence scaled to 0-100
	Confidence string   `json:"confidence"` // "low", "medium", "high"
	Signals    []Signal `json:"signals"`    // diagnostic signals with transparent data
}

// Signal represents a diagnostic signal with transparent scoring data
type Signal struct {
	Type        SignalType     `json:"type"`
	Severity    SignalSeverity `json:"severity"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data,omitempty"` // formulas and inputs
}

// SignalType classifies the type of diagnostic signal
type SignalType string

const (
	SignalClassification SignalType = "classification" // how the intent was decided
	SignalStageCoverage  SignalType = "stage_coverage" // share of stages that produced data
	SignalEntityYield    SignalType = "entity_yield"   // entities recognized in the payloads
	SignalFailedStages   SignalType = "failed_stages"  // stages with no successful call
	SignalSkippedStages  SignalType = "skipped_stages" // stages never run because a dependency failed
	SignalSanctioned     SignalType = "sanctioned"     // a sanctioned entity appeared in the results
)

// SignalSeverity indicates the importance of the signal
type SignalSeverity string

const (
	SignalInfo     SignalSeverity = "info"
	SignalWarning  SignalSeverity = "warning"
	SignalCritical SignalSeverity = "critical"
)
