package model

import "time"

// Record is one flat row returned by a source, keyed by the conventions in keys.go
type Record map[string]any

// String returns the value under key as a string ("" when absent)
func (r Record) String(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case nil:
		return ""
	case float64:
		return formatFloat(v)
	case int:
		return formatFloat(float64(v))
	case int64:
		return formatFloat(float64(v))
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

// Float returns the value under key as a number (0 when absent or unparseable)
func (r Record) Float(key string) float64 {
	switch v := r[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		f, _ := ParseAmount(v)
		return f
	default:
		return 0
	}
}

// Records returns a nested list of records under key (e.g. partners of a company)
func (r Record) Records(key string) []Record {
	switch v := r[key].(type) {
	case []Record:
		return v
	case []map[string]any:
		out := make([]Record, 0, len(v))
		for _, m := range v {
			out = append(out, Record(m))
		}
		return out
	case []any:
		out := make([]Record, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, Record(m))
			}
		}
		return out
	default:
		return nil
	}
}

// PayloadKind tags the shape of a payload
type PayloadKind string

const (
	PayloadRecords PayloadKind = "records" // list of flat records
	PayloadNote    PayloadKind = "note"    // descriptive text from a synthetic stage
)

// Payload is what one source operation returned
type Payload struct {
	Kind    PayloadKind `json:"kind"`
	Records []Record    `json:"records,omitempty"`
	Message string      `json:"message,omitempty"`
}

// NewRecords builds a records payload
func NewRecords(records ...Record) Payload {
	return Payload{Kind: PayloadRecords, Records: records}
}

// NewNote builds a note payload
func NewNote(msg string) Payload {
	return Payload{Kind: PayloadNote, Message: msg}
}

// StageData is a stage's aggregated payload keyed by source id
type StageData map[string]Payload

// ResultData is the aggregated result map keyed by stage name
type ResultData map[string]StageData

// CallStatus is the outcome of one source call
type CallStatus string

const (
	CallSuccess CallStatus = "success"
	CallPartial CallStatus = "partial"
	CallFailed  CallStatus = "failed"
	CallTimeout CallStatus = "timeout"
	CallCached  CallStatus = "cached"
)

// Succeeded reports whether the call produced usable data
func (s CallStatus) Succeeded() bool {
	return s == CallSuccess || s == CallPartial || s == CallCached
}

// SourceCallResult records one attempted source call (after retries and fallback)
type SourceCallResult struct {
	SourceID  string        `json:"source_id"` // the source that produced the outcome (fallback id when failed over)
	Requested string        `json:"requested"` // the source the stage asked for
	Status    CallStatus    `json:"status"`
	Payload   Payload       `json:"payload"`
	Error     string        `json:"error,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
	Attempts  int           `json:"attempts"`
	Fallback  bool          `json:"fallback,omitempty"`
}

// StageStatus is the derived outcome of a stage
type StageStatus string

const (
	StageSuccess        StageStatus = "success"
	StagePartialSuccess StageStatus = "partial_success"
	StageFailed         StageStatus = "failed"
)

// StageResult is the outcome of one executed stage
type StageResult struct {
	Name        string             `json:"stage_name"`
	Status      StageStatus        `json:"status"`
	Data        StageData          `json:"data"`
	SourcesUsed []string           `json:"sources_used"`
	Calls       []SourceCallResult `json:"calls,omitempty"`
	Elapsed     time.Duration      `json:"elapsed"`
	Errors      []string           `json:"errors,omitempty"`
}
