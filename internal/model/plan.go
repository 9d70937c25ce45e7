package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// CacheStrategy controls how aggressively source payloads are cached for a plan
type CacheStrategy string

const (
	CacheAggressive CacheStrategy = "aggressive" // retrospective, statistical data
	CacheModerate   CacheStrategy = "moderate"   // exploratory, near real-time data
	CacheMinimal    CacheStrategy = "minimal"    // no caching
)

// Duration is a time.Duration that serializes as a Go duration string
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// plain nanoseconds
		var n int64
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("invalid duration %s", string(b))
		}
		*d = Duration(n)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Stage is one unit of an execution plan
type Stage struct {
	Name          string     `json:"name"`
	Sources       []string   `json:"sources"` // empty for synthetic stages
	Capability    Capability `json:"capability,omitempty"`
	Operation     Operation  `json:"operation,omitempty"`
	Parallel      bool       `json:"parallel"`
	DependsOn     []string   `json:"depends_on,omitempty"`
	Timeout       Duration   `json:"timeout"`
	Retries       int        `json:"retries"`
	CacheTTL      *Duration  `json:"cache_ttl,omitempty"` // overrides the source TTL
	Justification string     `json:"justification"`
}

// Synthetic reports whether the stage makes no source calls
func (s Stage) Synthetic() bool {
	return len(s.Sources) == 0
}

// ExecutionPlan is an immutable, dependency-ordered list of stages
type ExecutionPlan struct {
	Intent            Intent        `json:"intent"`
	Parameters        Parameters    `json:"parameters"`
	Stages            []Stage       `json:"stages"`
	EstimatedDuration Duration      `json:"estimated_duration"`
	CacheStrategy     CacheStrategy `json:"cache_strategy"`
}

// Stage returns the stage with the given name
func (p *ExecutionPlan) Stage(name string) (Stage, bool) {
	for _, s := range p.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return Stage{}, false
}

// TopologicalOrder returns stage names in an order consistent with DependsOn,
// preferring declaration order among ready stages. Fails on cycles, duplicate
// names and dependencies on unknown stages.
func (p *ExecutionPlan) TopologicalOrder() ([]string, error) {
	index := make(map[string]int, len(p.Stages))
	for i, s := range p.Stages {
		if _, dup := index[s.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate stage %q", ErrPlanning, s.Name)
		}
		index[s.Name] = i
	}

	indegree := make([]int, len(p.Stages))
	dependents := make([][]int, len(p.Stages))
	for i, s := range p.Stages {
		for _, dep := range s.DependsOn {
			j, ok := index[dep]
			if !ok {
				return nil, fmt.Errorf("%w: stage %q depends on unknown stage %q", ErrPlanning, s.Name, dep)
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	order := make([]string, 0, len(p.Stages))
	done := make([]bool, len(p.Stages))
	for len(order) < len(p.Stages) {
		progressed := false
		for i, s := range p.Stages {
			if done[i] || indegree[i] > 0 {
				continue
			}
			done[i] = true
			progressed = true
			order = append(order, s.Name)
			for _, d := range dependents[i] {
				indegree[d]--
			}
		}
		if !progressed {
			return nil, fmt.Errorf("%w: dependency cycle among stages", ErrPlanning)
		}
	}
	return order, nil
}
