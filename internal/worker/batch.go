package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/lupa/internal/model"
)

// Investigator runs a single investigation
type Investigator interface {
	Investigate(ctx context.Context, query, userID, sessionID string) *model.InvestigationResult
}

// InvestigationJob runs one query through an Investigator
type InvestigationJob struct {
	Query        string
	UserID       string
	SessionID    string
	Investigator Investigator
}

// Execute executes the investigation job
func (j *InvestigationJob) Execute(ctx context.Context) Result {
	result := j.Investigator.Investigate(ctx, j.Query, j.UserID, j.SessionID)
	return &InvestigationOutcome{Query: j.Query, Result: result}
}

// InvestigationOutcome is the result of an investigation job
type InvestigationOutcome struct {
	Query  string
	Result *model.InvestigationResult
	Err    error
}

// GetError reports a failed investigation as an error
func (o *InvestigationOutcome) GetError() error {
	if o.Err != nil {
		return o.Err
	}
	if o.Result == nil {
		return errors.New("no result")
	}
	if o.Result.Status == model.InvestigationFailed {
		return fmt.Errorf("%w: %s", model.ErrInvestigationFailed, o.Result.Error)
	}
	return nil
}

// BatchProcessor runs many investigations concurrently
type BatchProcessor struct {
	investigator Investigator
	concurrency  int
	userID       string
	sessionID    string
}

// NewBatchProcessor creates a new batch processor. All jobs share the session id,
// so a batch reads as one session downstream.
func NewBatchProcessor(investigator Investigator, concurrency int, userID, sessionID string) *BatchProcessor {
	return &BatchProcessor{
		investigator: investigator,
		concurrency:  concurrency,
		userID:       userID,
		sessionID:    sessionID,
	}
}

// ProcessQueries runs the queries and returns outcomes in input order
func (b *BatchProcessor) ProcessQueries(ctx context.Context, queries []string) []*InvestigationOutcome {
	if len(queries) == 0 {
		return []*InvestigationOutcome{}
	}

	jobs := make([]Job, len(queries))
	for i, q := range queries {
		jobs[i] = &InvestigationJob{
			Query:        q,
			UserID:       b.userID,
			SessionID:    b.sessionID,
			Investigator: b.investigator,
		}
	}

	results := Run(ctx, b.concurrency, jobs)

	outcomes := make([]*InvestigationOutcome, len(results))
	for i, result := range results {
		switch r := result.(type) {
		case *InvestigationOutcome:
			outcomes[i] = r
		case nil:
			outcomes[i] = &InvestigationOutcome{Query: queries[i], Err: ctx.Err()}
		default:
			outcomes[i] = &InvestigationOutcome{Query: queries[i], Err: r.GetError()}
		}
	}

	return outcomes
}

// ProcessFile reads queries from a file and processes them concurrently
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*InvestigationOutcome, error) {
	queries, err := ReadQueriesFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read queries: %w", err)
	}

	return b.ProcessQueries(ctx, queries), nil
}

// ReadQueriesFromFile reads queries from a file (one per line).
// Blank lines and lines starting with # are skipped; duplicates are dropped.
func ReadQueriesFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var queries []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			queries = append(queries, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return queries, nil
}
