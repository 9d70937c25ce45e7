package source

import (
	"context"
	"fmt"
	"os"

	"github.com/ppiankov/lupa/internal/model"
)

// Static serves fixed payloads per operation. Records are filtered by the
// call's parameters: a record whose value under a parameter key differs from
// the parameter is left out, records without that key are kept.
type Static struct {
	id       string
	payloads map[model.Operation]model.Payload
}

// NewStatic creates a static handle
func NewStatic(id string, payloads map[model.Operation]model.Payload) *Static {
	if payloads == nil {
		payloads = map[model.Operation]model.Payload{}
	}
	return &Static{id: id, payloads: payloads}
}

// LoadStatic builds a static handle from a registration whose endpoints name
// JSON fixture files instead of URL paths
func LoadStatic(reg model.SourceRegistration) (*Static, error) {
	payloads := make(map[model.Operation]model.Payload, len(reg.Endpoints))
	for op, path := range reg.Endpoints {
		body, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: read fixture for %s: %v", model.ErrInvalidRegistration, reg.ID, op, err)
		}
		records, err := decodeJSON(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: fixture for %s: %v", model.ErrInvalidRegistration, reg.ID, op, err)
		}
		payloads[op] = model.NewRecords(mapFields(records, reg.FieldMap)...)
	}
	return NewStatic(reg.ID, payloads), nil
}

// ID returns the source id
func (s *Static) ID() string {
	return s.id
}

// Call returns the operation's payload, filtered by params
func (s *Static) Call(ctx context.Context, op model.Operation, params model.Params) (model.Payload, error) {
	if err := ctx.Err(); err != nil {
		return model.Payload{}, classify(s.id, err)
	}

	p, ok := s.payloads[op]
	if !ok {
		return model.Payload{}, fmt.Errorf("%w: %s does not support %s", model.ErrSourceCallFailed, s.id, op)
	}
	if p.Kind != model.PayloadRecords || len(params) == 0 {
		return p, nil
	}

	filtered := make([]model.Record, 0, len(p.Records))
	for _, rec := range p.Records {
		if matches(rec, params) {
			filtered = append(filtered, rec)
		}
	}
	return model.NewRecords(filtered...), nil
}

func matches(rec model.Record, params model.Params) bool {
	for k, want := range params {
		if _, present := rec[k]; !present {
			continue
		}
		if rec.String(k) != want {
			return false
		}
	}
	return true
}
