// Package source implements the callable handles the federation executor
// invokes. A handle is built from a model.SourceRegistration by the registry;
// the executor only ever sees the Source interface.
package source

import (
	"context"

	"github.com/ppiankov/lupa/internal/model"
)

// Source is a callable handle for one registered data source
type Source interface {
	// ID returns the registration id
	ID() string

	// Call runs a named operation with a parameter bag. Transport and remote
	// failures are wrapped in model.ErrSourceCallFailed or model.ErrSourceTimeout.
	Call(ctx context.Context, op model.Operation, params model.Params) (model.Payload, error)
}
