// Package registry holds the capability-indexed catalog of data sources and
// the callable handle built for each of them.
package registry

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/ppiankov/lupa/internal/logging"
	"github.com/ppiankov/lupa/internal/model"
	"github.com/ppiankov/lupa/internal/source"
)

// Factory builds a callable handle from a registration
type Factory func(reg model.SourceRegistration) (source.Source, error)

// Registry maps source ids to registrations and handles, with a capability
// index. It is populated at startup; Register must not run concurrently with
// lookups, and lookups need no locking once population is done.
type Registry struct {
	sources      map[string]model.SourceRegistration
	handles      map[string]source.Source
	byCapability map[model.Capability][]string
	order        []string
	factories    map[model.SourceKind]Factory
	logger       *log.Logger
}

// Options configures handle construction
type Options struct {
	HTTP   source.HTTPOptions
	Logger *log.Logger
}

// New creates an empty registry with the built-in factories
func New(opts Options) *Registry {
	r := &Registry{
		sources:      make(map[string]model.SourceRegistration),
		handles:      make(map[string]source.Source),
		byCapability: make(map[model.Capability][]string),
		factories:    make(map[model.SourceKind]Factory),
		logger:       logging.OrDiscard(opts.Logger),
	}

	httpFactory := func(reg model.SourceRegistration) (source.Source, error) {
		return source.NewHTTP(reg, opts.HTTP)
	}
	r.factories[model.SourceKindREST] = httpFactory
	r.factories[model.SourceKindPortal] = httpFactory
	r.factories[model.SourceKindStatic] = func(reg model.SourceRegistration) (source.Source, error) {
		return source.LoadStatic(reg)
	}

	return r
}

// SetFactory replaces the construction rule for a source kind
func (r *Registry) SetFactory(kind model.SourceKind, f Factory) {
	r.factories[kind] = f
}

// Register validates a registration and builds its handle
func (r *Registry) Register(reg model.SourceRegistration) error {
	if err := ValidateRegistration(reg); err != nil {
		return err
	}

	factory, ok := r.factories[reg.Kind]
	if !ok {
		return fmt.Errorf("%w: %s: no factory for kind %q", model.ErrInvalidRegistration, reg.ID, reg.Kind)
	}

	handle, err := factory(reg)
	if err != nil {
		return fmt.Errorf("build %s: %w", reg.ID, err)
	}

	return r.add(reg, handle)
}

// RegisterHandle registers a source with a prebuilt handle (fixtures, tests)
func (r *Registry) RegisterHandle(reg model.SourceRegistration, handle source.Source) error {
	if reg.Kind == "" {
		reg.Kind = model.SourceKindStatic
	}
	if err := ValidateRegistration(reg); err != nil {
		return err
	}
	if handle == nil {
		return fmt.Errorf("%w: %s: nil handle", model.ErrInvalidRegistration, reg.ID)
	}
	return r.add(reg, handle)
}

func (r *Registry) add(reg model.SourceRegistration, handle source.Source) error {
	if _, dup := r.sources[reg.ID]; dup {
		return fmt.Errorf("%w: duplicate source id %q", model.ErrInvalidRegistration, reg.ID)
	}

	r.sources[reg.ID] = reg
	r.handles[reg.ID] = handle
	r.order = append(r.order, reg.ID)

	seen := make(map[model.Capability]bool, len(reg.Capabilities))
	for _, c := range reg.Capabilities {
		if seen[c] {
			continue
		}
		seen[c] = true
		r.byCapability[c] = append(r.byCapability[c], reg.ID)
	}

	r.logger.Debug("registered source", "source", reg.ID, "kind", reg.Kind, "capabilities", len(reg.Capabilities))
	return nil
}

// Get returns the registration for an id
func (r *Registry) Get(id string) (model.SourceRegistration, bool) {
	reg, ok := r.sources[id]
	return reg, ok
}

// FindByCapability returns the sources offering a capability, in registration order
func (r *Registry) FindByCapability(c model.Capability) []model.SourceRegistration {
	ids := r.byCapability[c]
	out := make([]model.SourceRegistration, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.sources[id])
	}
	return out
}

// FallbackFor returns the first registered fallback of a source
func (r *Registry) FallbackFor(id string) (string, bool) {
	reg, ok := r.sources[id]
	if !ok {
		return "", false
	}
	for _, fb := range reg.Fallbacks {
		if fb == id {
			continue
		}
		if _, registered := r.sources[fb]; registered {
			return fb, true
		}
	}
	return "", false
}

// ClientFor returns the callable handle of a source
func (r *Registry) ClientFor(id string) (source.Source, error) {
	h, ok := r.handles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownSource, id)
	}
	return h, nil
}

// All returns every registration in registration order
func (r *Registry) All() []model.SourceRegistration {
	out := make([]model.SourceRegistration, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sources[id])
	}
	return out
}

// Len returns the number of registered sources
func (r *Registry) Len() int {
	return len(r.order)
}
