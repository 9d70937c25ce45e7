package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/lupa/internal/model"
)

// catalogFile is the on-disk shape of an extra source catalog
type catalogFile struct {
	Sources []model.SourceRegistration `yaml:"sources"`
}

// LoadCatalogFile reads additional source registrations from YAML
func LoadCatalogFile(path string) ([]model.SourceRegistration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	var cf catalogFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse catalog file %s: %w", path, err)
	}
	return cf.Sources, nil
}

// ApplyOverrides returns the registrations with configuration overrides
// applied. Disabled sources are dropped; zero-valued override fields keep the
// catalog value.
func ApplyOverrides(regs []model.SourceRegistration, overrides map[string]model.SourceOverride) []model.SourceRegistration {
	out := make([]model.SourceRegistration, 0, len(regs))
	for _, reg := range regs {
		o, ok := overrides[reg.ID]
		if !ok {
			out = append(out, reg)
			continue
		}
		if o.Disabled {
			continue
		}
		if o.BaseURL != "" {
			reg.BaseURL = o.BaseURL
		}
		if o.APIKey != "" {
			reg.APIKey = o.APIKey
		}
		if o.Timeout > 0 {
			reg.Timeout = o.Timeout
		}
		if o.RateLimit > 0 {
			reg.RateLimit = o.RateLimit
		}
		if o.Burst > 0 {
			reg.Burst = o.Burst
		}
		if o.CacheTTL > 0 {
			reg.CacheTTL = o.CacheTTL
		}
		if o.Fallbacks != nil {
			reg.Fallbacks = append([]string(nil), o.Fallbacks...)
		}
		if o.CircuitBreakerThreshold > 0 {
			reg.CircuitBreakerThreshold = o.CircuitBreakerThreshold
		}
		out = append(out, reg)
	}
	return out
}

// Build registers the default catalog, the configured catalog file and the
// overrides into a new registry
func Build(cfg model.Config, opts Options) (*Registry, error) {
	regs := DefaultCatalog()
	if cfg.CatalogFile != "" {
		extra, err := LoadCatalogFile(cfg.CatalogFile)
		if err != nil {
			return nil, err
		}
		regs = append(regs, extra...)
	}
	regs = ApplyOverrides(regs, cfg.Sources)

	r := New(opts)
	for _, reg := range regs {
		if err := r.Register(reg); err != nil {
			return nil, err
		}
	}

	// dangling fallbacks are allowed (the fallback may be disabled) but worth knowing about
	for _, reg := range r.All() {
		for _, fb := range reg.Fallbacks {
			if _, ok := r.Get(fb); !ok {
				r.logger.Warn("fallback source not registered", "source", reg.ID, "fallback", fb)
			}
		}
	}
	return r, nil
}
