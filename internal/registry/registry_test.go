package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ppiankov/lupa/internal/model"
	"github.com/ppiankov/lupa/internal/source"
)

func staticReg(id string, caps ...model.Capability) model.SourceRegistration {
	return model.SourceRegistration{
		ID:           id,
		Name:         id,
		Kind:         model.SourceKindStatic,
		Capabilities: caps,
		Timeout:      time.Second,
	}
}

func TestRegistry_DefaultCatalog(t *testing.T) {
	r := New(Options{})
	for _, reg := range DefaultCatalog() {
		if err := r.Register(reg); err != nil {
			t.Fatalf("catalog entry %s failed to register: %v", reg.ID, err)
		}
	}

	if r.Len() != len(DefaultCatalog()) {
		t.Errorf("expected %d sources, got %d", len(DefaultCatalog()), r.Len())
	}

	for _, c := range model.AllCapabilities() {
		if len(r.FindByCapability(c)) == 0 {
			t.Errorf("no catalog source provides %s", c)
		}
	}

	contracts := r.FindByCapability(model.CapContractSearch)
	if len(contracts) != 3 || contracts[0].ID != "portal_transparencia" {
		t.Errorf("unexpected contract sources %v", ids(contracts))
	}

	if fb, ok := r.FallbackFor("brasilapi"); !ok || fb != "minha_receita" {
		t.Errorf("expected minha_receita fallback, got %q %v", fb, ok)
	}
	if _, ok := r.FallbackFor("minha_receita"); ok {
		t.Error("minha_receita has no fallback")
	}

	for _, reg := range r.All() {
		if _, err := r.ClientFor(reg.ID); err != nil {
			t.Errorf("no handle for %s: %v", reg.ID, err)
		}
	}
}

func TestRegistry_UnknownSource(t *testing.T) {
	r := New(Options{})
	if _, err := r.ClientFor("nope"); !errors.Is(err, model.ErrUnknownSource) {
		t.Errorf("expected ErrUnknownSource, got %v", err)
	}
	if _, ok := r.Get("nope"); ok {
		t.Error("Get should report absence")
	}
	if _, ok := r.FallbackFor("nope"); ok {
		t.Error("FallbackFor should report absence")
	}
	if got := r.FindByCapability(model.CapBudgetData); len(got) != 0 {
		t.Errorf("expected no sources, got %v", got)
	}
}

func TestRegistry_InvalidRegistrations(t *testing.T) {
	valid := staticReg("fixture", model.CapCompanyLookup)

	tests := []struct {
		name   string
		mutate func(*model.SourceRegistration)
	}{
		{"missing id", func(r *model.SourceRegistration) { r.ID = "" }},
		{"no capabilities", func(r *model.SourceRegistration) { r.Capabilities = nil }},
		{"unknown capability", func(r *model.SourceRegistration) { r.Capabilities = []model.Capability{"weather"} }},
		{"zero timeout", func(r *model.SourceRegistration) { r.Timeout = 0 }},
		{"rest without base url", func(r *model.SourceRegistration) { r.Kind = model.SourceKindREST }},
		{"auth without header", func(r *model.SourceRegistration) { r.AuthRequired = true }},
		{"unknown kind", func(r *model.SourceRegistration) { r.Kind = "grpc" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := valid
			tt.mutate(&reg)
			if err := New(Options{}).Register(reg); !errors.Is(err, model.ErrInvalidRegistration) {
				t.Errorf("expected ErrInvalidRegistration, got %v", err)
			}
		})
	}
}

func TestRegistry_DuplicateAndHandle(t *testing.T) {
	r := New(Options{})
	handle := source.NewStatic("fixture", map[model.Operation]model.Payload{
		model.OpGetCompany: model.NewRecords(model.Record{model.KeyCNPJ: "1"}),
	})

	reg := staticReg("fixture", model.CapCompanyLookup, model.CapCompanyLookup)
	if err := r.RegisterHandle(reg, handle); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterHandle(reg, handle); !errors.Is(err, model.ErrInvalidRegistration) {
		t.Errorf("expected duplicate error, got %v", err)
	}
	if got := r.FindByCapability(model.CapCompanyLookup); len(got) != 1 {
		t.Errorf("repeated capability should be indexed once, got %d", len(got))
	}

	client, err := r.ClientFor("fixture")
	if err != nil {
		t.Fatal(err)
	}
	p, err := client.Call(context.Background(), model.OpGetCompany, nil)
	if err != nil || len(p.Records) != 1 {
		t.Errorf("unexpected call result %v %v", p, err)
	}
}

func TestRegistry_SetFactory(t *testing.T) {
	r := New(Options{})
	var built []string
	r.SetFactory(model.SourceKindREST, func(reg model.SourceRegistration) (source.Source, error) {
		built = append(built, reg.ID)
		return source.NewStatic(reg.ID, nil), nil
	})

	reg := staticReg("api", model.CapBudgetData)
	reg.Kind = model.SourceKindREST
	reg.BaseURL = "https://example.org"
	if err := r.Register(reg); err != nil {
		t.Fatal(err)
	}
	if len(built) != 1 || built[0] != "api" {
		t.Errorf("custom factory not used: %v", built)
	}
}

func TestApplyOverrides(t *testing.T) {
	regs := []model.SourceRegistration{
		{ID: "a", Timeout: time.Second, RateLimit: 1, Fallbacks: []string{"b"}},
		{ID: "b", Timeout: time.Second},
		{ID: "c", Timeout: time.Second},
	}
	out := ApplyOverrides(regs, map[string]model.SourceOverride{
		"a": {Timeout: 5 * time.Second, APIKey: "k", Fallbacks: []string{}},
		"b": {Disabled: true},
	})

	if len(out) != 2 {
		t.Fatalf("expected disabled source to be dropped, got %d", len(out))
	}
	a := out[0]
	if a.Timeout != 5*time.Second || a.APIKey != "k" || a.RateLimit != 1 {
		t.Errorf("unexpected override result %+v", a)
	}
	if len(a.Fallbacks) != 0 {
		t.Errorf("explicit empty fallbacks should clear the chain, got %v", a.Fallbacks)
	}
	if regs[0].Timeout != time.Second {
		t.Error("input registrations must not be modified")
	}
}

func TestBuild_WithCatalogFile(t *testing.T) {
	dir := t.TempDir()
	fixture := filepath.Join(dir, "orcamento.json")
	if err := os.WriteFile(fixture, []byte(`[{"orgao":"Ministério da Saúde","valor_pago":"10,5"}]`), 0o644); err != nil {
		t.Fatal(err)
	}

	catalog := filepath.Join(dir, "catalog.yaml")
	yamlBody := `sources:
  - id: orcamento_local
    name: Orçamento local
    kind: static
    capabilities: [budget_data]
    endpoints:
      get_budget: ` + fixture + `
    timeout: 2s
    cache_ttl: 1h
`
	if err := os.WriteFile(catalog, []byte(yamlBody), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := model.DefaultConfig()
	cfg.CatalogFile = catalog
	cfg.Sources = map[string]model.SourceOverride{"siop": {Disabled: true}}

	r, err := Build(cfg, Options{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if _, ok := r.Get("siop"); ok {
		t.Error("disabled source should not be registered")
	}
	reg, ok := r.Get("orcamento_local")
	if !ok {
		t.Fatal("catalog file source missing")
	}
	if reg.Timeout != 2*time.Second || reg.CacheTTL != time.Hour {
		t.Errorf("durations not decoded: %+v", reg)
	}

	budget := ids(r.FindByCapability(model.CapBudgetData))
	if budget[len(budget)-1] != "orcamento_local" {
		t.Errorf("expected file source last in %v", budget)
	}

	client, _ := r.ClientFor("orcamento_local")
	p, err := client.Call(context.Background(), model.OpGetBudget, nil)
	if err != nil || len(p.Records) != 1 {
		t.Errorf("unexpected fixture payload %v %v", p, err)
	}
}

func TestBuild_BadCatalogFile(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.CatalogFile = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := Build(cfg, Options{}); err == nil {
		t.Error("expected error for missing catalog file")
	}
}

func TestValidateConfig(t *testing.T) {
	if err := ValidateConfig(model.DefaultConfig()); err != nil {
		t.Errorf("default config should validate: %v", err)
	}

	cfg := model.DefaultConfig()
	cfg.Concurrency.Workers = 0
	cfg.Detector.CartelConfidence = 2
	err := ValidateConfig(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func ids(regs []model.SourceRegistration) []string {
	out := make([]string, len(regs))
	for i, r := range regs {
		out[i] = r.ID
	}
	return out
}
