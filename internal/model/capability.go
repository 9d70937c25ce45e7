package model

import "time"

// Capability is a kind of data a source can provide
type Capability string

const (
	CapCompanyLookup       Capability = "company_lookup"
	CapContractSearch      Capability = "contract_search"
	CapBiddingSearch       Capability = "bidding_search"
	CapBudgetData          Capability = "budget_data"
	CapTransferData        Capability = "transfer_data"
	CapHealthStatistics    Capability = "health_statistics"
	CapEducationStatistics Capability = "education_statistics"
	CapSanctionsCheck      Capability = "sanctions_check"
	CapPoliticalDonations  Capability = "political_donations"
	CapPublicServants      Capability = "public_servants"
	CapEconomicIndicators  Capability = "economic_indicators"
)

// AllCapabilities lists every known capability in a stable order
func AllCapabilities() []Capability {
	return []Capability{
		CapCompanyLookup,
		CapContractSearch,
		CapBiddingSearch,
		CapBudgetData,
		CapTransferData,
		CapHealthStatistics,
		CapEducationStatistics,
		CapSanctionsCheck,
		CapPoliticalDonations,
		CapPublicServants,
		CapEconomicIndicators,
	}
}

// Valid reports whether c belongs to the closed capability set
func (c Capability) Valid() bool {
	for _, known := range AllCapabilities() {
		if c == known {
			return true
		}
	}
	return false
}

// Operation is a named call a source handle accepts
type Operation string

const (
	OpGetCompany             Operation = "get_company"
	OpSearchCompanies        Operation = "search_companies"
	OpSearchContracts        Operation = "search_contracts"
	OpSearchBiddings         Operation = "search_biddings"
	OpGetBudget              Operation = "get_budget"
	OpGetTransfers           Operation = "get_transfers"
	OpGetHealthIndicators    Operation = "get_health_indicators"
	OpGetEducationIndicators Operation = "get_education_indicators"
	OpGetSanctions           Operation = "get_sanctions"
	OpGetDonations           Operation = "get_donations"
	OpGetServants            Operation = "get_servants"
	OpGetIndicators          Operation = "get_indicators"
)

// SourceKind selects how a registration is turned into a callable handle
type SourceKind string

const (
	SourceKindREST   SourceKind = "rest"   // JSON API
	SourceKindPortal SourceKind = "portal" // HTML transparency portal, robots.txt applies
	SourceKindStatic SourceKind = "static" // fixed payloads (fixtures, offline mode)
)

// SourceRegistration describes one external data source. Immutable after registration.
type SourceRegistration struct {
	ID           string       `json:"id" yaml:"id" validate:"required,min=2,max=64"`
	Name         string       `json:"name" yaml:"name" validate:"required"`
	Kind         SourceKind   `json:"kind" yaml:"kind" validate:"required,oneof=rest portal static"`
	Capabilities []Capability `json:"capabilities" yaml:"capabilities" validate:"required,min=1,dive,required"`
	BaseURL      string       `json:"base_url,omitempty" yaml:"base_url,omitempty" validate:"required_unless=Kind static,omitempty,url"`

	// Endpoints maps an operation to a path template, e.g. "/cnpj/v1/{cnpj}".
	// Parameters not consumed by the template are sent as query string.
	Endpoints map[Operation]string `json:"endpoints,omitempty" yaml:"endpoints,omitempty"`

	// ParamMap renames parameter bag keys to the remote API's query parameter names
	ParamMap map[string]string `json:"param_map,omitempty" yaml:"param_map,omitempty"`

	// FieldMap renames remote record fields to the key conventions in keys.go.
	// Nested objects are flattened first, so "fornecedor.cnpj" is a valid key.
	FieldMap map[string]string `json:"field_map,omitempty" yaml:"field_map,omitempty"`

	AuthRequired bool   `json:"auth_required" yaml:"auth_required"`
	AuthHeader   string `json:"auth_header,omitempty" yaml:"auth_header,omitempty" validate:"required_if=AuthRequired true"`
	APIKey       string `json:"-" yaml:"-"`

	Timeout                 time.Duration `json:"timeout" yaml:"timeout" validate:"gt=0"`
	RateLimit               float64       `json:"rate_limit" yaml:"rate_limit" validate:"gte=0"` // requests per second, 0 = configured default
	Burst                   int           `json:"burst" yaml:"burst" validate:"gte=0"`
	CacheTTL                time.Duration `json:"cache_ttl" yaml:"cache_ttl" validate:"gte=0"`
	Fallbacks               []string      `json:"fallbacks,omitempty" yaml:"fallbacks,omitempty"`
	CircuitBreakerThreshold int           `json:"circuit_breaker_threshold" yaml:"circuit_breaker_threshold" validate:"gte=0"`
}

// Provides reports whether the source offers the capability
func (r SourceRegistration) Provides(c Capability) bool {
	for _, have := range r.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}
