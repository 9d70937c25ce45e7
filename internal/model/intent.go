package model

import (
	"strconv"
	"strings"
	"time"
)

// Intent is the investigation category a query falls into
type Intent string

const (
	IntentSupplierInvestigation Intent = "supplier_investigation"
	IntentContractAnomaly       Intent = "contract_anomaly"
	IntentBudgetAnalysis        Intent = "budget_analysis"
	IntentHealthBudget          Intent = "health_budget"
	IntentEducationPerformance  Intent = "education_performance"
	IntentCorruptionIndicators  Intent = "corruption_indicators"
	IntentGeneralQuery          Intent = "general_query"
)

// AllIntents lists every intent in a stable order
func AllIntents() []Intent {
	return []Intent{
		IntentSupplierInvestigation,
		IntentContractAnomaly,
		IntentBudgetAnalysis,
		IntentHealthBudget,
		IntentEducationPerformance,
		IntentCorruptionIndicators,
		IntentGeneralQuery,
	}
}

// ParseIntent maps a string to an Intent; ok is false for unknown values
func ParseIntent(s string) (Intent, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, i := range AllIntents() {
		if string(i) == s {
			return i, true
		}
	}
	return IntentGeneralQuery, false
}

// ClassificationMethod records which tier produced a classification
type ClassificationMethod string

const (
	MethodRule     ClassificationMethod = "rule"
	MethodLLM      ClassificationMethod = "llm"
	MethodFallback ClassificationMethod = "fallback"
)

// Classification is the outcome of intent classification
type Classification struct {
	Intent     Intent               `json:"intent"`
	Confidence float64              `json:"confidence"`
	Reasoning  string               `json:"reasoning"`
	Method     ClassificationMethod `json:"method"`
}

// Parameters holds what the extractor recognized in a query. Every field is optional.
type Parameters struct {
	CNPJ        string     `json:"cnpj,omitempty"`
	CPF         string     `json:"cpf,omitempty"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	Year        int        `json:"year,omitempty"`
	Region      string     `json:"region,omitempty"`
	CompanyName string     `json:"company_name,omitempty"`
	AgencyName  string     `json:"agency_name,omitempty"`
	MinValue    float64    `json:"min_value,omitempty"`
}

// IsEmpty reports whether nothing was extracted
func (p Parameters) IsEmpty() bool {
	return p.CNPJ == "" && p.CPF == "" && p.StartDate == nil && p.EndDate == nil &&
		p.Year == 0 && p.Region == "" && p.CompanyName == "" && p.AgencyName == "" && p.MinValue == 0
}

// Bag flattens the parameters into the string bag source handles accept
func (p Parameters) Bag() Params {
	bag := Params{}
	if p.CNPJ != "" {
		bag[KeyCNPJ] = p.CNPJ
	}
	if p.CPF != "" {
		bag[KeyCPF] = p.CPF
	}
	if p.StartDate != nil {
		bag[ParamStartDate] = p.StartDate.Format("2006-01-02")
	}
	if p.EndDate != nil {
		bag[ParamEndDate] = p.EndDate.Format("2006-01-02")
	}
	if p.Year != 0 {
		bag[ParamYear] = strconv.Itoa(p.Year)
	}
	if p.Region != "" {
		bag[ParamRegion] = p.Region
	}
	if p.CompanyName != "" {
		bag[KeyName] = p.CompanyName
	}
	if p.AgencyName != "" {
		bag[KeyAgency] = p.AgencyName
	}
	if p.MinValue > 0 {
		bag[ParamMinValue] = strconv.FormatFloat(p.MinValue, 'f', 2, 64)
	}
	return bag
}

// Params is the parameter bag passed to a source operation
type Params map[string]string

// Clone returns a copy that can be modified independently
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
