package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ppiankov/lupa/internal/llm"
	"github.com/ppiankov/lupa/internal/model"
)

type fakeProvider struct {
	text  string
	err   error
	calls int
	last  llm.CompletionRequest
}

func (f *fakeProvider) Name() string { return "fake" }
func (f *fakeProvider) Ping(ctx context.Context) error { return nil }

func (f *fakeProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Text: f.text, TokensUsed: 10}, nil
}

func fixedExtractor(year int) *Extractor {
	return &Extractor{now: func() time.Time { return time.Date(year, 6, 1, 0, 0, 0, 0, time.UTC) }}
}

func TestSupplierQueryWithCNPJ(t *testing.T) {
	q := "Investigar fornecedor CNPJ 12.345.678/0001-90"

	cls := NewClassifier(nil, nil).Classify(context.Background(), q)
	if cls.Intent != model.IntentSupplierInvestigation {
		t.Errorf("Intent = %s, want supplier_investigation", cls.Intent)
	}
	if cls.Confidence < 0.9 {
		t.Errorf("Confidence = %v, want >= 0.9", cls.Confidence)
	}
	if cls.Method != model.MethodRule {
		t.Errorf("Method = %s, want rule", cls.Method)
	}

	params := NewExtractor().Extract(q)
	if params.CNPJ != "12345678000190" {
		t.Errorf("CNPJ = %q, want 12345678000190", params.CNPJ)
	}
	if params.CompanyName != "" {
		t.Errorf("CompanyName = %q, want empty", params.CompanyName)
	}
}

func TestClassifyRules(t *testing.T) {
	tests := []struct {
		query   string
		intent  model.Intent
		minConf float64
	}{
		{"Verificar CPF 123.456.789-09 em doações de campanha", model.IntentCorruptionIndicators, 0.85},
		{"Contratos acima de R$ 1.000.000,00 sem licitação", model.IntentContractAnomaly, 0.85},
		{"Gastos com saúde no orçamento de 2023", model.IntentHealthBudget, 0.7},
		{"Desempenho das escolas no IDEB", model.IntentEducationPerformance, 0.7},
		{"Indícios de corrupção e propina", model.IntentCorruptionIndicators, 0.8},
		{"Execução orçamentária das despesas", model.IntentBudgetAnalysis, 0.8},
	}

	c := NewClassifier(nil, nil)
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			cls := c.Classify(context.Background(), tt.query)
			if cls.Intent != tt.intent {
				t.Errorf("Intent = %s, want %s (%s)", cls.Intent, tt.intent, cls.Reasoning)
			}
			if cls.Confidence < tt.minConf || cls.Confidence > 1 {
				t.Errorf("Confidence = %v, want >= %v", cls.Confidence, tt.minConf)
			}
			if cls.Method != model.MethodRule {
				t.Errorf("Method = %s, want rule", cls.Method)
			}
		})
	}
}

func TestKeywordConfidenceCapped(t *testing.T) {
	cls := NewClassifier(nil, nil).Classify(context.Background(),
		"corrupção propina fraude lavagem desvio laranja sanções")
	if cls.Confidence != keywordCap {
		t.Errorf("Confidence = %v, want %v", cls.Confidence, keywordCap)
	}
}

func TestClassifyNoRuleNoProvider(t *testing.T) {
	cls := NewClassifier(nil, nil).Classify(context.Background(), "o que está acontecendo?")
	if cls.Intent != model.IntentGeneralQuery || cls.Method != model.MethodFallback {
		t.Errorf("got %s/%s, want general_query/fallback", cls.Intent, cls.Method)
	}
	if cls.Confidence != fallbackConfidence {
		t.Errorf("Confidence = %v, want %v", cls.Confidence, fallbackConfidence)
	}
}

func TestClassifyWithLLM(t *testing.T) {
	p := &fakeProvider{text: `{"intent": "budget_analysis", "confidence": 0.8, "reasoning": "asks about spending"}`}
	cls := NewClassifier(p, nil).Classify(context.Background(), "quanto o governo pagou no ano passado?")

	if p.calls != 1 {
		t.Fatalf("provider calls = %d, want 1", p.calls)
	}
	if !p.last.JSON || p.last.Temperature > 0.2 {
		t.Errorf("request JSON=%v temperature=%v, want JSON at low temperature", p.last.JSON, p.last.Temperature)
	}
	if cls.Intent != model.IntentBudgetAnalysis || cls.Method != model.MethodLLM {
		t.Errorf("got %s/%s, want budget_analysis/llm", cls.Intent, cls.Method)
	}
	if cls.Confidence != 0.8 {
		t.Errorf("Confidence = %v, want 0.8", cls.Confidence)
	}
}

func TestClassifyWithLLMSkippedWhenRuleFires(t *testing.T) {
	p := &fakeProvider{text: `{"intent": "general_query"}`}
	NewClassifier(p, nil).Classify(context.Background(), "fornecedor CNPJ 12345678000190")
	if p.calls != 0 {
		t.Errorf("provider calls = %d, want 0", p.calls)
	}
}

func TestClassifyWithLLMRepairsJSON(t *testing.T) {
	p := &fakeProvider{text: "```json\n{'intent': 'health_budget', 'confidence': 1.7, 'reasoning': 'x',}\n```"}
	cls := NewClassifier(p, nil).Classify(context.Background(), "como vão as coisas por lá?")

	if cls.Intent != model.IntentHealthBudget {
		t.Errorf("Intent = %s, want health_budget", cls.Intent)
	}
	if cls.Confidence != 1 {
		t.Errorf("Confidence = %v, want clamped to 1", cls.Confidence)
	}
}

func TestClassifyWithLLMFallback(t *testing.T) {
	tests := []struct {
		name string
		p    *fakeProvider
	}{
		{"provider error", &fakeProvider{err: errors.New("connection refused")}},
		{"unknown intent", &fakeProvider{text: `{"intent": "weather", "confidence": 0.9}`}},
		{"not json", &fakeProvider{text: "I think this is about budgets"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := NewClassifier(tt.p, nil).Classify(context.Background(), "como vão as coisas por lá?")
			if cls.Intent != model.IntentGeneralQuery {
				t.Errorf("Intent = %s, want general_query", cls.Intent)
			}
			if cls.Method != model.MethodFallback {
				t.Errorf("Method = %s, want fallback", cls.Method)
			}
		})
	}
}

func TestExtractTaxIDs(t *testing.T) {
	tests := []struct {
		query string
		cnpj  string
		cpf   string
	}{
		{"CNPJ 12.345.678/0001-90", "12345678000190", ""},
		{"cnpj 12345678000190 e cpf 123.456.789-09", "12345678000190", "12345678909"},
		{"valor de 1.000.000 em 2023", "", ""},
		{"CPF 12345678909", "", "12345678909"},
		{"telefone 1234", "", ""},
	}
	e := fixedExtractor(2024)
	for _, tt := range tests {
		p := e.Extract(tt.query)
		if p.CNPJ != tt.cnpj || p.CPF != tt.cpf {
			t.Errorf("Extract(%q) = cnpj %q cpf %q, want %q %q", tt.query, p.CNPJ, p.CPF, tt.cnpj, tt.cpf)
		}
	}
}

func TestExtractDates(t *testing.T) {
	tests := []struct {
		query string
		start string
		end   string
	}{
		{"contratos entre 15/03/2023 e 01/02/2022", "2022-02-01", "2023-03-15"},
		{"de 2021-01-10 até 2021-12-31", "2021-01-10", "2021-12-31"},
		{"gastos em março de 2023", "2023-03-01", "2023-03-01"},
		{"pagamentos em 05.06.2020", "2020-06-05", "2020-06-05"},
		{"data inválida 31/02/2023", "", ""},
	}
	e := fixedExtractor(2024)
	for _, tt := range tests {
		p := e.Extract(tt.query)
		if tt.start == "" {
			if p.StartDate != nil || p.EndDate != nil {
				t.Errorf("Extract(%q) dates = %v %v, want none", tt.query, p.StartDate, p.EndDate)
			}
			continue
		}
		if p.StartDate == nil || p.EndDate == nil {
			t.Fatalf("Extract(%q) dates missing", tt.query)
		}
		if got := p.StartDate.Format("2006-01-02"); got != tt.start {
			t.Errorf("Extract(%q) start = %s, want %s", tt.query, got, tt.start)
		}
		if got := p.EndDate.Format("2006-01-02"); got != tt.end {
			t.Errorf("Extract(%q) end = %s, want %s", tt.query, got, tt.end)
		}
	}
}

func TestExtractYear(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"orçamento de 2023", 2023},
		{"previsão para 2025", 2025},
		{"projeção para 2030", 0},
		{"dados de 1985 e 1999", 1999},
		{"CNPJ 12.345.678/2019-90", 0},
	}
	e := fixedExtractor(2024)
	for _, tt := range tests {
		if got := e.Extract(tt.query).Year; got != tt.want {
			t.Errorf("Extract(%q).Year = %d, want %d", tt.query, got, tt.want)
		}
	}
}

func TestExtractRegion(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"contratos em SP no ano passado", "SP"},
		{"hospitais do RJ", "RJ"},
		{"repasses para sp", ""},
		{"SPA e ESP", ""},
		{"DE PARA", ""},
	}
	e := fixedExtractor(2024)
	for _, tt := range tests {
		if got := e.Extract(tt.query).Region; got != tt.want {
			t.Errorf("Extract(%q).Region = %q, want %q", tt.query, got, tt.want)
		}
	}
}

func TestExtractNames(t *testing.T) {
	tests := []struct {
		query   string
		company string
		agency  string
	}{
		{"Investigar a empresa Construtora Alfa Ltda em contratos", "Construtora Alfa Ltda", ""},
		{`contratos do fornecedor "Beta Serviços S.A." em SP`, "Beta Serviços S.A.", ""},
		{"Contratos do Ministério da Saúde em 2023", "", "Ministério da Saúde"},
		{"gastos da prefeitura de São Paulo com a construtora Gama Engenharia", "Gama Engenharia", "Prefeitura de São Paulo"},
		{"fornecedor CNPJ 12.345.678/0001-90", "", ""},
		{"secretaria sem nome", "", ""},
	}
	e := fixedExtractor(2024)
	for _, tt := range tests {
		p := e.Extract(tt.query)
		if p.CompanyName != tt.company {
			t.Errorf("Extract(%q).CompanyName = %q, want %q", tt.query, p.CompanyName, tt.company)
		}
		if p.AgencyName != tt.agency {
			t.Errorf("Extract(%q).AgencyName = %q, want %q", tt.query, p.AgencyName, tt.agency)
		}
	}
}

func TestExtractMinValue(t *testing.T) {
	tests := []struct {
		query string
		want  float64
	}{
		{"contratos acima de R$ 1.500.000,00", 1500000},
		{"contratos superiores a 2 milhões", 2e6},
		{"entre R$ 10 mil e acima de R$ 3,5 bilhões", 3.5e9},
		{"pagamento de R$ 250", 250},
		{"sem valores", 0},
	}
	e := fixedExtractor(2024)
	for _, tt := range tests {
		if got := e.Extract(tt.query).MinValue; got != tt.want {
			t.Errorf("Extract(%q).MinValue = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestExtractNeverPanics(t *testing.T) {
	e := NewExtractor()
	for _, q := range []string{
		"", "   ", "R$", "\"", "empresa", "99/99/9999", "ministério", "....////----",
		// lowercasing changes the byte length of these runes
		"ȺȺȺȺȺȺȺȺȺȺ empresa", "ȺȺȺȺȺȺȺȺȺȺ prefeitura", "Ⱥ empresa Ⱥcme", "ȾȾ Prefeitura de Ⱥ",
	} {
		_ = e.Extract(q)
	}
}

func TestExtractNamesIgnoreIndicatorCase(t *testing.T) {
	e := NewExtractor()
	p := e.Extract("ȺȺȺ contratos da EMPRESA Alfa Engenharia com a PREFEITURA de Campinas")
	if p.CompanyName != "Alfa Engenharia" {
		t.Errorf("CompanyName = %q, want %q", p.CompanyName, "Alfa Engenharia")
	}
	if p.AgencyName != "PREFEITURA de Campinas" {
		t.Errorf("AgencyName = %q, want %q", p.AgencyName, "PREFEITURA de Campinas")
	}
}
