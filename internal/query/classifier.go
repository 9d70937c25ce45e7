package query

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/kaptinlin/jsonrepair"

	"github.com/ppiankov/lupa/internal/llm"
	"github.com/ppiankov/lupa/internal/logging"
	"github.com/ppiankov/lupa/internal/model"
	"github.com/ppiankov/lupa/internal/util"
)

// Rule-tier confidences
const (
	confidenceCNPJ     = 0.95
	confidenceCPF      = 0.85
	confidenceMoney    = 0.85
	confidenceKeywords = 0.6
	keywordStep        = 0.1
	keywordCap         = 0.9

	// fallbackConfidence is reported when nothing could be classified
	fallbackConfidence = 0.3
)

// domain keywords, accent-stripped and lowercase
var intentKeywords = map[model.Intent][]string{
	model.IntentSupplierInvestigation: {"fornecedor", "fornecedora", "empresa", "cnpj", "socio", "socios", "razao social", "construtora", "contratada"},
	model.IntentContractAnomaly:       {"contrato", "contratos", "licitacao", "licitacoes", "dispensa", "inexigibilidade", "aditivo", "superfaturamento", "sobrepreco", "pregao"},
	model.IntentBudgetAnalysis:        {"orcamento", "orcamentaria", "despesa", "despesas", "gasto", "gastos", "empenho", "empenhado", "transferencia", "transferencias", "emenda", "emendas", "execucao"},
	model.IntentHealthBudget:          {"saude", "sus", "hospital", "hospitais", "medicamento", "medicamentos", "leito", "leitos", "vacina", "datasus"},
	model.IntentEducationPerformance:  {"educacao", "escola", "escolas", "ideb", "enem", "inep", "fundeb", "ensino", "aluno", "alunos", "universidade"},
	model.IntentCorruptionIndicators:  {"corrupcao", "propina", "fraude", "lavagem", "sancao", "sancoes", "sancionada", "inidonea", "ceis", "cnep", "doacao", "doacoes", "laranja", "desvio"},
}

// intents scored by keyword counts, in tie-break order
var keywordIntents = []model.Intent{
	model.IntentCorruptionIndicators,
	model.IntentContractAnomaly,
	model.IntentSupplierInvestigation,
	model.IntentHealthBudget,
	model.IntentEducationPerformance,
	model.IntentBudgetAnalysis,
}

const classifierSystemPrompt = `You classify investigation queries about Brazilian public spending.
Choose exactly one intent from: supplier_investigation, contract_anomaly, budget_analysis, health_budget,
education_performance, corruption_indicators, general_query.
Answer with a JSON object: {"intent": "<intent>", "confidence": <0..1>, "reasoning": "<one sentence>"}`

// Classifier assigns an intent to a query: deterministic rules first, then the
// LLM provider when no rule fires
type Classifier struct {
	provider llm.Provider
	logger   *log.Logger
}

// NewClassifier creates a classifier. provider may be nil, in which case
// unmatched queries fall back to the general intent.
func NewClassifier(provider llm.Provider, logger *log.Logger) *Classifier {
	return &Classifier{
		provider: provider,
		logger:   logging.OrDiscard(logger),
	}
}

// Classify never fails; parse and provider errors degrade to general_query
func (c *Classifier) Classify(ctx context.Context, query string) model.Classification {
	if cls, ok := classifyByRules(query); ok {
		return cls
	}

	if c.provider == nil {
		return fallback("no rule matched and no LLM provider configured")
	}

	cls, err := c.classifyWithLLM(ctx, query)
	if err != nil {
		c.logger.Warn("intent classification fell back", "err", fmt.Errorf("%w: %v", model.ErrClassificationFallback, err))
		return fallback(err.Error())
	}
	return cls
}

func classifyByRules(query string) (model.Classification, bool) {
	cnpj, cpf := extractTaxIDs(query)
	normalized := util.NormalizeName(query)
	counts := keywordCounts(normalized)

	switch {
	case cnpj != "":
		return model.Classification{
			Intent:     model.IntentSupplierInvestigation,
			Confidence: confidenceCNPJ,
			Reasoning:  "query contains a company tax id (CNPJ)",
			Method:     model.MethodRule,
		}, true
	case cpf != "":
		return model.Classification{
			Intent:     model.IntentCorruptionIndicators,
			Confidence: confidenceCPF,
			Reasoning:  "query contains a person tax id (CPF)",
			Method:     model.MethodRule,
		}, true
	case hasMoney(query) && counts[model.IntentContractAnomaly] > 0:
		return model.Classification{
			Intent:     model.IntentContractAnomaly,
			Confidence: confidenceMoney,
			Reasoning:  "query mentions a monetary value together with contract terms",
			Method:     model.MethodRule,
		}, true
	}

	// health spending is budget analysis scoped to health
	if counts[model.IntentHealthBudget] > 0 && counts[model.IntentBudgetAnalysis] > 0 {
		n := counts[model.IntentHealthBudget] + counts[model.IntentBudgetAnalysis]
		return keywordClassification(model.IntentHealthBudget, n), true
	}

	best, bestCount := model.IntentGeneralQuery, 0
	for _, intent := range keywordIntents {
		if counts[intent] > bestCount {
			best, bestCount = intent, counts[intent]
		}
	}
	if bestCount == 0 {
		return model.Classification{}, false
	}
	return keywordClassification(best, bestCount), true
}

func keywordClassification(intent model.Intent, n int) model.Classification {
	conf := math.Min(confidenceKeywords+keywordStep*float64(n), keywordCap)
	return model.Classification{
		Intent:     intent,
		Confidence: math.Round(conf*100) / 100,
		Reasoning:  fmt.Sprintf("matched %d %s keyword(s)", n, intent),
		Method:     model.MethodRule,
	}
}

// keywordCounts counts keyword hits per intent over whole words of the
// normalized query; multi-word keywords match as phrases
func keywordCounts(normalized string) map[model.Intent]int {
	padded := " " + strings.Join(wordPattern.FindAllString(normalized, -1), " ") + " "
	counts := make(map[model.Intent]int, len(intentKeywords))
	for intent, words := range intentKeywords {
		for _, w := range words {
			counts[intent] += strings.Count(padded, " "+w+" ")
		}
	}
	return counts
}

type llmAnswer struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

func (c *Classifier) classifyWithLLM(ctx context.Context, query string) (model.Classification, error) {
	resp, err := c.provider.Complete(ctx, llm.CompletionRequest{
		System:      classifierSystemPrompt,
		Prompt:      "Query: " + query,
		MaxTokens:   200,
		Temperature: 0.1,
		JSON:        true,
	})
	if err != nil {
		return model.Classification{}, fmt.Errorf("%s completion: %w", c.provider.Name(), err)
	}

	var answer llmAnswer
	if err := unmarshalFlexible(resp.Text, &answer); err != nil {
		return model.Classification{}, fmt.Errorf("parse answer: %w", err)
	}

	intent, ok := model.ParseIntent(answer.Intent)
	if !ok {
		return model.Classification{}, fmt.Errorf("unknown intent %q", answer.Intent)
	}

	c.logger.Debug("intent classified by LLM", "provider", c.provider.Name(), "intent", intent, "tokens", resp.TokensUsed)
	return model.Classification{
		Intent:     intent,
		Confidence: math.Max(0, math.Min(answer.Confidence, 1)),
		Reasoning:  answer.Reasoning,
		Method:     model.MethodLLM,
	}, nil
}

// unmarshalFlexible decodes LLM output, repairing malformed JSON
// (code fences, trailing commas, single quotes) before giving up
func unmarshalFlexible(text string, v any) error {
	text = stripCodeFence(strings.TrimSpace(text))
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}
	repaired, err := jsonrepair.JSONRepair(text)
	if err != nil {
		return fmt.Errorf("repair JSON: %w", err)
	}
	return json.Unmarshal([]byte(repaired), v)
}

func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
}

func fallback(reason string) model.Classification {
	return model.Classification{
		Intent:     model.IntentGeneralQuery,
		Confidence: fallbackConfidence,
		Reasoning:  reason,
		Method:     model.MethodFallback,
	}
}
