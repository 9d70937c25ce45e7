package registry

import (
	"time"

	"github.com/ppiankov/lupa/internal/model"
)

// companyFields maps the CNPJ registry shape shared by BrasilAPI and Minha Receita
var companyFields = map[string]string{
	"qsa":                          model.KeyPartners,
	"nome_socio":                   model.KeyName,
	"cnpj_cpf_do_socio":            model.KeyCPF,
	"qualificacao_socio":           model.KeyRole,
	"descricao_situacao_cadastral": model.KeyStatus,
}

var contractParams = map[string]string{
	model.ParamStartDate: "dataInicial",
	model.ParamEndDate:   "dataFinal",
	model.ParamPage:      "pagina",
}

// DefaultCatalog returns the built-in Brazilian federal data sources.
// API keys are never part of the catalog; they arrive through overrides.
func DefaultCatalog() []model.SourceRegistration {
	return []model.SourceRegistration{
		{
			ID:   "portal_transparencia",
			Name: "Portal da Transparência (CGU)",
			Kind: model.SourceKindREST,
			Capabilities: []model.Capability{
				model.CapContractSearch,
				model.CapBiddingSearch,
				model.CapSanctionsCheck,
				model.CapPublicServants,
				model.CapTransferData,
				model.CapBudgetData,
			},
			BaseURL: "https://api.portaldatransparencia.gov.br/api-de-dados",
			Endpoints: map[model.Operation]string{
				model.OpSearchContracts: "/contratos",
				model.OpSearchBiddings:  "/licitacoes",
				model.OpGetSanctions:    "/ceis",
				model.OpGetServants:     "/servidores",
				model.OpGetTransfers:    "/transferencias",
				model.OpGetBudget:       "/despesas/por-orgao",
			},
			ParamMap: map[string]string{
				model.ParamStartDate: "dataInicial",
				model.ParamEndDate:   "dataFinal",
				model.ParamPage:      "pagina",
				model.KeyCNPJ:        "cnpjSancionado",
				model.KeyAgency:      "codigoOrgao",
			},
			FieldMap: map[string]string{
				"numero":                             model.KeyContractID,
				"objeto":                             model.KeyObject,
				"valorInicialCompra":                 model.KeyValue,
				"dataAssinatura":                     model.KeySignedAt,
				"modalidadeCompra":                   model.KeyModality,
				"fornecedor.cnpjFormatado":           model.KeySupplierCNPJ,
				"fornecedor.nome":                    model.KeySupplierName,
				"unidadeGestora.orgaoVinculado.nome": model.KeyAgency,
				"sancionado.codigoFormatado":         model.KeyCNPJ,
				"sancionado.nome":                    model.KeyName,
				"tipoSancao.descricaoResumida":       model.KeySanction,
				"licitacao.numero":                   model.KeyBiddingID,
				"valorEmpenhado":                     model.KeyCommitted,
				"valorPago":                          model.KeyPaid,
			},
			AuthRequired:            true,
			AuthHeader:              "chave-api-dados",
			Timeout:                 30 * time.Second,
			RateLimit:               1.5,
			Burst:                   3,
			CacheTTL:                6 * time.Hour,
			CircuitBreakerThreshold: 5,
		},
		{
			ID:                      "brasilapi",
			Name:                    "BrasilAPI CNPJ",
			Kind:                    model.SourceKindREST,
			Capabilities:            []model.Capability{model.CapCompanyLookup},
			BaseURL:                 "https://brasilapi.com.br/api",
			Endpoints:               map[model.Operation]string{model.OpGetCompany: "/cnpj/v1/{cnpj}"},
			FieldMap:                companyFields,
			Timeout:                 10 * time.Second,
			RateLimit:               3,
			Burst:                   5,
			CacheTTL:                24 * time.Hour,
			Fallbacks:               []string{"minha_receita"},
			CircuitBreakerThreshold: 5,
		},
		{
			ID:                      "minha_receita",
			Name:                    "Minha Receita",
			Kind:                    model.SourceKindREST,
			Capabilities:            []model.Capability{model.CapCompanyLookup},
			BaseURL:                 "https://minhareceita.org",
			Endpoints:               map[model.Operation]string{model.OpGetCompany: "/{cnpj}"},
			FieldMap:                companyFields,
			Timeout:                 15 * time.Second,
			RateLimit:               2,
			Burst:                   2,
			CacheTTL:                24 * time.Hour,
			CircuitBreakerThreshold: 5,
		},
		{
			ID:           "pncp",
			Name:         "Portal Nacional de Contratações Públicas",
			Kind:         model.SourceKindREST,
			Capabilities: []model.Capability{model.CapContractSearch, model.CapBiddingSearch},
			BaseURL:      "https://pncp.gov.br/api/consulta",
			Endpoints: map[model.Operation]string{
				model.OpSearchContracts: "/v1/contratos",
				model.OpSearchBiddings:  "/v1/contratacoes/publicacao",
			},
			ParamMap: contractParams,
			FieldMap: map[string]string{
				"numeroControlePNCP":        model.KeyContractID,
				"valorGlobal":               model.KeyValue,
				"niFornecedor":              model.KeySupplierCNPJ,
				"nomeRazaoSocialFornecedor": model.KeySupplierName,
				"orgaoEntidade.razaoSocial": model.KeyAgency,
				"orgaoEntidade.cnpj":        model.KeyAgencyCode,
				"objetoContrato":            model.KeyObject,
				"dataAssinatura":            model.KeySignedAt,
				"modalidadeNome":            model.KeyModality,
				"numeroCompra":              model.KeyBiddingID,
			},
			Timeout:                 30 * time.Second,
			RateLimit:               2,
			Burst:                   4,
			CacheTTL:                2 * time.Hour,
			Fallbacks:               []string{"compras_gov"},
			CircuitBreakerThreshold: 5,
		},
		{
			ID:           "compras_gov",
			Name:         "Compras.gov.br Dados Abertos",
			Kind:         model.SourceKindREST,
			Capabilities: []model.Capability{model.CapContractSearch, model.CapBiddingSearch},
			BaseURL:      "https://dadosabertos.compras.gov.br",
			Endpoints: map[model.Operation]string{
				model.OpSearchContracts: "/modulo-contratos/1_consultarContratos",
				model.OpSearchBiddings:  "/modulo-legado/1_consultarLicitacao",
			},
			ParamMap: contractParams,
			FieldMap: map[string]string{
				"numeroContrato":            model.KeyContractID,
				"valorGlobal":               model.KeyValue,
				"niFornecedor":              model.KeySupplierCNPJ,
				"nomeRazaoSocialFornecedor": model.KeySupplierName,
				"nomeOrgao":                 model.KeyAgency,
				"codigoOrgao":               model.KeyAgencyCode,
				"objeto":                    model.KeyObject,
				"dataVigenciaInicial":       model.KeySignedAt,
				"nomeModalidadeCompra":      model.KeyModality,
			},
			Timeout:                 45 * time.Second,
			RateLimit:               1,
			Burst:                   2,
			CacheTTL:                2 * time.Hour,
			Fallbacks:               []string{"pncp"},
			CircuitBreakerThreshold: 5,
		},
		{
			ID:           "tse",
			Name:         "TSE Dados Abertos",
			Kind:         model.SourceKindREST,
			Capabilities: []model.Capability{model.CapPoliticalDonations},
			BaseURL:      "https://dadosabertos.tse.jus.br/api/3/action",
			Endpoints:    map[model.Operation]string{model.OpGetDonations: "/datastore_search"},
			ParamMap:     map[string]string{model.KeyCNPJ: "q", model.KeyCPF: "q"},
			FieldMap: map[string]string{
				"NM_CANDIDATO":       model.KeyCandidate,
				"NR_CPF_CANDIDATO":   model.KeyCandidateCPF,
				"NM_DOADOR":          model.KeyDonorName,
				"NR_CPF_CNPJ_DOADOR": model.KeyDonorID,
				"SG_PARTIDO":         model.KeyParty,
				"VR_RECEITA":         model.KeyValue,
			},
			Timeout:                 30 * time.Second,
			RateLimit:               1,
			Burst:                   2,
			CacheTTL:                7 * 24 * time.Hour,
			CircuitBreakerThreshold: 3,
		},
		{
			ID:           "siop",
			Name:         "SIOP Painel do Orçamento",
			Kind:         model.SourceKindPortal,
			Capabilities: []model.Capability{model.CapBudgetData},
			BaseURL:      "https://www1.siop.planejamento.gov.br",
			Endpoints:    map[model.Operation]string{model.OpGetBudget: "/painelorcamento/consulta"},
			FieldMap: map[string]string{
				"órgão":     model.KeyAgency,
				"programa":  model.KeyProgram,
				"função":    model.KeyFunction,
				"empenhado": model.KeyCommitted,
				"pago":      model.KeyPaid,
			},
			Timeout:                 60 * time.Second,
			RateLimit:               0.5,
			Burst:                   1,
			CacheTTL:                24 * time.Hour,
			Fallbacks:               []string{"siconfi"},
			CircuitBreakerThreshold: 3,
		},
		{
			ID:           "siconfi",
			Name:         "SICONFI (Tesouro Nacional)",
			Kind:         model.SourceKindREST,
			Capabilities: []model.Capability{model.CapBudgetData, model.CapTransferData},
			BaseURL:      "https://apidatalake.tesouro.gov.br/ords/siconfi/tt",
			Endpoints: map[model.Operation]string{
				model.OpGetBudget:    "/rreo",
				model.OpGetTransfers: "/dca",
			},
			ParamMap: map[string]string{model.ParamYear: "an_exercicio", model.ParamRegion: "id_ente"},
			FieldMap: map[string]string{
				"instituicao": model.KeyAgency,
				"conta":       model.KeyProgram,
				"coluna":      model.KeyFunction,
				"valor":       model.KeyValue,
			},
			Timeout:                 30 * time.Second,
			RateLimit:               1,
			Burst:                   2,
			CacheTTL:                24 * time.Hour,
			CircuitBreakerThreshold: 5,
		},
		{
			ID:           "datasus",
			Name:         "DataSUS Dados Abertos",
			Kind:         model.SourceKindREST,
			Capabilities: []model.Capability{model.CapHealthStatistics},
			BaseURL:      "https://apidadosabertos.saude.gov.br",
			Endpoints:    map[model.Operation]string{model.OpGetHealthIndicators: "/cnes/estabelecimentos"},
			ParamMap:     map[string]string{model.ParamRegion: "codigo_uf"},
			FieldMap: map[string]string{
				"nome_razao_social":    model.KeyName,
				"numero_cnpj_entidade": model.KeyCNPJ,
				"codigo_tipo_unidade":  model.KeyIndicator,
			},
			Timeout:                 30 * time.Second,
			RateLimit:               2,
			Burst:                   4,
			CacheTTL:                24 * time.Hour,
			CircuitBreakerThreshold: 5,
		},
		{
			ID:                      "inep",
			Name:                    "INEP Indicadores Educacionais",
			Kind:                    model.SourceKindPortal,
			Capabilities:            []model.Capability{model.CapEducationStatistics},
			BaseURL:                 "https://www.gov.br/inep/pt-br",
			Endpoints:               map[model.Operation]string{model.OpGetEducationIndicators: "/areas-de-atuacao/pesquisas-estatisticas-e-indicadores/ideb/resultados"},
			FieldMap:                map[string]string{"indicador": model.KeyIndicator, "ideb": model.KeyValue},
			Timeout:                 30 * time.Second,
			RateLimit:               0.5,
			Burst:                   1,
			CacheTTL:                7 * 24 * time.Hour,
			CircuitBreakerThreshold: 3,
		},
		{
			ID:                      "ibge",
			Name:                    "IBGE Serviço de Dados",
			Kind:                    model.SourceKindREST,
			Capabilities:            []model.Capability{model.CapEconomicIndicators},
			BaseURL:                 "https://servicodados.ibge.gov.br/api",
			Endpoints:               map[model.Operation]string{model.OpGetIndicators: "/v3/agregados/6579/periodos/-1/variaveis/9324"},
			ParamMap:                map[string]string{model.ParamRegion: "localidades"},
			FieldMap:                map[string]string{"variavel": model.KeyIndicator},
			Timeout:                 20 * time.Second,
			RateLimit:               3,
			Burst:                   5,
			CacheTTL:                7 * 24 * time.Hour,
			Fallbacks:               []string{"bcb"},
			CircuitBreakerThreshold: 5,
		},
		{
			ID:           "bcb",
			Name:         "Banco Central SGS",
			Kind:         model.SourceKindREST,
			Capabilities: []model.Capability{model.CapEconomicIndicators},
			BaseURL:      "https://api.bcb.gov.br/dados/serie",
			Endpoints:    map[model.Operation]string{model.OpGetIndicators: "/bcdata.sgs.433/dados"},
			ParamMap: map[string]string{
				model.ParamStartDate: "dataInicial",
				model.ParamEndDate:   "dataFinal",
			},
			FieldMap:                map[string]string{"data": model.KeySignedAt},
			Timeout:                 20 * time.Second,
			RateLimit:               3,
			Burst:                   5,
			CacheTTL:                24 * time.Hour,
			CircuitBreakerThreshold: 5,
		},
		{
			ID:           "tcu",
			Name:         "TCU Certidões e Inidôneos",
			Kind:         model.SourceKindREST,
			Capabilities: []model.Capability{model.CapSanctionsCheck},
			BaseURL:      "https://certidoes-apf.apps.tcu.gov.br/api",
			Endpoints:    map[model.Operation]string{model.OpGetSanctions: "/rest/publico/certidoes/{cnpj}"},
			FieldMap: map[string]string{
				"razaoSocial": model.KeyName,
				"cnpj":        model.KeyCNPJ,
				"situacao":    model.KeySanction,
			},
			Timeout:                 20 * time.Second,
			RateLimit:               1,
			Burst:                   2,
			CacheTTL:                24 * time.Hour,
			CircuitBreakerThreshold: 3,
		},
	}
}
