package model

// Record key conventions. Source handles rename remote fields to these keys
// (via SourceRegistration.FieldMap) so recognizers can match payloads without
// knowing which source produced them.
const (
	KeyCNPJ         = "cnpj"          // company tax id, 14 digits
	KeyCPF          = "cpf"           // person tax id, 11 digits
	KeyName         = "nome"          // display name of the record subject
	KeyLegalName    = "razao_social"  // registered company name
	KeyTradeName    = "nome_fantasia" // company trade name
	KeyStatus       = "situacao"      // registry status
	KeyCity         = "municipio"
	KeyState        = "uf"
	KeyPartners     = "socios" // list of {nome, cpf|cnpj, qualificacao}
	KeyRole         = "qualificacao"
	KeyContractID   = "numero_contrato"
	KeySupplierCNPJ = "cnpj_fornecedor"
	KeySupplierName = "nome_fornecedor"
	KeyAgency       = "orgao"
	KeyAgencyCode   = "codigo_orgao"
	KeyValue        = "valor"
	KeySignedAt     = "data_assinatura"
	KeyObject       = "objeto"
	KeyModality     = "modalidade"
	KeyBiddingID    = "numero_licitacao"
	KeySanction     = "tipo_sancao"
	KeyCandidate    = "candidato"
	KeyCandidateCPF = "cpf_candidato"
	KeyDonorName    = "nome_doador"
	KeyDonorID      = "cpf_cnpj_doador"
	KeyParty        = "partido"
	KeyProgram      = "programa"
	KeyFunction     = "funcao"
	KeyCommitted    = "valor_empenhado"
	KeyPaid         = "valor_pago"
	KeyPosition     = "cargo"
	KeyIndicator    = "indicador"
)

// Parameter bag keys that are not record keys
const (
	ParamStartDate = "data_inicial"
	ParamEndDate   = "data_final"
	ParamYear      = "ano"
	ParamRegion    = "uf"
	ParamMinValue  = "valor_minimo"
	ParamPage      = "pagina"
)
