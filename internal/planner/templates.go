package planner

import "github.com/ppiankov/lupa/internal/model"

// Stage names shared by templates and recognizers
const (
	StageCompanyLookup   = "company_lookup"
	StageSanctions       = "sanctions_check"
	StageContracts       = "contract_search"
	StageBiddings        = "bidding_details"
	StageAnomalies       = "anomaly_analysis"
	StageDonations       = "political_donations"
	StageRiskCorrelation = "risk_correlation"
	StageBudget          = "budget_data"
	StageTransfers       = "transfer_data"
	StageIndicators      = "economic_context"
	StageHealth          = "health_statistics"
	StageEducation       = "education_statistics"
	StageSpendingSummary = "spending_summary"
)

type stageTemplate struct {
	name          string
	capability    model.Capability // empty for synthetic stages
	parallel      bool
	dependsOn     []string
	justification string

	// when reports whether the parameters allow the stage; nil always does
	when func(model.Parameters) bool
}

func (t stageTemplate) applies(params model.Parameters) bool {
	return t.when == nil || t.when(params)
}

var defaultOperation = map[model.Capability]model.Operation{
	model.CapCompanyLookup:       model.OpGetCompany,
	model.CapContractSearch:      model.OpSearchContracts,
	model.CapBiddingSearch:       model.OpSearchBiddings,
	model.CapBudgetData:          model.OpGetBudget,
	model.CapTransferData:        model.OpGetTransfers,
	model.CapHealthStatistics:    model.OpGetHealthIndicators,
	model.CapEducationStatistics: model.OpGetEducationIndicators,
	model.CapSanctionsCheck:      model.OpGetSanctions,
	model.CapPoliticalDonations:  model.OpGetDonations,
	model.CapPublicServants:      model.OpGetServants,
	model.CapEconomicIndicators:  model.OpGetIndicators,
}

// company registries are keyed by tax id
func hasCNPJ(params model.Parameters) bool {
	return params.CNPJ != ""
}

var (
	companyLookup = stageTemplate{
		name:          StageCompanyLookup,
		capability:    model.CapCompanyLookup,
		when:          hasCNPJ,
		justification: "registry data identifies the company, its status and partners",
	}
	sanctions = stageTemplate{
		name:          StageSanctions,
		capability:    model.CapSanctionsCheck,
		parallel:      true,
		justification: "sanction lists flag suppliers barred from public contracts",
	}
	budget = stageTemplate{
		name:          StageBudget,
		capability:    model.CapBudgetData,
		parallel:      true,
		justification: "budget execution shows committed and paid amounts",
	}
	transfers = stageTemplate{
		name:          StageTransfers,
		capability:    model.CapTransferData,
		parallel:      true,
		justification: "transfers show money moved between federal and local governments",
	}
)

// templateFor returns the stage template of an intent. general_query has
// none and always ends up with the informational stage.
func templateFor(intent model.Intent) []stageTemplate {
	switch intent {
	case model.IntentSupplierInvestigation:
		return []stageTemplate{
			companyLookup,
			sanctions,
			{
				name:          StageContracts,
				capability:    model.CapContractSearch,
				parallel:      true,
				dependsOn:     []string{StageCompanyLookup},
				justification: "contracts awarded to the supplier across procurement systems",
			},
			{
				name:          StageBiddings,
				capability:    model.CapBiddingSearch,
				parallel:      true,
				dependsOn:     []string{StageContracts},
				justification: "bidding records show how the contracts were awarded",
			},
			{
				name:          StageAnomalies,
				dependsOn:     []string{StageContracts, StageBiddings},
				justification: "flags contracts without competition or with outlier values",
			},
		}

	case model.IntentContractAnomaly:
		return []stageTemplate{
			{
				name:          StageContracts,
				capability:    model.CapContractSearch,
				parallel:      true,
				justification: "contracts matching the query across procurement systems",
			},
			{
				name:          StageBiddings,
				capability:    model.CapBiddingSearch,
				parallel:      true,
				dependsOn:     []string{StageContracts},
				justification: "bidding records show how the contracts were awarded",
			},
			sanctions,
			{
				name:          StageAnomalies,
				dependsOn:     []string{StageContracts, StageBiddings},
				justification: "flags contracts without competition or with outlier values",
			},
		}

	case model.IntentCorruptionIndicators:
		return []stageTemplate{
			sanctions,
			{
				name:          StageDonations,
				capability:    model.CapPoliticalDonations,
				parallel:      true,
				justification: "campaign donations link companies and people to politicians",
			},
			{
				name:          StageContracts,
				capability:    model.CapContractSearch,
				parallel:      true,
				justification: "contracts held by the investigated parties",
			},
			{
				name:          StageRiskCorrelation,
				dependsOn:     []string{StageSanctions, StageDonations, StageContracts},
				justification: "correlates sanctions, donations and contracts of the same parties",
			},
		}

	case model.IntentBudgetAnalysis:
		return []stageTemplate{
			budget,
			transfers,
			{
				name:          StageIndicators,
				capability:    model.CapEconomicIndicators,
				parallel:      true,
				justification: "inflation and GDP series put amounts in context",
			},
			{
				name:          StageSpendingSummary,
				dependsOn:     []string{StageBudget, StageTransfers},
				justification: "summarizes committed against paid amounts",
			},
		}

	case model.IntentHealthBudget:
		return []stageTemplate{
			{
				name:          StageHealth,
				capability:    model.CapHealthStatistics,
				parallel:      true,
				justification: "health service indicators for the region",
			},
			budget,
			transfers,
			{
				name:          StageSpendingSummary,
				dependsOn:     []string{StageHealth, StageBudget, StageTransfers},
				justification: "relates health spending to service indicators",
			},
		}

	case model.IntentEducationPerformance:
		return []stageTemplate{
			{
				name:          StageEducation,
				capability:    model.CapEducationStatistics,
				parallel:      true,
				justification: "school performance indicators (IDEB, census)",
			},
			transfers,
			{
				name:          StageSpendingSummary,
				dependsOn:     []string{StageEducation, StageTransfers},
				justification: "relates education transfers to performance",
			},
		}

	default:
		return nil
	}
}
