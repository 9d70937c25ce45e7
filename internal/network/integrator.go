package network

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/ppiankov/lupa/internal/model"
	"github.com/ppiankov/lupa/internal/util"
)

// ContractSighting is one contract seen in an investigation, reduced to what
// the persistent graph needs: who supplied whom, for how much
type ContractSighting struct {
	model.ContractRef
	SupplierCNPJ string `json:"supplier_cnpj,omitempty"`
	SupplierName string `json:"supplier_name,omitempty"`
	Agency       string `json:"agency"`
	Modality     string `json:"modality,omitempty"`
}

// Integration summarizes one IntegrateWithGraph run
type Integration struct {
	InvestigationID string                    `json:"investigation_id"`
	Nodes           int                       `json:"nodes"`
	Edges           int                       `json:"edges"`
	Contracts       int                       `json:"contracts"`
	Networks        []model.SuspiciousNetwork `json:"networks"`
}

// relationships carried from the session graph into the persistent one
var persistentRelations = []model.RelationshipType{
	model.RelOwns,
	model.RelPartnersWith,
	model.RelEmploys,
	model.RelRelatedTo,
	model.RelDonatedTo,
	model.RelContractsWith,
}

// entity types that become persistent nodes; events stay in the session graph
var persistentTypes = []model.EntityType{
	model.EntityCompany,
	model.EntityPerson,
	model.EntityAgency,
	model.EntityPolitician,
}

// BuildContractContext reads the contract entities of an investigation. A
// contract is anomalous when awarded without competition or above the
// configured value threshold.
func BuildContractContext(entities []model.Entity, cfg model.DetectorConfig) []ContractSighting {
	var out []ContractSighting
	for _, e := range entities {
		if e.Type != model.EntityContract {
			continue
		}
		rec := model.Record(e.Attributes)
		agency := rec.String(model.KeyAgency)
		if agency == "" {
			agency = rec.String(model.KeyAgencyCode)
		}
		supplier := util.Digits(rec.String(model.KeySupplierCNPJ))
		name := rec.String(model.KeySupplierName)
		if agency == "" || (supplier == "" && name == "") {
			continue
		}

		modality := rec.String(model.KeyModality)
		value := rec.Float(model.KeyValue)
		out = append(out, ContractSighting{
			ContractRef: model.ContractRef{
				ContractID: rec.String(model.KeyContractID),
				Value:      value,
				Anomalous:  noCompetition(modality) || (cfg.AnomalyValueThreshold > 0 && value > cfg.AnomalyValueThreshold),
			},
			SupplierCNPJ: supplier,
			SupplierName: name,
			Agency:       agency,
			Modality:     modality,
		})
	}
	return out
}

func noCompetition(modality string) bool {
	m := util.NormalizeName(modality)
	return strings.Contains(m, "dispensa") || strings.Contains(m, "inexigibilidade") || strings.Contains(m, "inexigivel")
}

// IntegrateWithGraph folds one investigation into the persistent graph:
// contract suppliers and agencies first (one sighting per contract), then the
// remaining parties, then their relationships. Centrality is recomputed and
// the detectors run for the investigation before returning.
func (g *Graph) IntegrateWithGraph(ctx context.Context, investigationID string, entities []model.Entity, relationships []model.EntityRelationship, contracts []ContractSighting) (*Integration, error) {
	summary := &Integration{InvestigationID: investigationID, Contracts: len(contracts)}
	byKey := map[string]string{}     // match key -> node id
	bySession := map[string]string{} // session entity id -> node id
	touched := map[string]bool{}

	sighting := func(e model.Entity, role string, ref *model.ContractRef) (string, error) {
		node, err := g.FindOrCreateEntity(ctx, e, investigationID, role, ref)
		if err != nil {
			return "", err
		}
		byKey[matchKey(e)] = node.ID
		touched[node.ID] = true
		return node.ID, nil
	}

	for _, c := range contracts {
		supplier := model.Entity{
			Type:       model.EntityCompany,
			Name:       c.SupplierName,
			Attributes: map[string]any{model.KeyCNPJ: c.SupplierCNPJ},
		}
		ref := c.ContractRef
		supplierID, err := sighting(supplier, "supplier", &ref)
		if err != nil {
			return summary, fmt.Errorf("integrate supplier of %s: %w", c.ContractID, err)
		}

		agencyID, ok := byKey[matchKey(model.Entity{Type: model.EntityAgency, Name: c.Agency})]
		if !ok {
			agencyID, err = sighting(model.Entity{Type: model.EntityAgency, Name: c.Agency}, "agency", nil)
			if err != nil {
				return summary, fmt.Errorf("integrate agency of %s: %w", c.ContractID, err)
			}
		}

		evidence := map[string]any{
			model.KeyContractID: c.ContractID,
			model.KeyValue:      c.Value,
		}
		if c.Modality != "" {
			evidence[model.KeyModality] = c.Modality
		}
		if _, err := g.CreateOrUpdateRelationship(ctx, supplierID, agencyID, model.RelContractsWith, investigationID, evidence); err != nil {
			return summary, err
		}
		summary.Edges++
	}

	for _, e := range entities {
		if !slices.Contains(persistentTypes, e.Type) {
			continue
		}
		if id, ok := byKey[matchKey(e)]; ok {
			bySession[e.ID] = id
			continue
		}
		id, err := sighting(e, string(e.Type), nil)
		if err != nil {
			g.logger.Warn("entity not integrated", "entity", e.ID, "err", err)
			continue
		}
		bySession[e.ID] = id
	}

	for _, r := range relationships {
		if !slices.Contains(persistentRelations, r.Type) {
			continue
		}
		src, okSrc := bySession[r.SourceID]
		tgt, okTgt := bySession[r.TargetID]
		if !okSrc || !okTgt || src == tgt {
			continue
		}
		if _, err := g.CreateOrUpdateRelationship(ctx, src, tgt, r.Type, investigationID, r.Metadata); err != nil {
			return summary, err
		}
		summary.Edges++
	}
	summary.Nodes = len(touched)

	if err := g.RecomputeCentrality(ctx); err != nil {
		return summary, fmt.Errorf("recompute centrality: %w", err)
	}
	networks, err := g.DetectSuspiciousNetworks(ctx, investigationID)
	if err != nil {
		return summary, fmt.Errorf("detect networks: %w", err)
	}
	summary.Networks = networks
	return summary, nil
}

func matchKey(e model.Entity) string {
	cnpj, cpf := taxIDs(e)
	switch {
	case cnpj != "":
		return "cnpj:" + cnpj
	case cpf != "":
		return "cpf:" + cpf
	default:
		return string(e.Type) + ":" + util.NormalizeName(e.Name)
	}
}

