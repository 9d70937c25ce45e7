package model

import "time"

// EntityType classifies a discovered entity
type EntityType string

const (
	EntityCompany    EntityType = "company"
	EntityPerson     EntityType = "person"
	EntityContract   EntityType = "contract"
	EntityBidding    EntityType = "bidding"
	EntityAgency     EntityType = "agency"
	EntityPolitician EntityType = "politician"
	EntityDonation   EntityType = "donation"
	EntityBudgetItem EntityType = "budget_item"
)

// RelationshipType classifies an edge between two entities
type RelationshipType string

const (
	RelOwns            RelationshipType = "owns"
	RelContractsWith   RelationshipType = "contracts_with" // supplier -> agency
	RelEmploys         RelationshipType = "employs"
	RelPartnersWith    RelationshipType = "partners_with"
	RelRelatedTo       RelationshipType = "related_to"
	RelAwardedContract RelationshipType = "awarded_contract" // supplier -> contract
	RelIssuedContract  RelationshipType = "issued_contract"  // agency -> contract
	RelParticipatedIn  RelationshipType = "participated_in"  // supplier -> bidding
	RelDonatedTo       RelationshipType = "donated_to"       // donor -> politician
	RelAllocatedTo     RelationshipType = "allocated_to"     // budget item -> agency
)

// Entity is a session-scoped entity discovered in one investigation's results
type Entity struct {
	ID           string         `json:"id"`
	Type         EntityType     `json:"type"`
	Name         string         `json:"name"`
	Attributes   map[string]any `json:"attributes,omitempty"`
	Source       string         `json:"source"`
	Confidence   float64        `json:"confidence"`
	DiscoveredAt time.Time      `json:"discovered_at"`
}

// Attr returns an attribute as a string
func (e Entity) Attr(key string) string {
	return Record(e.Attributes).String(key)
}

// TaxID returns the company (cnpj) or person (cpf) identifier, if known
func (e Entity) TaxID() string {
	if v := e.Attr(KeyCNPJ); v != "" {
		return v
	}
	return e.Attr(KeyCPF)
}

// EntityRelationship is a directed edge between two entities
type EntityRelationship struct {
	ID            string           `json:"id"`
	SourceID      string           `json:"source_id"`
	TargetID      string           `json:"target_id"`
	Type          RelationshipType `json:"type"`
	Bidirectional bool             `json:"bidirectional,omitempty"`
	Metadata      map[string]any   `json:"metadata,omitempty"`
	Confidence    float64          `json:"confidence"`
}
