package model

import "time"

// NetworkNode is the durable counterpart of Entity, accumulated across investigations
type NetworkNode struct {
	ID             string         `json:"id"`
	Type           EntityType     `json:"type"`
	Name           string         `json:"name"`
	NormalizedName string         `json:"normalized_name"`
	CNPJ           string         `json:"cnpj,omitempty"`
	CPF            string         `json:"cpf,omitempty"`
	Attributes     map[string]any `json:"attributes,omitempty"`

	TimesSeen          int     `json:"times_seen"`
	TotalContracts     int     `json:"total_contracts"`
	TotalContractValue float64 `json:"total_contract_value"`
	TotalAnomalies     int     `json:"total_anomalies"`
	RiskScore          float64 `json:"risk_score"` // 0-10
	Sanctioned         bool    `json:"sanctioned"`

	DegreeCentrality      float64 `json:"degree_centrality"`
	BetweennessCentrality float64 `json:"betweenness_centrality"`
	ClosenessCentrality   float64 `json:"closeness_centrality"`
	EigenvectorCentrality float64 `json:"eigenvector_centrality"`

	Investigations []string  `json:"investigations"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
}

// NetworkEdge is the durable counterpart of EntityRelationship
type NetworkEdge struct {
	ID                string           `json:"id"`
	SourceID          string           `json:"source_id"`
	TargetID          string           `json:"target_id"`
	Type              RelationshipType `json:"type"`
	Strength          float64          `json:"strength"` // 0-1, grows with repeated detection
	Confidence        float64          `json:"confidence"`
	DetectionCount    int              `json:"detection_count"`
	TotalValue        float64          `json:"total_value"`
	Investigations    []string         `json:"investigations"`
	Suspicious        bool             `json:"suspicious"`
	SuspiciousReasons []string         `json:"suspicious_reasons,omitempty"`
	Evidence          map[string]any   `json:"evidence,omitempty"`
	FirstSeen         time.Time        `json:"first_seen"`
	LastSeen          time.Time        `json:"last_seen"`
}

// NetworkType classifies a suspicious network
type NetworkType string

const (
	NetworkCartel        NetworkType = "cartel"
	NetworkConcentration NetworkType = "concentration"
	NetworkShell         NetworkType = "shell_network"
	NetworkFraudRing     NetworkType = "fraud_ring"
	NetworkCollusion     NetworkType = "collusion"
)

// Severity grades a suspicious network
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SuspiciousNetwork is a flagged group of persistent entities
type SuspiciousNetwork struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Type            NetworkType `json:"type"`
	Signature       string      `json:"signature"` // type + sorted member ids
	EntityIDs       []string    `json:"entity_ids"`
	EntityCount     int         `json:"entity_count"`
	Rationale       string      `json:"rationale"`
	Confidence      float64     `json:"confidence"`
	Severity        Severity    `json:"severity"`
	TotalValue      float64     `json:"total_value"`
	FlaggedValue    float64     `json:"flagged_value"`
	InvestigationID string      `json:"investigation_id,omitempty"`
	AnchorID        string      `json:"anchor_id,omitempty"` // agency node a cartel forms around
	SupersededBy    string      `json:"superseded_by,omitempty"`
	IsActive        bool        `json:"is_active"`
	Reviewed        bool        `json:"reviewed"`
	ReviewNotes     string      `json:"review_notes,omitempty"`
	ReviewedAt      *time.Time  `json:"reviewed_at,omitempty"`
	DetectedAt      time.Time   `json:"detected_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// InvestigationRef records that a node was observed in an investigation
type InvestigationRef struct {
	ID              string    `json:"id"`
	InvestigationID string    `json:"investigation_id"`
	NodeID          string    `json:"node_id"`
	Role            string    `json:"role"` // e.g. "supplier", "agency", "partner"
	ContractID      string    `json:"contract_id,omitempty"`
	Value           float64   `json:"value,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// ContractRef describes the contract a sighting came from
type ContractRef struct {
	ContractID string  `json:"contract_id"`
	Value      float64 `json:"value"`
	Anomalous  bool    `json:"anomalous"`
}

// Subgraph is the neighborhood of an entity
type Subgraph struct {
	Center NetworkNode   `json:"center"`
	Nodes  []NetworkNode `json:"nodes"`
	Edges  []NetworkEdge `json:"edges"`
	Depth  int           `json:"depth"`
}

// GraphStats summarizes the persistent graph
type GraphStats struct {
	Nodes            int                 `json:"nodes"`
	Edges            int                 `json:"edges"`
	SuspiciousEdges  int                 `json:"suspicious_edges"`
	Networks         int                 `json:"networks"`
	ActiveNetworks   int                 `json:"active_networks"`
	ReviewedNetworks int                 `json:"reviewed_networks"`
	NodesByType      map[EntityType]int  `json:"nodes_by_type"`
	NetworksByType   map[NetworkType]int `json:"networks_by_type"`
}
