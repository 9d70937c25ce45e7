package network

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/ppiankov/lupa/internal/model"
)

// candidate is one detector hit before it is merged into the network store
type candidate struct {
	netType    model.NetworkType
	name       string
	members    []string // sorted
	rationale  string
	confidence float64
	severity   model.Severity
	total      float64
	flagged    float64
	edges      []model.NetworkEdge // marked suspicious when the network is stored
	anchor     string
}

func (c candidate) signature() string {
	return string(c.netType) + ":" + strings.Join(c.members, ",")
}

// DetectSuspiciousNetworks runs the cartel, concentration and shell-network
// heuristics and stores their union. Cartel grouping is limited to edges seen
// in investigationID unless it is empty. A network already on record for the
// same type and members is refreshed and keeps its review state. Sparse graphs
// simply yield no networks.
func (g *Graph) DetectSuspiciousNetworks(ctx context.Context, investigationID string) ([]model.SuspiciousNetwork, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	nodes, err := g.store.Nodes(ctx)
	if err != nil {
		return nil, err
	}
	edges, err := g.store.Edges(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.NetworkNode, len(nodes))
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		byID[n.ID] = n
		ids[i] = n.ID
	}

	var found []candidate
	found = append(found, g.cartels(byID, edges, investigationID)...)
	found = append(found, g.concentrations(nodes)...)
	found = append(found, g.shells(nodes, undirected(ids, edges))...)

	seen := make(map[string]bool, len(found))
	out := make([]model.SuspiciousNetwork, 0, len(found))
	for _, c := range found {
		sig := c.signature()
		if seen[sig] {
			continue
		}
		seen[sig] = true

		network, err := g.upsertNetwork(ctx, c, investigationID)
		if err != nil {
			return out, err
		}
		for _, e := range c.edges {
			if err := g.flagEdge(ctx, e, string(c.netType)); err != nil {
				return out, err
			}
		}
		if err := g.supersede(ctx, network); err != nil {
			return out, err
		}
		g.metrics.RecordNetworkDetected(string(c.netType))
		out = append(out, *network)
	}

	g.logger.Info("detection finished", "investigation", investigationID, "networks", len(out))
	return out, nil
}

func (g *Graph) upsertNetwork(ctx context.Context, c candidate, investigationID string) (*model.SuspiciousNetwork, error) {
	now := g.now()
	network, err := g.store.NetworkBySignature(ctx, c.signature())
	switch {
	case err == nil:
		// refresh the findings; review state belongs to the reviewer
	case errors.Is(err, model.ErrNotFound):
		id, err := g.newID()
		if err != nil {
			return nil, fmt.Errorf("generate network id: %w", err)
		}
		network = &model.SuspiciousNetwork{
			ID:              id,
			Type:            c.netType,
			Signature:       c.signature(),
			InvestigationID: investigationID,
			IsActive:        true,
			DetectedAt:      now,
		}
	default:
		return nil, err
	}

	network.Name = c.name
	network.EntityIDs = c.members
	network.EntityCount = len(c.members)
	network.Rationale = c.rationale
	network.Confidence = c.confidence
	network.Severity = c.severity
	network.TotalValue = c.total
	network.FlaggedValue = c.flagged
	network.AnchorID = c.anchor
	network.UpdatedAt = now

	if err := g.store.SaveNetwork(ctx, network); err != nil {
		return nil, err
	}
	return network, nil
}

func (g *Graph) flagEdge(ctx context.Context, e model.NetworkEdge, reason string) error {
	if e.Suspicious && slices.Contains(e.SuspiciousReasons, reason) {
		return nil
	}
	e.Suspicious = true
	e.SuspiciousReasons = append(e.SuspiciousReasons, reason)
	return g.store.SaveEdge(ctx, &e)
}

// supersede deactivates unreviewed cartel records at the same agency whose
// suppliers are a strict subset of wider
func (g *Graph) supersede(ctx context.Context, wider *model.SuspiciousNetwork) error {
	if wider.Type != model.NetworkCartel || wider.AnchorID == "" {
		return nil
	}
	networks, err := g.store.Networks(ctx)
	if err != nil {
		return err
	}
	for _, n := range networks {
		if n.ID == wider.ID || n.Type != model.NetworkCartel || n.AnchorID != wider.AnchorID {
			continue
		}
		if !n.IsActive || n.Reviewed || len(n.EntityIDs) >= len(wider.EntityIDs) {
			continue
		}
		if slices.ContainsFunc(n.EntityIDs, func(id string) bool { return !slices.Contains(wider.EntityIDs, id) }) {
			continue
		}
		n.IsActive = false
		n.SupersededBy = wider.ID
		n.UpdatedAt = g.now()
		if err := g.store.SaveNetwork(ctx, &n); err != nil {
			return err
		}
		g.logger.Info("network superseded", "network", n.ID, "by", wider.ID)
	}
	return nil
}

// cartels groups suppliers holding a contracts_with edge to the same agency
func (g *Graph) cartels(byID map[string]model.NetworkNode, edges []model.NetworkEdge, investigationID string) []candidate {
	type group struct {
		suppliers map[string]bool
		edges     []model.NetworkEdge
		value     float64
	}
	groups := map[string]*group{}
	for _, e := range edges {
		if e.Type != model.RelContractsWith {
			continue
		}
		if investigationID != "" && !slices.Contains(e.Investigations, investigationID) {
			continue
		}
		if _, ok := byID[e.SourceID]; !ok {
			continue
		}
		if _, ok := byID[e.TargetID]; !ok {
			continue
		}
		grp := groups[e.TargetID]
		if grp == nil {
			grp = &group{suppliers: map[string]bool{}}
			groups[e.TargetID] = grp
		}
		grp.suppliers[e.SourceID] = true
		grp.edges = append(grp.edges, e)
		grp.value += e.TotalValue
	}

	var out []candidate
	for _, agencyID := range slices.Sorted(maps.Keys(groups)) {
		grp := groups[agencyID]
		if len(grp.suppliers) < g.cfg.CartelMinSuppliers {
			continue
		}
		members := slices.Sorted(maps.Keys(grp.suppliers))
		agency := byID[agencyID].Name
		out = append(out, candidate{
			netType:    model.NetworkCartel,
			name:       "Possible cartel at " + agency,
			members:    members,
			rationale:  fmt.Sprintf("%d distinct suppliers hold contracts with %s", len(members), agency),
			confidence: g.cfg.CartelConfidence,
			severity:   model.SeverityHigh,
			total:      grp.value,
			flagged:    grp.value,
			edges:      grp.edges,
			anchor:     agencyID,
		})
	}
	return out
}

// concentrations flags the top decile of repeatedly seen high-value entities
func (g *Graph) concentrations(nodes []model.NetworkNode) []candidate {
	var eligible []model.NetworkNode
	for _, n := range nodes {
		if concentrated(n, g.cfg) {
			eligible = append(eligible, n)
		}
	}
	if len(eligible) == 0 {
		return nil
	}
	slices.SortFunc(eligible, func(a, b model.NetworkNode) int {
		if c := cmp.Compare(b.TotalContractValue, a.TotalContractValue); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	top := (len(eligible) + 9) / 10
	out := make([]candidate, 0, top)
	for _, n := range eligible[:top] {
		rationale := fmt.Sprintf("seen %d times with %.2f in contracts (threshold %.2f)",
			n.TimesSeen, n.TotalContractValue, g.cfg.HighValueThreshold)
		out = append(out, candidate{
			netType:    model.NetworkConcentration,
			name:       "Contract concentration: " + n.Name,
			members:    []string{n.ID},
			rationale:  rationale,
			confidence: g.cfg.ConcentrationConfidence,
			severity:   model.SeverityMedium,
			total:      n.TotalContractValue,
			flagged:    n.TotalContractValue,
		})
	}
	return out
}

// shells flags highly connected entities that move little contract value
func (g *Graph) shells(nodes []model.NetworkNode, adj adjacency) []candidate {
	var out []candidate
	for _, n := range nodes {
		degree := len(adj[n.ID])
		if degree <= g.cfg.ShellDegreeAbove || n.TotalContractValue >= g.cfg.ShellMaxValue {
			continue
		}
		rationale := fmt.Sprintf("%d connections but only %.2f in contracts (limit %.2f)",
			degree, n.TotalContractValue, g.cfg.ShellMaxValue)
		out = append(out, candidate{
			netType:    model.NetworkShell,
			name:       "Possible shell structure: " + n.Name,
			members:    []string{n.ID},
			rationale:  rationale,
			confidence: g.cfg.ShellConfidence,
			severity:   model.SeverityMedium,
			total:      n.TotalContractValue,
		})
	}
	return out
}

// MarkReviewed records a reviewer decision and deactivates the network.
// Repeating the call with the same notes changes nothing.
func (g *Graph) MarkReviewed(ctx context.Context, networkID, notes string) (*model.SuspiciousNetwork, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	network, err := g.store.Network(ctx, networkID)
	if err != nil {
		return nil, err
	}
	if network.Reviewed && !network.IsActive && network.ReviewNotes == notes {
		return network, nil
	}

	now := g.now()
	network.Reviewed = true
	network.IsActive = false
	network.ReviewNotes = notes
	if network.ReviewedAt == nil {
		network.ReviewedAt = &now
	}
	network.UpdatedAt = now

	if err := g.store.SaveNetwork(ctx, network); err != nil {
		return nil, err
	}
	return network, nil
}

// ResetReview reactivates a reviewed network
func (g *Graph) ResetReview(ctx context.Context, networkID string) (*model.SuspiciousNetwork, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	network, err := g.store.Network(ctx, networkID)
	if err != nil {
		return nil, err
	}
	network.Reviewed = false
	network.IsActive = true
	network.SupersededBy = ""
	network.ReviewNotes = ""
	network.ReviewedAt = nil
	network.UpdatedAt = g.now()

	if err := g.store.SaveNetwork(ctx, network); err != nil {
		return nil, err
	}
	return network, nil
}

// Networks lists stored networks, optionally only the active ones
func (g *Graph) Networks(ctx context.Context, activeOnly bool) ([]model.SuspiciousNetwork, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	networks, err := g.store.Networks(ctx)
	if err != nil {
		return nil, err
	}
	if !activeOnly {
		return networks, nil
	}
	return slices.DeleteFunc(networks, func(n model.SuspiciousNetwork) bool { return !n.IsActive }), nil
}
