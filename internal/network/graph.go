package network

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/ppiankov/lupa/internal/logging"
	"github.com/ppiankov/lupa/internal/metrics"
	"github.com/ppiankov/lupa/internal/model"
	"github.com/ppiankov/lupa/internal/util"
)

const (
	initialStrength   = 0.3
	strengthStep      = 0.1
	defaultConfidence = 0.7
)

// Options configures a Graph
type Options struct {
	Detector model.DetectorConfig
	Metrics  *metrics.Registry
	Logger   *log.Logger
}

// Graph is the persistent network graph shared by concurrent investigations.
// Every mutation and every full-graph read (centrality, detection) holds the
// write lock, so recomputation never interleaves with node or edge writes.
type Graph struct {
	mu      sync.RWMutex
	store   Store
	cfg     model.DetectorConfig
	metrics *metrics.Registry
	logger  *log.Logger

	now   func() time.Time
	newID func() (string, error)
}

// New creates a graph over store. A zero detector config falls back to the defaults.
func New(store Store, opts Options) *Graph {
	cfg := opts.Detector
	if cfg == (model.DetectorConfig{}) {
		cfg = model.DefaultDetectorConfig()
	}
	return &Graph{
		store:   store,
		cfg:     cfg,
		metrics: opts.Metrics,
		logger:  logging.OrDiscard(opts.Logger),
		now:     time.Now,
		newID:   func() (string, error) { return gonanoid.New() },
	}
}

// Close closes the underlying store
func (g *Graph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.store.Close()
}

// FindOrCreateEntity records one sighting of candidate. The node is matched by
// company tax id, then person tax id, then normalized name within the same
// entity type; the first match wins and no match creates a node. Every call
// also stores an InvestigationRef.
func (g *Graph) FindOrCreateEntity(ctx context.Context, candidate model.Entity, investigationID, role string, contract *model.ContractRef) (*model.NetworkNode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, err := g.match(ctx, candidate)
	if err != nil {
		return nil, err
	}

	now := g.now()
	if node == nil {
		id, err := g.newID()
		if err != nil {
			return nil, fmt.Errorf("generate node id: %w", err)
		}
		node = &model.NetworkNode{
			ID:         id,
			Type:       candidate.Type,
			Name:       candidate.Name,
			Attributes: map[string]any{},
			FirstSeen:  now,
		}
	}

	absorb(node, candidate)
	node.TimesSeen++
	node.LastSeen = now
	if investigationID != "" && !slices.Contains(node.Investigations, investigationID) {
		node.Investigations = append(node.Investigations, investigationID)
	}
	if contract != nil {
		node.TotalContracts++
		node.TotalContractValue += contract.Value
		if contract.Anomalous {
			node.TotalAnomalies++
		}
	}
	node.RiskScore = RiskScore(*node, g.cfg)

	refID, err := g.newID()
	if err != nil {
		return nil, fmt.Errorf("generate ref id: %w", err)
	}
	ref := model.InvestigationRef{
		ID:              refID,
		InvestigationID: investigationID,
		NodeID:          node.ID,
		Role:            role,
		CreatedAt:       now,
	}
	if contract != nil {
		ref.ContractID = contract.ContractID
		ref.Value = contract.Value
	}

	err = g.store.Tx(ctx, func(tx Store) error {
		if err := tx.SaveNode(ctx, node); err != nil {
			return err
		}
		return tx.AddRef(ctx, ref)
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

func (g *Graph) match(ctx context.Context, candidate model.Entity) (*model.NetworkNode, error) {
	cnpj, cpf := taxIDs(candidate)
	name := util.NormalizeName(candidate.Name)
	if cnpj == "" && cpf == "" && name == "" {
		return nil, fmt.Errorf("entity %q has no tax id or name to match on", candidate.ID)
	}

	lookups := []func() (*model.NetworkNode, error){
		func() (*model.NetworkNode, error) { return g.store.NodeByCNPJ(ctx, cnpj) },
		func() (*model.NetworkNode, error) { return g.store.NodeByCPF(ctx, cpf) },
		func() (*model.NetworkNode, error) { return g.store.NodeByName(ctx, candidate.Type, name) },
	}
	for i, key := range []string{cnpj, cpf, name} {
		if key == "" {
			continue
		}
		node, err := lookups[i]()
		if err == nil {
			return node, nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

func taxIDs(e model.Entity) (cnpj, cpf string) {
	if d := util.Digits(e.Attr(model.KeyCNPJ)); len(d) == 14 {
		cnpj = d
	}
	// masked person ids ("***.456.789-**") keep too few digits and are ignored
	if d := util.Digits(e.Attr(model.KeyCPF)); len(d) == 11 {
		cpf = d
	}
	return cnpj, cpf
}

// absorb fills identifiers the node does not have yet and adds new attributes
func absorb(node *model.NetworkNode, candidate model.Entity) {
	cnpj, cpf := taxIDs(candidate)
	if node.CNPJ == "" {
		node.CNPJ = cnpj
	}
	if node.CPF == "" {
		node.CPF = cpf
	}
	if node.Name == "" {
		node.Name = candidate.Name
	}
	if node.NormalizedName == "" {
		node.NormalizedName = util.NormalizeName(node.Name)
	}
	if node.Attributes == nil {
		node.Attributes = map[string]any{}
	}
	for k, v := range candidate.Attributes {
		if _, ok := node.Attributes[k]; !ok {
			node.Attributes[k] = v
		}
	}
	if candidate.Attr(model.KeySanction) != "" {
		node.Sanctioned = true
	}
}

// CreateOrUpdateRelationship records one detection of a typed edge. A repeated
// detection strengthens the existing edge and appends the investigation to its
// provenance instead of adding a second edge.
func (g *Graph) CreateOrUpdateRelationship(ctx context.Context, sourceID, targetID string, relType model.RelationshipType, investigationID string, evidence map[string]any) (*model.NetworkEdge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range []string{sourceID, targetID} {
		if _, err := g.store.Node(ctx, id); err != nil {
			return nil, fmt.Errorf("relationship %s %s->%s: %w", relType, sourceID, targetID, err)
		}
	}

	now := g.now()
	edge, err := g.store.EdgeBetween(ctx, sourceID, targetID, relType)
	switch {
	case err == nil:
		edge.DetectionCount++
		edge.Strength = min(edge.Strength+strengthStep, 1.0)
		edge.LastSeen = now
	case errors.Is(err, model.ErrNotFound):
		edge = &model.NetworkEdge{
			ID:             edgeKey(sourceID, targetID, relType),
			SourceID:       sourceID,
			TargetID:       targetID,
			Type:           relType,
			Strength:       initialStrength,
			Confidence:     defaultConfidence,
			DetectionCount: 1,
			FirstSeen:      now,
			LastSeen:       now,
		}
	default:
		return nil, err
	}

	if investigationID != "" && !slices.Contains(edge.Investigations, investigationID) {
		edge.Investigations = append(edge.Investigations, investigationID)
	}
	if v, ok := evidence[model.KeyValue].(float64); ok {
		edge.TotalValue += v
	}
	if len(evidence) > 0 {
		if edge.Evidence == nil {
			edge.Evidence = map[string]any{}
		}
		maps.Copy(edge.Evidence, evidence)
	}

	if err := g.store.SaveEdge(ctx, edge); err != nil {
		return nil, err
	}
	return edge, nil
}

// RecomputeCentrality rescores every node from the current edge set and
// refreshes risk scores
func (g *Graph) RecomputeCentrality(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	nodes, err := g.store.Nodes(ctx)
	if err != nil {
		return err
	}
	edges, err := g.store.Edges(ctx)
	if err != nil {
		return err
	}

	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	scores := ComputeCentrality(ids, edges)

	err = g.store.Tx(ctx, func(tx Store) error {
		for i := range nodes {
			n := &nodes[i]
			c := scores[n.ID]
			n.DegreeCentrality = c.Degree
			n.BetweennessCentrality = c.Betweenness
			n.ClosenessCentrality = c.Closeness
			n.EigenvectorCentrality = c.Eigenvector
			n.RiskScore = RiskScore(*n, g.cfg)
			if err := tx.SaveNode(ctx, n); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("recompute centrality: %w", err)
	}

	g.metrics.SetGraphSize(len(nodes), len(edges))
	g.logger.Debug("centrality recomputed", "nodes", len(nodes), "edges", len(edges))
	return nil
}

// Node returns one node by id
func (g *Graph) Node(ctx context.Context, id string) (*model.NetworkNode, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.store.Node(ctx, id)
}

// Lookup resolves a node by id, company or person tax id, or normalized name
// of any type
func (g *Graph) Lookup(ctx context.Context, key string) (*model.NetworkNode, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if n, err := g.store.Node(ctx, key); err == nil {
		return n, nil
	}
	switch d := util.Digits(key); len(d) {
	case 14:
		if n, err := g.store.NodeByCNPJ(ctx, d); err == nil {
			return n, nil
		}
	case 11:
		if n, err := g.store.NodeByCPF(ctx, d); err == nil {
			return n, nil
		}
	}
	name := util.NormalizeName(key)
	for _, t := range []model.EntityType{model.EntityCompany, model.EntityPerson, model.EntityAgency, model.EntityPolitician} {
		if n, err := g.store.NodeByName(ctx, t, name); err == nil {
			return n, nil
		}
	}
	return nil, fmt.Errorf("entity %q: %w", key, model.ErrNotFound)
}

// Refs lists where a node was observed
func (g *Graph) Refs(ctx context.Context, nodeID string) ([]model.InvestigationRef, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.store.Refs(ctx, nodeID)
}

// Nodes lists every node
func (g *Graph) Nodes(ctx context.Context) ([]model.NetworkNode, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.store.Nodes(ctx)
}

// GetNeighborhood returns the nodes within depth hops of entityID on the
// undirected view, with every edge between them
func (g *Graph) GetNeighborhood(ctx context.Context, entityID string, depth int) (*model.Subgraph, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	center, err := g.store.Node(ctx, entityID)
	if err != nil {
		return nil, err
	}
	nodes, err := g.store.Nodes(ctx)
	if err != nil {
		return nil, err
	}
	edges, err := g.store.Edges(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(nodes))
	byID := make(map[string]model.NetworkNode, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
		byID[n.ID] = n
	}
	adj := undirected(ids, edges)

	depth = max(depth, 0)
	dist := map[string]int{center.ID: 0}
	queue := []string{center.ID}
	sub := &model.Subgraph{Center: *center, Depth: depth, Nodes: []model.NetworkNode{}, Edges: []model.NetworkEdge{}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if dist[cur] == depth {
			continue
		}
		for _, n := range sortedNeighbors(adj[cur]) {
			if _, seen := dist[n]; seen {
				continue
			}
			dist[n] = dist[cur] + 1
			sub.Nodes = append(sub.Nodes, byID[n])
			queue = append(queue, n)
		}
	}

	for _, e := range edges {
		_, okSrc := dist[e.SourceID]
		_, okTgt := dist[e.TargetID]
		if okSrc && okTgt {
			sub.Edges = append(sub.Edges, e)
		}
	}
	return sub, nil
}

func sortedNeighbors(set map[string]struct{}) []string {
	return slices.Sorted(maps.Keys(set))
}

// Stats summarizes the graph
func (g *Graph) Stats(ctx context.Context) (*model.GraphStats, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes, err := g.store.Nodes(ctx)
	if err != nil {
		return nil, err
	}
	edges, err := g.store.Edges(ctx)
	if err != nil {
		return nil, err
	}
	networks, err := g.store.Networks(ctx)
	if err != nil {
		return nil, err
	}

	stats := &model.GraphStats{
		Nodes:          len(nodes),
		Edges:          len(edges),
		Networks:       len(networks),
		NodesByType:    map[model.EntityType]int{},
		NetworksByType: map[model.NetworkType]int{},
	}
	for _, n := range nodes {
		stats.NodesByType[n.Type]++
	}
	for _, e := range edges {
		if e.Suspicious {
			stats.SuspiciousEdges++
		}
	}
	for _, n := range networks {
		stats.NetworksByType[n.Type]++
		if n.IsActive {
			stats.ActiveNetworks++
		}
		if n.Reviewed {
			stats.ReviewedNetworks++
		}
	}
	return stats, nil
}
