package network

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/ppiankov/lupa/internal/model"
)

// MemoryStore keeps the graph in process memory. Records are copied on the
// way in and out so callers never share state with the store.
type MemoryStore struct {
	mu sync.RWMutex
	memoryState
}

type memoryState struct {
	nodes   map[string]model.NetworkNode
	byCNPJ  map[string]string
	byCPF   map[string]string
	byName  map[string]string // type|normalized name -> node id
	edges   map[string]model.NetworkEdge
	edgeIDs []string
	nodeIDs []string
	refs    map[string][]model.InvestigationRef // by node id

	networks    map[string]model.SuspiciousNetwork
	networkIDs  []string
	bySignature map[string]string
}

// clone copies the indexes. Stored records are replaced on save, never
// mutated in place, so the records themselves can be shared.
func (m memoryState) clone() memoryState {
	return memoryState{
		nodes:       maps.Clone(m.nodes),
		byCNPJ:      maps.Clone(m.byCNPJ),
		byCPF:       maps.Clone(m.byCPF),
		byName:      maps.Clone(m.byName),
		edges:       maps.Clone(m.edges),
		edgeIDs:     slices.Clone(m.edgeIDs),
		nodeIDs:     slices.Clone(m.nodeIDs),
		refs:        maps.Clone(m.refs),
		networks:    maps.Clone(m.networks),
		networkIDs:  slices.Clone(m.networkIDs),
		bySignature: maps.Clone(m.bySignature),
	}
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{memoryState: memoryState{
		nodes:       make(map[string]model.NetworkNode),
		byCNPJ:      make(map[string]string),
		byCPF:       make(map[string]string),
		byName:      make(map[string]string),
		edges:       make(map[string]model.NetworkEdge),
		refs:        make(map[string][]model.InvestigationRef),
		networks:    make(map[string]model.SuspiciousNetwork),
		bySignature: make(map[string]string),
	}}
}

// Tx runs fn against the store and restores the previous contents when fn
// fails. Readers may see fn's writes before it returns.
func (s *MemoryStore) Tx(ctx context.Context, fn func(Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	saved := s.memoryState.clone()
	s.mu.RUnlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.memoryState = saved
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *MemoryStore) Node(_ context.Context, id string) (*model.NetworkNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.node(id)
}

func (s *MemoryStore) NodeByCNPJ(_ context.Context, cnpj string) (*model.NetworkNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexed(s.byCNPJ, cnpj)
}

func (s *MemoryStore) NodeByCPF(_ context.Context, cpf string) (*model.NetworkNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexed(s.byCPF, cpf)
}

func (s *MemoryStore) NodeByName(_ context.Context, t model.EntityType, normalized string) (*model.NetworkNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexed(s.byName, string(t)+"|"+normalized)
}

func (s *MemoryStore) indexed(index map[string]string, key string) (*model.NetworkNode, error) {
	id, ok := index[key]
	if !ok || key == "" {
		return nil, fmt.Errorf("node %q: %w", key, model.ErrNotFound)
	}
	return s.node(id)
}

func (s *MemoryStore) node(id string) (*model.NetworkNode, error) {
	n, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %s: %w", id, model.ErrNotFound)
	}
	n = cloneNode(n)
	return &n, nil
}

func (s *MemoryStore) SaveNode(_ context.Context, n *model.NetworkNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[n.ID]; !ok {
		s.nodeIDs = append(s.nodeIDs, n.ID)
	}
	s.nodes[n.ID] = cloneNode(*n)
	if n.CNPJ != "" {
		s.byCNPJ[n.CNPJ] = n.ID
	}
	if n.CPF != "" {
		s.byCPF[n.CPF] = n.ID
	}
	if n.NormalizedName != "" {
		key := string(n.Type) + "|" + n.NormalizedName
		if _, taken := s.byName[key]; !taken {
			s.byName[key] = n.ID
		}
	}
	return nil
}

func (s *MemoryStore) Nodes(context.Context) ([]model.NetworkNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.NetworkNode, 0, len(s.nodeIDs))
	for _, id := range s.nodeIDs {
		out = append(out, cloneNode(s.nodes[id]))
	}
	return out, nil
}

func (s *MemoryStore) EdgeBetween(_ context.Context, sourceID, targetID string, t model.RelationshipType) (*model.NetworkEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.edges[edgeKey(sourceID, targetID, t)]
	if !ok {
		return nil, fmt.Errorf("edge %s %s->%s: %w", t, sourceID, targetID, model.ErrNotFound)
	}
	e = cloneEdge(e)
	return &e, nil
}

func (s *MemoryStore) SaveEdge(_ context.Context, e *model.NetworkEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := edgeKey(e.SourceID, e.TargetID, e.Type)
	if _, ok := s.edges[key]; !ok {
		s.edgeIDs = append(s.edgeIDs, key)
	}
	s.edges[key] = cloneEdge(*e)
	return nil
}

func (s *MemoryStore) Edges(context.Context) ([]model.NetworkEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.NetworkEdge, 0, len(s.edgeIDs))
	for _, key := range s.edgeIDs {
		out = append(out, cloneEdge(s.edges[key]))
	}
	return out, nil
}

func (s *MemoryStore) AddRef(_ context.Context, ref model.InvestigationRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs[ref.NodeID] = append(s.refs[ref.NodeID], ref)
	return nil
}

func (s *MemoryStore) Refs(_ context.Context, nodeID string) ([]model.InvestigationRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.refs[nodeID]), nil
}

func (s *MemoryStore) Network(_ context.Context, id string) (*model.SuspiciousNetwork, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.network(id)
}

func (s *MemoryStore) NetworkBySignature(_ context.Context, signature string) (*model.SuspiciousNetwork, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.bySignature[signature]
	if !ok {
		return nil, fmt.Errorf("network %q: %w", signature, model.ErrNotFound)
	}
	return s.network(id)
}

func (s *MemoryStore) network(id string) (*model.SuspiciousNetwork, error) {
	n, ok := s.networks[id]
	if !ok {
		return nil, fmt.Errorf("network %s: %w", id, model.ErrNotFound)
	}
	n = cloneNetwork(n)
	return &n, nil
}

func (s *MemoryStore) SaveNetwork(_ context.Context, n *model.SuspiciousNetwork) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.networks[n.ID]; !ok {
		s.networkIDs = append(s.networkIDs, n.ID)
	}
	s.networks[n.ID] = cloneNetwork(*n)
	s.bySignature[n.Signature] = n.ID
	return nil
}

func (s *MemoryStore) Networks(context.Context) ([]model.SuspiciousNetwork, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.SuspiciousNetwork, 0, len(s.networkIDs))
	for _, id := range s.networkIDs {
		out = append(out, cloneNetwork(s.networks[id]))
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

func cloneNode(n model.NetworkNode) model.NetworkNode {
	n.Attributes = maps.Clone(n.Attributes)
	n.Investigations = slices.Clone(n.Investigations)
	return n
}

func cloneEdge(e model.NetworkEdge) model.NetworkEdge {
	e.Investigations = slices.Clone(e.Investigations)
	e.SuspiciousReasons = slices.Clone(e.SuspiciousReasons)
	e.Evidence = maps.Clone(e.Evidence)
	return e
}

func cloneNetwork(n model.SuspiciousNetwork) model.SuspiciousNetwork {
	n.EntityIDs = slices.Clone(n.EntityIDs)
	if n.ReviewedAt != nil {
		t := *n.ReviewedAt
		n.ReviewedAt = &t
	}
	return n
}
