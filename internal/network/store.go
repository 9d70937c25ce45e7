// Package network keeps the persistent, cross-investigation graph of
// entities and relationships, computes centrality over it and flags
// suspicious networks.
package network

import (
	"context"

	"github.com/ppiankov/lupa/internal/model"
)

// Store persists graph records. Lookups of missing records return an error
// wrapping model.ErrNotFound. Graph serializes all writes, so a store only
// needs to be safe for concurrent reads alongside a single writer.
type Store interface {
	Node(ctx context.Context, id string) (*model.NetworkNode, error)
	NodeByCNPJ(ctx context.Context, cnpj string) (*model.NetworkNode, error)
	NodeByCPF(ctx context.Context, cpf string) (*model.NetworkNode, error)
	NodeByName(ctx context.Context, t model.EntityType, normalized string) (*model.NetworkNode, error)
	SaveNode(ctx context.Context, n *model.NetworkNode) error
	Nodes(ctx context.Context) ([]model.NetworkNode, error)

	EdgeBetween(ctx context.Context, sourceID, targetID string, t model.RelationshipType) (*model.NetworkEdge, error)
	SaveEdge(ctx context.Context, e *model.NetworkEdge) error
	Edges(ctx context.Context) ([]model.NetworkEdge, error)

	AddRef(ctx context.Context, ref model.InvestigationRef) error
	Refs(ctx context.Context, nodeID string) ([]model.InvestigationRef, error)

	Network(ctx context.Context, id string) (*model.SuspiciousNetwork, error)
	NetworkBySignature(ctx context.Context, signature string) (*model.SuspiciousNetwork, error)
	SaveNetwork(ctx context.Context, n *model.SuspiciousNetwork) error
	Networks(ctx context.Context) ([]model.SuspiciousNetwork, error)

	// Tx runs fn so that its writes are applied together or not at all. fn
	// must use the Store it is given, not the receiver.
	Tx(ctx context.Context, fn func(Store) error) error

	Close() error
}

func edgeKey(sourceID, targetID string, t model.RelationshipType) string {
	return string(t) + "|" + sourceID + "|" + targetID
}
