// Package entity builds the session entity graph of one investigation from
// the payloads its stages returned.
package entity

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/lupa/internal/model"
	"github.com/ppiankov/lupa/internal/util"
)

// AttrName is the index key of entity names
const AttrName = model.KeyName

// searchable lists the attributes FindByAttribute can answer from an index
var searchable = []string{model.KeyCNPJ, model.KeyCPF, AttrName, model.KeyContractID}

// Graph holds the entities and relationships of one investigation. It must
// not be shared across investigations.
type Graph struct {
	mu sync.RWMutex

	entities map[string]*model.Entity
	order    []string

	byType map[model.EntityType][]string
	byAttr map[string]map[string][]string // attribute -> normalized value -> entity ids

	relationships []model.EntityRelationship
	relIndex      map[string]bool
	outgoing      map[string][]int // entity id -> indexes into relationships

	recognizers []Recognizer
	now         func() time.Time
}

// NewGraph creates an empty graph with the default recognizers
func NewGraph() *Graph {
	g := &Graph{
		entities: make(map[string]*model.Entity),
		byType:   make(map[model.EntityType][]string),
		byAttr:   make(map[string]map[string][]string),
		relIndex: make(map[string]bool),
		outgoing: make(map[string][]int),
		now:      time.Now,
	}
	g.recognizers = DefaultRecognizers()
	return g
}

// ID derives the deterministic entity id from its type and identifying key
// (tax id, contract number or name)
func ID(t model.EntityType, key string) string {
	key = util.NormalizeName(key)
	return string(t) + ":" + strings.ReplaceAll(key, " ", "-")
}

// AddEntity stores e. Adding an id that already exists is a no-op and
// returns false; conflicting records are not merged.
func (g *Graph) AddEntity(e model.Entity) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addEntity(e)
}

func (g *Graph) addEntity(e model.Entity) bool {
	if e.ID == "" {
		return false
	}
	if _, exists := g.entities[e.ID]; exists {
		return false
	}
	if e.DiscoveredAt.IsZero() {
		e.DiscoveredAt = g.now().UTC()
	}

	g.entities[e.ID] = &e
	g.order = append(g.order, e.ID)
	g.byType[e.Type] = append(g.byType[e.Type], e.ID)

	for _, attr := range searchable {
		value := e.Attr(attr)
		if attr == AttrName && value == "" {
			value = e.Name
		}
		g.index(attr, value, e.ID)
	}
	return true
}

func (g *Graph) index(attr, value, id string) {
	key := indexKey(attr, value)
	if key == "" {
		return
	}
	if g.byAttr[attr] == nil {
		g.byAttr[attr] = make(map[string][]string)
	}
	if !slices.Contains(g.byAttr[attr][key], id) {
		g.byAttr[attr][key] = append(g.byAttr[attr][key], id)
	}
}

func indexKey(attr, value string) string {
	switch attr {
	case model.KeyCNPJ, model.KeyCPF:
		return util.Digits(value)
	default:
		return util.NormalizeName(value)
	}
}

// Annotate sets an attribute on an existing entity. Indexed attributes are
// indexed under the new value as well.
func (g *Graph) Annotate(id, key string, value any) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entities[id]
	if !ok {
		return false
	}
	if e.Attributes == nil {
		e.Attributes = make(map[string]any)
	}
	e.Attributes[key] = value
	for _, attr := range searchable {
		if attr == key {
			g.index(attr, e.Attr(key), id)
		}
	}
	return true
}

// AddRelationship stores r between two known entities. Bidirectional
// relationships are stored as two directed edges. Duplicates (same source,
// target and type) are ignored.
func (g *Graph) AddRelationship(r model.EntityRelationship) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addRelationship(r)
}

func (g *Graph) addRelationship(r model.EntityRelationship) error {
	if _, ok := g.entities[r.SourceID]; !ok {
		return fmt.Errorf("%w: entity %s", model.ErrNotFound, r.SourceID)
	}
	if _, ok := g.entities[r.TargetID]; !ok {
		return fmt.Errorf("%w: entity %s", model.ErrNotFound, r.TargetID)
	}

	g.addEdge(r)
	if r.Bidirectional {
		reverse := r
		reverse.SourceID, reverse.TargetID = r.TargetID, r.SourceID
		reverse.ID = ""
		g.addEdge(reverse)
	}
	return nil
}

func (g *Graph) addEdge(r model.EntityRelationship) {
	key := string(r.Type) + "|" + r.SourceID + "|" + r.TargetID
	if g.relIndex[key] {
		return
	}
	if r.ID == "" || g.relIndex["id|"+r.ID] {
		r.ID = fmt.Sprintf("%s:%s>%s", r.Type, r.SourceID, r.TargetID)
	}
	g.relIndex[key] = true
	g.relIndex["id|"+r.ID] = true
	g.relationships = append(g.relationships, r)
	g.outgoing[r.SourceID] = append(g.outgoing[r.SourceID], len(g.relationships)-1)
}

// Get returns the entity with the given id
func (g *Graph) Get(id string) (model.Entity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.entities[id]
	if !ok {
		return model.Entity{}, false
	}
	return *e, true
}

// GetByType returns entities of type t in insertion order
func (g *Graph) GetByType(t model.EntityType) []model.Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.collect(g.byType[t])
}

// FindByAttribute returns entities whose attribute matches value. Tax ids
// compare by digits, other attributes by normalized text. Only the indexed
// attributes (cnpj, cpf, nome, numero_contrato) are searchable.
func (g *Graph) FindByAttribute(name, value string) []model.Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	idx, ok := g.byAttr[name]
	if !ok {
		return nil
	}
	return g.collect(idx[indexKey(name, value)])
}

// ConnectedTo walks outgoing edges breadth-first from id up to maxDepth hops,
// following only relType edges when it is non-empty. The start entity is not
// included; each entity appears once.
func (g *Graph) ConnectedTo(id string, relType model.RelationshipType, maxDepth int) []model.Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.entities[id]; !ok || maxDepth <= 0 {
		return nil
	}

	visited := map[string]bool{id: true}
	frontier := []string{id}
	var found []string
	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, cur := range frontier {
			for _, i := range g.outgoing[cur] {
				r := g.relationships[i]
				if relType != "" && r.Type != relType {
					continue
				}
				if visited[r.TargetID] {
					continue
				}
				visited[r.TargetID] = true
				found = append(found, r.TargetID)
				next = append(next, r.TargetID)
			}
		}
		frontier = next
	}
	return g.collect(found)
}

// Entities returns every entity in insertion order
func (g *Graph) Entities() []model.Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.collect(g.order)
}

// Relationships returns every directed edge in insertion order
func (g *Graph) Relationships() []model.EntityRelationship {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]model.EntityRelationship, len(g.relationships))
	copy(out, g.relationships)
	return out
}

// Len returns the number of entities
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}

func (g *Graph) collect(ids []string) []model.Entity {
	out := make([]model.Entity, 0, len(ids))
	for _, id := range ids {
		out = append(out, *g.entities[id])
	}
	return out
}
