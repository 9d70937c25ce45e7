package network

import "github.com/ppiankov/lupa/internal/model"

// Centrality holds the four scores computed for one node
type Centrality struct {
	Degree      float64
	Betweenness float64
	Closeness   float64
	Eigenvector float64
}

// adjacency is the undirected view of the edge set: direction and edge type are
// dropped, parallel edges collapse, self loops and dangling endpoints are ignored.
type adjacency map[string]map[string]struct{}

func undirected(nodeIDs []string, edges []model.NetworkEdge) adjacency {
	adj := make(adjacency, len(nodeIDs))
	for _, id := range nodeIDs {
		adj[id] = make(map[string]struct{})
	}
	for _, e := range edges {
		if e.SourceID == e.TargetID {
			continue
		}
		src, okSrc := adj[e.SourceID]
		tgt, okTgt := adj[e.TargetID]
		if !okSrc || !okTgt {
			continue
		}
		src[e.TargetID] = struct{}{}
		tgt[e.SourceID] = struct{}{}
	}
	return adj
}

func (a adjacency) connected(u, v string) bool {
	_, ok := a[u][v]
	return ok
}

// ComputeCentrality scores every node from the full edge set.
//
//   - degree: number of distinct neighbors
//   - betweenness: share of neighbor pairs with no edge between them
//   - closeness: inverse of the mean BFS distance to reachable nodes
//   - eigenvector: mean neighbor degree divided by the node count
//
// These are approximations; the detector thresholds are tuned against them.
// Results depend only on the final edge set, not on insertion order.
func ComputeCentrality(nodeIDs []string, edges []model.NetworkEdge) map[string]Centrality {
	adj := undirected(nodeIDs, edges)
	total := float64(len(adj))

	out := make(map[string]Centrality, len(adj))
	for id, neighbors := range adj {
		c := Centrality{Degree: float64(len(neighbors))}
		if len(neighbors) == 0 {
			out[id] = c
			continue
		}

		c.Betweenness = bridging(adj, neighbors)
		c.Closeness = closeness(adj, id)

		var sum int
		for n := range neighbors {
			sum += len(adj[n])
		}
		c.Eigenvector = float64(sum) / float64(len(neighbors)) / total

		out[id] = c
	}
	return out
}

func bridging(adj adjacency, neighbors map[string]struct{}) float64 {
	if len(neighbors) < 2 {
		return 0
	}
	ids := make([]string, 0, len(neighbors))
	for n := range neighbors {
		ids = append(ids, n)
	}

	pairs, open := 0, 0
	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			pairs++
			if !adj.connected(ids[i], ids[j]) {
				open++
			}
		}
	}
	return float64(open) / float64(pairs)
}

func closeness(adj adjacency, start string) float64 {
	dist := map[string]int{start: 0}
	queue := []string{start}
	sum, reached := 0, 0

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for n := range adj[cur] {
			if _, seen := dist[n]; seen {
				continue
			}
			dist[n] = dist[cur] + 1
			sum += dist[n]
			reached++
			queue = append(queue, n)
		}
	}
	if reached == 0 {
		return 0
	}
	return float64(reached) / float64(sum)
}

// RiskScore grades a node from 0 to 10: 4 for a sanction, 0.5 per anomalous
// contract (up to 3), 1.5 for concentration and up to 1.5 for bridging position.
func RiskScore(n model.NetworkNode, cfg model.DetectorConfig) float64 {
	score := 0.0
	if n.Sanctioned {
		score += 4
	}
	score += min(0.5*float64(n.TotalAnomalies), 3)
	if concentrated(n, cfg) {
		score += 1.5
	}
	score += min(1.5*n.BetweennessCentrality, 1.5)
	return min(score, 10)
}

func concentrated(n model.NetworkNode, cfg model.DetectorConfig) bool {
	return n.TimesSeen >= cfg.ConcentrationMinSeen && n.TotalContractValue > cfg.HighValueThreshold
}
