package dag

import (
	"sort"

	"qrdag/models"
)

// GetTotalOrder linearizes the finalized subgraph: a topological sort over
// Final vertices where parents always precede children and concurrent
// vertices are ordered by (timestamp, id). Replicas holding the same
// finalized set produce byte-identical sequences.
func (g *Graph) GetTotalOrder() ([]models.VertexID, error) {
	g.mux.RLock()
	defer g.mux.RUnlock()

	final := make(map[models.VertexID]*models.Vertex)
	for id, state := range g.states {
		if state == models.StateFinal {
			final[id] = g.vertices[id]
		}
	}

	// Kahn's algorithm restricted to the finalized set. Parents of a Final
	// vertex are Final themselves (the engine enforces that ordering), so a
	// non-final parent never contributes to a vertex's indegree.
	indegree := make(map[models.VertexID]int, len(final))
	for id, v := range final {
		for _, pid := range v.Parents {
			if _, ok := final[pid]; ok {
				indegree[id]++
			}
		}
	}

	less := func(a, b models.VertexID) bool {
		va, vb := final[a], final[b]
		if va.Timestamp != vb.Timestamp {
			return va.Timestamp < vb.Timestamp
		}
		return a < b
	}

	ready := make([]models.VertexID, 0, len(final))
	for id := range final {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return less(ready[i], ready[j]) })

	order := make([]models.VertexID, 0, len(final))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		changed := false
		for child := range g.children[id] {
			if _, ok := final[child]; !ok {
				continue
			}
			indegree[child]--
			if indegree[child] == 0 {
				ready = append(ready, child)
				changed = true
			}
		}
		if changed {
			sort.Slice(ready, func(i, j int) bool { return less(ready[i], ready[j]) })
		}
	}
	return order, nil
}
