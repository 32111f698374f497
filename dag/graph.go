package dag

import (
	"bytes"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"qrdag/logger"
	"qrdag/models"
)

// Verifier checks a vertex signature at ingestion. The core never produces or
// interprets signatures itself.
type Verifier interface {
	Verify(v *models.Vertex) bool
}

// Graph is the in-memory DAG store: vertices, parent/child adjacency, edge
// weights, the consensus state table and the tip set. A single coarse RWMutex
// guards all of it; reads run concurrently, writes are exclusive.
type Graph struct {
	mux sync.RWMutex

	vertices map[models.VertexID]*models.Vertex
	states   map[models.VertexID]models.NodeState
	// edges[from][to], from = parent, to = child
	edges    map[models.VertexID]map[models.VertexID]*models.Edge
	children map[models.VertexID]map[models.VertexID]struct{}
	tips     map[models.VertexID]struct{}

	verifier Verifier
}

func NewGraph() *Graph {
	return &Graph{
		vertices: make(map[models.VertexID]*models.Vertex),
		states:   make(map[models.VertexID]models.NodeState),
		edges:    make(map[models.VertexID]map[models.VertexID]*models.Edge),
		children: make(map[models.VertexID]map[models.VertexID]struct{}),
		tips:     make(map[models.VertexID]struct{}),
	}
}

// SetVerifier installs a signature verifier consulted by AddVertex. Call it
// before any vertices are inserted.
func (g *Graph) SetVerifier(v Verifier) {
	g.mux.Lock()
	defer g.mux.Unlock()
	g.verifier = v
}

// AddVertex validates and inserts a vertex. The vertex starts Pending, its
// edges start with weight 1, and every ancestor edge reachable through its
// parents gains one endorsement.
func (g *Graph) AddVertex(v *models.Vertex) error {
	g.mux.Lock()
	defer g.mux.Unlock()

	if _, ok := g.vertices[v.ID]; ok {
		return errors.Wrapf(ErrNodeExists, "vertex %s", v.ID)
	}
	if g.verifier != nil && !g.verifier.Verify(v) {
		return errors.Wrapf(ErrInvalidSignature, "vertex %s", v.ID)
	}
	for _, pid := range v.Parents {
		if pid == v.ID {
			return &CycleError{From: v.ID, To: v.ID}
		}
		if _, ok := g.vertices[pid]; !ok {
			return errors.Wrapf(ErrMissingParent, "vertex %s parent %s", v.ID, pid)
		}
	}
	// A fresh id has no outgoing edges, so the only way the new edges close a
	// loop is if the id is already reachable from one of its parents.
	for _, pid := range v.Parents {
		if g.reachable(pid, v.ID) {
			return &CycleError{From: pid, To: v.ID}
		}
	}

	g.vertices[v.ID] = v
	g.states[v.ID] = models.StatePending
	g.children[v.ID] = make(map[models.VertexID]struct{})

	for _, pid := range v.Parents {
		if g.edges[pid] == nil {
			g.edges[pid] = make(map[models.VertexID]*models.Edge)
		}
		g.edges[pid][v.ID] = &models.Edge{From: pid, To: v.ID, Weight: 1}
		g.children[pid][v.ID] = struct{}{}
		delete(g.tips, pid)
	}
	g.tips[v.ID] = struct{}{}

	g.endorseAncestors(v.Parents)

	logger.Logger.Debug("vertex inserted",
		zap.String("vertex_id", string(v.ID)),
		zap.Int("parents", len(v.Parents)))
	return nil
}

// endorseAncestors bumps the weight of every edge on the ancestor closure of
// the given parents, once per insertion. Weights only ever grow.
func (g *Graph) endorseAncestors(parents []models.VertexID) {
	visited := make(map[models.VertexID]struct{})
	queue := append([]models.VertexID(nil), parents...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, seen := visited[id]; seen {
			continue
		}
		visited[id] = struct{}{}

		vertex, ok := g.vertices[id]
		if !ok {
			continue
		}
		for _, pid := range vertex.Parents {
			if edge, ok := g.edges[pid][id]; ok {
				edge.Weight++
			}
			queue = append(queue, pid)
		}
	}
}

// reachable walks child edges from start looking for target.
func (g *Graph) reachable(start, target models.VertexID) bool {
	if start == target {
		return true
	}
	visited := make(map[models.VertexID]struct{})
	stack := []models.VertexID{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := visited[id]; seen {
			continue
		}
		visited[id] = struct{}{}
		for child := range g.children[id] {
			if child == target {
				return true
			}
			stack = append(stack, child)
		}
	}
	return false
}

// GetVertex returns the stored vertex for id.
func (g *Graph) GetVertex(id models.VertexID) (*models.Vertex, error) {
	g.mux.RLock()
	defer g.mux.RUnlock()

	v, ok := g.vertices[id]
	if !ok {
		return nil, errors.Wrapf(ErrNodeNotFound, "vertex %s", id)
	}
	return v, nil
}

// State returns the consensus state of id.
func (g *Graph) State(id models.VertexID) (models.NodeState, error) {
	g.mux.RLock()
	defer g.mux.RUnlock()

	state, ok := g.states[id]
	if !ok {
		return 0, errors.Wrapf(ErrNodeNotFound, "vertex %s", id)
	}
	return state, nil
}

// UpdateNodeState applies a state transition, enforcing the state machine.
func (g *Graph) UpdateNodeState(id models.VertexID, next models.NodeState) error {
	g.mux.Lock()
	defer g.mux.Unlock()
	return g.updateStateLocked(id, next)
}

func (g *Graph) updateStateLocked(id models.VertexID, next models.NodeState) error {
	current, ok := g.states[id]
	if !ok {
		return errors.Wrapf(ErrNodeNotFound, "vertex %s", id)
	}
	if !current.CanTransition(next) {
		return errors.Wrapf(ErrInvalidStateTransition, "vertex %s: %s -> %s", id, current, next)
	}
	g.states[id] = next
	logger.Logger.Info("vertex state changed",
		zap.String("vertex_id", string(id)),
		zap.String("from", current.String()),
		zap.String("to", next.String()))
	return nil
}

// Finalize promotes id to Final and rejects every sibling in one atomic
// step, so no reader ever observes a half-applied conflict resolution.
// Vertices still Pending pass through Accepted on their way to a terminal
// state. Siblings already terminal are left untouched.
func (g *Graph) Finalize(id models.VertexID, siblings []models.VertexID) error {
	g.mux.Lock()
	defer g.mux.Unlock()

	if g.states[id] == models.StatePending {
		if err := g.updateStateLocked(id, models.StateAccepted); err != nil {
			return err
		}
	}
	if err := g.updateStateLocked(id, models.StateFinal); err != nil {
		return err
	}
	for _, sibling := range siblings {
		state, ok := g.states[sibling]
		if !ok || sibling == id || state.Terminal() {
			continue
		}
		if err := g.updateStateLocked(sibling, models.StateRejected); err != nil {
			return err
		}
	}
	return nil
}

// GetTips returns the vertices with no recorded children, sorted.
func (g *Graph) GetTips() []models.VertexID {
	g.mux.RLock()
	defer g.mux.RUnlock()

	tips := make([]models.VertexID, 0, len(g.tips))
	for id := range g.tips {
		tips = append(tips, id)
	}
	sort.Slice(tips, func(i, j int) bool { return tips[i] < tips[j] })
	return tips
}

// ContainsMessage reports whether any stored vertex carries the payload.
func (g *Graph) ContainsMessage(payload []byte) bool {
	g.mux.RLock()
	defer g.mux.RUnlock()

	for _, v := range g.vertices {
		if bytes.Equal(v.Payload, payload) {
			return true
		}
	}
	return false
}

// Parents returns the parent ids of id.
func (g *Graph) Parents(id models.VertexID) ([]models.VertexID, error) {
	g.mux.RLock()
	defer g.mux.RUnlock()

	v, ok := g.vertices[id]
	if !ok {
		return nil, errors.Wrapf(ErrNodeNotFound, "vertex %s", id)
	}
	return append([]models.VertexID(nil), v.Parents...), nil
}

// Depth counts the distinct descendants of id.
func (g *Graph) Depth(id models.VertexID) int {
	g.mux.RLock()
	defer g.mux.RUnlock()

	visited := make(map[models.VertexID]struct{})
	stack := []models.VertexID{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for child := range g.children[cur] {
			if _, seen := visited[child]; !seen {
				visited[child] = struct{}{}
				stack = append(stack, child)
			}
		}
	}
	return len(visited)
}

// EdgeWeight returns the endorsement counter of the parent->child edge.
func (g *Graph) EdgeWeight(from, to models.VertexID) (int64, error) {
	g.mux.RLock()
	defer g.mux.RUnlock()

	if edge, ok := g.edges[from][to]; ok {
		return edge.Weight, nil
	}
	return 0, errors.Wrapf(ErrMissingChild, "edge %s -> %s", from, to)
}

// CumulativeWeight sums the weights of every edge in the ancestor closure of
// id, plus one for the vertex itself. Tip selection uses it as the
// endorsement strength of a candidate parent.
func (g *Graph) CumulativeWeight(id models.VertexID) int64 {
	g.mux.RLock()
	defer g.mux.RUnlock()

	var total int64 = 1
	visited := make(map[models.VertexID]struct{})
	stack := []models.VertexID{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := visited[cur]; seen {
			continue
		}
		visited[cur] = struct{}{}

		vertex, ok := g.vertices[cur]
		if !ok {
			continue
		}
		for _, pid := range vertex.Parents {
			if edge, ok := g.edges[pid][cur]; ok {
				total += edge.Weight
			}
			stack = append(stack, pid)
		}
	}
	return total
}

// Unresolved returns every vertex that is neither Final nor Rejected, sorted.
func (g *Graph) Unresolved() []models.VertexID {
	g.mux.RLock()
	defer g.mux.RUnlock()

	ids := make([]models.VertexID, 0)
	for id, state := range g.states {
		if !state.Terminal() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of stored vertices.
func (g *Graph) Len() int {
	g.mux.RLock()
	defer g.mux.RUnlock()
	return len(g.vertices)
}
