// Package qrdag assembles the DAG store, tip selection and the QR-Avalanche
// engine behind one application-facing facade.
package qrdag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"qrdag/consensus"
	"qrdag/dag"
	"qrdag/models"
)

// defaultParentCount is how many parents AddMessage attaches to a new vertex
// when the graph already has tips.
const defaultParentCount = 2

// QrDag is the public surface of the consensus core. Networking (sampler,
// querier) and signature verification are injected; the facade owns the
// graph, the tip selector and the engine.
type QrDag struct {
	graph     *dag.Graph
	conflicts *dag.ConflictRegistry
	selector  dag.Selector
	engine    *consensus.Engine
	log       *zap.Logger
}

// New wires a consensus core from its configuration and network
// collaborators.
func New(cfg consensus.Config, sampler consensus.PeerSampler, querier consensus.Querier, log *zap.Logger) (*QrDag, error) {
	if log == nil {
		log = zap.NewNop()
	}
	graph := dag.NewGraph()
	conflicts := dag.NewConflictRegistry()
	engine, err := consensus.NewEngine(cfg, graph, conflicts, sampler, querier, log)
	if err != nil {
		return nil, err
	}
	return &QrDag{
		graph:     graph,
		conflicts: conflicts,
		selector:  dag.NewWeightedSelector(graph, conflicts),
		engine:    engine,
		log:       log,
	}, nil
}

// SetVerifier installs a signature verifier consulted at insertion. Call it
// before adding vertices.
func (q *QrDag) SetVerifier(v dag.Verifier) {
	q.graph.SetVerifier(v)
}

// Subscribe registers a subscriber for finality and rejection events.
func (q *QrDag) Subscribe(sub consensus.Subscriber) {
	q.engine.Subscribe(sub)
}

// AddVertex validates and inserts a caller-built vertex.
func (q *QrDag) AddVertex(v *models.Vertex) error {
	return errors.Wrapf(q.graph.AddVertex(v), "add vertex %s", v.ID)
}

// AddMessage wraps a payload in a vertex with auto-selected parents and
// inserts it. The vertex id is derived from the payload, so resubmitting the
// same payload yields ErrNodeExists.
func (q *QrDag) AddMessage(payload []byte) (models.VertexID, error) {
	sum := sha256.Sum256(payload)
	id := models.VertexID(hex.EncodeToString(sum[:]))

	parents, err := q.selector.SelectParents(defaultParentCount)
	if err != nil && !errors.Is(err, dag.ErrNoTips) {
		return "", errors.Wrap(err, "select parents")
	}

	vertex := models.NewVertex(id, payload, parents)
	if err := q.graph.AddVertex(vertex); err != nil {
		return "", errors.Wrapf(err, "add message %s", id)
	}
	return id, nil
}

// ContainsMessage reports whether a vertex with the payload is stored.
func (q *QrDag) ContainsMessage(payload []byte) bool {
	return q.graph.ContainsMessage(payload)
}

// GetConfidence returns the consensus state of id, or false if the vertex is
// unknown.
func (q *QrDag) GetConfidence(id models.VertexID) (models.NodeState, bool) {
	state, err := q.graph.State(id)
	if err != nil {
		return 0, false
	}
	return state, true
}

// GetTips returns the current tip set.
func (q *QrDag) GetTips() []models.VertexID {
	return q.graph.GetTips()
}

// GetTotalOrder returns the deterministic linearization of the finalized
// subgraph.
func (q *QrDag) GetTotalOrder() ([]models.VertexID, error) {
	return q.graph.GetTotalOrder()
}

// GetMetrics returns a snapshot of the engine counters.
func (q *QrDag) GetMetrics() consensus.ConsensusMetrics {
	return q.engine.GetMetrics()
}

// RegisterConflict declares id a member of the conflict set named by slot.
func (q *QrDag) RegisterConflict(slot string, id models.VertexID) {
	q.conflicts.Register(slot, id)
}

// ProcessVertex runs a single voting round for id.
func (q *QrDag) ProcessVertex(ctx context.Context, id models.VertexID) (models.NodeState, error) {
	return q.engine.ProcessVertex(ctx, id)
}

// Run schedules voting rounds until ctx is cancelled.
func (q *QrDag) Run(ctx context.Context) {
	q.engine.Run(ctx)
}

// Engine exposes the underlying engine for prometheus registration.
func (q *QrDag) Engine() *consensus.Engine {
	return q.engine
}
