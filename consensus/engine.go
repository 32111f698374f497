package consensus

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"qrdag/dag"
	"qrdag/models"
)

// Protocol errors. Structural problems are caught at insertion and never
// reach voting; these cover the round itself.
var (
	// ErrInvalidVertex means the queried id is not in the graph.
	ErrInvalidVertex = errors.New("invalid vertex reference")
	// ErrValidation means the vertex is structurally unsound. It can only
	// occur when insertion validation was bypassed.
	ErrValidation = errors.New("vertex validation failed")
)

// ConfidenceRecord is the per-vertex voting state.
type ConfidenceRecord struct {
	// Chit is the binary outcome of the most recent round.
	Chit bool
	// Confidence counts successful rounds. It is never decremented.
	Confidence uint64
	// ConsecutiveSuccesses counts the current streak of successful rounds
	// and resets to zero on any failed round.
	ConsecutiveSuccesses uint64
}

// Engine drives QR-Avalanche voting over a graph. Rounds for different
// vertices run as independent tasks on a worker pool; per-vertex bookkeeping
// is applied atomically so partial updates are never observable.
type Engine struct {
	cfg       Config
	graph     *dag.Graph
	conflicts *dag.ConflictRegistry
	sampler   PeerSampler
	querier   Querier
	log       *zap.Logger

	mu      sync.Mutex
	records map[models.VertexID]*ConfidenceRecord

	inFlightMu sync.Mutex
	inFlight   map[models.VertexID]struct{}

	subsMu sync.RWMutex
	subs   []Subscriber

	metrics *metrics
	pool    *workerPool
}

// NewEngine validates the configuration and wires the collaborators. The
// sampler and querier are injected: the engine never talks to the network
// itself.
func NewEngine(cfg Config, graph *dag.Graph, conflicts *dag.ConflictRegistry, sampler PeerSampler, querier Querier, log *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "consensus config")
	}
	if log == nil {
		log = zap.NewNop()
	}
	pool, err := newWorkerPool(defaultWorkers)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:       cfg,
		graph:     graph,
		conflicts: conflicts,
		sampler:   sampler,
		querier:   querier,
		log:       log,
		records:   make(map[models.VertexID]*ConfidenceRecord),
		inFlight:  make(map[models.VertexID]struct{}),
		metrics:   newMetrics(),
		pool:      pool,
	}, nil
}

const defaultWorkers = 8

// Subscribe registers a terminal-state subscriber.
func (e *Engine) Subscribe(sub Subscriber) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	e.subs = append(e.subs, sub)
}

// RegisterPrometheus attaches the engine counters to reg.
func (e *Engine) RegisterPrometheus(namespace string, reg prometheus.Registerer) error {
	return e.metrics.register(namespace, reg)
}

// ProcessVertex runs one voting round for id and returns its consensus
// status afterwards. Peers that fail to answer are abstentions: they are
// excluded from both sides of the alpha fraction and never surface as an
// error. Zero available participants makes the round a no-op.
func (e *Engine) ProcessVertex(ctx context.Context, id models.VertexID) (models.NodeState, error) {
	state, err := e.graph.State(id)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidVertex, "vertex %s", id)
	}
	if state.Terminal() {
		return state, nil
	}

	// Insertion validates structure, so this only trips when AddVertex was
	// bypassed. The round is abandoned; the rest of the conflict set stays
	// votable.
	vertex, err := e.graph.GetVertex(id)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidVertex, "vertex %s", id)
	}
	for _, pid := range vertex.Parents {
		if pid == id {
			return 0, errors.Wrapf(ErrValidation, "vertex %s references itself", id)
		}
		if _, err := e.graph.State(pid); err != nil {
			return 0, errors.Wrapf(ErrValidation, "vertex %s missing parent %s", id, pid)
		}
	}

	conflictSet := e.conflicts.ConflictSet(id)

	participants := e.sampler.Sample(e.cfg.QuerySampleSize)
	if len(participants) == 0 {
		return state, nil
	}

	votesFor, responses := e.poll(ctx, participants, id, conflictSet)
	if responses == 0 {
		// Everyone abstained: nothing to learn this round, counters stay
		// untouched and the round is retried later.
		return e.currentState(id)
	}

	successful := float64(votesFor)/float64(responses) >= e.cfg.Alpha

	e.mu.Lock()
	rec := e.record(id)
	if successful {
		rec.Chit = true
		rec.Confidence++
		rec.ConsecutiveSuccesses++
	} else {
		rec.Chit = false
		rec.ConsecutiveSuccesses = 0
	}
	promote := successful && e.eligibleLocked(id, rec, conflictSet)
	e.mu.Unlock()

	e.metrics.recordRound(successful)

	e.log.Debug("voting round complete",
		zap.String("vertex_id", string(id)),
		zap.Int("votes_for", votesFor),
		zap.Int("responses", responses),
		zap.Bool("successful", successful))

	if promote {
		return e.promote(id, conflictSet)
	}
	return e.currentState(id)
}

// poll queries every sampled participant. Query errors and timeouts count as
// abstentions.
func (e *Engine) poll(ctx context.Context, participants []ParticipantID, id models.VertexID, conflictSet []models.VertexID) (votesFor, responses int) {
	for _, p := range participants {
		if ctx.Err() != nil {
			// Round deadline hit: remaining peers abstain.
			break
		}
		vote, err := e.querier.Query(ctx, p, id, conflictSet)
		if err != nil {
			e.log.Debug("participant abstained",
				zap.String("participant", string(p)),
				zap.String("vertex_id", string(id)),
				zap.Error(err))
			continue
		}
		responses++
		if vote.Preferred == id {
			votesFor++
		}
	}
	return votesFor, responses
}

// record returns the confidence record for id, creating it on first use.
// Callers hold e.mu.
func (e *Engine) record(id models.VertexID) *ConfidenceRecord {
	rec, ok := e.records[id]
	if !ok {
		rec = &ConfidenceRecord{}
		e.records[id] = rec
	}
	return rec
}

// eligibleLocked checks the finality conditions that depend on voting state:
// the streak has reached beta and the confidence strictly exceeds every
// other member of the conflict set. Callers hold e.mu.
func (e *Engine) eligibleLocked(id models.VertexID, rec *ConfidenceRecord, conflictSet []models.VertexID) bool {
	if rec.ConsecutiveSuccesses < e.cfg.Beta {
		return false
	}
	for _, member := range conflictSet {
		if member == id {
			continue
		}
		if other, ok := e.records[member]; ok && other.Confidence >= rec.Confidence {
			return false
		}
	}
	return true
}

// promote finalizes id if the structural safety margins hold: enough
// descendants and every parent already Final. When they do not hold yet the
// vertex parks in Accepted and keeps voting.
func (e *Engine) promote(id models.VertexID, conflictSet []models.VertexID) (models.NodeState, error) {
	if e.graph.Depth(id) < e.cfg.ConfirmationDepth || !e.parentsFinal(id) {
		state, err := e.currentState(id)
		if err != nil {
			return 0, err
		}
		if state == models.StatePending {
			if err := e.graph.UpdateNodeState(id, models.StateAccepted); err != nil {
				return 0, errors.Wrapf(err, "accept vertex %s", id)
			}
			return models.StateAccepted, nil
		}
		return state, nil
	}

	// Snapshot which siblings will flip to Rejected before the atomic
	// transition, so subscribers are notified exactly once.
	rejected := make([]models.VertexID, 0, len(conflictSet)-1)
	for _, sibling := range conflictSet {
		if sibling == id {
			continue
		}
		if state, err := e.graph.State(sibling); err == nil && !state.Terminal() {
			rejected = append(rejected, sibling)
		}
	}

	if err := e.graph.Finalize(id, conflictSet); err != nil {
		return 0, errors.Wrapf(err, "finalize vertex %s", id)
	}
	e.metrics.recordFinalized(len(rejected))

	e.log.Info("vertex finalized",
		zap.String("vertex_id", string(id)),
		zap.Int("rejected_siblings", len(rejected)))

	e.subsMu.RLock()
	subs := append([]Subscriber(nil), e.subs...)
	e.subsMu.RUnlock()
	for _, sub := range subs {
		sub.VertexFinalized(id)
		for _, sibling := range rejected {
			sub.VertexRejected(sibling)
		}
	}
	return models.StateFinal, nil
}

func (e *Engine) parentsFinal(id models.VertexID) bool {
	parents, err := e.graph.Parents(id)
	if err != nil {
		return false
	}
	for _, pid := range parents {
		state, err := e.graph.State(pid)
		if err != nil || state != models.StateFinal {
			return false
		}
	}
	return true
}

func (e *Engine) currentState(id models.VertexID) (models.NodeState, error) {
	state, err := e.graph.State(id)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidVertex, "vertex %s", id)
	}
	return state, nil
}

// Record returns a copy of the confidence record for id.
func (e *Engine) Record(id models.VertexID) (ConfidenceRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.records[id]
	if !ok {
		return ConfidenceRecord{}, false
	}
	return *rec, true
}

// GetMetrics returns a snapshot of the engine counters.
func (e *Engine) GetMetrics() ConsensusMetrics {
	return e.metrics.snapshot()
}

// Run schedules voting rounds until ctx is cancelled. Each tick submits one
// round per unresolved vertex to the worker pool; a round is bounded by
// FinalityTimeout and, if it times out, simply runs again on a later tick.
// Run returns once in-flight rounds have drained.
func (e *Engine) Run(ctx context.Context) {
	e.pool.Start()
	ticker := time.NewTicker(e.cfg.FinalityTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.pool.Shutdown()
			return
		case <-ticker.C:
			for _, id := range e.graph.Unresolved() {
				e.schedule(ctx, id)
			}
		}
	}
}

// schedule submits a round for id unless one is already in flight.
func (e *Engine) schedule(ctx context.Context, id models.VertexID) {
	e.inFlightMu.Lock()
	if _, busy := e.inFlight[id]; busy {
		e.inFlightMu.Unlock()
		return
	}
	e.inFlight[id] = struct{}{}
	e.inFlightMu.Unlock()

	e.pool.Submit(func() {
		defer func() {
			e.inFlightMu.Lock()
			delete(e.inFlight, id)
			e.inFlightMu.Unlock()
		}()

		roundCtx, cancel := context.WithTimeout(ctx, e.cfg.FinalityTimeout)
		defer cancel()
		if _, err := e.ProcessVertex(roundCtx, id); err != nil {
			e.log.Warn("voting round failed",
				zap.String("vertex_id", string(id)),
				zap.Error(err))
		}
	})
}
