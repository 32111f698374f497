package consensus

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// throughputWindow is the trailing window over which CurrentThroughput is
// measured.
const throughputWindow = 10 * time.Second

// ConsensusMetrics is a point-in-time snapshot of engine activity.
type ConsensusMetrics struct {
	// TotalVerticesProcessed counts completed voting rounds.
	TotalVerticesProcessed uint64 `json:"total_vertices_processed"`
	// CurrentThroughput is rounds per second over the trailing window.
	CurrentThroughput float64 `json:"current_throughput"`
}

// metrics tracks engine counters and mirrors them to prometheus when a
// registerer is attached.
type metrics struct {
	mu        sync.Mutex
	processed uint64
	window    []time.Time

	rounds     prometheus.Counter
	successful prometheus.Counter
	failed     prometheus.Counter
	finalized  prometheus.Counter
	rejected   prometheus.Counter
}

func newMetrics() *metrics {
	return &metrics{
		rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rounds_total",
			Help: "Number of completed voting rounds",
		}),
		successful: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "polls_successful",
			Help: "Number of rounds that met the alpha threshold",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "polls_failed",
			Help: "Number of rounds that missed the alpha threshold",
		}),
		finalized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vertices_finalized",
			Help: "Number of vertices promoted to Final",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vertices_rejected",
			Help: "Number of vertices rejected by conflict resolution",
		}),
	}
}

// register attaches the counters to reg under the given namespace.
func (m *metrics) register(namespace string, reg prometheus.Registerer) error {
	wrapped := prometheus.WrapRegistererWithPrefix(namespace+"_", reg)
	for _, c := range []prometheus.Collector{
		m.rounds, m.successful, m.failed, m.finalized, m.rejected,
	} {
		if err := wrapped.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *metrics) recordRound(successful bool) {
	now := time.Now()

	m.mu.Lock()
	m.processed++
	m.window = append(m.window, now)
	m.pruneLocked(now)
	m.mu.Unlock()

	m.rounds.Inc()
	if successful {
		m.successful.Inc()
	} else {
		m.failed.Inc()
	}
}

func (m *metrics) recordFinalized(rejectedSiblings int) {
	m.finalized.Inc()
	m.rejected.Add(float64(rejectedSiblings))
}

func (m *metrics) pruneLocked(now time.Time) {
	cutoff := now.Add(-throughputWindow)
	firstLive := 0
	for firstLive < len(m.window) && m.window[firstLive].Before(cutoff) {
		firstLive++
	}
	m.window = m.window[firstLive:]
}

func (m *metrics) snapshot() ConsensusMetrics {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked(now)
	return ConsensusMetrics{
		TotalVerticesProcessed: m.processed,
		CurrentThroughput:      float64(len(m.window)) / throughputWindow.Seconds(),
	}
}
