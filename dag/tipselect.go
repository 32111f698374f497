package dag

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"qrdag/models"
)

// Selector chooses parents for a new vertex. Implementations are swappable;
// the graph never depends on a concrete strategy.
type Selector interface {
	SelectParents(k int) ([]models.VertexID, error)
}

// WeightedSelector picks tips with probability proportional to their
// cumulative edge weight, so heavily endorsed subtrees attract new children.
// It never returns two tips from the same conflict set: if no non-conflicting
// set of the requested size exists it fails rather than hand back an invalid
// set.
type WeightedSelector struct {
	graph     *Graph
	conflicts *ConflictRegistry

	mu  sync.Mutex
	rng *rand.Rand
}

func NewWeightedSelector(g *Graph, conflicts *ConflictRegistry) *WeightedSelector {
	return &WeightedSelector{
		graph:     g,
		conflicts: conflicts,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

var _ Selector = (*WeightedSelector)(nil)

// SelectParents returns up to k tips, one per conflict set, weighted by
// endorsement. Fewer than k tips in the graph is fine; fewer than
// min(k, tips) non-conflicting choices is an error.
func (s *WeightedSelector) SelectParents(k int) ([]models.VertexID, error) {
	if k <= 0 {
		return nil, errors.Errorf("parent count must be positive, got %d", k)
	}

	tips := s.graph.GetTips()
	if len(tips) == 0 {
		return nil, ErrNoTips
	}

	// One candidate per conflict set: the heaviest member, ties broken by id
	// (tips are already sorted, so the first heaviest wins).
	type candidate struct {
		id     models.VertexID
		weight int64
	}
	bySlot := make(map[string]candidate)
	for _, tip := range tips {
		weight := s.graph.CumulativeWeight(tip)
		slot := s.conflicts.Slot(tip)
		if best, ok := bySlot[slot]; !ok || weight > best.weight {
			bySlot[slot] = candidate{id: tip, weight: weight}
		}
	}

	want := k
	if len(tips) < want {
		want = len(tips)
	}
	if len(bySlot) < want {
		return nil, errors.Wrapf(ErrConflictingTips, "need %d tips, only %d conflict-distinct", want, len(bySlot))
	}

	candidates := make([]candidate, 0, len(bySlot))
	for _, c := range bySlot {
		candidates = append(candidates, c)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].id < candidates[j].id })

	// Weighted draws without replacement.
	s.mu.Lock()
	defer s.mu.Unlock()

	selected := make([]models.VertexID, 0, want)
	for len(selected) < want {
		var total int64
		for _, c := range candidates {
			total += c.weight
		}
		pick := s.rng.Int63n(total)
		idx := 0
		for i, c := range candidates {
			if pick < c.weight {
				idx = i
				break
			}
			pick -= c.weight
		}
		selected = append(selected, candidates[idx].id)
		candidates = append(candidates[:idx], candidates[idx+1:]...)
	}
	return selected, nil
}
