package dag

import (
	"sort"
	"sync"

	"qrdag/models"
)

// ConflictRegistry tracks which vertices are mutually exclusive. Vertices
// registered under the same slot form one conflict set; at most one member of
// a set may ever finalize. A vertex that was never registered belongs to a
// singleton set containing only itself.
//
// What constitutes a conflict (double spends, competing state transitions) is
// application-level semantics, so membership is declared by the caller rather
// than inferred from payloads.
type ConflictRegistry struct {
	mu      sync.RWMutex
	slotOf  map[models.VertexID]string
	members map[string]map[models.VertexID]struct{}
}

func NewConflictRegistry() *ConflictRegistry {
	return &ConflictRegistry{
		slotOf:  make(map[models.VertexID]string),
		members: make(map[string]map[models.VertexID]struct{}),
	}
}

// Register places id into the conflict set identified by slot.
func (r *ConflictRegistry) Register(slot string, id models.VertexID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.slotOf[id] = slot
	set, ok := r.members[slot]
	if !ok {
		set = make(map[models.VertexID]struct{})
		r.members[slot] = set
	}
	set[id] = struct{}{}
}

// ConflictSet returns the full conflict set of id, including id itself,
// sorted for deterministic iteration. Unregistered vertices yield a
// singleton.
func (r *ConflictRegistry) ConflictSet(id models.VertexID) []models.VertexID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	slot, ok := r.slotOf[id]
	if !ok {
		return []models.VertexID{id}
	}
	set := make([]models.VertexID, 0, len(r.members[slot]))
	for member := range r.members[slot] {
		set = append(set, member)
	}
	sort.Slice(set, func(i, j int) bool { return set[i] < set[j] })
	return set
}

// Conflicts reports whether a and b are distinct members of the same set.
func (r *ConflictRegistry) Conflicts(a, b models.VertexID) bool {
	if a == b {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	slotA, okA := r.slotOf[a]
	slotB, okB := r.slotOf[b]
	return okA && okB && slotA == slotB
}

// Slot returns the slot id belongs to. Unregistered vertices get a synthetic
// singleton slot derived from their own id.
func (r *ConflictRegistry) Slot(id models.VertexID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if slot, ok := r.slotOf[id]; ok {
		return slot
	}
	return "vertex:" + string(id)
}
