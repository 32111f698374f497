package dag

import (
	"fmt"

	"github.com/pkg/errors"

	"qrdag/models"
)

// Structural errors. These are returned synchronously from insertion and
// state mutation and are never retried by the core; the caller has to fix
// the offending vertex.
var (
	ErrNodeExists             = errors.New("node with ID already exists")
	ErrNodeNotFound           = errors.New("node not found")
	ErrMissingParent          = errors.New("parent node does not exist")
	ErrMissingChild           = errors.New("child node does not exist")
	ErrInvalidStateTransition = errors.New("invalid node state transition")
	ErrInvalidSignature       = errors.New("vertex signature verification failed")
)

// Tip selection errors.
var (
	ErrNoTips          = errors.New("no tips available")
	ErrConflictingTips = errors.New("no non-conflicting tip set of requested size exists")
)

// CycleError is returned when inserting a vertex would make the graph cyclic.
type CycleError struct {
	From models.VertexID
	To   models.VertexID
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("inserting edge %s -> %s would create a cycle", e.From, e.To)
}
