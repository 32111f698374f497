package models

import "time"

// VertexID is the opaque unique identifier of a vertex. It is assigned by the
// caller and never changes after insertion.
type VertexID string

func (id VertexID) Bytes() []byte {
	return []byte(id)
}

// Vertex is a single DAG node. The payload is opaque to the core; the
// signature bytes are only inspected by an injected verifier.
type Vertex struct {
	ID        VertexID   `json:"id"`
	Parents   []VertexID `json:"parents"`
	Payload   []byte     `json:"payload"`
	Timestamp int64      `json:"timestamp"` // unix timestamp in ms
	Signature []byte     `json:"signature,omitempty"`
}

// NewVertex builds a vertex stamped with the current time.
func NewVertex(id VertexID, payload []byte, parents []VertexID) *Vertex {
	return &Vertex{
		ID:        id,
		Parents:   parents,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Edge connects a parent vertex to one of its children. Weight is a
// monotonically increasing endorsement counter: it starts at 1 when the edge
// is created and is incremented each time a new vertex transitively
// references the From subtree. It is never decremented.
type Edge struct {
	From   VertexID `json:"from"`
	To     VertexID `json:"to"`
	Weight int64    `json:"weight"`
}
