package consensus

import (
	"context"

	"qrdag/models"
)

// ParticipantID identifies a votable network peer.
type ParticipantID string

// PreferenceVote is a participant's current local preference among the
// members of a conflict set.
type PreferenceVote struct {
	Preferred models.VertexID
}

// PeerSampler supplies participants for a voting round. Implementations are
// injected; the core does no peer discovery of its own. Sample returns up to
// k distinct participants; when fewer exist it returns them all.
type PeerSampler interface {
	Sample(k int) []ParticipantID
}

// Querier asks one participant for its preference among a conflict set.
// A returned error means the participant did not answer (unreachable, timed
// out); the engine counts it as an abstention, never as a "no" vote and
// never as a round failure.
type Querier interface {
	Query(ctx context.Context, participant ParticipantID, vertexID models.VertexID, conflictSet []models.VertexID) (PreferenceVote, error)
}

// Subscriber receives terminal state notifications. An external persistence
// layer may durably log them; the core itself persists nothing.
type Subscriber interface {
	VertexFinalized(id models.VertexID)
	VertexRejected(id models.VertexID)
}
