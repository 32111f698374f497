package repository

import (
	"go.uber.org/zap"

	"qrdag/logger"
	"qrdag/models"
)

// FinalityLog adapts the event repository to the consensus subscriber
// interface. Persistence failures are logged and dropped; a voting round
// never blocks on the event log.
type FinalityLog struct {
	repo EventRepositoryInterface
}

func NewFinalityLog(repo EventRepositoryInterface) *FinalityLog {
	return &FinalityLog{repo: repo}
}

func (l *FinalityLog) VertexFinalized(id models.VertexID) {
	l.put(id, "final")
}

func (l *FinalityLog) VertexRejected(id models.VertexID) {
	l.put(id, "rejected")
}

func (l *FinalityLog) put(id models.VertexID, outcome string) {
	err := l.repo.PutEvent(&FinalityEvent{
		VertexID: string(id),
		Outcome:  outcome,
	})
	if err != nil {
		logger.Logger.Warn("failed to persist finality event",
			zap.String("vertex_id", string(id)),
			zap.String("outcome", outcome),
			zap.Error(err))
	}
}
