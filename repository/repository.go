package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"qrdag/db"
)

const eventKeyPrefix = "finality:"

// FinalityEvent is one durable consensus outcome: a vertex reaching Final or
// Rejected. The consensus core emits these through its subscriber interface;
// this layer is the only place they are persisted.
type FinalityEvent struct {
	VertexID   string `json:"vertex_id"`
	Outcome    string `json:"outcome"` // "final" or "rejected"
	RecordedAt int64  `json:"recorded_at"` // unix timestamp in ms
}

// It abstracts the storage layer from the business logic
type EventRepositoryInterface interface {
	PutEvent(event *FinalityEvent) error
	GetEvent(vertexID string) (*FinalityEvent, error)
	GetAllEvents() ([]*FinalityEvent, error)
}

// EventRepository implements EventRepositoryInterface using LevelDB as the
// storage backend
type EventRepository struct {
	db *db.LevelDB
}

// NewEventRepository creates and returns a new EventRepository instance
func NewEventRepository(db *db.LevelDB) *EventRepository {
	return &EventRepository{db: db}
}

func eventKey(vertexID string) []byte {
	return []byte(eventKeyPrefix + vertexID)
}

// PutEvent stores a finality event, stamping it if unstamped
func (r *EventRepository) PutEvent(event *FinalityEvent) error {
	if event.RecordedAt == 0 {
		event.RecordedAt = time.Now().UnixMilli()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return r.db.Put(eventKey(event.VertexID), data)
}

// GetEvent retrieves the finality event recorded for a vertex
func (r *EventRepository) GetEvent(vertexID string) (*FinalityEvent, error) {
	data, err := r.db.Get(eventKey(vertexID))
	if err != nil {
		return nil, fmt.Errorf("finality event for %s: %w", vertexID, err)
	}
	var event FinalityEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// GetAllEvents retrieves every recorded finality event
func (r *EventRepository) GetAllEvents() ([]*FinalityEvent, error) {
	iter := r.db.NewPrefixIterator([]byte(eventKeyPrefix))
	defer iter.Release()

	var events []*FinalityEvent
	for iter.Next() {
		var event FinalityEvent
		if err := json.Unmarshal(iter.Value(), &event); err != nil {
			return nil, err
		}
		events = append(events, &event)
	}
	return events, iter.Error()
}
