package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"qrdag"
	"qrdag/logger"
	"qrdag/models"
)

// Handler contains the HTTP handlers for the consensus API endpoints
type Handler struct {
	DAG *qrdag.QrDag
}

// NewHandler creates and returns a new Handler instance
func NewHandler(d *qrdag.QrDag) *Handler {
	return &Handler{DAG: d}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

type messageRequest struct {
	Payload string `json:"payload"`
}

// AddMessage handles POST requests that wrap a payload in a new vertex with
// auto-selected parents
func (h *Handler) AddMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Logger.Error("Failed to decode message", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "Invalid request payload",
		})
		return
	}

	id, err := h.DAG.AddMessage([]byte(req.Payload))
	if err != nil {
		logger.Logger.Error("Failed to add message", zap.Error(err))
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":   "Message added successfully",
		"vertex_id": id,
	})
}

// AddVertex handles POST requests carrying a fully-formed vertex
func (h *Handler) AddVertex(w http.ResponseWriter, r *http.Request) {
	var vertex models.Vertex
	if err := json.NewDecoder(r.Body).Decode(&vertex); err != nil {
		logger.Logger.Error("Failed to decode vertex", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "Invalid request payload",
		})
		return
	}

	if err := h.DAG.AddVertex(&vertex); err != nil {
		logger.Logger.Error("Failed to add vertex", zap.Error(err))
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": err.Error(),
		})
		return
	}

	logger.Logger.Info("Added new vertex",
		zap.String("vertex_id", string(vertex.ID)),
		zap.Int("parents", len(vertex.Parents)))

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Vertex added successfully",
		"vertex":  vertex,
	})
}

// GetStatus handles GET requests for the consensus state of a vertex
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id := models.VertexID(mux.Vars(r)["id"])
	state, ok := h.DAG.GetConfidence(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "vertex not found",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"vertex_id": id,
		"state":     state.String(),
	})
}

// GetTips handles GET requests for the current tip set
func (h *Handler) GetTips(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tips": h.DAG.GetTips(),
	})
}

// GetTotalOrder handles GET requests for the finalized linearization
func (h *Handler) GetTotalOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.DAG.GetTotalOrder()
	if err != nil {
		logger.Logger.Error("Failed to compute total order", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"order": order,
	})
}

// GetMetrics handles GET requests for the consensus metrics snapshot
func (h *Handler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.DAG.GetMetrics())
}
