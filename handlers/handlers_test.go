package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"qrdag"
	"qrdag/consensus"
	"qrdag/handlers"
	"qrdag/logger"
	"qrdag/models"
	"qrdag/routers"
)

type testSampler struct{}

func (testSampler) Sample(k int) []consensus.ParticipantID {
	return []consensus.ParticipantID{"p1", "p2", "p3"}
}

type testQuerier struct{}

func (testQuerier) Query(_ context.Context, _ consensus.ParticipantID, id models.VertexID, _ []models.VertexID) (consensus.PreferenceVote, error) {
	return consensus.PreferenceVote{Preferred: id}, nil
}

func testServer(t *testing.T) (*mux.Router, *qrdag.QrDag) {
	logger.Logger = zap.NewNop()

	d, err := qrdag.New(consensus.FastFinalityConfig(), testSampler{}, testQuerier{}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to build consensus core: %v", err)
	}
	handler := handlers.NewHandler(d)
	router := mux.NewRouter()
	routers.RegisterRoutes(router, handler, prometheus.NewRegistry())
	return router, d
}

func TestAddMessage_Success(t *testing.T) {
	router, d := testServer(t)

	body, _ := json.Marshal(map[string]string{"payload": "hello dag"})
	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewReader(body))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	if !d.ContainsMessage([]byte("hello dag")) {
		t.Fatal("message not stored in the DAG")
	}
}

func TestAddMessage_Duplicate(t *testing.T) {
	router, _ := testServer(t)

	body, _ := json.Marshal(map[string]string{"payload": "once"})
	for i, want := range []int{http.StatusCreated, http.StatusConflict} {
		req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewReader(body))
		res := httptest.NewRecorder()
		router.ServeHTTP(res, req)
		if res.Code != want {
			t.Fatalf("attempt %d: expected %d, got %d", i, want, res.Code)
		}
	}
}

func TestAddMessage_BadPayload(t *testing.T) {
	router, _ := testServer(t)

	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewReader([]byte("{not json")))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestAddVertex_MissingParent(t *testing.T) {
	router, _ := testServer(t)

	vertex := models.NewVertex("B", []byte("data"), []models.VertexID{"missing"})
	body, _ := json.Marshal(vertex)
	req := httptest.NewRequest(http.MethodPost, "/vertices", bytes.NewReader(body))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", res.Code, res.Body.String())
	}
}

func TestGetTips(t *testing.T) {
	router, d := testServer(t)

	if _, err := d.AddMessage([]byte("tip payload")); err != nil {
		t.Fatalf("add message: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/tips", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var parsed struct {
		Tips []string `json:"tips"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if len(parsed.Tips) != 1 {
		t.Fatalf("expected 1 tip, got %d", len(parsed.Tips))
	}
}

func TestGetStatus(t *testing.T) {
	router, d := testServer(t)

	id, err := d.AddMessage([]byte("status payload"))
	if err != nil {
		t.Fatalf("add message: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/vertices/%s/status", id), nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/vertices/unknown/status", nil)
	res = httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown vertex, got %d", res.Code)
	}
}

func TestGetMetrics(t *testing.T) {
	router, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var parsed consensus.ConsensusMetrics
	if err := json.Unmarshal(res.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("invalid metrics response: %v", err)
	}
}
