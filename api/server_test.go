package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rom8726/labflow"
)

func TestServer_GetPosition(t *testing.T) {
	mockEngine := labflow.NewMockIEngine(t)

	mockEngine.On("GetPosition", mock.Anything, int64(7)).Return(&labflow.Position{
		ItemID:     7,
		WorkflowID: "wf",
		Enterable:  []string{"B"},
		Finished:   []string{"A"},
	}, nil)

	srv := NewServer(mockEngine)
	req := httptest.NewRequest(http.MethodGet, "/api/items/7/position", nil)
	w := httptest.NewRecorder()
	srv.Mux().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var pos labflow.Position
	require.NoError(t, json.NewDecoder(w.Body).Decode(&pos))
	assert.Equal(t, []string{"B"}, pos.Enterable)
}

func TestServer_GetHistory_Empty(t *testing.T) {
	mockEngine := labflow.NewMockIEngine(t)

	mockEngine.On("GetHistory", mock.Anything, int64(7)).Return(nil, nil)

	srv := NewServer(mockEngine)
	req := httptest.NewRequest(http.MethodGet, "/api/items/7/states", nil)
	w := httptest.NewRecorder()
	srv.Mux().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestServer_GetWorkflow_NotFound(t *testing.T) {
	mockEngine := labflow.NewMockIEngine(t)

	mockEngine.On("GetWorkflow", mock.Anything, "missing").
		Return(nil, &labflow.NotFoundError{Entity: "workflow", ID: "missing"})

	srv := NewServer(mockEngine)
	req := httptest.NewRequest(http.MethodGet, "/api/workflows/missing", nil)
	w := httptest.NewRecorder()
	srv.Mux().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_GetReworkTargets_BadID(t *testing.T) {
	srv := NewServer(labflow.NewMockIEngine(t))
	req := httptest.NewRequest(http.MethodGet, "/api/states/nope/rework-targets", nil)
	w := httptest.NewRecorder()
	srv.Mux().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type stubPlugin struct{}

func (stubPlugin) Name() string        { return "stub" }
func (stubPlugin) Description() string { return "stub" }
func (stubPlugin) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/stub", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
}

func TestServer_AddPlugin(t *testing.T) {
	srv := NewServer(labflow.NewMockIEngine(t))
	srv.AddPlugin(stubPlugin{})

	req := httptest.NewRequest(http.MethodGet, "/api/stub", nil)
	w := httptest.NewRecorder()
	srv.Mux().ServeHTTP(w, req)

	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestServer_RenderWorkflow(t *testing.T) {
	mockEngine := labflow.NewMockIEngine(t)

	mockEngine.On("GetWorkflow", mock.Anything, "wf").Return(&labflow.WorkflowDefinition{
		ID:       "wf",
		Name:     "pcr",
		MethodID: "m-1",
		Steps: []labflow.SectionStep{
			{Order: 0, SectionID: "extraction"},
			{Order: 1, SectionID: "sequencing"},
		},
	}, nil)

	srv := NewServer(mockEngine)
	req := httptest.NewRequest(http.MethodGet, "/api/workflows/wf/render", nil)
	w := httptest.NewRecorder()
	srv.Mux().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "0. extraction")
	assert.Contains(t, w.Body.String(), "1. sequencing")
}
