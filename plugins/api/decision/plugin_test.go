package decision

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rom8726/labflow"
	"github.com/rom8726/labflow/api"
)

func TestHandleFinish_Success(t *testing.T) {
	mockEngine := labflow.NewMockIEngine(t)
	actor := labflow.Actor{ID: "tech-1"}

	values := map[string]string{"volume": "4.5"}
	mockEngine.On("Finish", mock.Anything, actor, int64(12), values).
		Return(&labflow.AcceptanceItemState{ID: 12, Status: labflow.StateStatusFinished}, nil)

	body, _ := json.Marshal(FinishRequest{Parameters: values})
	req := httptest.NewRequest(http.MethodPost, "/api/states/12/finish", bytes.NewBuffer(body))
	req.SetPathValue("state_id", "12")
	w := httptest.NewRecorder()

	extractActorFn := func(*http.Request) (labflow.Actor, error) { return actor, nil }
	HandleFinish(mockEngine, extractActorFn)(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleFinish_EmptyBody(t *testing.T) {
	mockEngine := labflow.NewMockIEngine(t)
	actor := labflow.Actor{ID: "tech-1"}

	mockEngine.On("Finish", mock.Anything, actor, int64(12), map[string]string(nil)).
		Return(&labflow.AcceptanceItemState{ID: 12, Status: labflow.StateStatusFinished}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/states/12/finish", http.NoBody)
	req.SetPathValue("state_id", "12")
	w := httptest.NewRecorder()

	extractActorFn := func(*http.Request) (labflow.Actor, error) { return actor, nil }
	HandleFinish(mockEngine, extractActorFn)(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleFinish_IncompleteParameters(t *testing.T) {
	mockEngine := labflow.NewMockIEngine(t)
	actor := labflow.Actor{ID: "tech-1"}

	mockEngine.On("Finish", mock.Anything, actor, int64(12), mock.Anything).
		Return(nil, &labflow.IncompleteParametersError{
			StateID: 12,
			Missing: []string{"volume"},
			Invalid: map[string]string{"date": "expected YYYY-MM-DD"},
		})

	req := httptest.NewRequest(http.MethodPost, "/api/states/12/finish", bytes.NewBufferString(`{"parameters":{}}`))
	req.SetPathValue("state_id", "12")
	w := httptest.NewRecorder()

	extractActorFn := func(*http.Request) (labflow.Actor, error) { return actor, nil }
	HandleFinish(mockEngine, extractActorFn)(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp api.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, []string{"date", "volume"}, resp.Fields)
}

func TestHandleReject_Success(t *testing.T) {
	mockEngine := labflow.NewMockIEngine(t)
	actor := labflow.Actor{ID: "tech-1"}
	target := labflow.ReworkToSection("B")

	mockEngine.On("Reject", mock.Anything, actor, int64(30), "hemolyzed", target).
		Return(&labflow.AcceptanceItemState{ID: 30, Status: labflow.StateStatusRejected}, nil)

	body, _ := json.Marshal(RejectRequest{Detail: "hemolyzed", Target: &target})
	req := httptest.NewRequest(http.MethodPost, "/api/states/30/reject", bytes.NewBuffer(body))
	req.SetPathValue("state_id", "30")
	w := httptest.NewRecorder()

	extractActorFn := func(*http.Request) (labflow.Actor, error) { return actor, nil }
	HandleReject(mockEngine, extractActorFn)(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleReject_DefaultsToSampleCollection(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "absent target", body: `{"detail":"clotted"}`},
		{name: "null target", body: `{"detail":"clotted","target":null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockEngine := labflow.NewMockIEngine(t)
			actor := labflow.Actor{ID: "tech-1"}

			mockEngine.On("Reject", mock.Anything, actor, int64(31), "clotted", labflow.ReworkToSampleCollection()).
				Return(&labflow.AcceptanceItemState{ID: 31, Status: labflow.StateStatusRejected}, nil)

			req := httptest.NewRequest(http.MethodPost, "/api/states/31/reject", bytes.NewBufferString(tt.body))
			req.SetPathValue("state_id", "31")
			w := httptest.NewRecorder()

			extractActorFn := func(*http.Request) (labflow.Actor, error) { return actor, nil }
			HandleReject(mockEngine, extractActorFn)(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestHandleReject_MissingDetail(t *testing.T) {
	mockEngine := labflow.NewMockIEngine(t)

	req := httptest.NewRequest(http.MethodPost, "/api/states/30/reject",
		bytes.NewBufferString(`{"target":{"kind":"sample_collection"}}`))
	req.SetPathValue("state_id", "30")
	w := httptest.NewRecorder()

	extractActorFn := func(*http.Request) (labflow.Actor, error) { return labflow.Actor{ID: "x"}, nil }
	HandleReject(mockEngine, extractActorFn)(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleReject_ExtractActorFails(t *testing.T) {
	mockEngine := labflow.NewMockIEngine(t)

	req := httptest.NewRequest(http.MethodPost, "/api/states/30/reject", bytes.NewBufferString(`{}`))
	req.SetPathValue("state_id", "30")
	w := httptest.NewRecorder()

	extractActorFn := func(*http.Request) (labflow.Actor, error) {
		return labflow.Actor{}, errors.New("no session")
	}
	HandleReject(mockEngine, extractActorFn)(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
