package decision

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rom8726/labflow"
	"github.com/rom8726/labflow/api"
)

var _ api.Plugin = (*Plugin)(nil)

type Plugin struct {
	engine         labflow.IEngine
	extractActorFn api.ExtractActorFn
}

func New(engine labflow.IEngine, extractActorFn api.ExtractActorFn) *Plugin {
	return &Plugin{
		engine:         engine,
		extractActorFn: extractActorFn,
	}
}

func (p *Plugin) Name() string { return "decision" }

func (p *Plugin) Description() string { return "Finish or reject a section state" }

func (p *Plugin) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/states/{state_id}/finish", HandleFinish(p.engine, p.extractActorFn))
	mux.HandleFunc("POST /api/states/{state_id}/reject", HandleReject(p.engine, p.extractActorFn))
}

func HandleFinish(engine labflow.IEngine, extractActorFn api.ExtractActorFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stateID, ok := api.PathID(w, r, "state_id")
		if !ok {
			return
		}

		actor, ok := api.ResolveActor(w, r, extractActorFn)
		if !ok {
			return
		}

		// an empty body finishes a section without parameters
		var req FinishRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			api.WriteErrorResponse(w, err, http.StatusBadRequest)

			return
		}

		state, err := engine.Finish(r.Context(), actor, stateID, req.Parameters)
		if err != nil {
			api.WriteEngineError(w, err)

			return
		}

		api.WriteJSON(w, http.StatusOK, state)
	}
}

func HandleReject(engine labflow.IEngine, extractActorFn api.ExtractActorFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stateID, ok := api.PathID(w, r, "state_id")
		if !ok {
			return
		}

		actor, ok := api.ResolveActor(w, r, extractActorFn)
		if !ok {
			return
		}

		var req RejectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.WriteErrorResponse(w, err, http.StatusBadRequest)

			return
		}

		if strings.TrimSpace(req.Detail) == "" {
			api.WriteErrorResponse(w, errors.New("detail is required"), http.StatusBadRequest)

			return
		}

		state, err := engine.Reject(r.Context(), actor, stateID, req.Detail, req.reworkTarget())
		if err != nil {
			api.WriteEngineError(w, err)

			return
		}

		api.WriteJSON(w, http.StatusOK, state)
	}
}
