package cancel

import (
	"encoding/json"
	"errors"
	"net/http"

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

func (p *Plugin) Name() string { return "cancel" }

func (p *Plugin) Description() string { return "Close acceptance items as cancelled or reported" }

func (p *Plugin) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/items/{item_id}/cancel", HandleCancelItem(p.engine, p.extractActorFn))
	mux.HandleFunc("POST /api/items/{item_id}/reported", HandleMarkReported(p.engine, p.extractActorFn))
}

func HandleCancelItem(engine labflow.IEngine, extractActorFn api.ExtractActorFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, ok := api.PathID(w, r, "item_id")
		if !ok {
			return
		}

		actor, ok := api.ResolveActor(w, r, extractActorFn)
		if !ok {
			return
		}

		var req CancelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.WriteErrorResponse(w, err, http.StatusBadRequest)

			return
		}

		if req.Reason == "" {
			api.WriteErrorResponse(w, errors.New("reason is required"), http.StatusBadRequest)

			return
		}

		if err := engine.CancelItem(r.Context(), actor, itemID, req.Reason); err != nil {
			api.WriteEngineError(w, err)

			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func HandleMarkReported(engine labflow.IEngine, extractActorFn api.ExtractActorFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, ok := api.PathID(w, r, "item_id")
		if !ok {
			return
		}

		actor, ok := api.ResolveActor(w, r, extractActorFn)
		if !ok {
			return
		}

		var req ReportedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.WriteErrorResponse(w, err, http.StatusBadRequest)

			return
		}

		if err := engine.MarkReported(r.Context(), actor, itemID, req.ReportID); err != nil {
			api.WriteEngineError(w, err)

			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
