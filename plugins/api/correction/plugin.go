package correction

import (
	"net/http"

	"github.com/rom8726/labflow"
	"github.com/rom8726/labflow/api"
)

var _ api.Plugin = (*Plugin)(nil)

// Plugin exposes administrative corrections of the state history.
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

func (p *Plugin) Name() string { return "correction" }

func (p *Plugin) Description() string { return "Delete erroneous section states" }

func (p *Plugin) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("DELETE /api/states/{state_id}", HandleDeleteState(p.engine, p.extractActorFn))
}

func HandleDeleteState(engine labflow.IEngine, extractActorFn api.ExtractActorFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stateID, ok := api.PathID(w, r, "state_id")
		if !ok {
			return
		}

		actor, ok := api.ResolveActor(w, r, extractActorFn)
		if !ok {
			return
		}

		if err := engine.DeleteState(r.Context(), actor, stateID); err != nil {
			api.WriteEngineError(w, err)

			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
