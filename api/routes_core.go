package api

import (
	"net/http"
	"strconv"

	"github.com/rom8726/labflow"
)

func RegisterCoreRoutes(mux *http.ServeMux, engine labflow.IEngine) {
	// Workflow definitions
	mux.HandleFunc("GET /api/workflows", HandleGetWorkflows(engine))
	mux.HandleFunc("GET /api/workflows/{id}", HandleGetWorkflow(engine))
	mux.HandleFunc("GET /api/workflows/{id}/render", HandleRenderWorkflow(engine))

	// Acceptance items
	mux.HandleFunc("GET /api/items/{id}/position", HandleGetPosition(engine))
	mux.HandleFunc("GET /api/items/{id}/states", HandleGetHistory(engine))
	mux.HandleFunc("GET /api/items/{id}/render", HandleRenderProgress(engine))

	// States
	mux.HandleFunc("GET /api/states/{id}/rework-targets", HandleGetReworkTargets(engine))

	// Activity
	mux.HandleFunc("GET /api/activity/{entity_type}/{entity_id}", HandleGetActivity(engine))

	// Statistics
	mux.HandleFunc("GET /api/stats/sections", HandleGetSectionStats(engine))
}

func HandleGetWorkflows(engine labflow.IEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		definitions, err := engine.GetWorkflows(r.Context())
		if err != nil {
			WriteEngineError(w, err)

			return
		}
		if definitions == nil {
			definitions = []*labflow.WorkflowDefinition{}
		}

		WriteJSON(w, http.StatusOK, definitions)
	}
}

func HandleGetWorkflow(engine labflow.IEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		definition, err := engine.GetWorkflow(r.Context(), r.PathValue("id"))
		if err != nil {
			WriteEngineError(w, err)

			return
		}

		WriteJSON(w, http.StatusOK, definition)
	}
}

func HandleRenderWorkflow(engine labflow.IEngine) http.HandlerFunc {
	visualizer := labflow.NewVisualizer()

	return func(w http.ResponseWriter, r *http.Request) {
		definition, err := engine.GetWorkflow(r.Context(), r.PathValue("id"))
		if err != nil {
			WriteEngineError(w, err)

			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(visualizer.RenderWorkflow(definition)))
	}
}

// HandleRenderProgress draws the item's walk through its workflow.
func HandleRenderProgress(engine labflow.IEngine) http.HandlerFunc {
	visualizer := labflow.NewVisualizer()

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		itemID, ok := PathID(w, r, "id")
		if !ok {
			return
		}

		position, err := engine.GetPosition(ctx, itemID)
		if err != nil {
			WriteEngineError(w, err)

			return
		}

		definition, err := engine.GetWorkflow(ctx, position.WorkflowID)
		if err != nil {
			WriteEngineError(w, err)

			return
		}

		history, err := engine.GetHistory(ctx, itemID)
		if err != nil {
			WriteEngineError(w, err)

			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(visualizer.RenderProgress(definition, history)))
	}
}

func HandleGetPosition(engine labflow.IEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, ok := PathID(w, r, "id")
		if !ok {
			return
		}

		position, err := engine.GetPosition(r.Context(), itemID)
		if err != nil {
			WriteEngineError(w, err)

			return
		}

		WriteJSON(w, http.StatusOK, position)
	}
}

func HandleGetHistory(engine labflow.IEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, ok := PathID(w, r, "id")
		if !ok {
			return
		}

		history, err := engine.GetHistory(r.Context(), itemID)
		if err != nil {
			WriteEngineError(w, err)

			return
		}
		if history == nil {
			history = []*labflow.AcceptanceItemState{}
		}

		WriteJSON(w, http.StatusOK, history)
	}
}

func HandleGetReworkTargets(engine labflow.IEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stateID, ok := PathID(w, r, "id")
		if !ok {
			return
		}

		options, err := engine.GetReworkTargets(r.Context(), stateID)
		if err != nil {
			WriteEngineError(w, err)

			return
		}

		WriteJSON(w, http.StatusOK, options)
	}
}

func HandleGetActivity(engine labflow.IEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := engine.GetActivity(r.Context(), r.PathValue("entity_type"), r.PathValue("entity_id"))
		if err != nil {
			WriteEngineError(w, err)

			return
		}
		if entries == nil {
			entries = []*labflow.ActivityEntry{}
		}

		WriteJSON(w, http.StatusOK, entries)
	}
}

func HandleGetSectionStats(engine labflow.IEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := engine.GetSectionStats(r.Context())
		if err != nil {
			WriteEngineError(w, err)

			return
		}
		if stats == nil {
			stats = []labflow.SectionStats{}
		}

		WriteJSON(w, http.StatusOK, stats)
	}
}

// PathID parses a numeric path value, writing 400 when it is malformed.
func PathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		WriteErrorResponse(w, labflow.ErrInvalidInput, http.StatusBadRequest)

		return 0, false
	}

	return id, true
}
