package entry

import (
	"encoding/json"
	"errors"
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

func (p *Plugin) Name() string { return "entry" }

func (p *Plugin) Description() string { return "Enter acceptance items into sections" }

func (p *Plugin) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sections/{section_id}/scan", HandleScan(p.engine, p.extractActorFn))
	mux.HandleFunc(
		"POST /api/items/{item_id}/sections/{section_id}/enter",
		HandleEnter(p.engine, p.extractActorFn),
	)
	mux.HandleFunc("POST /api/items/{item_id}/queue", HandleQueue(p.engine, p.extractActorFn))
}

// HandleScan enters every item linked to the scanned barcode.
func HandleScan(engine labflow.IEngine, extractActorFn api.ExtractActorFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sectionID := r.PathValue("section_id")
		if sectionID == "" {
			api.WriteErrorResponse(w, errors.New("section_id is required"), http.StatusBadRequest)

			return
		}

		actor, ok := api.ResolveActor(w, r, extractActorFn)
		if !ok {
			return
		}

		var req ScanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.WriteErrorResponse(w, err, http.StatusBadRequest)

			return
		}

		barcode := strings.TrimSpace(req.Barcode)
		if barcode == "" {
			api.WriteErrorResponse(w, errors.New("barcode is required"), http.StatusBadRequest)

			return
		}

		states, err := engine.EnterByBarcode(r.Context(), actor, barcode, sectionID)
		if err != nil {
			api.WriteEngineError(w, err)

			return
		}

		api.WriteJSON(w, http.StatusOK, states)
	}
}

func HandleEnter(engine labflow.IEngine, extractActorFn api.ExtractActorFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, ok := api.PathID(w, r, "item_id")
		if !ok {
			return
		}

		actor, ok := api.ResolveActor(w, r, extractActorFn)
		if !ok {
			return
		}

		sectionID := r.PathValue("section_id")
		if sectionID == "" {
			api.WriteErrorResponse(w, errors.New("section_id is required"), http.StatusBadRequest)

			return
		}

		state, err := engine.EnterByItem(r.Context(), actor, itemID, sectionID)
		if err != nil {
			api.WriteEngineError(w, err)

			return
		}

		api.WriteJSON(w, http.StatusOK, state)
	}
}

// HandleQueue parks the item at its next mandatory section.
func HandleQueue(engine labflow.IEngine, extractActorFn api.ExtractActorFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, ok := api.PathID(w, r, "item_id")
		if !ok {
			return
		}

		actor, ok := api.ResolveActor(w, r, extractActorFn)
		if !ok {
			return
		}

		state, err := engine.Queue(r.Context(), actor, itemID)
		if err != nil {
			api.WriteEngineError(w, err)

			return
		}

		api.WriteJSON(w, http.StatusOK, state)
	}
}
