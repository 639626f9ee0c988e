package samples

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
	return &Plugin{engine: engine, extractActorFn: extractActorFn}
}

func (p *Plugin) Name() string        { return "samples" }
func (p *Plugin) Description() string { return "Sample collection and activation" }

func (p *Plugin) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/samples", HandleCollect(p.engine, p.extractActorFn))
	mux.HandleFunc("POST /api/samples/{sample_id}/activate", HandleActivate(p.engine, p.extractActorFn))
}

// HandleCollect resolves or creates the sample and, when item ids are given,
// activates it for them in the same request.
func HandleCollect(engine labflow.IEngine, extractActorFn api.ExtractActorFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		actor, ok := api.ResolveActor(w, r, extractActorFn)
		if !ok {
			return
		}

		var req CollectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.WriteErrorResponse(w, err, http.StatusBadRequest)

			return
		}

		sample, err := engine.ResolveOrCreateSample(ctx, actor, labflow.SampleRequest{
			BarcodeGroup:   req.BarcodeGroup,
			Barcode:        req.Barcode,
			SampleTypeID:   req.SampleTypeID,
			PatientID:      req.PatientID,
			CollectionDate: req.CollectionDate,
		})
		if err != nil {
			api.WriteEngineError(w, err)

			return
		}

		links := []*labflow.SampleLink{}
		if len(req.ItemIDs) > 0 {
			links, err = engine.ActivateForItems(ctx, actor, sample.ID, req.ItemIDs)
			if err != nil {
				api.WriteEngineError(w, err)

				return
			}
		}

		api.WriteJSON(w, http.StatusCreated, CollectResponse{Sample: sample, Links: links})
	}
}

func HandleActivate(engine labflow.IEngine, extractActorFn api.ExtractActorFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sampleID, ok := api.PathID(w, r, "sample_id")
		if !ok {
			return
		}

		actor, ok := api.ResolveActor(w, r, extractActorFn)
		if !ok {
			return
		}

		var req ActivateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.WriteErrorResponse(w, err, http.StatusBadRequest)

			return
		}
		if len(req.ItemIDs) == 0 {
			api.WriteErrorResponse(w, errors.New("item_ids is required"), http.StatusBadRequest)

			return
		}

		links, err := engine.ActivateForItems(r.Context(), actor, sampleID, req.ItemIDs)
		if err != nil {
			api.WriteEngineError(w, err)

			return
		}

		api.WriteJSON(w, http.StatusOK, links)
	}
}
