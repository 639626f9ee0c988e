package api

import (
	"net/http"

	"github.com/rom8726/labflow"
)

type Plugin interface {
	Name() string
	Description() string
	RegisterRoutes(mux *http.ServeMux)
}

// ExtractActorFn resolves the caller of a request into an engine actor.
type ExtractActorFn func(req *http.Request) (labflow.Actor, error)

// ResolveActor runs extract and writes the error response when it fails.
func ResolveActor(w http.ResponseWriter, r *http.Request, extract ExtractActorFn) (labflow.Actor, bool) {
	actor, err := extract(r)
	if err != nil {
		WriteEngineError(w, err)

		return labflow.Actor{}, false
	}

	return actor, true
}
