package main

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rom8726/labflow"
)

const (
	headerActorID  = "X-Actor-ID"
	headerActorAll = "X-Actor-All"
)

// actorFromHeaders trusts identity headers set by the gateway in front of
// the service.
func actorFromHeaders(r *http.Request) (labflow.Actor, error) {
	id := strings.TrimSpace(r.Header.Get(headerActorID))
	if id == "" {
		return labflow.Actor{}, fmt.Errorf("%w: missing %s header", labflow.ErrPermissionDenied, headerActorID)
	}

	actor := labflow.Actor{ID: id}
	if raw := r.Header.Get(headerActorAll); raw != "" {
		all, err := strconv.ParseBool(raw)
		if err != nil {
			return labflow.Actor{}, fmt.Errorf("%w: bad %s header", labflow.ErrInvalidInput, headerActorAll)
		}
		actor.CanAccessAll = all
	}

	return actor, nil
}
