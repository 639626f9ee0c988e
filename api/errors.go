package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/rom8726/labflow"
)

const internalErrorMessage = "internal error"

type ErrorResponse struct {
	Message string   `json:"message"`
	Kind    string   `json:"kind,omitempty"`
	Fields  []string `json:"fields,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

// WriteErrorResponse writes err as JSON. Internal server errors are logged
// and replaced with a generic message so store details stay out of the body.
func WriteErrorResponse(writer http.ResponseWriter, err error, statusCode int) {
	resp := ErrorResponse{Message: err.Error()}
	kind := labflow.KindOf(err)
	switch {
	case kind != labflow.KindInternal:
		resp.Kind = string(kind)
	case statusCode >= http.StatusInternalServerError:
		log.Error().Err(err).Int("status", statusCode).Msg("[labflow] request failed")
		resp.Message = internalErrorMessage
	}

	var incomplete *labflow.IncompleteParametersError
	if errors.As(err, &incomplete) {
		resp.Fields = incomplete.Fields()
	}

	var outOfOrder *labflow.OutOfOrderEntryError
	if errors.As(err, &outOfOrder) {
		resp.Reason = string(outOfOrder.Reason)
	}

	WriteJSON(writer, statusCode, resp)
}

// WriteEngineError picks the status code from the error kind.
func WriteEngineError(writer http.ResponseWriter, err error) {
	WriteErrorResponse(writer, err, StatusFor(err))
}

func StatusFor(err error) int {
	switch labflow.KindOf(err) {
	case labflow.KindNotFound:
		return http.StatusNotFound
	case labflow.KindOutOfOrderEntry,
		labflow.KindConcurrencyConflict,
		labflow.KindInvalidTransition,
		labflow.KindItemClosed:
		return http.StatusConflict
	case labflow.KindIncompleteParameters,
		labflow.KindInvalidReworkTarget,
		labflow.KindInvalidInput,
		labflow.KindInvalidDefinition:
		return http.StatusUnprocessableEntity
	case labflow.KindPermissionDenied:
		return http.StatusForbidden
	case labflow.KindBarcodeGeneration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func WriteJSON(writer http.ResponseWriter, statusCode int, body any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(statusCode)

	_ = json.NewEncoder(writer).Encode(body)
}
