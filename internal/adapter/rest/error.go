package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/eslsoft/lexmatrix/internal/entity"
)

// errorBody is the JSON shape of every failed request.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// StatusOf maps an error kind onto an HTTP status code.
func StatusOf(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, entity.ErrParse), errors.Is(err, entity.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, entity.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrNotReady):
		return http.StatusAccepted
	default:
		return http.StatusInternalServerError
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, entity.ErrParse):
		return "parse_error"
	case errors.Is(err, entity.ErrValidation):
		return "validation_error"
	case errors.Is(err, entity.ErrInvalidID):
		return "invalid_id"
	case errors.Is(err, entity.ErrNotFound):
		return "not_found"
	case errors.Is(err, entity.ErrLinkingFailed):
		return "linking_failed"
	default:
		return "internal"
	}
}

func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: errorKind(err), Message: err.Error()}
	var ve *entity.ValidationError
	if errors.As(err, &ve) {
		body.Field = ve.Field
	}
	writeJSON(w, StatusOf(err), body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
