package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/eslsoft/lexmatrix/internal/entity"
	"github.com/eslsoft/lexmatrix/internal/usecase"
)

type linkingSubmitBody struct {
	Source       entity.LinkingSource `json:"source"`
	Target       entity.LinkingSource `json:"target"`
	Config       map[string]any       `json:"config"`
	Asynchronous *bool                `json:"asynchronous,omitempty"`
}

func (h *Handler) linkingSubmit(w http.ResponseWriter, r *http.Request) {
	var body linkingSubmitBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Asynchronous != nil && !*body.Asynchronous {
		writeError(w, &entity.ValidationError{Field: "asynchronous", Msg: "only asynchronous linking is supported"})
		return
	}
	id, err := h.linking.Submit(r.Context(), &usecase.LinkingRequest{Source: body.Source, Target: body.Target, Config: body.Config})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, id)
}

func (h *Handler) linkingStatus(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	status, err := h.linking.Status(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) linkingResult(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	results, err := h.linking.Result(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, results)
	case errors.Is(err, entity.ErrNotReady):
		status, serr := h.linking.Status(r.Context(), id)
		if serr != nil {
			writeError(w, serr)
			return
		}
		writeJSON(w, http.StatusAccepted, status)
	default:
		writeError(w, err)
	}
}

// jobID reads a job id sent as a JSON string, as {"id": ...} or as plain text.
func jobID(r *http.Request) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, 4096))
	if err != nil {
		return "", err
	}
	raw := strings.TrimSpace(string(data))
	switch {
	case strings.HasPrefix(raw, `"`):
		var id string
		if err := json.Unmarshal([]byte(raw), &id); err != nil {
			return "", &entity.ValidationError{Field: "id", Msg: err.Error()}
		}
		return id, nil
	case strings.HasPrefix(raw, "{"):
		var body struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal([]byte(raw), &body); err != nil {
			return "", &entity.ValidationError{Field: "id", Msg: err.Error()}
		}
		return body.ID, nil
	default:
		return raw, nil
	}
}
