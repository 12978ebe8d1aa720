package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/openpseudonym/idbroker/internal/repository"
	"github.com/openpseudonym/idbroker/internal/services"
)

// Envelope is the uniform response shape for mutations and errors. List and
// read endpoints return their payload objects directly instead.
type Envelope struct {
	Type   string `json:"type"`
	Msg    string `json:"msg,omitempty"`
	ID     string `json:"id,omitempty"`
	Status int    `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}

func respondCreated(w http.ResponseWriter, id string) {
	writeJSON(w, http.StatusCreated, Envelope{Type: "CREATED", ID: id, Status: http.StatusCreated})
}

func respondOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, Envelope{Type: "SUCCESS", Msg: "OK", Status: http.StatusOK})
}

// respondUpdated reports a successful write that did not create a new row,
// still carrying the id of the row it addressed.
func respondUpdated(w http.ResponseWriter, id string) {
	writeJSON(w, http.StatusOK, Envelope{Type: "SUCCESS", Msg: "OK", ID: id, Status: http.StatusOK})
}

func respondError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Envelope{Type: "ERROR", Msg: msg, Status: status})
}

// respondServiceError maps the service error taxonomy onto the envelope.
// Anything unrecognized is a 500 with a generic message; the detail goes to
// the log only.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidInput),
		errors.Is(err, services.ErrInvalidReference),
		errors.Is(err, services.ErrInvalidTransition):
		respondError(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, repository.ErrDuplicate):
		respondError(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, services.ErrUnauthorized):
		respondError(w, http.StatusUnauthorized, "Unauthorized")

	case errors.Is(err, repository.ErrNotFound):
		respondError(w, http.StatusNotFound, "Not found")

	default:
		log.Printf("internal error: %v", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}
