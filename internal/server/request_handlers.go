package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/openpseudonym/idbroker/internal/services/consent"
)

// RequestHandlers wires the access-request REST endpoints.
type RequestHandlers struct {
	service *consent.Service
}

// NewRequestHandlers creates a new handler set for access-request operations.
func NewRequestHandlers(service *consent.Service) *RequestHandlers {
	return &RequestHandlers{service: service}
}

type requestResponse struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Requester string    `json:"requester"`
	Claims    []string  `json:"claims"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// Create handles POST /api/v1/request - open a pending access request.
func (h *RequestHandlers) Create(w http.ResponseWriter, r *http.Request) {
	subject, ok := requireSubject(w, r)
	if !ok {
		return
	}

	var body struct {
		Owner     string   `json:"owner"`
		Requester string   `json:"requester"`
		Claims    []string `json:"claims"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id, err := h.service.Create(r.Context(), subject, body.Owner, body.Requester, body.Claims)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondCreated(w, id)
}

// Accept handles POST /api/v1/request/{id}/accept.
func (h *RequestHandlers) Accept(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.service.Accept)
}

// Deny handles POST /api/v1/request/{id}/deny.
func (h *RequestHandlers) Deny(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.service.Deny)
}

func (h *RequestHandlers) resolve(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, subject, id string) error) {
	subject, ok := requireSubject(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := op(r.Context(), subject, id); err != nil {
		respondServiceError(w, err)
		return
	}
	respondOK(w)
}

// Delete handles DELETE /api/v1/request/{id} - remove a request from any
// status; either party may call it.
func (h *RequestHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	subject, ok := requireSubject(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), subject, id); err != nil {
		respondServiceError(w, err)
		return
	}
	respondOK(w)
}

// ListMine handles GET /api/v1/request?role=owner|requester.
func (h *RequestHandlers) ListMine(w http.ResponseWriter, r *http.Request) {
	subject, ok := requireSubject(w, r)
	if !ok {
		return
	}

	role := consent.Role(r.URL.Query().Get("role"))
	requests, err := h.service.ListMine(r.Context(), subject, role)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	out := make([]requestResponse, 0, len(requests))
	for _, req := range requests {
		out = append(out, requestResponse{
			ID:        req.ID,
			Owner:     req.Owner,
			Requester: req.Requester,
			Claims:    req.Claims,
			Status:    string(req.Status),
			CreatedAt: req.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
