package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openpseudonym/idbroker/internal/auth"
	"github.com/openpseudonym/idbroker/internal/db/bunx"
	"github.com/openpseudonym/idbroker/internal/services/identity"
)

// IdentityHandlers wires the identity registry REST endpoints.
type IdentityHandlers struct {
	service *identity.Service
}

// NewIdentityHandlers creates a new handler set for identity operations.
func NewIdentityHandlers(service *identity.Service) *IdentityHandlers {
	return &IdentityHandlers{service: service}
}

type identityResponse struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// requireSubject extracts the verified subject or writes a 401.
func requireSubject(w http.ResponseWriter, r *http.Request) (string, bool) {
	subject, ok := auth.SubjectFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
	}
	return subject, ok
}

// pathID validates the {id} URL parameter as a UUID or writes a 400.
func pathID(w http.ResponseWriter, r *http.Request, param string) (string, bool) {
	id := chi.URLParam(r, param)
	if !bunx.IsValidUUID(id) {
		respondError(w, http.StatusBadRequest, param+" must be a valid UUID")
		return "", false
	}
	return id, true
}

// Register handles POST /api/v1/identity - mint a new pseudonym.
func (h *IdentityHandlers) Register(w http.ResponseWriter, r *http.Request) {
	subject, ok := requireSubject(w, r)
	if !ok {
		return
	}

	var body struct {
		DisplayName string `json:"displayName"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			respondError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	created, err := h.service.Register(r.Context(), subject, body.DisplayName)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondCreated(w, created.ID)
}

// ListMine handles GET /api/v1/identity - enumerate the caller's identities.
func (h *IdentityHandlers) ListMine(w http.ResponseWriter, r *http.Request) {
	subject, ok := requireSubject(w, r)
	if !ok {
		return
	}

	identities, err := h.service.ListMine(r.Context(), subject)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	out := make([]identityResponse, 0, len(identities))
	for _, i := range identities {
		out = append(out, identityResponse{ID: i.ID, DisplayName: i.DisplayName, CreatedAt: i.CreatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

// Get handles GET /api/v1/identity/{id} - fetch one of the caller's identities.
func (h *IdentityHandlers) Get(w http.ResponseWriter, r *http.Request) {
	subject, ok := requireSubject(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	found, err := h.service.Get(r.Context(), subject, id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, identityResponse{ID: found.ID, DisplayName: found.DisplayName, CreatedAt: found.CreatedAt})
}

// SetDisplayName handles PATCH /api/v1/identity/{id}.
func (h *IdentityHandlers) SetDisplayName(w http.ResponseWriter, r *http.Request) {
	subject, ok := requireSubject(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var body struct {
		DisplayName string `json:"displayName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.service.SetDisplayName(r.Context(), subject, id, body.DisplayName); err != nil {
		respondServiceError(w, err)
		return
	}
	respondOK(w)
}

// Delete handles DELETE /api/v1/identity/{id} - remove an identity and
// everything referencing it.
func (h *IdentityHandlers) Delete(w http.ResponseWriter, r *http.Request) {
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
