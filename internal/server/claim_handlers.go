package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/openpseudonym/idbroker/internal/db/bunx"
	"github.com/openpseudonym/idbroker/internal/db/models"
	"github.com/openpseudonym/idbroker/internal/services/claims"
	"github.com/openpseudonym/idbroker/internal/services/consent"
)

// ClaimHandlers wires the claim store REST endpoints, including the
// disclosure endpoint backed by the consent service.
type ClaimHandlers struct {
	service *claims.Service
	consent *consent.Service
}

// NewClaimHandlers creates a new handler set for claim operations.
func NewClaimHandlers(service *claims.Service, consentService *consent.Service) *ClaimHandlers {
	return &ClaimHandlers{service: service, consent: consentService}
}

type claimResponse struct {
	ID        string         `json:"id"`
	Owner     string         `json:"owner"`
	Name      string         `json:"name"`
	Value     string         `json:"value"`
	Context   map[string]any `json:"context,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func toClaimResponse(c models.Claim) claimResponse {
	return claimResponse{
		ID:        c.ID,
		Owner:     c.Owner,
		Name:      c.Name,
		Value:     c.Value,
		Context:   c.Context,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// Upsert handles PUT /api/v1/claim - write a claim by (owner, name).
func (h *ClaimHandlers) Upsert(w http.ResponseWriter, r *http.Request) {
	subject, ok := requireSubject(w, r)
	if !ok {
		return
	}

	var body struct {
		ID      string         `json:"id"` // owning identity
		Name    string         `json:"name"`
		Value   string         `json:"value"`
		Context map[string]any `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !bunx.IsValidUUID(body.ID) {
		respondError(w, http.StatusBadRequest, "id must be a valid UUID")
		return
	}

	id, created, err := h.service.Upsert(r.Context(), subject, body.ID, body.Name, body.Value, body.Context)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if created {
		respondCreated(w, id)
		return
	}
	respondUpdated(w, id)
}

// Get handles GET /api/v1/claim/{id} - fetch one of the caller's claims.
func (h *ClaimHandlers) Get(w http.ResponseWriter, r *http.Request) {
	subject, ok := requireSubject(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	claim, err := h.service.Get(r.Context(), subject, id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimResponse(*claim))
}

// ListMine handles GET /api/v1/claim?id=<identity>&filter=<expr>.
func (h *ClaimHandlers) ListMine(w http.ResponseWriter, r *http.Request) {
	subject, ok := requireSubject(w, r)
	if !ok {
		return
	}

	ownerID := r.URL.Query().Get("id")
	if !bunx.IsValidUUID(ownerID) {
		respondError(w, http.StatusBadRequest, "id must be a valid UUID")
		return
	}

	list, err := h.service.ListMine(r.Context(), subject, ownerID, r.URL.Query().Get("filter"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	out := make([]claimResponse, 0, len(list))
	for _, c := range list {
		out = append(out, toClaimResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

// Delete handles DELETE /api/v1/claim/{id}.
func (h *ClaimHandlers) Delete(w http.ResponseWriter, r *http.Request) {
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

// VisibleClaims handles GET /api/v1/claim/owner/{ownerID}?requester=<id> -
// the claims the requester identity may currently read from the owner.
// An empty disclosure is a 200 with an empty list.
func (h *ClaimHandlers) VisibleClaims(w http.ResponseWriter, r *http.Request) {
	subject, ok := requireSubject(w, r)
	if !ok {
		return
	}
	ownerID, ok := pathID(w, r, "ownerID")
	if !ok {
		return
	}

	requesterID := r.URL.Query().Get("requester")
	if !bunx.IsValidUUID(requesterID) {
		respondError(w, http.StatusBadRequest, "requester must be a valid UUID")
		return
	}

	visible, err := h.consent.VisibleClaims(r.Context(), subject, ownerID, requesterID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	out := make([]claimResponse, 0, len(visible))
	for _, c := range visible {
		out = append(out, toClaimResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}
