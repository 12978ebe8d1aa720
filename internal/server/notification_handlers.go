package server

import (
	"net/http"
	"time"

	"github.com/openpseudonym/idbroker/internal/db/bunx"
	"github.com/openpseudonym/idbroker/internal/services/notify"
)

// NotificationHandlers wires the notification inbox REST endpoints.
type NotificationHandlers struct {
	service *notify.Service
}

// NewNotificationHandlers creates a new handler set for notification operations.
func NewNotificationHandlers(service *notify.Service) *NotificationHandlers {
	return &NotificationHandlers{service: service}
}

type notificationResponse struct {
	ID        string         `json:"id"`
	Owner     string         `json:"owner"`
	Type      string         `json:"type"`
	Context   map[string]any `json:"context,omitempty"`
	Read      bool           `json:"read"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Inbox handles GET /api/v1/notification?id=<identity>.
func (h *NotificationHandlers) Inbox(w http.ResponseWriter, r *http.Request) {
	subject, ok := requireSubject(w, r)
	if !ok {
		return
	}

	identityID := r.URL.Query().Get("id")
	if !bunx.IsValidUUID(identityID) {
		respondError(w, http.StatusBadRequest, "id must be a valid UUID")
		return
	}

	inbox, err := h.service.Inbox(r.Context(), subject, identityID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	out := make([]notificationResponse, 0, len(inbox))
	for _, n := range inbox {
		out = append(out, notificationResponse{
			ID:        n.ID,
			Owner:     n.Owner,
			Type:      n.Type,
			Context:   n.Context,
			Read:      n.Read,
			CreatedAt: n.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// MarkRead handles POST /api/v1/notification/{id}/read. Marking twice is a
// no-op success.
func (h *NotificationHandlers) MarkRead(w http.ResponseWriter, r *http.Request) {
	subject, ok := requireSubject(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.MarkRead(r.Context(), subject, id); err != nil {
		respondServiceError(w, err)
		return
	}
	respondOK(w)
}
