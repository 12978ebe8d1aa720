package repository

import (
	"context"

	"github.com/openpseudonym/idbroker/internal/db/models"
)

// IdentityRepository exposes persistence operations for pseudonymous identities.
type IdentityRepository interface {
	Create(ctx context.Context, identity *models.Identity) error
	GetByID(ctx context.Context, id string) (*models.Identity, error)
	// GetIfOwnedBy fetches an identity only when it belongs to subject.
	// Returns ErrNotFound otherwise; callers must treat that as an
	// authorization failure, not as proof the id does not exist.
	GetIfOwnedBy(ctx context.Context, id, subject string) (*models.Identity, error)
	ListBySubject(ctx context.Context, subject string) ([]models.Identity, error)
	UpdateDisplayName(ctx context.Context, id, displayName string) error
	Delete(ctx context.Context, id string) error
}

// ClaimRepository exposes persistence operations for claims.
type ClaimRepository interface {
	Insert(ctx context.Context, claim *models.Claim) error
	Update(ctx context.Context, claim *models.Claim) error
	GetByID(ctx context.Context, id string) (*models.Claim, error)
	GetByOwnerAndName(ctx context.Context, owner, name string) (*models.Claim, error)
	ListByOwner(ctx context.Context, owner string) ([]models.Claim, error)
	Delete(ctx context.Context, id string) error
}

// RequestRepository exposes persistence operations for access requests.
type RequestRepository interface {
	Create(ctx context.Context, request *models.AccessRequest) error
	GetByID(ctx context.Context, id string) (*models.AccessRequest, error)
	// TransitionStatus atomically flips status from StatusPending to the
	// given terminal status. Returns the number of rows updated; zero means
	// the request is missing or no longer pending.
	TransitionStatus(ctx context.Context, id string, to models.RequestStatus) (int64, error)
	ListByOwner(ctx context.Context, owner string) ([]models.AccessRequest, error)
	ListByRequester(ctx context.Context, requester string) ([]models.AccessRequest, error)
	// ListAccepted returns all accepted requests from requester to owner.
	ListAccepted(ctx context.Context, owner, requester string) ([]models.AccessRequest, error)
	Delete(ctx context.Context, id string) error
}

// NotificationRepository exposes persistence operations for notifications.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	GetByID(ctx context.Context, id string) (*models.Notification, error)
	ListByOwner(ctx context.Context, owner string) ([]models.Notification, error)
	// MarkRead flips the read flag. Marking an already-read notification is
	// a no-op success; a missing row is ErrNotFound.
	MarkRead(ctx context.Context, id string) error
	DeleteByOwner(ctx context.Context, owner string) error
}
