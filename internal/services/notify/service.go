// Package notify implements the notification fanout. Notifications are
// written in the same transaction as the state change that triggers them, so
// the emitting services pass their transaction-bound repository into Record
// rather than going through this package's own handle.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/uptrace/bun"

	"github.com/openpseudonym/idbroker/internal/db/bunx"
	"github.com/openpseudonym/idbroker/internal/db/models"
	"github.com/openpseudonym/idbroker/internal/repository"
	"github.com/openpseudonym/idbroker/internal/services"
)

// NewRequest is the context payload of a NEW_REQUEST notification sent to the
// owner of the requested claims.
type NewRequest struct {
	Requester string `mapstructure:"requester"`
}

// RequestResolved is the context payload of a REQUEST_ACCEPTED or
// REQUEST_DENIED notification sent to the requester.
type RequestResolved struct {
	Owner string `mapstructure:"owner"`
}

// RequestDeleted is the context payload of a REQUEST_DELETED notification.
// An explicit delete names both parties; the identity-deletion cascade only
// names the requester that vanished, so unset sides are omitted.
type RequestDeleted struct {
	Owner     string `mapstructure:"owner,omitempty"`
	Requester string `mapstructure:"requester,omitempty"`
}

// Record appends one notification for recipient through the given repository,
// which may be transaction-bound. The typed payload is flattened into the
// stored context map. An error here must abort the caller's transaction.
func Record(ctx context.Context, repo repository.NotificationRepository, recipient, notificationType string, payload any) (string, error) {
	contextMap := models.ContextMap{}
	if payload != nil {
		if err := mapstructure.Decode(payload, &contextMap); err != nil {
			return "", fmt.Errorf("encode notification context: %w", err)
		}
	}

	notification := &models.Notification{
		ID:      bunx.NewUUIDv7(),
		Owner:   recipient,
		Type:    notificationType,
		Context: contextMap,
	}
	if err := repo.Create(ctx, notification); err != nil {
		return "", err
	}
	return notification.ID, nil
}

// Service exposes the recipient-facing inbox operations.
type Service struct {
	db *bun.DB
}

// NewService constructs a new Service instance.
func NewService(db *bun.DB) *Service {
	return &Service{db: db}
}

// Inbox returns the notifications of one of the caller's identities, newest
// first. The identity must belong to the caller's subject.
func (s *Service) Inbox(ctx context.Context, subject, identityID string) ([]models.Notification, error) {
	identities := repository.NewBunIdentityRepository(s.db)
	if _, err := identities.GetIfOwnedBy(ctx, identityID, subject); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("identity '%s': %w", identityID, services.ErrUnauthorized)
		}
		return nil, err
	}

	return repository.NewBunNotificationRepository(s.db).ListByOwner(ctx, identityID)
}

// MarkRead flags a notification as read. The caller must own the recipient
// identity. Marking twice succeeds without effect.
func (s *Service) MarkRead(ctx context.Context, subject, notificationID string) error {
	notifications := repository.NewBunNotificationRepository(s.db)

	notification, err := notifications.GetByID(ctx, notificationID)
	if err != nil {
		return err
	}

	identities := repository.NewBunIdentityRepository(s.db)
	if _, err := identities.GetIfOwnedBy(ctx, notification.Owner, subject); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("notification '%s': %w", notificationID, services.ErrUnauthorized)
		}
		return err
	}

	return notifications.MarkRead(ctx, notificationID)
}
