// Package identity implements the identity registry: pseudonym minting,
// enumeration, display-name updates and cascading deletion.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/openpseudonym/idbroker/internal/db/bunx"
	"github.com/openpseudonym/idbroker/internal/db/models"
	"github.com/openpseudonym/idbroker/internal/repository"
	"github.com/openpseudonym/idbroker/internal/sanitize"
	"github.com/openpseudonym/idbroker/internal/services"
	"github.com/openpseudonym/idbroker/internal/services/notify"
)

// Service orchestrates identity persistence for the HTTP handlers.
type Service struct {
	db *bun.DB
}

// NewService constructs a new Service instance.
func NewService(db *bun.DB) *Service {
	return &Service{db: db}
}

// Register mints a new pseudonymous identity for the caller's subject. A
// subject may hold any number of identities; only the opaque id is ever shown
// to other parties.
func (s *Service) Register(ctx context.Context, subject, displayName string) (*models.Identity, error) {
	identity := &models.Identity{
		ID:          bunx.NewUUIDv7(),
		Subject:     subject,
		DisplayName: sanitize.String(displayName),
	}
	if err := identity.ValidateForCreate(); err != nil {
		return nil, fmt.Errorf("%w: %s", services.ErrInvalidInput, err)
	}

	repo := repository.NewBunIdentityRepository(s.db)
	if err := repo.Create(ctx, identity); err != nil {
		return nil, err
	}
	return identity, nil
}

// ListMine returns every identity registered for the caller's subject.
func (s *Service) ListMine(ctx context.Context, subject string) ([]models.Identity, error) {
	return repository.NewBunIdentityRepository(s.db).ListBySubject(ctx, subject)
}

// Get fetches one of the caller's identities. A foreign or unknown id yields
// ErrUnauthorized so existence of other identities cannot be probed.
func (s *Service) Get(ctx context.Context, subject, id string) (*models.Identity, error) {
	identity, err := repository.NewBunIdentityRepository(s.db).GetIfOwnedBy(ctx, id, subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("identity '%s': %w", id, services.ErrUnauthorized)
		}
		return nil, err
	}
	return identity, nil
}

// SetDisplayName updates the display name of one of the caller's identities.
func (s *Service) SetDisplayName(ctx context.Context, subject, id, displayName string) error {
	repo := repository.NewBunIdentityRepository(s.db)
	if _, err := repo.GetIfOwnedBy(ctx, id, subject); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("identity '%s': %w", id, services.ErrUnauthorized)
		}
		return err
	}
	return repo.UpdateDisplayName(ctx, id, sanitize.String(displayName))
}

// Delete removes one of the caller's identities together with everything
// hanging off it. Requests against the identity are closed with a
// REQUEST_DENIED to their requester, requests it opened are removed with a
// REQUEST_DELETED to their owner, the identity's own inbox is dropped, and
// its claims go with the row via the foreign key. The whole cascade is one
// serializable transaction; any failed write rolls back all of it.
func (s *Service) Delete(ctx context.Context, subject, id string) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(ctx context.Context, tx bun.Tx) error {
		identities := repository.NewBunIdentityRepository(tx)
		requests := repository.NewBunRequestRepository(tx)
		notifications := repository.NewBunNotificationRepository(tx)

		if _, err := identities.GetIfOwnedBy(ctx, id, subject); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("identity '%s': %w", id, services.ErrUnauthorized)
			}
			return err
		}

		asOwner, err := requests.ListByOwner(ctx, id)
		if err != nil {
			return err
		}
		asRequester, err := requests.ListByRequester(ctx, id)
		if err != nil {
			return err
		}

		// The vanished owner can no longer grant anything, so its pending
		// requests read as denials to the requester. Requests the identity
		// opened itself are merely gone.
		for _, request := range asOwner {
			if err := requests.Delete(ctx, request.ID); err != nil {
				return err
			}
			payload := notify.RequestResolved{Owner: id}
			if _, err := notify.Record(ctx, notifications, request.Requester, models.NotificationRequestDenied, payload); err != nil {
				return err
			}
		}
		for _, request := range asRequester {
			if err := requests.Delete(ctx, request.ID); err != nil {
				return err
			}
			payload := notify.RequestDeleted{Requester: id}
			if _, err := notify.Record(ctx, notifications, request.Owner, models.NotificationRequestDeleted, payload); err != nil {
				return err
			}
		}

		if err := notifications.DeleteByOwner(ctx, id); err != nil {
			return err
		}

		return identities.Delete(ctx, id)
	})
}
