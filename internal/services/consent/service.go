// Package consent implements the access-request ledger and the disclosure
// derivation built on top of it. A request proposes read access to a fixed
// set of claim names; the owner accepts or denies it; accepted requests drive
// which claims a requester can see, re-derived on every read.
package consent

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

// Role selects which side of a request the caller is querying for.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleRequester Role = "requester"
)

// Service orchestrates the request lifecycle for the HTTP handlers.
type Service struct {
	db *bun.DB
}

// NewService constructs a new Service instance.
func NewService(db *bun.DB) *Service {
	return &Service{db: db}
}

// Create opens a pending access request from one of the caller's identities
// to another identity's claims. Both identities must exist; the requested
// claim names are captured as-is and deliberately not checked against the
// owner's current claims, so a claim written after acceptance still becomes
// visible. The owner is notified in the same transaction.
func (s *Service) Create(ctx context.Context, subject, ownerID, requesterID string, claimNames []string) (string, error) {
	// Names that are pure markup sanitize to "" and can never match a
	// stored claim, so they are dropped rather than captured.
	names := make(models.ClaimNames, 0, len(claimNames))
	for _, name := range claimNames {
		if name = sanitize.String(name); name != "" {
			names = append(names, name)
		}
	}

	request := &models.AccessRequest{
		ID:        bunx.NewUUIDv7(),
		Owner:     ownerID,
		Requester: requesterID,
		Claims:    names,
		Status:    models.StatusPending,
	}
	if err := request.ValidateForCreate(); err != nil {
		return "", fmt.Errorf("%w: %s", services.ErrInvalidInput, err)
	}

	err := s.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(ctx context.Context, tx bun.Tx) error {
		identities := repository.NewBunIdentityRepository(tx)

		if _, err := identities.GetIfOwnedBy(ctx, requesterID, subject); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("identity '%s': %w", requesterID, services.ErrUnauthorized)
			}
			return err
		}
		if _, err := identities.GetByID(ctx, ownerID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("owner '%s': %w", ownerID, services.ErrInvalidReference)
			}
			return err
		}

		if err := repository.NewBunRequestRepository(tx).Create(ctx, request); err != nil {
			return err
		}

		notifications := repository.NewBunNotificationRepository(tx)
		_, err := notify.Record(ctx, notifications, ownerID, models.NotificationNewRequest,
			notify.NewRequest{Requester: requesterID})
		return err
	})
	if err != nil {
		return "", err
	}
	return request.ID, nil
}

// Accept moves a pending request to ACCEPTED and notifies the requester.
func (s *Service) Accept(ctx context.Context, subject, requestID string) error {
	return s.resolve(ctx, subject, requestID, models.StatusAccepted, models.NotificationRequestAccepted)
}

// Deny moves a pending request to DENIED and notifies the requester.
func (s *Service) Deny(ctx context.Context, subject, requestID string) error {
	return s.resolve(ctx, subject, requestID, models.StatusDenied, models.NotificationRequestDenied)
}

// resolve flips the status of a pending request. The flip is guarded on the
// current status so two racing resolutions cannot both win; the loser reads
// the row back to report ErrNotFound or ErrInvalidTransition instead of a
// silently lost update. The requester's notification rides the same
// transaction, so a failed write rolls the flip back.
func (s *Service) resolve(ctx context.Context, subject, requestID string, to models.RequestStatus, notificationType string) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(ctx context.Context, tx bun.Tx) error {
		requests := repository.NewBunRequestRepository(tx)

		request, err := requests.GetByID(ctx, requestID)
		if err != nil {
			return err
		}

		identities := repository.NewBunIdentityRepository(tx)
		if _, err := identities.GetIfOwnedBy(ctx, request.Owner, subject); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("request '%s': %w", requestID, services.ErrUnauthorized)
			}
			return err
		}

		rows, err := requests.TransitionStatus(ctx, requestID, to)
		if err != nil {
			return err
		}
		if rows == 0 {
			if _, err := requests.GetByID(ctx, requestID); err != nil {
				return err
			}
			return fmt.Errorf("request '%s': %w", requestID, services.ErrInvalidTransition)
		}

		notifications := repository.NewBunNotificationRepository(tx)
		_, err = notify.Record(ctx, notifications, request.Requester, notificationType,
			notify.RequestResolved{Owner: request.Owner})
		return err
	})
}

// Delete removes a request in any status. Either party may delete; the side
// that did not initiate is notified in the same transaction.
func (s *Service) Delete(ctx context.Context, subject, requestID string) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(ctx context.Context, tx bun.Tx) error {
		requests := repository.NewBunRequestRepository(tx)

		request, err := requests.GetByID(ctx, requestID)
		if err != nil {
			return err
		}

		identities := repository.NewBunIdentityRepository(tx)
		recipient := ""
		if _, err := identities.GetIfOwnedBy(ctx, request.Owner, subject); err == nil {
			recipient = request.Requester
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		} else if _, err := identities.GetIfOwnedBy(ctx, request.Requester, subject); err == nil {
			recipient = request.Owner
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		} else {
			return fmt.Errorf("request '%s': %w", requestID, services.ErrUnauthorized)
		}

		if err := requests.Delete(ctx, requestID); err != nil {
			return err
		}

		notifications := repository.NewBunNotificationRepository(tx)
		_, err = notify.Record(ctx, notifications, recipient, models.NotificationRequestDeleted,
			notify.RequestDeleted{Owner: request.Owner, Requester: request.Requester})
		return err
	})
}

// ListMine returns every request where one of the caller's identities sits on
// the given side.
func (s *Service) ListMine(ctx context.Context, subject string, role Role) ([]models.AccessRequest, error) {
	if role != RoleOwner && role != RoleRequester {
		return nil, fmt.Errorf("%w: role must be %q or %q", services.ErrInvalidInput, RoleOwner, RoleRequester)
	}

	identities, err := repository.NewBunIdentityRepository(s.db).ListBySubject(ctx, subject)
	if err != nil {
		return nil, err
	}

	requests := repository.NewBunRequestRepository(s.db)
	all := []models.AccessRequest{}
	for _, identity := range identities {
		var batch []models.AccessRequest
		if role == RoleOwner {
			batch, err = requests.ListByOwner(ctx, identity.ID)
		} else {
			batch, err = requests.ListByRequester(ctx, identity.ID)
		}
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
	}
	return all, nil
}

// VisibleClaims derives what requester may currently read from owner: the
// union of claim names across all accepted requests from that requester,
// intersected with the owner's live claims. Nothing is materialized; denial,
// request deletion or claim deletion takes effect on the next call. An empty
// result is an ordinary answer, not an error. The caller must own the
// requester identity.
func (s *Service) VisibleClaims(ctx context.Context, subject, ownerID, requesterID string) ([]models.Claim, error) {
	identities := repository.NewBunIdentityRepository(s.db)
	if _, err := identities.GetIfOwnedBy(ctx, requesterID, subject); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("identity '%s': %w", requesterID, services.ErrUnauthorized)
		}
		return nil, err
	}

	accepted, err := repository.NewBunRequestRepository(s.db).ListAccepted(ctx, ownerID, requesterID)
	if err != nil {
		return nil, err
	}

	granted := map[string]bool{}
	for _, request := range accepted {
		for _, name := range request.Claims {
			granted[name] = true
		}
	}
	if len(granted) == 0 {
		return []models.Claim{}, nil
	}

	owned, err := repository.NewBunClaimRepository(s.db).ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	visible := []models.Claim{}
	for _, claim := range owned {
		if granted[claim.Name] {
			visible = append(visible, claim)
		}
	}
	return visible, nil
}
