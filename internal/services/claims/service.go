// Package claims implements the claim store service. Claims are upserted by
// (owner, name), content-fingerprinted to detect no-op rewrites, and listable
// with an optional boolean filter expression.
package claims

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hashicorp/go-bexpr"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/uptrace/bun"

	"github.com/openpseudonym/idbroker/internal/db/bunx"
	"github.com/openpseudonym/idbroker/internal/db/models"
	"github.com/openpseudonym/idbroker/internal/fingerprint"
	"github.com/openpseudonym/idbroker/internal/repository"
	"github.com/openpseudonym/idbroker/internal/sanitize"
	"github.com/openpseudonym/idbroker/internal/services"
)

// matcherCacheSize bounds the cache of compiled filter expressions. Filters
// repeat heavily across polling clients, so compilation is worth caching.
const matcherCacheSize = 128

// Service orchestrates claim persistence for the HTTP handlers.
type Service struct {
	db       *bun.DB
	matchers *lru.Cache[string, *bexpr.Evaluator]
}

// NewService constructs a new Service instance.
func NewService(db *bun.DB) *Service {
	matchers, err := lru.New[string, *bexpr.Evaluator](matcherCacheSize)
	if err != nil {
		// lru.New fails only on a non-positive size.
		panic(err)
	}
	return &Service{db: db, matchers: matchers}
}

// Upsert writes a claim for one of the caller's identities. A second write
// for the same (owner, name) updates the existing row in place and returns
// its id; an identical payload (same content fingerprint) leaves the row
// untouched entirely. Returns the claim id and whether a new row was created.
func (s *Service) Upsert(ctx context.Context, subject, ownerID, name, value string, claimContext map[string]any) (string, bool, error) {
	if _, err := repository.NewBunIdentityRepository(s.db).GetIfOwnedBy(ctx, ownerID, subject); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", false, fmt.Errorf("identity '%s': %w", ownerID, services.ErrUnauthorized)
		}
		return "", false, err
	}

	name = sanitize.String(name)
	value = sanitize.String(value)
	claimContext = sanitize.Map(claimContext)

	claim := &models.Claim{
		ID:          bunx.NewUUIDv7(),
		Owner:       ownerID,
		Name:        name,
		Value:       value,
		Context:     claimContext,
		Fingerprint: fingerprint.Claim(value, claimContext),
	}
	if err := claim.ValidateForCreate(); err != nil {
		return "", false, fmt.Errorf("%w: %s", services.ErrInvalidInput, err)
	}

	var id string
	var created bool
	err := s.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(ctx context.Context, tx bun.Tx) error {
		repo := repository.NewBunClaimRepository(tx)

		existing, err := repo.GetByOwnerAndName(ctx, ownerID, name)
		switch {
		case err == nil:
			id = existing.ID
			if fingerprint.Equal(existing.Fingerprint, claim.Fingerprint) {
				return nil
			}
			existing.Value = claim.Value
			existing.Context = claim.Context
			existing.Fingerprint = claim.Fingerprint
			return repo.Update(ctx, existing)

		case errors.Is(err, repository.ErrNotFound):
			id = claim.ID
			created = true
			return repo.Insert(ctx, claim)

		default:
			return err
		}
	})
	if err != nil {
		return "", false, err
	}
	return id, created, nil
}

// Get fetches one of the caller's claims by id.
func (s *Service) Get(ctx context.Context, subject, claimID string) (*models.Claim, error) {
	claim, err := repository.NewBunClaimRepository(s.db).GetByID(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwnership(ctx, subject, claim.Owner); err != nil {
		return nil, err
	}
	return claim, nil
}

// Delete removes one of the caller's claims. The claim stops appearing in
// disclosures immediately; accepted requests naming it are untouched.
func (s *Service) Delete(ctx context.Context, subject, claimID string) error {
	repo := repository.NewBunClaimRepository(s.db)
	claim, err := repo.GetByID(ctx, claimID)
	if err != nil {
		return err
	}
	if err := s.requireOwnership(ctx, subject, claim.Owner); err != nil {
		return err
	}
	return repo.Delete(ctx, claimID)
}

// ListMine returns the claims of one of the caller's identities, optionally
// filtered by a boolean expression over name, value and context, e.g.
// `name == "email" or context.verified == true`.
func (s *Service) ListMine(ctx context.Context, subject, ownerID, filter string) ([]models.Claim, error) {
	if err := s.requireOwnership(ctx, subject, ownerID); err != nil {
		return nil, err
	}

	claims, err := repository.NewBunClaimRepository(s.db).ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if filter == "" {
		return claims, nil
	}

	evaluator, err := s.matcher(filter)
	if err != nil {
		return nil, fmt.Errorf("%w: filter: %s", services.ErrInvalidInput, err)
	}

	matched := []models.Claim{}
	for _, claim := range claims {
		datum := map[string]any{
			"name":    claim.Name,
			"value":   claim.Value,
			"context": map[string]any(claim.Context),
		}
		ok, err := evaluator.Evaluate(datum)
		if err != nil {
			return nil, fmt.Errorf("%w: filter: %s", services.ErrInvalidInput, err)
		}
		if ok {
			matched = append(matched, claim)
		}
	}
	return matched, nil
}

func (s *Service) matcher(filter string) (*bexpr.Evaluator, error) {
	if evaluator, ok := s.matchers.Get(filter); ok {
		return evaluator, nil
	}
	evaluator, err := bexpr.CreateEvaluator(filter)
	if err != nil {
		return nil, err
	}
	s.matchers.Add(filter, evaluator)
	return evaluator, nil
}

func (s *Service) requireOwnership(ctx context.Context, subject, identityID string) error {
	if _, err := repository.NewBunIdentityRepository(s.db).GetIfOwnedBy(ctx, identityID, subject); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("identity '%s': %w", identityID, services.ErrUnauthorized)
		}
		return err
	}
	return nil
}
