package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/openpseudonym/idbroker/internal/db/models"
)

// BunClaimRepository persists claims using Bun against SQLite or PostgreSQL.
type BunClaimRepository struct {
	db bun.IDB
}

// NewBunClaimRepository constructs a repository backed by Bun.
func NewBunClaimRepository(db bun.IDB) *BunClaimRepository {
	return &BunClaimRepository{db: db}
}

// Insert adds a new claim row. The (owner, name) pair is protected by a
// unique index; violating it reports ErrDuplicate so callers can distinguish
// a lost insert race from a storage failure.
func (r *BunClaimRepository) Insert(ctx context.Context, claim *models.Claim) error {
	if err := claim.ValidateForCreate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	claim.CreatedAt = now
	claim.UpdatedAt = now

	if _, err := r.db.NewInsert().Model(claim).Exec(ctx); err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("claim '%s' already exists for owner '%s': %w", claim.Name, claim.Owner, ErrDuplicate)
		}
		return fmt.Errorf("insert claim: %w", err)
	}
	return nil
}

// Update persists mutated value, context and fingerprint in place.
func (r *BunClaimRepository) Update(ctx context.Context, claim *models.Claim) error {
	claim.UpdatedAt = time.Now()

	result, err := r.db.NewUpdate().
		Model(claim).
		Column("value", "context", "fingerprint", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update claim: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("claim '%s': %w", claim.ID, ErrNotFound)
	}
	return nil
}

// GetByID fetches a claim by id.
func (r *BunClaimRepository) GetByID(ctx context.Context, id string) (*models.Claim, error) {
	claim := new(models.Claim)
	err := r.db.NewSelect().Model(claim).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("claim '%s': %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("query claim: %w", err)
	}
	return claim, nil
}

// GetByOwnerAndName fetches the single claim for a (owner, name) pair.
func (r *BunClaimRepository) GetByOwnerAndName(ctx context.Context, owner, name string) (*models.Claim, error) {
	claim := new(models.Claim)
	err := r.db.NewSelect().
		Model(claim).
		Where("owner = ?", owner).
		Where("name = ?", name).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("claim '%s' of owner '%s': %w", name, owner, ErrNotFound)
		}
		return nil, fmt.Errorf("query claim by owner and name: %w", err)
	}
	return claim, nil
}

// ListByOwner returns all claims of an identity ordered by name.
func (r *BunClaimRepository) ListByOwner(ctx context.Context, owner string) ([]models.Claim, error) {
	var claims []models.Claim
	err := r.db.NewSelect().
		Model(&claims).
		Where("owner = ?", owner).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}

	if claims == nil {
		claims = []models.Claim{}
	}
	return claims, nil
}

// Delete removes a claim row.
func (r *BunClaimRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.NewDelete().
		Model((*models.Claim)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete claim: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("claim '%s': %w", id, ErrNotFound)
	}
	return nil
}

func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "unique constraint") || strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "23505")
}
