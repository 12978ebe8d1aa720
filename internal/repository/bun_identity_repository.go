package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/openpseudonym/idbroker/internal/db/models"
)

// BunIdentityRepository persists identities using Bun against SQLite or PostgreSQL.
type BunIdentityRepository struct {
	db bun.IDB
}

// NewBunIdentityRepository constructs a repository backed by Bun. The handle
// may be a *bun.DB or a bun.Tx so services can run repositories inside a
// transaction.
func NewBunIdentityRepository(db bun.IDB) *BunIdentityRepository {
	return &BunIdentityRepository{db: db}
}

// Create inserts a new identity row using the caller-provided id.
func (r *BunIdentityRepository) Create(ctx context.Context, identity *models.Identity) error {
	if err := identity.ValidateForCreate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	identity.CreatedAt = time.Now()

	if _, err := r.db.NewInsert().Model(identity).Exec(ctx); err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

// GetByID fetches an identity by its opaque id.
func (r *BunIdentityRepository) GetByID(ctx context.Context, id string) (*models.Identity, error) {
	identity := new(models.Identity)
	err := r.db.NewSelect().Model(identity).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("identity '%s': %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("query identity: %w", err)
	}
	return identity, nil
}

// GetIfOwnedBy fetches an identity only when it belongs to the given subject.
// A single indexed lookup; absence covers both "no such id" and "not yours".
func (r *BunIdentityRepository) GetIfOwnedBy(ctx context.Context, id, subject string) (*models.Identity, error) {
	identity := new(models.Identity)
	err := r.db.NewSelect().
		Model(identity).
		Where("id = ?", id).
		Where("subject = ?", subject).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("identity '%s' for subject: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("query identity ownership: %w", err)
	}
	return identity, nil
}

// ListBySubject returns all identities minted by the subject, oldest first.
func (r *BunIdentityRepository) ListBySubject(ctx context.Context, subject string) ([]models.Identity, error) {
	var identities []models.Identity
	err := r.db.NewSelect().
		Model(&identities).
		Where("subject = ?", subject).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}

	if identities == nil {
		identities = []models.Identity{}
	}
	return identities, nil
}

// UpdateDisplayName sets the human-readable name shown on an identity.
func (r *BunIdentityRepository) UpdateDisplayName(ctx context.Context, id, displayName string) error {
	result, err := r.db.NewUpdate().
		Model((*models.Identity)(nil)).
		Set("display_name = ?", displayName).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update identity display name: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("identity '%s': %w", id, ErrNotFound)
	}
	return nil
}

// Delete removes the identity row. Dependent claims are removed by the
// schema's cascading foreign key; access requests and notifications are the
// responsibility of the application-level cascade running in the same
// transaction.
func (r *BunIdentityRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.NewDelete().
		Model((*models.Identity)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("identity '%s': %w", id, ErrNotFound)
	}
	return nil
}
