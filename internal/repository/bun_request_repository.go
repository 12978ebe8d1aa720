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

// BunRequestRepository persists access requests using Bun against SQLite or
// PostgreSQL.
type BunRequestRepository struct {
	db bun.IDB
}

// NewBunRequestRepository constructs a repository backed by Bun.
func NewBunRequestRepository(db bun.IDB) *BunRequestRepository {
	return &BunRequestRepository{db: db}
}

// Create inserts a new access request in the pending state.
func (r *BunRequestRepository) Create(ctx context.Context, request *models.AccessRequest) error {
	if err := request.ValidateForCreate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	request.Status = models.StatusPending
	request.CreatedAt = time.Now()

	if _, err := r.db.NewInsert().Model(request).Exec(ctx); err != nil {
		return fmt.Errorf("insert access request: %w", err)
	}
	return nil
}

// GetByID fetches an access request by id.
func (r *BunRequestRepository) GetByID(ctx context.Context, id string) (*models.AccessRequest, error) {
	request := new(models.AccessRequest)
	err := r.db.NewSelect().Model(request).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("access request '%s': %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("query access request: %w", err)
	}
	return request, nil
}

// TransitionStatus flips a pending request to a terminal status. The guard on
// the current status makes concurrent accept/deny races resolve to exactly one
// winner; the loser sees zero rows affected.
func (r *BunRequestRepository) TransitionStatus(ctx context.Context, id string, to models.RequestStatus) (int64, error) {
	result, err := r.db.NewUpdate().
		Model((*models.AccessRequest)(nil)).
		Set("status = ?", to).
		Where("id = ?", id).
		Where("status = ?", models.StatusPending).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("transition access request: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}

// ListByOwner returns all requests addressed to an owner identity, newest first.
func (r *BunRequestRepository) ListByOwner(ctx context.Context, owner string) ([]models.AccessRequest, error) {
	return r.list(ctx, "owner = ?", owner)
}

// ListByRequester returns all requests initiated by a requester identity, newest first.
func (r *BunRequestRepository) ListByRequester(ctx context.Context, requester string) ([]models.AccessRequest, error) {
	return r.list(ctx, "requester = ?", requester)
}

func (r *BunRequestRepository) list(ctx context.Context, where string, arg string) ([]models.AccessRequest, error) {
	var requests []models.AccessRequest
	err := r.db.NewSelect().
		Model(&requests).
		Where(where, arg).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list access requests: %w", err)
	}

	if requests == nil {
		requests = []models.AccessRequest{}
	}
	return requests, nil
}

// ListAccepted returns every accepted request from requester to owner. The
// disclosure rule takes the union of their claim sets.
func (r *BunRequestRepository) ListAccepted(ctx context.Context, owner, requester string) ([]models.AccessRequest, error) {
	var requests []models.AccessRequest
	err := r.db.NewSelect().
		Model(&requests).
		Where("owner = ?", owner).
		Where("requester = ?", requester).
		Where("status = ?", models.StatusAccepted).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accepted access requests: %w", err)
	}

	if requests == nil {
		requests = []models.AccessRequest{}
	}
	return requests, nil
}

// Delete removes an access request regardless of its status.
func (r *BunRequestRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.NewDelete().
		Model((*models.AccessRequest)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete access request: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("access request '%s': %w", id, ErrNotFound)
	}
	return nil
}
