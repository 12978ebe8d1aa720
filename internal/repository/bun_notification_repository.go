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

// BunNotificationRepository persists notifications using Bun against SQLite
// or PostgreSQL.
type BunNotificationRepository struct {
	db bun.IDB
}

// NewBunNotificationRepository constructs a repository backed by Bun.
func NewBunNotificationRepository(db bun.IDB) *BunNotificationRepository {
	return &BunNotificationRepository{db: db}
}

// Create appends a notification row. Notifications are written in the same
// transaction as the state change that triggers them; a failure here must
// fail the whole operation.
func (r *BunNotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	notification.Read = false
	notification.CreatedAt = time.Now()

	if _, err := r.db.NewInsert().Model(notification).Exec(ctx); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// GetByID fetches a notification by id.
func (r *BunNotificationRepository) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	notification := new(models.Notification)
	err := r.db.NewSelect().Model(notification).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("notification '%s': %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("query notification: %w", err)
	}
	return notification, nil
}

// ListByOwner returns the inbox of a recipient identity, newest first.
func (r *BunNotificationRepository) ListByOwner(ctx context.Context, owner string) ([]models.Notification, error) {
	var notifications []models.Notification
	err := r.db.NewSelect().
		Model(&notifications).
		Where("owner = ?", owner).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	if notifications == nil {
		notifications = []models.Notification{}
	}
	return notifications, nil
}

// MarkRead sets the read flag. Marking twice is a no-op success, so the
// update is not guarded on the current flag; only a missing row is an error.
func (r *BunNotificationRepository) MarkRead(ctx context.Context, id string) error {
	result, err := r.db.NewUpdate().
		Model((*models.Notification)(nil)).
		Set("read = ?", true).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("notification '%s': %w", id, ErrNotFound)
	}
	return nil
}

// DeleteByOwner removes an identity's whole inbox. Used only by the identity
// deletion cascade.
func (r *BunNotificationRepository) DeleteByOwner(ctx context.Context, owner string) error {
	if _, err := r.db.NewDelete().
		Model((*models.Notification)(nil)).
		Where("owner = ?", owner).
		Exec(ctx); err != nil {
		return fmt.Errorf("delete notifications for owner: %w", err)
	}
	return nil
}
