package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealflow-backend/pkg/db/models"
	"github.com/angelmondragon/dealflow-backend/pkg/pagination"
)

// Repository stores in-app notifications. Every read and write is scoped to
// the owning user.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// listQuery selects one page of a user's notifications, newest first.
type listQuery struct {
	UserID     uuid.UUID
	Limit      int
	Cursor     *pagination.Cursor
	UnreadOnly bool
}

func (r *Repository) Create(ctx context.Context, n *models.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *Repository) List(ctx context.Context, q listQuery) ([]models.Notification, *pagination.Cursor, error) {
	scope := r.owned(ctx, q.UserID)
	if q.UnreadOnly {
		scope = scope.Where("read_at IS NULL")
	}
	var rows []models.Notification
	if err := pagination.Query(scope, q.Cursor, q.Limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Page(rows, q.Limit, func(n models.Notification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	})
	return page, next, nil
}

// MarkRead stamps read_at on one notification. It reports false when the
// user owns no such notification; marking an already read one is a no-op.
func (r *Repository) MarkRead(ctx context.Context, userID, id uuid.UUID, now time.Time) (bool, error) {
	var n models.Notification
	err := r.owned(ctx, userID).Select("id", "read_at").Where("id = ?", id).Take(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if n.ReadAt != nil {
		return true, nil
	}
	return true, r.owned(ctx, userID).
		Where("id = ? AND read_at IS NULL", id).
		UpdateColumn("read_at", now).Error
}

func (r *Repository) MarkAllRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	res := r.owned(ctx, userID).Where("read_at IS NULL").UpdateColumn("read_at", now)
	return res.RowsAffected, res.Error
}

// DeleteOlderThan removes up to limit notifications created before cutoff.
func (r *Repository) DeleteOlderThan(tx *gorm.DB, cutoff time.Time, limit int) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	stale := tx.Model(&models.Notification{}).Select("id").Where("created_at < ?", cutoff).Limit(limit)
	res := tx.Where("id IN (?)", stale).Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}

func (r *Repository) owned(ctx context.Context, userID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
}
