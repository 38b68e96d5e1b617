package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/dealflow-backend/pkg/logger"
)

const (
	outboxRetentionDays       = 30
	notificationRetentionDays = 90
	purgeBatchSize            = 1000
	maxPurgeBatches           = 50
)

// purgeFunc deletes at most limit rows older than cutoff and reports how many went.
type purgeFunc func(tx *gorm.DB, cutoff time.Time, limit int) (int64, error)

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository interface {
		DeletePublishedBefore(tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
	}
	Retention int
	BatchSize int
}

// NewOutboxRetentionJob drops published outbox rows past the retention
// window. Rows still waiting for delivery are kept however old they are.
func NewOutboxRetentionJob(p OutboxRetentionJobParams) (Job, error) {
	if p.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	return newPurgeJob("outbox-retention", p.Logger, p.DB, p.Repository.DeletePublishedBefore,
		orDefault(p.Retention, outboxRetentionDays), orDefault(p.BatchSize, purgeBatchSize))
}

type NotificationCleanupJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository interface {
		DeleteOlderThan(tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
	}
	Retention int
	BatchSize int
}

// NewNotificationCleanupJob drops in-app notifications past the retention window.
func NewNotificationCleanupJob(p NotificationCleanupJobParams) (Job, error) {
	if p.Repository == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	return newPurgeJob("notification-cleanup", p.Logger, p.DB, p.Repository.DeleteOlderThan,
		orDefault(p.Retention, notificationRetentionDays), orDefault(p.BatchSize, purgeBatchSize))
}

// purgeJob deletes in bounded batches, one transaction each, until a batch
// comes back short or the per-run cap is reached.
type purgeJob struct {
	name          string
	logg          *logger.Logger
	db            txRunner
	purge         purgeFunc
	retentionDays int
	batch         int
	now           func() time.Time
}

func newPurgeJob(name string, logg *logger.Logger, db txRunner, purge purgeFunc, days, batch int) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if db == nil {
		return nil, fmt.Errorf("db runner required")
	}
	return &purgeJob{
		name:          name,
		logg:          logg,
		db:            db,
		purge:         purge,
		retentionDays: days,
		batch:         batch,
		now:           time.Now,
	}, nil
}

func (j *purgeJob) Name() string { return j.name }

func (j *purgeJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().AddDate(0, 0, -j.retentionDays)
	var total int64
	batches := 0
	for batches < maxPurgeBatches {
		if err := ctx.Err(); err != nil {
			return err
		}
		var n int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			n, err = j.purge(tx, cutoff, j.batch)
			return err
		})
		if err != nil {
			return fmt.Errorf("%s batch %d: %w", j.name, batches+1, err)
		}
		batches++
		total += n
		if n < int64(j.batch) {
			break
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retentionDays,
		"batches":        batches,
		"rows_deleted":   total,
	}), "retention purge complete")
	return nil
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
