package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/erp_core/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OutboxDispatcher publishes committed ledger events. Delivery is at-least-once:
// a crash between publish and mark-sent republishes the row after LockTimeout.
type OutboxDispatcher struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	Publisher    EventPublisher
	DispatcherID string

	BatchSize      int
	PollInterval   time.Duration
	LockTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

func NewOutboxDispatcher(db *gorm.DB, logger *logrus.Logger, publisher EventPublisher) *OutboxDispatcher {
	return &OutboxDispatcher{
		DB:             db,
		Logger:         logger,
		Publisher:      publisher,
		DispatcherID:   uuid.NewString(),
		BatchSize:      50,
		PollInterval:   500 * time.Millisecond,
		LockTimeout:    30 * time.Second,
		MaxAttempts:    20,
		InitialBackoff: 5 * time.Second,
	}
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.DispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

// DispatchOnce claims one batch, publishes it and records the outcome. It returns how many rows were sent.
func (d *OutboxDispatcher) DispatchOnce(ctx context.Context) int {
	now := time.Now().UTC()
	staleBefore := now.Add(-d.LockTimeout)
	db := d.DB
	if db == nil || d.Publisher == nil {
		return 0
	}

	var claimed []models.LedgerEventRecord
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Eligible:
		// - PENDING / FAILED and ready to retry
		// - PROCESSING but lock is stale (dispatcher crashed mid-batch), reclaim after LockTimeout
		q := tx.
			Where(`
				(
					publish_status IN ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
				)
				OR
				(
					publish_status = ? AND locked_at IS NOT NULL AND locked_at <= ?
				)
			`, []string{models.OutboxPublishStatusPending, models.OutboxPublishStatusFailed}, now, models.OutboxPublishStatusProcessing, staleBefore).
			Order("id ASC").
			Limit(d.BatchSize)
		if tx.Dialector.Name() == "mysql" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		for i := range claimed {
			// Poison messages go terminal (DLQ equivalent).
			if d.MaxAttempts > 0 && claimed[i].PublishAttempts >= d.MaxAttempts {
				msg := fmt.Sprintf("max publish attempts exceeded (%d)", d.MaxAttempts)
				claimed[i].PublishStatus = models.OutboxPublishStatusDead
				if err := tx.Model(&models.LedgerEventRecord{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
					"publish_status":     models.OutboxPublishStatusDead,
					"last_publish_error": &msg,
					"next_attempt_at":    nil,
					"locked_at":          nil,
					"locked_by":          nil,
				}).Error; err != nil {
					return err
				}
				continue
			}

			claimed[i].PublishStatus = models.OutboxPublishStatusProcessing
			claimed[i].PublishAttempts++
			if err := tx.Model(&models.LedgerEventRecord{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
				"publish_status":     models.OutboxPublishStatusProcessing,
				"locked_at":          &now,
				"locked_by":          &d.DispatcherID,
				"publish_attempts":   gorm.Expr("publish_attempts + 1"),
				"last_publish_error": nil,
				"next_attempt_at":    nil,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if d.Logger != nil {
			d.Logger.WithFields(logrus.Fields{"field": "OutboxDispatcher"}).Error("outbox claim failed: " + err.Error())
		}
		return 0
	}

	sent := 0
	for _, rec := range claimed {
		if rec.PublishStatus == models.OutboxPublishStatusDead {
			continue
		}
		pubID, pubErr := d.Publisher.Publish(ctx, rec.ToMessage())
		if pubErr != nil {
			d.markPublishFailed(ctx, rec.ID, rec.BusinessId, pubErr, rec.PublishAttempts)
			continue
		}
		d.markPublishSent(ctx, rec.ID, pubID)
		sent++
	}
	return sent
}

func (d *OutboxDispatcher) markPublishSent(ctx context.Context, recordID int, publishedID string) {
	now := time.Now().UTC()
	id := publishedID
	_ = d.DB.WithContext(ctx).Model(&models.LedgerEventRecord{}).
		Where("id = ?", recordID).
		Updates(map[string]interface{}{
			"publish_status":  models.OutboxPublishStatusSent,
			"published_at":    &now,
			"published_id":    &id,
			"locked_at":       nil,
			"locked_by":       nil,
			"next_attempt_at": nil,
		}).Error
}

func (d *OutboxDispatcher) markPublishFailed(ctx context.Context, recordID int, businessID string, err error, attempt int) {
	db := d.DB.WithContext(ctx)
	now := time.Now().UTC()
	msg := err.Error()

	if d.MaxAttempts > 0 && attempt >= d.MaxAttempts {
		_ = db.Model(&models.LedgerEventRecord{}).
			Where("id = ?", recordID).
			Updates(map[string]interface{}{
				"publish_status":     models.OutboxPublishStatusDead,
				"last_publish_error": &msg,
				"next_attempt_at":    nil,
				"locked_at":          nil,
				"locked_by":          nil,
			}).Error

		if d.Logger != nil {
			d.Logger.WithFields(logrus.Fields{
				"field":       "OutboxDispatcher",
				"business_id": businessID,
				"record_id":   recordID,
				"attempt":     attempt,
			}).Error("outbox publish moved to DEAD after max attempts: " + msg)
		}
		return
	}

	next := now.Add(publishBackoff(d.InitialBackoff, attempt))
	_ = db.Model(&models.LedgerEventRecord{}).
		Where("id = ?", recordID).
		Updates(map[string]interface{}{
			"publish_status":     models.OutboxPublishStatusFailed,
			"last_publish_error": &msg,
			"next_attempt_at":    &next,
			"locked_at":          nil,
			"locked_by":          nil,
		}).Error

	if d.Logger != nil {
		d.Logger.WithFields(logrus.Fields{
			"field":           "OutboxDispatcher",
			"business_id":     businessID,
			"record_id":       recordID,
			"attempt":         attempt,
			"next_attempt_at": next.Format(time.RFC3339Nano),
		}).Error("outbox publish failed: " + msg)
	}
}

// publishBackoff doubles from initial per attempt, capped at ten minutes.
func publishBackoff(initial time.Duration, attempt int) time.Duration {
	backoff := initial
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > 10*time.Minute {
			return 10 * time.Minute
		}
	}
	return backoff
}

// RequeueDeadEvents moves DEAD rows back to PENDING with a fresh attempt budget. It returns the number requeued.
func RequeueDeadEvents(tx *gorm.DB, businessId string) (int64, error) {
	res := tx.Model(&models.LedgerEventRecord{}).
		Where("business_id = ? AND publish_status = ?", businessId, models.OutboxPublishStatusDead).
		Updates(map[string]interface{}{
			"publish_status":     models.OutboxPublishStatusPending,
			"publish_attempts":   0,
			"next_attempt_at":    nil,
			"last_publish_error": nil,
		})
	return res.RowsAffected, res.Error
}
