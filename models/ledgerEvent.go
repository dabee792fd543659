package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/erp_core/config"
	"github.com/mmdatafocus/erp_core/utils"
	"gorm.io/gorm"
)

// Outbox publish statuses for LedgerEventRecord.PublishStatus.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

const (
	EventDocumentConfirmed   = "document.confirmed"
	EventDocumentEdited      = "document.edited"
	EventDocumentCancelled   = "document.cancelled"
	EventDocumentPaid        = "document.paid"
	EventTransactionPosted   = "transaction.posted"
	EventTransactionReversed = "transaction.reversed"
	EventStockMoved          = "stock.moved"
	EventCashEntrySettled    = "cash_entry.settled"
	EventCashEntryCancelled  = "cash_entry.cancelled"
)

// LedgerEventRecord is the transactional outbox: written with the business effect,
// published after commit by the outbox dispatcher.
type LedgerEventRecord struct {
	ID            int       `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	BusinessId    string    `gorm:"size:64;not null;index" json:"business_id"`
	EventType     string    `gorm:"size:50;not null;index" json:"event_type"`
	ReferenceType string    `gorm:"size:30;not null" json:"reference_type"`
	ReferenceId   int       `gorm:"index" json:"reference_id"`
	OccurredAt    time.Time `gorm:"not null;index" json:"occurred_at"`
	Payload       []byte    `gorm:"type:blob" json:"payload"`
	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`

	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"`
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PublishedId      *string    `gorm:"size:255" json:"published_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// EnqueueLedgerEvent writes the event inside the caller's DB transaction. It does not publish.
func EnqueueLedgerEvent(tx *gorm.DB, businessId, eventType, referenceType string, referenceId int, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	record := LedgerEventRecord{
		BusinessId:    businessId,
		EventType:     eventType,
		ReferenceType: referenceType,
		ReferenceId:   referenceId,
		OccurredAt:    time.Now().UTC(),
		Payload:       data,
		CorrelationId: correlationIdFromContextOrNew(tx.Statement.Context),
		PublishStatus: OutboxPublishStatusPending,
	}
	return tx.Create(&record).Error
}

func (r LedgerEventRecord) ToMessage() config.LedgerEventMessage {
	return config.LedgerEventMessage{
		ID:            r.ID,
		BusinessId:    r.BusinessId,
		EventType:     r.EventType,
		ReferenceType: r.ReferenceType,
		ReferenceId:   r.ReferenceId,
		OccurredAt:    r.OccurredAt,
		Payload:       r.Payload,
		CorrelationId: r.CorrelationId,
	}
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
