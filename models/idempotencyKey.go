package models

import "time"

type IdempotencyStatus string

const (
	IdempotencyStatusStarted   IdempotencyStatus = "STARTED"
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
	IdempotencyStatusFailed    IdempotencyStatus = "FAILED"
)

// IdempotencyKey provides durable, DB-backed idempotency for mutating requests.
// Unique constraint: (business_id, handler_name, message_id).
type IdempotencyKey struct {
	ID          int               `gorm:"primary_key" json:"id"`
	BusinessId  string            `gorm:"size:64;not null;uniqueIndex:uniq_idem,priority:1" json:"business_id"`
	HandlerName string            `gorm:"size:100;not null;uniqueIndex:uniq_idem,priority:2" json:"handler_name"`
	MessageId   string            `gorm:"size:255;not null;uniqueIndex:uniq_idem,priority:3" json:"message_id"`
	Status      IdempotencyStatus `gorm:"size:20;not null;index" json:"status"`
	// ResultRef is what the first successful run produced, e.g. "document:12".
	ResultRef *string   `gorm:"size:100" json:"result_ref"`
	LastError *string   `gorm:"type:text" json:"last_error"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
