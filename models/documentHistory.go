package models

import (
	"encoding/json"
	"time"

	"github.com/mmdatafocus/erp_core/utils"
	"gorm.io/gorm"
)

// DocumentHistory is the audit trail of document status changes.
type DocumentHistory struct {
	ID           int            `gorm:"primary_key" json:"id"`
	BusinessId   string         `gorm:"size:64;index;not null" json:"business_id"`
	DocumentId   int            `gorm:"index;not null" json:"document_id"`
	DocumentType DocumentType   `gorm:"size:20;not null" json:"document_type"`
	ActionType   string         `gorm:"size:20;not null" json:"action_type"`
	FromStatus   DocumentStatus `gorm:"size:20" json:"from_status"`
	ToStatus     DocumentStatus `gorm:"size:20" json:"to_status"`
	Before       string         `gorm:"type:text" json:"before"`
	After        string         `gorm:"type:text" json:"after"`
	Description  string         `gorm:"type:text;not null" json:"description"`
	UserId       int            `gorm:"index;not null" json:"user_id"`
	UserName     string         `gorm:"size:100" json:"user_name"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

const (
	HistoryActionCreate  = "create"
	HistoryActionUpdate  = "update"
	HistoryActionConfirm = "confirm"
	HistoryActionCancel  = "cancel"
	HistoryActionDelete  = "delete"
	HistoryActionPayment = "payment"
	HistoryActionReturn  = "return"
)

// CreateDocumentHistory writes one audit row; the actor comes from the tx context.
func CreateDocumentHistory(tx *gorm.DB,
	actionType string,
	doc *Document,
	fromStatus DocumentStatus,
	before interface{},
	after interface{},
	description string) error {

	var b, a []byte
	if before != nil {
		b, _ = json.Marshal(before)
	}
	if after != nil {
		a, _ = json.Marshal(after)
	}

	ctx := tx.Statement.Context
	userId, _ := utils.GetUserIdFromContext(ctx)
	userName, _ := utils.GetUserNameFromContext(ctx)

	history := DocumentHistory{
		BusinessId:   doc.BusinessId,
		DocumentId:   doc.ID,
		DocumentType: doc.DocumentType,
		ActionType:   actionType,
		FromStatus:   fromStatus,
		ToStatus:     doc.Status,
		Before:       string(b),
		After:        string(a),
		Description:  description,
		UserId:       userId,
		UserName:     userName,
	}
	return tx.Create(&history).Error
}
