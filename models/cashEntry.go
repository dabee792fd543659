package models

import (
	"time"

	"github.com/mmdatafocus/erp_core/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CashEntryKind string

const (
	CashEntryKindExpense CashEntryKind = "expense"
	CashEntryKindIncome  CashEntryKind = "income"
)

type CashEntryStatus string

const (
	CashEntryStatusPending   CashEntryStatus = "pending"
	CashEntryStatusPaid      CashEntryStatus = "paid"
	CashEntryStatusReceived  CashEntryStatus = "received"
	CashEntryStatusCancelled CashEntryStatus = "cancelled"
)

// SettledStatus is what a pending entry of this kind becomes once money moved.
func (k CashEntryKind) SettledStatus() CashEntryStatus {
	if k == CashEntryKindIncome {
		return CashEntryStatusReceived
	}
	return CashEntryStatusPaid
}

// DocumentType numbers entries per kind (EXP / INC).
func (k CashEntryKind) DocumentType() DocumentType {
	if k == CashEntryKindIncome {
		return DocumentTypeIncome
	}
	return DocumentTypeExpense
}

// Classification is the class the entry's category account must have.
func (k CashEntryKind) Classification() AccountClassification {
	if k == CashEntryKindIncome {
		return AccountClassificationIncome
	}
	return AccountClassificationExpense
}

// CashEntry is an expense or income outside the trade documents, e.g. rent or a service fee.
// A pending entry has no ledger effect; settling posts it against a money account.
type CashEntry struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	BusinessId          string          `gorm:"size:64;not null;index" json:"business_id"`
	Kind                CashEntryKind   `gorm:"size:10;not null;index" json:"kind"`
	Number              string          `gorm:"size:50;index" json:"number"`
	Title               string          `gorm:"size:200;not null" json:"title"`
	AccountId           int             `gorm:"index;not null" json:"account_id"`
	SettlementAccountId *int            `gorm:"index" json:"settlement_account_id"`
	Amount              decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	EntryDate           time.Time       `gorm:"not null;index" json:"entry_date"`
	SettledDate         *time.Time      `json:"settled_date"`
	Status              CashEntryStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`
	ReferenceNumber     string          `gorm:"size:100" json:"reference_number"`
	Description         string          `gorm:"type:text" json:"description"`
	TransactionId       *int            `gorm:"index" json:"transaction_id"`
	CreatedBy           int             `json:"created_by"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCashEntry struct {
	Kind            CashEntryKind   `json:"kind" validate:"required,oneof=expense income"`
	Title           string          `json:"title" validate:"required,max=200"`
	AccountId       int             `json:"account_id" validate:"required,gt=0"`
	Amount          decimal.Decimal `json:"amount"`
	EntryDate       time.Time       `json:"entry_date"`
	ReferenceNumber string          `json:"reference_number" validate:"max=100"`
	Description     string          `json:"description"`
}

type CashEntrySettlement struct {
	// AccountId defaults to the cash account.
	AccountId   int       `json:"account_id" validate:"gte=0"`
	SettledDate time.Time `json:"settled_date"`
}

func (e CashEntry) GetCursorTime() time.Time { return e.EntryDate }
func (e CashEntry) GetId() int               { return e.ID }

func GetCashEntry(tx *gorm.DB, businessId string, id int) (*CashEntry, error) {
	return utils.FetchModelTx[CashEntry](tx, businessId, id)
}

type CashEntryFilter struct {
	Kind   CashEntryKind   `form:"kind"`
	Status CashEntryStatus `form:"status"`
}

func ListCashEntries(tx *gorm.DB, businessId string, filter CashEntryFilter, limit int, after *string) (*Connection[CashEntry], error) {
	dbCtx := tx.Model(&CashEntry{}).Where("business_id = ?", businessId)
	if filter.Kind != "" {
		dbCtx = dbCtx.Where("kind = ?", filter.Kind)
	}
	if filter.Status != "" {
		dbCtx = dbCtx.Where("status = ?", filter.Status)
	}
	return FetchPageCompositeCursor[CashEntry](dbCtx, limit, after, "entry_date")
}
