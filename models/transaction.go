package models

import (
	"time"

	"github.com/mmdatafocus/erp_core/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Transaction struct {
	ID                   int               `gorm:"primary_key" json:"id"`
	BusinessId           string            `gorm:"size:64;not null;index" json:"business_id"`
	TransactionNumber    string            `gorm:"size:50;not null;index" json:"transaction_number"`
	TransactionDate      time.Time         `gorm:"not null;index" json:"transaction_date"`
	Type                 TransactionType   `gorm:"size:20;not null;index" json:"type"`
	Amount               decimal.Decimal   `gorm:"type:decimal(20,4);not null;default:0" json:"amount"`
	AccountId            *int              `gorm:"index" json:"account_id"`
	CounterAccountId     *int              `gorm:"index" json:"counter_account_id"`
	ReferenceType        string            `gorm:"size:30;index:idx_transaction_reference,priority:1" json:"reference_type"`
	ReferenceId          int               `gorm:"index:idx_transaction_reference,priority:2" json:"reference_id"`
	ReferenceNumber      string            `gorm:"size:50" json:"reference_number"`
	Description          string            `gorm:"type:text" json:"description"`
	IsReconciled         bool              `gorm:"not null;default:true" json:"is_reconciled"`
	IsAutoCorrected      bool              `gorm:"not null;default:false" json:"is_auto_corrected"`
	AutoCorrectionAmount decimal.Decimal   `gorm:"type:decimal(20,4);not null;default:0" json:"auto_correction_amount"`
	Lines                []TransactionLine `gorm:"foreignKey:TransactionId" json:"lines"`
	// reversals are append-only: the original is linked, never edited or deleted
	IsReversal              bool       `gorm:"not null;default:false;index" json:"is_reversal"`
	ReversesTransactionId   *int       `gorm:"index" json:"reverses_transaction_id"`
	ReversedByTransactionId *int       `gorm:"index" json:"reversed_by_transaction_id"`
	ReversalReason          *string    `gorm:"type:text" json:"reversal_reason"`
	ReversedAt              *time.Time `gorm:"index" json:"reversed_at"`
	CreatedBy               int        `json:"created_by"`
	CreatedAt               time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type TransactionLine struct {
	ID            int             `gorm:"primary_key" json:"id"`
	BusinessId    string          `gorm:"size:64;not null;index" json:"business_id"`
	TransactionId int             `gorm:"index;not null" json:"transaction_id"`
	LineNo        int             `gorm:"not null" json:"line_no"`
	AccountId     int             `gorm:"index;not null" json:"account_id"`
	Debit         decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"debit"`
	Credit        decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"credit"`
	BalanceDelta  decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"balance_delta"`
	Description   string          `gorm:"size:255" json:"description"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewTransaction struct {
	BusinessId       string               `json:"-" validate:"required"`
	TransactionDate  time.Time            `json:"transaction_date" validate:"required"`
	Type             TransactionType      `json:"type" validate:"required,oneof=income expense transfer journal adjustment opening"`
	AccountId        *int                 `json:"account_id"`
	CounterAccountId *int                 `json:"counter_account_id"`
	ReferenceType    string               `json:"reference_type" validate:"max=30"`
	ReferenceId      int                  `json:"reference_id"`
	ReferenceNumber  string               `json:"reference_number" validate:"max=50"`
	Description      string               `json:"description"`
	Lines            []NewTransactionLine `json:"lines" validate:"required,min=2,dive"`
	// RequireNonNegativeCash rejects lines that would take a cash, bank or wallet account below zero.
	RequireNonNegativeCash bool `json:"require_non_negative_cash"`
	CreatedBy              int  `json:"-"`

	// set by ReverseTransaction only
	ReversesTransactionId *int   `json:"-"`
	ReversalReason        string `json:"-"`
}

type NewTransactionLine struct {
	AccountId   int             `json:"account_id" validate:"required,gt=0"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description" validate:"max=255"`
}

// Totals sums both sides of the lines.
func (t Transaction) Totals() (debit, credit decimal.Decimal) {
	for _, l := range t.Lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return debit, credit
}

func GetTransaction(tx *gorm.DB, businessId string, id int) (*Transaction, error) {
	return utils.FetchModelTx[Transaction](tx, businessId, id, "Lines")
}

func (t Transaction) GetCursorTime() time.Time { return t.TransactionDate }
func (t Transaction) GetId() int               { return t.ID }

type TransactionFilter struct {
	AccountId     int    `form:"account_id"`
	ReferenceType string `form:"reference_type"`
	ReferenceId   int    `form:"reference_id"`
}

// ListTransactions pages a business's transactions newest first, reversals included.
func ListTransactions(tx *gorm.DB, businessId string, filter TransactionFilter, limit int, after *string) (*Connection[Transaction], error) {
	dbCtx := tx.Model(&Transaction{}).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("line_no ASC") }).
		Where("business_id = ?", businessId)
	if filter.AccountId > 0 {
		dbCtx = dbCtx.Where("EXISTS (SELECT 1 FROM transaction_lines tl WHERE tl.transaction_id = transactions.id AND tl.account_id = ?)", filter.AccountId)
	}
	if filter.ReferenceType != "" {
		dbCtx = dbCtx.Where("reference_type = ?", filter.ReferenceType)
	}
	if filter.ReferenceId > 0 {
		dbCtx = dbCtx.Where("reference_id = ?", filter.ReferenceId)
	}
	return FetchPageCompositeCursor[Transaction](dbCtx, limit, after, "transaction_date")
}
