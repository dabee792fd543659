package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BankReconciliation records one comparison of a bank account's cached balance with a statement.
type BankReconciliation struct {
	ID                 int                  `gorm:"primary_key" json:"id"`
	BusinessId         string               `gorm:"size:64;not null;index" json:"business_id"`
	AccountId          int                  `gorm:"index;not null" json:"account_id"`
	ReconciliationDate time.Time            `gorm:"not null;index" json:"reconciliation_date"`
	SystemBalance      decimal.Decimal      `gorm:"type:decimal(20,4);not null;default:0" json:"system_balance"`
	BankBalance        decimal.Decimal      `gorm:"type:decimal(20,4);not null;default:0" json:"bank_balance"`
	Difference         decimal.Decimal      `gorm:"type:decimal(20,4);not null;default:0" json:"difference"`
	Status             ReconciliationStatus `gorm:"size:20;not null;index" json:"status"`
	Notes              string               `gorm:"type:text" json:"notes"`
	CreatedBy          int                  `json:"created_by"`
	CreatedAt          time.Time            `gorm:"autoCreateTime" json:"created_at"`
}

type ReconciliationResult struct {
	Ok         bool                `json:"ok"`
	Message    string              `json:"message"`
	Difference decimal.Decimal     `json:"difference"`
	Record     *BankReconciliation `json:"record"`
}

// AccountBalanceMismatch is an account whose cached balance disagrees with its lines.
type AccountBalanceMismatch struct {
	AccountId int             `json:"account_id"`
	Code      string          `json:"code"`
	Cached    decimal.Decimal `json:"cached"`
	FromLines decimal.Decimal `json:"from_lines"`
}

// StockMismatch is a Stock row whose quantity disagrees with its movement log.
type StockMismatch struct {
	ProductId   int             `json:"product_id"`
	WarehouseId int             `json:"warehouse_id"`
	Cached      decimal.Decimal `json:"cached"`
	Replayed    decimal.Decimal `json:"replayed"`
}
