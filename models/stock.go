package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Stock is the on-hand quantity per (product, warehouse), a cache of the movement log.
type Stock struct {
	ID             int             `gorm:"primary_key" json:"id"`
	BusinessId     string          `gorm:"size:64;not null;uniqueIndex:uniq_stock,priority:1" json:"business_id"`
	ProductId      int             `gorm:"not null;uniqueIndex:uniq_stock,priority:2" json:"product_id"`
	WarehouseId    int             `gorm:"not null;uniqueIndex:uniq_stock,priority:3;index" json:"warehouse_id"`
	Quantity       decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"quantity"`
	LastMovementId *int            `json:"last_movement_id"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// StockMovement is one immutable row of the stock log.
// QtyDelta is the signed effect on WarehouseId; DestinationQtyDelta the effect on DestinationWarehouseId (transfers).
type StockMovement struct {
	ID                        int                 `gorm:"primary_key" json:"id"`
	BusinessId                string              `gorm:"size:64;not null;index;uniqueIndex:uniq_active_movement_ref,priority:1" json:"business_id"`
	MovementNumber            string              `gorm:"size:50;not null;index" json:"movement_number"`
	ProductId                 int                 `gorm:"not null;index:idx_movement_stock,priority:1" json:"product_id"`
	WarehouseId               int                 `gorm:"not null;index:idx_movement_stock,priority:2" json:"warehouse_id"`
	DestinationWarehouseId    *int                `gorm:"index" json:"destination_warehouse_id"`
	Kind                      MovementKind        `gorm:"size:20;not null;index" json:"kind"`
	Quantity                  decimal.Decimal     `gorm:"type:decimal(20,4);not null;default:0" json:"quantity"`
	QtyDelta                  decimal.Decimal     `gorm:"type:decimal(20,4);not null;default:0" json:"qty_delta"`
	QuantityBefore            decimal.Decimal     `gorm:"type:decimal(20,4);not null;default:0" json:"quantity_before"`
	QuantityAfter             decimal.Decimal     `gorm:"type:decimal(20,4);not null;default:0" json:"quantity_after"`
	DestinationQtyDelta       decimal.Decimal     `gorm:"type:decimal(20,4);not null;default:0" json:"destination_qty_delta"`
	DestinationQuantityBefore decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"destination_quantity_before"`
	DestinationQuantityAfter  decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"destination_quantity_after"`
	ReferenceType             string              `gorm:"size:30;index:idx_movement_reference,priority:1" json:"reference_type"`
	ReferenceId               int                 `gorm:"index:idx_movement_reference,priority:2" json:"reference_id"`
	ReferenceLineId           int                 `json:"reference_line_id"`
	ReferenceRevision         int                 `gorm:"not null;default:0" json:"reference_revision"`
	ReferenceKey              string              `gorm:"size:150;index" json:"reference_key"`
	// ActiveReferenceKey mirrors ReferenceKey while the movement is live and is cleared on reversal,
	// so the unique index only guards unreversed movements.
	ActiveReferenceKey *string   `gorm:"size:150;uniqueIndex:uniq_active_movement_ref,priority:2" json:"-"`
	MovementDate       time.Time `gorm:"not null;index" json:"movement_date"`
	Description        string    `gorm:"size:255" json:"description"`
	CreatedBy          int       `json:"created_by"`
	// Append-only reversals
	IsReversal           bool       `gorm:"not null;default:false;index" json:"is_reversal"`
	ReversesMovementId   *int       `gorm:"index" json:"reverses_movement_id"`
	ReversedByMovementId *int       `gorm:"index" json:"reversed_by_movement_id"`
	ReversalReason       *string    `gorm:"type:text" json:"reversal_reason"`
	ReversedAt           *time.Time `gorm:"index" json:"reversed_at"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

type NewStockMovement struct {
	BusinessId             string          `json:"-" validate:"required"`
	ProductId              int             `json:"product_id" validate:"required,gt=0"`
	WarehouseId            int             `json:"warehouse_id" validate:"required,gt=0"`
	DestinationWarehouseId int             `json:"destination_warehouse_id" validate:"omitempty,gt=0"`
	Kind                   MovementKind    `json:"kind" validate:"required,oneof=in out transfer adjustment return_in return_out"`
	Quantity               decimal.Decimal `json:"quantity"`
	ReferenceType          string          `json:"reference_type" validate:"max=30"`
	ReferenceId            int             `json:"reference_id"`
	ReferenceLineId        int             `json:"reference_line_id"`
	ReferenceRevision      int             `json:"reference_revision"`
	MovementDate           time.Time       `json:"movement_date"`
	Description            string          `json:"description" validate:"max=255"`
	CreatedBy              int             `json:"-"`
}

// ReferenceKey is "doctype:docid:lineid", with "@rev" appended for edits (revision > 0).
// Movements without a document reference have no key and are never deduplicated.
func (m NewStockMovement) ReferenceKey() string {
	if m.ReferenceType == "" || m.ReferenceId <= 0 {
		return ""
	}
	key := fmt.Sprintf("%s:%d:%d", m.ReferenceType, m.ReferenceId, m.ReferenceLineId)
	if m.ReferenceRevision > 0 {
		key = fmt.Sprintf("%s@%d", key, m.ReferenceRevision)
	}
	return key
}

func (m StockMovement) IsReversed() bool {
	return m.ReversedByMovementId != nil
}

// GetStockQuantity returns zero when no Stock row exists yet.
func GetStockQuantity(tx *gorm.DB, businessId string, productId, warehouseId int) (decimal.Decimal, error) {
	var stock Stock
	err := tx.Where("business_id = ? AND product_id = ? AND warehouse_id = ?", businessId, productId, warehouseId).
		Limit(1).Find(&stock).Error
	if err != nil {
		return decimal.Zero, err
	}
	return stock.Quantity, nil
}

func (m StockMovement) GetCursorTime() time.Time { return m.MovementDate }
func (m StockMovement) GetId() int               { return m.ID }

type MovementFilter struct {
	ProductId   int `form:"product_id"`
	WarehouseId int `form:"warehouse_id"`
}

// ListStockMovements pages the movement log newest first. A warehouse filter matches either side of a transfer.
func ListStockMovements(tx *gorm.DB, businessId string, filter MovementFilter, limit int, after *string) (*Connection[StockMovement], error) {
	dbCtx := tx.Model(&StockMovement{}).Where("business_id = ?", businessId)
	if filter.ProductId > 0 {
		dbCtx = dbCtx.Where("product_id = ?", filter.ProductId)
	}
	if filter.WarehouseId > 0 {
		dbCtx = dbCtx.Where("warehouse_id = ? OR destination_warehouse_id = ?", filter.WarehouseId, filter.WarehouseId)
	}
	return FetchPageCompositeCursor[StockMovement](dbCtx, limit, after, "movement_date")
}
