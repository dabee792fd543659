package workflow

import (
	"fmt"
	"sort"
	"time"

	"github.com/mmdatafocus/erp_core/models"
	"github.com/mmdatafocus/erp_core/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReverseMovement appends the exact inverse of a movement and marks the original reversed.
// The original's reference is released, so the same document line may be applied again.
// Reversing an already-reversed movement is a no-op.
func ReverseMovement(tx *gorm.DB, businessId string, movementId int, reason string) (*models.StockMovement, error) {
	if tx == nil {
		return nil, fmt.Errorf("reverse movement: tx is nil")
	}
	var original models.StockMovement
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND id = ?", businessId, movementId).
		First(&original).Error; err != nil {
		return nil, utils.NotFoundOr(err)
	}
	if original.IsReversal {
		return nil, models.ErrCannotReverseReversal
	}
	if original.IsReversed() {
		return nil, nil
	}
	return reverseMovement(tx, &original, reason)
}

// ReverseDocumentMovements reverses every live movement of a document. Reversals that put stock back
// run before those that take it out, newest first within each group, so an edited document whose
// earlier increase was already consumed still cancels whenever the net change fits.
func ReverseDocumentMovements(tx *gorm.DB, businessId, referenceType string, documentId int, reason string) (int, error) {
	var originals []models.StockMovement
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND reference_type = ? AND reference_id = ?", businessId, referenceType, documentId).
		Where("is_reversal = ? AND reversed_by_movement_id IS NULL", false).
		Order("id DESC").
		Find(&originals).Error; err != nil {
		return 0, err
	}
	sort.SliceStable(originals, func(i, j int) bool {
		return restoresStock(&originals[i]) && !restoresStock(&originals[j])
	})
	for i := range originals {
		if _, err := reverseMovement(tx, &originals[i], reason); err != nil {
			return 0, err
		}
	}
	return len(originals), nil
}

// restoresStock reports whether reversing m only adds stock.
func restoresStock(m *models.StockMovement) bool {
	return m.DestinationWarehouseId == nil && m.QtyDelta.IsNegative()
}

func reverseMovement(tx *gorm.DB, o *models.StockMovement, reason string) (*models.StockMovement, error) {
	now := time.Now().UTC()
	reasonCopy := reason
	userId, _ := utils.GetUserIdFromContext(tx.Statement.Context)

	number, err := NextNumber(tx, o.BusinessId, models.DocumentTypeStockMovement, now.Year())
	if err != nil {
		return nil, err
	}
	rev := &models.StockMovement{
		BusinessId:          o.BusinessId,
		MovementNumber:      number,
		ProductId:           o.ProductId,
		WarehouseId:         o.WarehouseId,
		Kind:                o.Kind,
		Quantity:            o.Quantity,
		QtyDelta:            o.QtyDelta.Neg(),
		DestinationQtyDelta: o.DestinationQtyDelta.Neg(),
		ReferenceType:       o.ReferenceType,
		ReferenceId:         o.ReferenceId,
		ReferenceLineId:     o.ReferenceLineId,
		ReferenceRevision:   o.ReferenceRevision,
		ReferenceKey:        o.ReferenceKey,
		MovementDate:        now,
		Description:         "REV: " + o.MovementNumber,
		CreatedBy:           userId,
		IsReversal:          true,
		ReversesMovementId:  &o.ID,
		ReversalReason:      &reasonCopy,
	}

	var touched []stockChange
	if o.DestinationWarehouseId != nil {
		dest := *o.DestinationWarehouseId
		rev.DestinationWarehouseId = &dest
		source, destination, err := lockStockPair(tx, o.BusinessId, o.ProductId, o.WarehouseId, dest)
		if err != nil {
			return nil, err
		}
		touched = append(touched,
			stockChange{stock: source, delta: rev.QtyDelta},
			stockChange{stock: destination, delta: rev.DestinationQtyDelta})
	} else {
		stock, err := lockStock(tx, o.BusinessId, o.ProductId, o.WarehouseId)
		if err != nil {
			return nil, err
		}
		touched = append(touched, stockChange{stock: stock, delta: rev.QtyDelta})
	}

	// stock consumed since the original may make the inverse impossible
	for _, c := range touched {
		if c.after().IsNegative() {
			return nil, &models.InsufficientStockError{
				ProductId:   o.ProductId,
				WarehouseId: c.stock.WarehouseId,
				Available:   c.stock.Quantity,
				Requested:   c.delta.Abs(),
			}
		}
	}

	rev.QuantityBefore = touched[0].stock.Quantity
	rev.QuantityAfter = touched[0].after()
	if len(touched) == 2 {
		rev.DestinationQuantityBefore = decimal.NewNullDecimal(touched[1].stock.Quantity)
		rev.DestinationQuantityAfter = decimal.NewNullDecimal(touched[1].after())
	}

	if err := tx.Create(rev).Error; err != nil {
		return nil, err
	}
	for _, c := range touched {
		if err := saveStockQuantity(tx, c.stock.ID, c.after(), rev.ID); err != nil {
			return nil, err
		}
	}

	// Mark original reversed (metadata-only update) and free its reference.
	if err := tx.Model(&models.StockMovement{}).
		Where("id = ?", o.ID).
		Updates(map[string]interface{}{
			"reversed_by_movement_id": rev.ID,
			"reversal_reason":         &reasonCopy,
			"reversed_at":             &now,
			"active_reference_key":    nil,
		}).Error; err != nil {
		return nil, err
	}
	o.ReversedByMovementId = &rev.ID
	o.ReversalReason = &reasonCopy
	o.ReversedAt = &now
	o.ActiveReferenceKey = nil

	if err := models.EnqueueLedgerEvent(tx, o.BusinessId, models.EventStockMoved, "stock_movement", rev.ID, rev); err != nil {
		return nil, err
	}
	return rev, nil
}

type stockChange struct {
	stock *models.Stock
	delta decimal.Decimal
}

func (c stockChange) after() decimal.Decimal {
	return c.stock.Quantity.Add(c.delta)
}
