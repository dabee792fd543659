package workflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/erp_core/config"
	"github.com/mmdatafocus/erp_core/models"
	"github.com/mmdatafocus/erp_core/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ApplyMovement applies one signed movement to the Stock projection and appends it to the log.
// Either the stock row(s) and the log row are both written, or nothing is.
func ApplyMovement(tx *gorm.DB, input models.NewStockMovement) (*models.StockMovement, error) {
	if err := validateMovement(tx, input); err != nil {
		return nil, err
	}
	if input.MovementDate.IsZero() {
		input.MovementDate = time.Now().UTC()
	}
	if input.CreatedBy == 0 {
		input.CreatedBy, _ = utils.GetUserIdFromContext(tx.Statement.Context)
	}
	input.Quantity = input.Quantity.Round(4)

	var (
		movement *models.StockMovement
		err      error
	)
	if input.Kind == models.MovementKindTransfer {
		movement, err = applyTransfer(tx, input)
	} else {
		movement, err = applySingle(tx, input)
	}
	if err != nil {
		return nil, err
	}

	if err := models.EnqueueLedgerEvent(tx, input.BusinessId, models.EventStockMoved, "stock_movement", movement.ID, movement); err != nil {
		return nil, err
	}
	return movement, nil
}

func validateMovement(tx *gorm.DB, input models.NewStockMovement) error {
	if err := utils.ValidateStruct(&input); err != nil {
		return err
	}
	if input.Kind == models.MovementKindAdjustment {
		if input.Quantity.IsNegative() {
			return fmt.Errorf("%w: adjustment target must not be negative", models.ErrInvalidAmount)
		}
	} else if !input.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be greater than zero", models.ErrInvalidAmount)
	}
	if input.Kind == models.MovementKindTransfer {
		if input.DestinationWarehouseId <= 0 {
			return &models.InvalidTransferError{Reason: "destination warehouse is required"}
		}
		if input.DestinationWarehouseId == input.WarehouseId {
			return &models.InvalidTransferError{Reason: "destination warehouse equals source"}
		}
	}
	return checkCatalog(tx, input.BusinessId, input.ProductId, input.WarehouseId, input.DestinationWarehouseId)
}

func applySingle(tx *gorm.DB, input models.NewStockMovement) (*models.StockMovement, error) {
	// Serial row before stock rows, matching reversal and document posting.
	number, err := NextNumber(tx, input.BusinessId, models.DocumentTypeStockMovement, input.MovementDate.Year())
	if err != nil {
		return nil, err
	}
	stock, err := lockStock(tx, input.BusinessId, input.ProductId, input.WarehouseId)
	if err != nil {
		return nil, err
	}
	key := input.ReferenceKey()
	if err := ensureReferenceFree(tx, input.BusinessId, key); err != nil {
		return nil, err
	}

	before := stock.Quantity
	magnitude := input.Quantity
	var delta decimal.Decimal
	switch input.Kind {
	case models.MovementKindIn, models.MovementKindReturnIn:
		delta = input.Quantity
	case models.MovementKindOut, models.MovementKindReturnOut:
		if input.Quantity.GreaterThan(before) {
			return nil, &models.InsufficientStockError{
				ProductId:   input.ProductId,
				WarehouseId: input.WarehouseId,
				Available:   before,
				Requested:   input.Quantity,
			}
		}
		delta = input.Quantity.Neg()
	case models.MovementKindAdjustment:
		// quantity is the counted target
		delta = input.Quantity.Sub(before)
		magnitude = delta.Abs()
	default:
		return nil, &models.ValidationError{Field: "kind", Message: "unsupported movement kind " + string(input.Kind)}
	}
	after := before.Add(delta)

	movement := newMovementRow(input, number, key)
	movement.Quantity = magnitude
	movement.QtyDelta = delta
	movement.QuantityBefore = before
	movement.QuantityAfter = after

	if err := insertMovement(tx, movement, key); err != nil {
		return nil, err
	}
	if err := saveStockQuantity(tx, stock.ID, after, movement.ID); err != nil {
		return nil, err
	}
	return movement, nil
}

func applyTransfer(tx *gorm.DB, input models.NewStockMovement) (*models.StockMovement, error) {
	number, err := NextNumber(tx, input.BusinessId, models.DocumentTypeStockMovement, input.MovementDate.Year())
	if err != nil {
		return nil, err
	}
	source, destination, err := lockStockPair(tx, input.BusinessId, input.ProductId, input.WarehouseId, input.DestinationWarehouseId)
	if err != nil {
		return nil, err
	}
	key := input.ReferenceKey()
	if err := ensureReferenceFree(tx, input.BusinessId, key); err != nil {
		return nil, err
	}
	if input.Quantity.GreaterThan(source.Quantity) {
		return nil, &models.InsufficientStockError{
			ProductId:   input.ProductId,
			WarehouseId: input.WarehouseId,
			Available:   source.Quantity,
			Requested:   input.Quantity,
		}
	}

	sourceAfter := source.Quantity.Sub(input.Quantity)
	destinationAfter := destination.Quantity.Add(input.Quantity)

	movement := newMovementRow(input, number, key)
	dest := input.DestinationWarehouseId
	movement.DestinationWarehouseId = &dest
	movement.Quantity = input.Quantity
	movement.QtyDelta = input.Quantity.Neg()
	movement.QuantityBefore = source.Quantity
	movement.QuantityAfter = sourceAfter
	movement.DestinationQtyDelta = input.Quantity
	movement.DestinationQuantityBefore = decimal.NewNullDecimal(destination.Quantity)
	movement.DestinationQuantityAfter = decimal.NewNullDecimal(destinationAfter)

	if err := insertMovement(tx, movement, key); err != nil {
		return nil, err
	}
	if err := saveStockQuantity(tx, source.ID, sourceAfter, movement.ID); err != nil {
		return nil, err
	}
	if err := saveStockQuantity(tx, destination.ID, destinationAfter, movement.ID); err != nil {
		return nil, err
	}
	return movement, nil
}

func newMovementRow(input models.NewStockMovement, number string, key string) *models.StockMovement {
	m := &models.StockMovement{
		BusinessId:        input.BusinessId,
		MovementNumber:    number,
		ProductId:         input.ProductId,
		WarehouseId:       input.WarehouseId,
		Kind:              input.Kind,
		ReferenceType:     input.ReferenceType,
		ReferenceId:       input.ReferenceId,
		ReferenceLineId:   input.ReferenceLineId,
		ReferenceRevision: input.ReferenceRevision,
		ReferenceKey:      key,
		MovementDate:      input.MovementDate,
		Description:       input.Description,
		CreatedBy:         input.CreatedBy,
	}
	if key != "" {
		k := key
		m.ActiveReferenceKey = &k
	}
	return m
}

func insertMovement(tx *gorm.DB, movement *models.StockMovement, key string) error {
	if err := tx.Create(movement).Error; err != nil {
		if key != "" && utils.IsDuplicateKeyErr(err) {
			return &models.DuplicateMovementError{ReferenceKey: key}
		}
		return err
	}
	return nil
}

// lockStock loads the Stock row FOR UPDATE, creating it at zero first when missing.
func lockStock(tx *gorm.DB, businessId string, productId, warehouseId int) (*models.Stock, error) {
	seed := models.Stock{
		BusinessId:  businessId,
		ProductId:   productId,
		WarehouseId: warehouseId,
		Quantity:    decimal.Zero,
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, err
	}
	var stock models.Stock
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND product_id = ? AND warehouse_id = ?", businessId, productId, warehouseId).
		First(&stock).Error; err != nil {
		return nil, err
	}
	return &stock, nil
}

// lockStockPair locks two warehouses' rows for one product, lower warehouse id first.
func lockStockPair(tx *gorm.DB, businessId string, productId, sourceId, destinationId int) (*models.Stock, *models.Stock, error) {
	firstId, secondId := sourceId, destinationId
	if secondId < firstId {
		firstId, secondId = secondId, firstId
	}
	first, err := lockStock(tx, businessId, productId, firstId)
	if err != nil {
		return nil, nil, err
	}
	second, err := lockStock(tx, businessId, productId, secondId)
	if err != nil {
		return nil, nil, err
	}
	if first.WarehouseId == sourceId {
		return first, second, nil
	}
	return second, first, nil
}

func saveStockQuantity(tx *gorm.DB, stockId int, quantity decimal.Decimal, movementId int) error {
	if quantity.IsNegative() {
		return fmt.Errorf("stock %d would become negative (%s)", stockId, quantity.String())
	}
	return tx.Model(&models.Stock{}).
		Where("id = ?", stockId).
		Updates(map[string]interface{}{
			"quantity":         quantity,
			"last_movement_id": movementId,
		}).Error
}

// ensureReferenceFree rejects a second live movement for the same document line and revision.
func ensureReferenceFree(tx *gorm.DB, businessId, key string) error {
	if key == "" {
		return nil
	}
	var existing models.StockMovement
	err := tx.Select("id").
		Where("business_id = ? AND active_reference_key = ?", businessId, key).
		Take(&existing).Error
	if err == nil {
		return &models.DuplicateMovementError{ReferenceKey: key, MovementId: existing.ID}
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	config.LogError(config.GetLogger(), "stockLedger.go", "ensureReferenceFree", "lookup active reference", key, err)
	return err
}
