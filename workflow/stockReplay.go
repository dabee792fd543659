package workflow

import (
	"sort"

	"github.com/mmdatafocus/erp_core/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type stockKey struct {
	ProductId   int
	WarehouseId int
}

// ReplayStock recomputes a quantity from the movement log alone.
func ReplayStock(tx *gorm.DB, businessId string, productId, warehouseId int) (decimal.Decimal, error) {
	var moves []models.StockMovement
	if err := tx.Select("id", "warehouse_id", "destination_warehouse_id", "qty_delta", "destination_qty_delta").
		Where("business_id = ? AND product_id = ?", businessId, productId).
		Where("warehouse_id = ? OR destination_warehouse_id = ?", warehouseId, warehouseId).
		Order("movement_date ASC, id ASC").
		Find(&moves).Error; err != nil {
		return decimal.Zero, err
	}
	qty := decimal.Zero
	for _, m := range moves {
		if m.WarehouseId == warehouseId {
			qty = qty.Add(m.QtyDelta)
		}
		if m.DestinationWarehouseId != nil && *m.DestinationWarehouseId == warehouseId {
			qty = qty.Add(m.DestinationQtyDelta)
		}
	}
	return qty, nil
}

// RebuildStock compares every Stock row (or one, when productId and warehouseId are set) with its replay
// and, unless dryRun, rewrites the cached quantity. It returns the rows that disagreed.
func RebuildStock(tx *gorm.DB, businessId string, productId, warehouseId int, dryRun bool) ([]models.StockMismatch, error) {
	keys, err := stockKeys(tx, businessId, productId, warehouseId)
	if err != nil {
		return nil, err
	}

	mismatches := make([]models.StockMismatch, 0)
	for _, k := range keys {
		replayed, err := ReplayStock(tx, businessId, k.ProductId, k.WarehouseId)
		if err != nil {
			return nil, err
		}
		var stock models.Stock
		if err := tx.Where("business_id = ? AND product_id = ? AND warehouse_id = ?", businessId, k.ProductId, k.WarehouseId).
			Limit(1).Find(&stock).Error; err != nil {
			return nil, err
		}
		if stock.ID != 0 && stock.Quantity.Equal(replayed) {
			continue
		}
		if stock.ID == 0 && replayed.IsZero() {
			continue
		}
		mismatches = append(mismatches, models.StockMismatch{
			ProductId:   k.ProductId,
			WarehouseId: k.WarehouseId,
			Cached:      stock.Quantity,
			Replayed:    replayed,
		})
		if dryRun {
			continue
		}
		locked, err := lockStock(tx, businessId, k.ProductId, k.WarehouseId)
		if err != nil {
			return nil, err
		}
		if err := tx.Model(&models.Stock{}).Where("id = ?", locked.ID).Update("quantity", replayed).Error; err != nil {
			return nil, err
		}
	}
	return mismatches, nil
}

// VerifyStock lists Stock rows that disagree with the movement log without changing anything.
func VerifyStock(tx *gorm.DB, businessId string) ([]models.StockMismatch, error) {
	return RebuildStock(tx, businessId, 0, 0, true)
}

func stockKeys(tx *gorm.DB, businessId string, productId, warehouseId int) ([]stockKey, error) {
	if productId > 0 && warehouseId > 0 {
		return []stockKey{{ProductId: productId, WarehouseId: warehouseId}}, nil
	}
	seen := make(map[stockKey]struct{})

	var cached []stockKey
	q := tx.Model(&models.Stock{}).Select("product_id", "warehouse_id").Where("business_id = ?", businessId)
	if productId > 0 {
		q = q.Where("product_id = ?", productId)
	}
	if err := q.Scan(&cached).Error; err != nil {
		return nil, err
	}
	for _, k := range cached {
		seen[k] = struct{}{}
	}

	var logged []stockKey
	q = tx.Model(&models.StockMovement{}).Distinct("product_id", "warehouse_id").Where("business_id = ?", businessId)
	if productId > 0 {
		q = q.Where("product_id = ?", productId)
	}
	if err := q.Scan(&logged).Error; err != nil {
		return nil, err
	}
	var destinations []stockKey
	q = tx.Model(&models.StockMovement{}).
		Distinct("product_id, destination_warehouse_id AS warehouse_id").
		Where("business_id = ? AND destination_warehouse_id IS NOT NULL", businessId)
	if productId > 0 {
		q = q.Where("product_id = ?", productId)
	}
	if err := q.Scan(&destinations).Error; err != nil {
		return nil, err
	}
	for _, k := range append(logged, destinations...) {
		seen[k] = struct{}{}
	}

	out := make([]stockKey, 0, len(seen))
	for k := range seen {
		if warehouseId > 0 && k.WarehouseId != warehouseId {
			continue
		}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductId != out[j].ProductId {
			return out[i].ProductId < out[j].ProductId
		}
		return out[i].WarehouseId < out[j].WarehouseId
	})
	return out, nil
}
