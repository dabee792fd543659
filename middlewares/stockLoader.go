package middlewares

import (
	"context"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/mmdatafocus/erp_core/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockKey names one stock row.
type StockKey struct {
	ProductId   int
	WarehouseId int
}

type stockReader struct {
	db *gorm.DB
}

func (r *stockReader) getStocks(ctx context.Context, keys []StockKey) []*dataloader.Result[*models.Stock] {
	biz, err := businessOf(ctx)
	if err != nil {
		return handleError[*models.Stock](len(keys), err)
	}
	productIds := make([]int, 0, len(keys))
	warehouseIds := make([]int, 0, len(keys))
	for _, k := range keys {
		productIds = append(productIds, k.ProductId)
		warehouseIds = append(warehouseIds, k.WarehouseId)
	}
	// the IN pair over-selects; rows outside keys are dropped when results are matched
	var results []models.Stock
	err = r.db.WithContext(ctx).
		Where("business_id = ? AND product_id IN ? AND warehouse_id IN ?", biz, productIds, warehouseIds).
		Find(&results).Error
	if err != nil {
		return handleError[*models.Stock](len(keys), err)
	}
	return generateLoaderResults(results, keys,
		func(s *models.Stock) StockKey { return StockKey{ProductId: s.ProductId, WarehouseId: s.WarehouseId} },
		func(k StockKey) *models.Stock {
			// never moved: nothing on hand
			return &models.Stock{BusinessId: biz, ProductId: k.ProductId, WarehouseId: k.WarehouseId, Quantity: decimal.Zero}
		})
}

func GetStock(ctx context.Context, productId, warehouseId int) (*models.Stock, error) {
	return For(ctx).StockLoader.Load(ctx, StockKey{ProductId: productId, WarehouseId: warehouseId})()
}
