package workflow

import (
	"sync"

	"github.com/mmdatafocus/erp_core/utils"
	"gorm.io/gorm"
)

// CatalogLookup lets the host application confirm that products and warehouses exist.
// Products and warehouses live outside this module; without a lookup only positive ids are required.
type CatalogLookup interface {
	ProductExists(tx *gorm.DB, businessId string, productId int) (bool, error)
	WarehouseExists(tx *gorm.DB, businessId string, warehouseId int) (bool, error)
}

var (
	catalog   CatalogLookup
	catalogMu sync.RWMutex
)

func SetCatalogLookup(c CatalogLookup) {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	catalog = c
}

func checkCatalog(tx *gorm.DB, businessId string, productId int, warehouseIds ...int) error {
	catalogMu.RLock()
	c := catalog
	catalogMu.RUnlock()
	if c == nil {
		return nil
	}
	ok, err := c.ProductExists(tx, businessId, productId)
	if err != nil {
		return err
	}
	if !ok {
		return utils.ErrorRecordNotFound
	}
	for _, id := range warehouseIds {
		if id <= 0 {
			continue
		}
		ok, err := c.WarehouseExists(tx, businessId, id)
		if err != nil {
			return err
		}
		if !ok {
			return utils.ErrorRecordNotFound
		}
	}
	return nil
}
