package utils

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FetchModelTx loads one business-owned row by id with optional preloads. Missing rows map to ErrorRecordNotFound.
func FetchModelTx[T any](tx *gorm.DB, businessId string, id int, associations ...string) (*T, error) {
	dbCtx := tx.Where("business_id = ?", businessId)
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	if err := dbCtx.First(&result, id).Error; err != nil {
		return nil, NotFoundOr(err)
	}
	return &result, nil
}

// LockModel fetches the row with SELECT ... FOR UPDATE; the lock lives until tx ends.
func LockModel[T any](tx *gorm.DB, businessId string, id int) (*T, error) {
	var result T
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ?", businessId).
		First(&result, id).Error
	if err != nil {
		return nil, NotFoundOr(err)
	}
	return &result, nil
}
