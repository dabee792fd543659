package utils

import (
	"errors"

	"gorm.io/gorm"
)

// ValidateResourceId returns ErrorRecordNotFound unless the business owns a row with this id.
func ValidateResourceId[T any](tx *gorm.DB, businessId string, id interface{}) error {
	count, err := ResourceCountWhere[T](tx, businessId, "id = ?", id)
	if err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}
	return nil
}

// ValidateUnique fails when another row of the business already has value in column.
func ValidateUnique[T any](tx *gorm.DB, businessId string, column string, value interface{}, exceptId int) error {
	var count int64
	var err error
	if exceptId == 0 {
		count, err = ResourceCountWhere[T](tx, businessId, column+" = ?", value)
	} else {
		count, err = ResourceCountWhere[T](tx, businessId, column+" = ? AND NOT id = ?", value, exceptId)
	}
	if err != nil {
		return err
	}
	if count > 0 {
		return errors.New("duplicate " + column)
	}
	return nil
}

// ResourceCountWhere counts rows matching condition, scoped to businessId when it is set.
func ResourceCountWhere[T any](tx *gorm.DB, businessId string, condition string, value ...interface{}) (int64, error) {
	var model T
	var count int64
	q := tx.Model(&model)
	if businessId != "" {
		q = q.Where("business_id = ?", businessId)
	}
	if err := q.Where(condition, value...).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
