package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/erp_core/config"
	"github.com/mmdatafocus/erp_core/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const serialLockTTL = 10 * time.Second

// NextNumber issues the next document number for (business, document type, year).
//
// The counter row is locked FOR UPDATE in the caller's transaction, so concurrent callers queue on it
// until commit. The stored counter is advanced before the number is returned, and numbers inserted
// out of band are honoured by scanning the highest issued number first.
func NextNumber(tx *gorm.DB, businessId string, documentType models.DocumentType, year int) (string, error) {
	prefix, ok := models.DocumentNumberPrefix(documentType)
	if !ok {
		return "", &models.NumberingError{DocumentType: documentType, Err: errors.New("unknown document type")}
	}
	if businessId == "" {
		return "", &models.NumberingError{DocumentType: documentType, Err: models.ErrBusinessIdRequired}
	}
	if year <= 0 {
		return "", &models.NumberingError{DocumentType: documentType, Err: fmt.Errorf("invalid year %d", year)}
	}

	ctx := tx.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	lock := obtainSerialScopeLock(ctx, businessId, documentType, year)
	if lock != nil {
		defer func() { _ = lock.Release(context.Background()) }()
	}

	n, padding, err := advanceSerial(tx, businessId, documentType, prefix, year)
	if err != nil {
		config.LogError(config.GetLogger(), "serialNumber.go", "NextNumber", "advanceSerial",
			map[string]interface{}{"business_id": businessId, "document_type": documentType, "year": year}, err)
		return "", &models.NumberingError{DocumentType: documentType, Err: err}
	}
	return FormatSerial(prefix, year, n, padding), nil
}

// FormatSerial renders {PREFIX}{YEAR}-{N}, N zero-padded to padding digits.
func FormatSerial(prefix string, year, n, padding int) string {
	return fmt.Sprintf("%s%d-%0*d", prefix, year, padding, n)
}

func advanceSerial(tx *gorm.DB, businessId string, documentType models.DocumentType, prefix string, year int) (int, int, error) {
	seed := models.SerialNumber{
		BusinessId:   businessId,
		DocumentType: documentType,
		Year:         year,
		Prefix:       prefix,
		Padding:      config.SerialNumberPadding(),
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return 0, 0, err
	}

	var counter models.SerialNumber
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND document_type = ? AND year = ?", businessId, documentType, year).
		First(&counter).Error; err != nil {
		return 0, 0, err
	}

	scanned, err := highestIssuedNumber(tx, businessId, documentType, prefix, year)
	if err != nil {
		return 0, 0, err
	}
	next := counter.LastNumber
	if scanned > next {
		next = scanned
	}
	next++

	if err := tx.Model(&models.SerialNumber{}).
		Where("id = ?", counter.ID).
		Update("last_number", next).Error; err != nil {
		return 0, 0, err
	}
	padding := counter.Padding
	if padding <= 0 {
		padding = config.SerialNumberPadding()
	}
	return next, padding, nil
}

// highestIssuedNumber returns the largest counter already used in the document's table for this prefix and year.
// Soft-deleted rows are included: a number once issued is never reused.
func highestIssuedNumber(tx *gorm.DB, businessId string, documentType models.DocumentType, prefix string, year int) (int, error) {
	table, ok := models.NumberedTableFor(documentType)
	if !ok {
		return 0, nil
	}
	head := fmt.Sprintf("%s%d-", prefix, year)

	var numbers []string
	err := tx.Table(table.Table).
		Where("business_id = ? AND "+table.Column+" LIKE ?", businessId, head+"%").
		Order(fmt.Sprintf("LENGTH(%s) DESC, %s DESC", table.Column, table.Column)).
		Limit(1).
		Pluck(table.Column, &numbers).Error
	if err != nil {
		return 0, err
	}
	if len(numbers) == 0 {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimPrefix(numbers[0], head))
	if err != nil {
		// hand-typed number that does not follow the format
		return 0, nil
	}
	return n, nil
}

// obtainSerialScopeLock is a cross-instance guard on top of the row lock.
// Redis is optional: when it is missing or the lock cannot be obtained we rely on the row lock alone.
func obtainSerialScopeLock(ctx context.Context, businessId string, documentType models.DocumentType, year int) *redislock.Lock {
	locker := config.GetRedisLock()
	if locker == nil {
		return nil
	}
	key := fmt.Sprintf("serial:%s:%s:%d", businessId, documentType, year)
	lock, err := locker.Obtain(ctx, key, serialLockTTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(25*time.Millisecond), 200),
	})
	if err != nil {
		config.GetLogger().WithFields(logrus.Fields{
			"field":         "NextNumber",
			"business_id":   businessId,
			"document_type": documentType,
			"year":          year,
		}).Warn("could not obtain serial scope lock; proceeding with row lock only: " + err.Error())
		return nil
	}
	return lock
}
