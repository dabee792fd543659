package workflow

import (
	"time"

	"github.com/mmdatafocus/erp_core/models"
	"github.com/mmdatafocus/erp_core/utils"
	"gorm.io/gorm"
)

// staleIdempotencyAfter is how long a STARTED key blocks retries before it is taken over.
const staleIdempotencyAfter = 5 * time.Minute

// BeginIdempotency inserts STARTED. If SUCCEEDED exists, returns skip=true and the stored result reference.
func BeginIdempotency(tx *gorm.DB, businessId, handlerName, messageId string) (skip bool, resultRef string, err error) {
	key := models.IdempotencyKey{
		BusinessId:  businessId,
		HandlerName: handlerName,
		MessageId:   messageId,
		Status:      models.IdempotencyStatusStarted,
	}
	if err := tx.Create(&key).Error; err == nil {
		return false, "", nil
	} else if !utils.IsDuplicateKeyErr(err) {
		return false, "", err
	}

	var existing models.IdempotencyKey
	if err := tx.Where("business_id = ? AND handler_name = ? AND message_id = ?", businessId, handlerName, messageId).
		First(&existing).Error; err != nil {
		return false, "", err
	}

	switch existing.Status {
	case models.IdempotencyStatusSucceeded:
		if existing.ResultRef != nil {
			resultRef = *existing.ResultRef
		}
		return true, resultRef, nil
	case models.IdempotencyStatusStarted:
		// Another request is running; a stale one is taken over.
		if time.Since(existing.UpdatedAt) < staleIdempotencyAfter {
			return false, "", models.ErrIdempotencyInProgress
		}
	}
	return false, "", takeOverIdempotency(tx, &existing)
}

// takeOverIdempotency restarts a FAILED or stale STARTED key. The update only matches while the row is
// still in the state that was read, so of two concurrent retries exactly one wins and the other sees
// the key in progress.
func takeOverIdempotency(tx *gorm.DB, existing *models.IdempotencyKey) error {
	q := tx.Model(&models.IdempotencyKey{}).Where("id = ? AND status = ?", existing.ID, existing.Status)
	if existing.Status == models.IdempotencyStatusStarted {
		q = q.Where("updated_at < ?", time.Now().UTC().Add(-staleIdempotencyAfter))
	}
	res := q.Updates(map[string]interface{}{"status": models.IdempotencyStatusStarted, "last_error": nil})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return models.ErrIdempotencyInProgress
	}
	return nil
}

func MarkIdempotencySucceeded(tx *gorm.DB, businessId, handlerName, messageId, resultRef string) error {
	return tx.Model(&models.IdempotencyKey{}).
		Where("business_id = ? AND handler_name = ? AND message_id = ?", businessId, handlerName, messageId).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusSucceeded, "result_ref": &resultRef, "last_error": nil}).Error
}

func MarkIdempotencyFailed(tx *gorm.DB, businessId, handlerName, messageId string, err error) error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return tx.Model(&models.IdempotencyKey{}).
		Where("business_id = ? AND handler_name = ? AND message_id = ?", businessId, handlerName, messageId).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusFailed, "last_error": &msg}).Error
}
