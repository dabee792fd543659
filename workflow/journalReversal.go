package workflow

import (
	"fmt"
	"time"

	"github.com/mmdatafocus/erp_core/models"
	"github.com/mmdatafocus/erp_core/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReverseTransaction posts a reversal that swaps debit and credit of every line of the original.
//
// We do NOT delete or edit posted lines. The reversal links back through reverses_transaction_id and the
// original gets reversed_by_transaction_id. Reversing twice returns the existing reversal.
func ReverseTransaction(tx *gorm.DB, businessId string, transactionId int, reason string) (reversalId int, err error) {
	if tx == nil {
		return 0, fmt.Errorf("reverse transaction: tx is nil")
	}
	var original models.Transaction
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("line_no ASC") }).
		Where("business_id = ? AND id = ?", businessId, transactionId).
		First(&original).Error; err != nil {
		return 0, utils.NotFoundOr(err)
	}
	if original.IsReversal {
		return 0, models.ErrCannotReverseReversal
	}
	if original.ReversedByTransactionId != nil && *original.ReversedByTransactionId > 0 {
		return *original.ReversedByTransactionId, nil
	}

	lines := make([]models.NewTransactionLine, 0, len(original.Lines))
	for _, l := range original.Lines {
		lines = append(lines, models.NewTransactionLine{
			AccountId:   l.AccountId,
			Debit:       l.Credit,
			Credit:      l.Debit,
			Description: l.Description,
		})
	}

	reversal, err := PostTransaction(tx, models.NewTransaction{
		BusinessId:            original.BusinessId,
		TransactionDate:       time.Now().UTC(),
		Type:                  original.Type,
		AccountId:             original.AccountId,
		CounterAccountId:      original.CounterAccountId,
		ReferenceType:         original.ReferenceType,
		ReferenceId:           original.ReferenceId,
		ReferenceNumber:       original.ReferenceNumber,
		Description:           "REV: " + original.TransactionNumber,
		Lines:                 lines,
		ReversesTransactionId: &original.ID,
		ReversalReason:        reason,
	})
	if err != nil {
		return 0, err
	}

	// Mark original as reversed (metadata-only update).
	reasonCopy := reason
	now := time.Now().UTC()
	if err := tx.Model(&models.Transaction{}).
		Where("id = ?", original.ID).
		Updates(map[string]interface{}{
			"reversed_by_transaction_id": reversal.ID,
			"reversal_reason":            &reasonCopy,
			"reversed_at":                &now,
		}).Error; err != nil {
		return 0, err
	}

	if err := models.EnqueueLedgerEvent(tx, original.BusinessId, models.EventTransactionReversed, "transaction", original.ID, map[string]interface{}{
		"transaction_number":          original.TransactionNumber,
		"reversal_transaction_id":     reversal.ID,
		"reversal_transaction_number": reversal.TransactionNumber,
		"reason":                      reason,
	}); err != nil {
		return 0, err
	}
	return reversal.ID, nil
}

// ReverseDocumentTransactions reverses every live transaction referencing a document or its payments.
func ReverseDocumentTransactions(tx *gorm.DB, businessId, referenceType string, referenceId int, reason string) error {
	var ids []int
	if err := tx.Model(&models.Transaction{}).
		Where("business_id = ? AND reference_type = ? AND reference_id = ?", businessId, referenceType, referenceId).
		Where("is_reversal = ? AND reversed_by_transaction_id IS NULL", false).
		Order("id DESC").
		Pluck("id", &ids).Error; err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := ReverseTransaction(tx, businessId, id, reason); err != nil {
			return err
		}
	}
	return nil
}
