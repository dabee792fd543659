package workflow

import (
	"fmt"
	"sort"
	"time"

	"github.com/mmdatafocus/erp_core/config"
	"github.com/mmdatafocus/erp_core/models"
	"github.com/mmdatafocus/erp_core/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Reconcile compares a bank account's cached balance with a statement balance and records the result.
// It never posts: a discrepancy is for the user to resolve with an adjusting entry.
func Reconcile(tx *gorm.DB, businessId string, accountId int, externalBalance decimal.Decimal, date time.Time) (*models.ReconciliationResult, error) {
	var account models.Account
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND id = ?", businessId, accountId).
		First(&account).Error; err != nil {
		return nil, utils.NotFoundOr(err)
	}
	if account.Kind != models.AccountKindBank {
		return nil, &models.NotBankAccountError{AccountId: account.ID, Kind: account.Kind}
	}

	external := externalBalance.Round(ledgerPrecision)
	difference := external.Sub(account.Balance)
	result := &models.ReconciliationResult{Difference: difference}
	record := models.BankReconciliation{
		BusinessId:         businessId,
		AccountId:          account.ID,
		ReconciliationDate: postingDate(date),
		SystemBalance:      account.Balance,
		BankBalance:        external,
		Difference:         difference,
	}
	record.CreatedBy, _ = utils.GetUserIdFromContext(tx.Statement.Context)
	if difference.IsZero() {
		record.Status = models.ReconciliationStatusMatched
		result.Ok = true
		result.Message = "reconciled without differences"
	} else {
		record.Status = models.ReconciliationStatusDiscrepancy
		result.Message = fmt.Sprintf("reconciled with difference %s", difference.StringFixed(4))
	}
	record.Notes = result.Message

	if err := tx.Create(&record).Error; err != nil {
		config.LogError(config.GetLogger(), "reconciliationWorkflow.go", "Reconcile", "create reconciliation", record, err)
		return nil, err
	}
	result.Record = &record
	return result, nil
}

// VerifyAccountBalances recomputes every account balance from its transaction lines
// and lists the accounts whose cached balance differs. Nothing is changed.
func VerifyAccountBalances(tx *gorm.DB, businessId string) ([]models.AccountBalanceMismatch, error) {
	var accounts []models.Account
	if err := tx.Where("business_id = ?", businessId).Order("id ASC").Find(&accounts).Error; err != nil {
		return nil, err
	}
	var lines []models.TransactionLine
	if err := tx.Select("account_id", "balance_delta").
		Where("business_id = ?", businessId).
		Find(&lines).Error; err != nil {
		return nil, err
	}
	sums := make(map[int]decimal.Decimal, len(accounts))
	for _, l := range lines {
		sums[l.AccountId] = sums[l.AccountId].Add(l.BalanceDelta)
	}

	mismatches := make([]models.AccountBalanceMismatch, 0)
	for _, a := range accounts {
		fromLines := sums[a.ID]
		if a.Balance.Equal(fromLines) {
			continue
		}
		mismatches = append(mismatches, models.AccountBalanceMismatch{
			AccountId: a.ID,
			Code:      a.Code,
			Cached:    a.Balance,
			FromLines: fromLines,
		})
	}
	sort.Slice(mismatches, func(i, j int) bool { return mismatches[i].AccountId < mismatches[j].AccountId })
	if len(mismatches) > 0 {
		config.GetLogger().WithFields(logrus.Fields{
			"field":       "VerifyAccountBalances",
			"business_id": businessId,
			"mismatches":  len(mismatches),
		}).Warn("cached account balances disagree with transaction lines")
	}
	return mismatches, nil
}
