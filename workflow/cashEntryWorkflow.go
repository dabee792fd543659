package workflow

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/erp_core/config"
	"github.com/mmdatafocus/erp_core/models"
	"github.com/mmdatafocus/erp_core/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CreateCashEntry records a pending expense or income. It is numbered but not posted.
func CreateCashEntry(ctx context.Context, input models.NewCashEntry) (*models.CashEntry, error) {
	if err := utils.ValidateStruct(&input); err != nil {
		return nil, err
	}
	amount := input.Amount.Round(ledgerPrecision)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be greater than zero", models.ErrInvalidAmount)
	}

	var entry *models.CashEntry
	err := documentOperation(ctx, "CreateCashEntry", 0, func(tx *gorm.DB, businessId string) error {
		category, err := utils.FetchModelTx[models.Account](tx, businessId, input.AccountId)
		if err != nil {
			return err
		}
		if category.Classification != input.Kind.Classification() {
			return &models.ValidationError{Field: "account_id", Message: fmt.Sprintf("%s entries need an %s account", input.Kind, input.Kind.Classification())}
		}
		if !category.Active() {
			return &models.ValidationError{Field: "account_id", Message: "account is inactive"}
		}

		date := postingDate(input.EntryDate)
		number, err := NextNumber(tx, businessId, input.Kind.DocumentType(), date.Year())
		if err != nil {
			return err
		}
		userId, _ := utils.GetUserIdFromContext(ctx)
		entry = &models.CashEntry{
			BusinessId:      businessId,
			Kind:            input.Kind,
			Number:          number,
			Title:           input.Title,
			AccountId:       category.ID,
			Amount:          amount,
			EntryDate:       date,
			Status:          models.CashEntryStatusPending,
			ReferenceNumber: input.ReferenceNumber,
			Description:     input.Description,
			CreatedBy:       userId,
		}
		return tx.Create(entry).Error
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// SettleCashEntry pays a pending expense out of, or receives a pending income into, a money account.
// An expense may not overdraw the account unless negative cash is allowed.
func SettleCashEntry(ctx context.Context, entryId int, input models.CashEntrySettlement) (*models.CashEntry, error) {
	if err := utils.ValidateStruct(&input); err != nil {
		return nil, err
	}
	var entry *models.CashEntry
	err := documentOperation(ctx, "SettleCashEntry", 0, func(tx *gorm.DB, businessId string) error {
		var err error
		if entry, err = utils.LockModel[models.CashEntry](tx, businessId, entryId); err != nil {
			return err
		}
		if entry.Status != models.CashEntryStatusPending {
			return fmt.Errorf("%w: %s entry is %s", models.ErrInvalidStatusTransition, entry.Kind, entry.Status)
		}

		moneyId := input.AccountId
		if moneyId == 0 {
			chart, err := models.LoadChartOfAccounts(tx, businessId)
			if err != nil {
				return err
			}
			if moneyId, err = chart.Require(models.AccountCodeCash); err != nil {
				return err
			}
		}
		money, err := utils.FetchModelTx[models.Account](tx, businessId, moneyId)
		if err != nil {
			return err
		}
		if !money.Kind.IsMoney() {
			return &models.ValidationError{Field: "account_id", Message: "settlement account must be cash, bank or wallet"}
		}

		lines := []models.NewTransactionLine{
			{AccountId: entry.AccountId, Debit: entry.Amount},
			{AccountId: money.ID, Credit: entry.Amount},
		}
		trxType := models.TransactionTypeExpense
		if entry.Kind == models.CashEntryKindIncome {
			lines = []models.NewTransactionLine{
				{AccountId: money.ID, Debit: entry.Amount},
				{AccountId: entry.AccountId, Credit: entry.Amount},
			}
			trxType = models.TransactionTypeIncome
		}

		date := postingDate(input.SettledDate)
		trx, err := PostTransaction(tx, models.NewTransaction{
			BusinessId:             businessId,
			TransactionDate:        date,
			Type:                   trxType,
			AccountId:              &money.ID,
			CounterAccountId:       &entry.AccountId,
			ReferenceType:          string(entry.Kind),
			ReferenceId:            entry.ID,
			ReferenceNumber:        entry.Number,
			Description:            entry.Title,
			Lines:                  lines,
			RequireNonNegativeCash: true,
		})
		if err != nil {
			return err
		}

		entry.Status = entry.Kind.SettledStatus()
		entry.SettlementAccountId = &money.ID
		entry.SettledDate = &date
		entry.TransactionId = &trx.ID
		if err := tx.Model(&models.CashEntry{}).Where("id = ?", entry.ID).Updates(map[string]interface{}{
			"status":                entry.Status,
			"settlement_account_id": entry.SettlementAccountId,
			"settled_date":          entry.SettledDate,
			"transaction_id":        entry.TransactionId,
		}).Error; err != nil {
			return err
		}
		return models.EnqueueLedgerEvent(tx, businessId, models.EventCashEntrySettled, string(entry.Kind), entry.ID, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// CancelCashEntry cancels a pending entry, or reverses the posting of a settled one.
// Taking back a received income may not overdraw its account unless negative cash is allowed.
func CancelCashEntry(ctx context.Context, entryId int, reason string) (*models.CashEntry, error) {
	if reason == "" {
		reason = ReversalReasonCashEntryCancel
	}
	var entry *models.CashEntry
	err := documentOperation(ctx, "CancelCashEntry", 0, func(tx *gorm.DB, businessId string) error {
		var err error
		if entry, err = utils.LockModel[models.CashEntry](tx, businessId, entryId); err != nil {
			return err
		}
		if entry.Status == models.CashEntryStatusCancelled {
			return fmt.Errorf("%w: %s entry is already cancelled", models.ErrInvalidStatusTransition, entry.Kind)
		}
		if entry.TransactionId != nil {
			if _, err := ReverseTransaction(tx, businessId, *entry.TransactionId, reason); err != nil {
				return err
			}
			if entry.Kind == models.CashEntryKindIncome && entry.SettlementAccountId != nil && !config.AllowNegativeCash() {
				if err := requireNoOverdraft(tx, businessId, *entry.SettlementAccountId, entry.Amount); err != nil {
					return err
				}
			}
		}
		entry.Status = models.CashEntryStatusCancelled
		if err := tx.Model(&models.CashEntry{}).Where("id = ?", entry.ID).Update("status", entry.Status).Error; err != nil {
			return err
		}
		return models.EnqueueLedgerEvent(tx, businessId, models.EventCashEntryCancelled, string(entry.Kind), entry.ID, map[string]interface{}{
			"number": entry.Number,
			"reason": reason,
		})
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// requireNoOverdraft checks a money account after a withdrawal of amount was applied in tx.
func requireNoOverdraft(tx *gorm.DB, businessId string, accountId int, amount decimal.Decimal) error {
	account, err := utils.FetchModelTx[models.Account](tx, businessId, accountId)
	if err != nil {
		return err
	}
	if account.Kind.IsMoney() && account.Balance.IsNegative() {
		return &models.InsufficientBalanceError{
			AccountId: account.ID,
			Code:      account.Code,
			Balance:   account.Balance.Add(amount),
			Required:  amount,
		}
	}
	return nil
}
