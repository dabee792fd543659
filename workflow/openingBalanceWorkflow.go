package workflow

import (
	"fmt"
	"time"

	"github.com/mmdatafocus/erp_core/models"
	"github.com/mmdatafocus/erp_core/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// UpdateAccountBalance moves an account's balance by amount through an adjusting entry against suspense.
// "add" raises the account's natural balance and "subtract" lowers it; the cached balance is never written directly.
func UpdateAccountBalance(tx *gorm.DB, businessId string, accountId int, amount decimal.Decimal, op models.BalanceOp) (*models.Transaction, error) {
	amount = amount.Round(ledgerPrecision)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: adjustment must be greater than zero", models.ErrInvalidAmount)
	}
	if op != models.BalanceOpAdd && op != models.BalanceOpSubtract {
		return nil, &models.ValidationError{Field: "operation", Message: "must be add or subtract"}
	}
	account, err := utils.FetchModelTx[models.Account](tx, businessId, accountId)
	if err != nil {
		return nil, err
	}
	chart, err := models.LoadChartOfAccounts(tx, businessId)
	if err != nil {
		return nil, err
	}
	suspenseId, err := chart.Require(models.AccountCodeSuspense)
	if err != nil {
		return nil, err
	}
	if suspenseId == accountId {
		return nil, &models.ValidationError{Field: "account_id", Message: "suspense account cannot be adjusted against itself"}
	}

	// debit raises a debit-normal account, credit raises the others
	raise := account.Classification.Sign().IsPositive()
	if op == models.BalanceOpSubtract {
		raise = !raise
	}
	lines := adjustingLines(accountId, suspenseId, amount, raise)

	return PostTransaction(tx, models.NewTransaction{
		BusinessId:       businessId,
		TransactionDate:  time.Now().UTC(),
		Type:             models.TransactionTypeAdjustment,
		AccountId:        &account.ID,
		CounterAccountId: &suspenseId,
		ReferenceType:    models.ReferenceTypeAdjustment,
		ReferenceId:      account.ID,
		Description:      fmt.Sprintf("Balance %s %s on %s", op, amount.StringFixed(4), account.Code),
		Lines:            lines,
	})
}

// SetOpeningBalance posts a signed opening balance against opening balance equity.
// A positive amount raises the account's natural balance. Any earlier opening entry for the account is reversed first.
func SetOpeningBalance(tx *gorm.DB, businessId string, accountId int, amount decimal.Decimal, date time.Time) (*models.Transaction, error) {
	amount = amount.Round(ledgerPrecision)
	if amount.IsZero() {
		return nil, fmt.Errorf("%w: opening balance must not be zero", models.ErrInvalidAmount)
	}
	account, err := utils.FetchModelTx[models.Account](tx, businessId, accountId)
	if err != nil {
		return nil, err
	}
	chart, err := models.LoadChartOfAccounts(tx, businessId)
	if err != nil {
		return nil, err
	}
	equityId, err := chart.Require(models.AccountCodeOpeningBalanceEquity)
	if err != nil {
		return nil, err
	}
	if equityId == accountId {
		return nil, &models.ValidationError{Field: "account_id", Message: "opening balance equity cannot open against itself"}
	}

	if err := ReverseDocumentTransactions(tx, businessId, models.ReferenceTypeOpeningBalance, accountId, ReversalReasonOpeningBalance); err != nil {
		return nil, err
	}

	raise := account.Classification.Sign().IsPositive()
	if amount.IsNegative() {
		raise = !raise
	}
	lines := adjustingLines(accountId, equityId, amount.Abs(), raise)

	return PostTransaction(tx, models.NewTransaction{
		BusinessId:       businessId,
		TransactionDate:  postingDate(date),
		Type:             models.TransactionTypeOpening,
		AccountId:        &account.ID,
		CounterAccountId: &equityId,
		ReferenceType:    models.ReferenceTypeOpeningBalance,
		ReferenceId:      account.ID,
		Description:      "Opening balance " + account.Code,
		Lines:            lines,
	})
}

// adjustingLines debits the account and credits the counter account when debitAccount, and the reverse otherwise.
func adjustingLines(accountId, counterId int, amount decimal.Decimal, debitAccount bool) []models.NewTransactionLine {
	if debitAccount {
		return []models.NewTransactionLine{
			{AccountId: accountId, Debit: amount},
			{AccountId: counterId, Credit: amount},
		}
	}
	return []models.NewTransactionLine{
		{AccountId: accountId, Credit: amount},
		{AccountId: counterId, Debit: amount},
	}
}
