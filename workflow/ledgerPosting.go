package workflow

import (
	"fmt"
	"sort"
	"time"

	"github.com/mmdatafocus/erp_core/config"
	"github.com/mmdatafocus/erp_core/models"
	"github.com/mmdatafocus/erp_core/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ledgerPrecision is the number of decimal places amounts are stored with.
const ledgerPrecision = 4

// PostTransaction records a balanced transaction and applies each line's balance delta to its account.
//
// A debit/credit gap within the rounding tolerance is absorbed by the last line. A larger gap is rejected,
// or booked to the suspense account when the flag policy is configured.
func PostTransaction(tx *gorm.DB, input models.NewTransaction) (*models.Transaction, error) {
	input.TransactionDate = postingDate(input.TransactionDate)
	if err := utils.ValidateStruct(&input); err != nil {
		return nil, err
	}
	lines, err := normalizeLines(input.Lines)
	if err != nil {
		return nil, err
	}

	trx := models.Transaction{
		BusinessId:            input.BusinessId,
		TransactionDate:       input.TransactionDate,
		Type:                  input.Type,
		AccountId:             input.AccountId,
		CounterAccountId:      input.CounterAccountId,
		ReferenceType:         input.ReferenceType,
		ReferenceId:           input.ReferenceId,
		ReferenceNumber:       input.ReferenceNumber,
		Description:           input.Description,
		IsReconciled:          true,
		AutoCorrectionAmount:  decimal.Zero,
		IsReversal:            input.ReversesTransactionId != nil,
		ReversesTransactionId: input.ReversesTransactionId,
		CreatedBy:             input.CreatedBy,
	}
	if input.ReversalReason != "" {
		reason := input.ReversalReason
		trx.ReversalReason = &reason
	}
	if trx.CreatedBy == 0 {
		trx.CreatedBy, _ = utils.GetUserIdFromContext(tx.Statement.Context)
	}

	lines, err = balanceLines(tx, input.BusinessId, lines, &trx)
	if err != nil {
		return nil, err
	}

	// The serial row is locked before any account row.
	number, err := NextNumber(tx, input.BusinessId, models.DocumentTypeTransaction, input.TransactionDate.Year())
	if err != nil {
		return nil, err
	}
	trx.TransactionNumber = number

	accounts, err := lockAccounts(tx, input.BusinessId, lines)
	if err != nil {
		return nil, err
	}

	balances := make(map[int]decimal.Decimal, len(accounts))
	for id, a := range accounts {
		balances[id] = a.Balance
	}
	amount := decimal.Zero
	for i := range lines {
		a := accounts[lines[i].AccountId]
		lines[i].BusinessId = input.BusinessId
		lines[i].LineNo = i + 1
		lines[i].BalanceDelta = a.Classification.BalanceDelta(lines[i].Debit, lines[i].Credit)
		balances[a.ID] = balances[a.ID].Add(lines[i].BalanceDelta)
		amount = amount.Add(lines[i].Debit)
	}
	if input.RequireNonNegativeCash && !config.AllowNegativeCash() {
		if err := checkNonNegativeCash(accounts, balances); err != nil {
			return nil, err
		}
	}

	trx.Amount = amount
	trx.Lines = lines

	if err := tx.Create(&trx).Error; err != nil {
		config.LogError(config.GetLogger(), "ledgerPosting.go", "PostTransaction", "create transaction", trx.TransactionNumber, err)
		return nil, err
	}

	// Apply in ascending account id, the same order the rows were locked in.
	ids := make([]int, 0, len(balances))
	for id := range balances {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if balances[id].Equal(accounts[id].Balance) {
			continue
		}
		if err := tx.Model(&models.Account{}).Where("id = ?", id).Update("balance", balances[id]).Error; err != nil {
			return nil, err
		}
	}

	if err := models.EnqueueLedgerEvent(tx, trx.BusinessId, models.EventTransactionPosted, "transaction", trx.ID, map[string]interface{}{
		"transaction_number": trx.TransactionNumber,
		"type":               trx.Type,
		"amount":             trx.Amount,
		"reference_type":     trx.ReferenceType,
		"reference_id":       trx.ReferenceId,
		"is_reconciled":      trx.IsReconciled,
	}); err != nil {
		return nil, err
	}
	return &trx, nil
}

// normalizeLines rounds amounts to ledger precision and requires exactly one positive side per line.
func normalizeLines(input []models.NewTransactionLine) ([]models.TransactionLine, error) {
	lines := make([]models.TransactionLine, 0, len(input))
	for i, l := range input {
		debit := l.Debit.Round(ledgerPrecision)
		credit := l.Credit.Round(ledgerPrecision)
		if debit.IsNegative() || credit.IsNegative() {
			return nil, fmt.Errorf("%w: line %d has a negative amount", models.ErrInvalidAmount, i+1)
		}
		if debit.IsPositive() == credit.IsPositive() {
			return nil, fmt.Errorf("%w: line %d must have exactly one of debit or credit", models.ErrInvalidAmount, i+1)
		}
		lines = append(lines, models.TransactionLine{
			AccountId:   l.AccountId,
			Debit:       debit,
			Credit:      credit,
			Description: l.Description,
		})
	}
	return lines, nil
}

func sumLines(lines []models.TransactionLine) (debit, credit decimal.Decimal) {
	for _, l := range lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return debit, credit
}

func balanceLines(tx *gorm.DB, businessId string, lines []models.TransactionLine, trx *models.Transaction) ([]models.TransactionLine, error) {
	debit, credit := sumLines(lines)
	diff := debit.Sub(credit)
	if diff.IsZero() {
		return lines, nil
	}
	unbalanced := &models.UnbalancedEntryError{Debit: debit, Credit: credit, Difference: diff}

	if diff.Abs().LessThanOrEqual(config.LedgerRoundingTolerance()) {
		last := &lines[len(lines)-1]
		if last.Debit.IsPositive() {
			last.Debit = last.Debit.Sub(diff)
			if !last.Debit.IsPositive() {
				return nil, unbalanced
			}
		} else {
			last.Credit = last.Credit.Add(diff)
			if !last.Credit.IsPositive() {
				return nil, unbalanced
			}
		}
		trx.IsAutoCorrected = true
		trx.AutoCorrectionAmount = diff.Abs()
		return lines, nil
	}

	if config.LedgerUnbalancedPolicy() != config.UnbalancedPolicyFlag {
		return nil, unbalanced
	}
	chart, err := models.LoadChartOfAccounts(tx, businessId)
	if err != nil {
		return nil, err
	}
	suspenseId, err := chart.Require(models.AccountCodeSuspense)
	if err != nil {
		return nil, err
	}
	line := models.TransactionLine{AccountId: suspenseId, Description: "Unbalanced difference"}
	if diff.IsPositive() {
		line.Credit = diff
	} else {
		line.Debit = diff.Neg()
	}
	trx.IsReconciled = false
	return append(lines, line), nil
}

// lockAccounts locks every account the lines touch, in ascending id order.
func lockAccounts(tx *gorm.DB, businessId string, lines []models.TransactionLine) (map[int]*models.Account, error) {
	ids := make([]int, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.AccountId)
	}
	ids = utils.UniqueSlice(ids)

	var rows []models.Account
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND id IN ?", businessId, ids).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	accounts := make(map[int]*models.Account, len(rows))
	for i := range rows {
		accounts[rows[i].ID] = &rows[i]
	}
	for _, id := range ids {
		a, ok := accounts[id]
		if !ok {
			return nil, fmt.Errorf("account %d: %w", id, utils.ErrorRecordNotFound)
		}
		if !a.Active() {
			return nil, fmt.Errorf("%w: %s", models.ErrInactiveAccount, a.Code)
		}
	}
	return accounts, nil
}

func checkNonNegativeCash(accounts map[int]*models.Account, balances map[int]decimal.Decimal) error {
	for id, after := range balances {
		a := accounts[id]
		if !a.Kind.IsMoney() || a.Classification != models.AccountClassificationAsset {
			continue
		}
		if after.IsNegative() && after.LessThan(a.Balance) {
			return &models.InsufficientBalanceError{
				AccountId: a.ID,
				Code:      a.Code,
				Balance:   a.Balance,
				Required:  a.Balance.Sub(after),
			}
		}
	}
	return nil
}

// postingDate defaults a zero date to now.
func postingDate(d time.Time) time.Time {
	if d.IsZero() {
		return time.Now().UTC()
	}
	return d
}
