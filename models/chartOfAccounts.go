package models

import (
	"fmt"

	"gorm.io/gorm"
)

// System default codes of the bootstrapped chart of accounts.
const (
	AccountCodeCash                 = "CASH001"
	AccountCodeBank                 = "BANK001"
	AccountCodeReceivable           = "AR001"
	AccountCodePayable              = "AP001"
	AccountCodeSalesRevenue         = "INC002"
	AccountCodePurchasesExpense     = "EXP001"
	AccountCodeSuspense             = "SUS001"
	AccountCodeOpeningBalanceEquity = "OBE001"
)

type SystemAccountDefinition struct {
	Code           string
	Name           string
	Kind           AccountKind
	Classification AccountClassification
}

var DefaultChartOfAccounts = []SystemAccountDefinition{
	{AccountCodeCash, "Cash", AccountKindCash, AccountClassificationAsset},
	{AccountCodeBank, "Bank", AccountKindBank, AccountClassificationAsset},
	{AccountCodeReceivable, "Accounts Receivable", AccountKindOther, AccountClassificationAsset},
	{AccountCodePayable, "Accounts Payable", AccountKindOther, AccountClassificationLiability},
	{AccountCodeSalesRevenue, "Sales Revenue", AccountKindOther, AccountClassificationIncome},
	{AccountCodePurchasesExpense, "Purchases", AccountKindOther, AccountClassificationExpense},
	{AccountCodeSuspense, "Suspense", AccountKindOther, AccountClassificationAsset},
	{AccountCodeOpeningBalanceEquity, "Opening Balance Equity", AccountKindOther, AccountClassificationEquity},
}

// ChartOfAccounts maps system default code to account id for one business.
type ChartOfAccounts map[string]int

// Require returns the account id for code or ErrChartNotBootstrapped.
func (c ChartOfAccounts) Require(code string) (int, error) {
	id, ok := c[code]
	if !ok || id == 0 {
		return 0, fmt.Errorf("%w: missing %s", ErrChartNotBootstrapped, code)
	}
	return id, nil
}

func LoadChartOfAccounts(tx *gorm.DB, businessId string) (ChartOfAccounts, error) {
	var rows []Account
	if err := tx.Select("id", "system_default_code").
		Where("business_id = ? AND system_default_code <> ''", businessId).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	chart := make(ChartOfAccounts, len(rows))
	for _, r := range rows {
		chart[r.SystemDefaultCode] = r.ID
	}
	return chart, nil
}
