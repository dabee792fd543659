package models

import "github.com/shopspring/decimal"

type AccountKind string

const (
	AccountKindCash   AccountKind = "cash"
	AccountKindBank   AccountKind = "bank"
	AccountKindWallet AccountKind = "wallet"
	AccountKindOther  AccountKind = "other"
)

func (k AccountKind) IsValid() bool {
	switch k {
	case AccountKindCash, AccountKindBank, AccountKindWallet, AccountKindOther:
		return true
	}
	return false
}

// IsMoney reports accounts that hold real money (cash, bank, wallet).
func (k AccountKind) IsMoney() bool {
	return k == AccountKindCash || k == AccountKindBank || k == AccountKindWallet
}

type AccountClassification string

const (
	AccountClassificationAsset     AccountClassification = "asset"
	AccountClassificationLiability AccountClassification = "liability"
	AccountClassificationEquity    AccountClassification = "equity"
	AccountClassificationIncome    AccountClassification = "income"
	AccountClassificationExpense   AccountClassification = "expense"
)

func (c AccountClassification) IsValid() bool {
	switch c {
	case AccountClassificationAsset, AccountClassificationLiability, AccountClassificationEquity,
		AccountClassificationIncome, AccountClassificationExpense:
		return true
	}
	return false
}

// Sign is +1 for debit-normal classifications (asset, expense) and -1 otherwise.
func (c AccountClassification) Sign() decimal.Decimal {
	if c == AccountClassificationAsset || c == AccountClassificationExpense {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(-1)
}

// BalanceDelta is the signed effect of one line on an account of this classification.
func (c AccountClassification) BalanceDelta(debit, credit decimal.Decimal) decimal.Decimal {
	return c.Sign().Mul(debit.Sub(credit))
}

type TransactionType string

const (
	TransactionTypeIncome     TransactionType = "income"
	TransactionTypeExpense    TransactionType = "expense"
	TransactionTypeTransfer   TransactionType = "transfer"
	TransactionTypeJournal    TransactionType = "journal"
	TransactionTypeAdjustment TransactionType = "adjustment"
	TransactionTypeOpening    TransactionType = "opening"
)

type MovementKind string

const (
	MovementKindIn         MovementKind = "in"
	MovementKindOut        MovementKind = "out"
	MovementKindTransfer   MovementKind = "transfer"
	MovementKindAdjustment MovementKind = "adjustment"
	MovementKindReturnIn   MovementKind = "return_in"
	MovementKindReturnOut  MovementKind = "return_out"
)

func (k MovementKind) IsValid() bool {
	switch k {
	case MovementKindIn, MovementKindOut, MovementKindTransfer, MovementKindAdjustment,
		MovementKindReturnIn, MovementKindReturnOut:
		return true
	}
	return false
}

// IsOutgoing reports kinds that remove quantity from the movement's warehouse.
func (k MovementKind) IsOutgoing() bool {
	return k == MovementKindOut || k == MovementKindReturnOut
}

// Inverse is the kind that undoes k for a single warehouse. Transfer and adjustment have none.
func (k MovementKind) Inverse() MovementKind {
	switch k {
	case MovementKindIn:
		return MovementKindOut
	case MovementKindOut:
		return MovementKindIn
	case MovementKindReturnIn:
		return MovementKindReturnOut
	case MovementKindReturnOut:
		return MovementKindReturnIn
	}
	return ""
}

// DocumentType names both trade documents and the other numbered records (movements, transactions).
type DocumentType string

const (
	DocumentTypeSale           DocumentType = "sale"
	DocumentTypePurchase       DocumentType = "purchase"
	DocumentTypeSaleReturn     DocumentType = "sale_return"
	DocumentTypePurchaseReturn DocumentType = "purchase_return"
	DocumentTypeStockMovement  DocumentType = "stock_movement"
	DocumentTypeTransaction    DocumentType = "transaction"
	DocumentTypeExpense        DocumentType = "expense"
	DocumentTypeIncome         DocumentType = "income"
)

// IsTrade reports the document types that go through the orchestrator.
func (t DocumentType) IsTrade() bool {
	switch t {
	case DocumentTypeSale, DocumentTypePurchase, DocumentTypeSaleReturn, DocumentTypePurchaseReturn:
		return true
	}
	return false
}

func (t DocumentType) IsReturn() bool {
	return t == DocumentTypeSaleReturn || t == DocumentTypePurchaseReturn
}

// OriginType is the document type a return points back to.
func (t DocumentType) OriginType() DocumentType {
	switch t {
	case DocumentTypeSaleReturn:
		return DocumentTypeSale
	case DocumentTypePurchaseReturn:
		return DocumentTypePurchase
	}
	return ""
}

// MovementKind is the stock movement a confirmed line of this document produces.
func (t DocumentType) MovementKind() MovementKind {
	switch t {
	case DocumentTypePurchase:
		return MovementKindIn
	case DocumentTypeSale:
		return MovementKindOut
	case DocumentTypeSaleReturn:
		return MovementKindReturnIn
	case DocumentTypePurchaseReturn:
		return MovementKindReturnOut
	}
	return ""
}

type DocumentStatus string

const (
	DocumentStatusDraft           DocumentStatus = "draft"
	DocumentStatusConfirmed       DocumentStatus = "confirmed"
	DocumentStatusCancelled       DocumentStatus = "cancelled"
	DocumentStatusReturnedPartial DocumentStatus = "returned_partial"
	DocumentStatusReturnedFull    DocumentStatus = "returned_full"
)

// IsPosted reports statuses whose stock and ledger effects are live.
func (s DocumentStatus) IsPosted() bool {
	return s == DocumentStatusConfirmed || s == DocumentStatusReturnedPartial || s == DocumentStatusReturnedFull
}

type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "cash"
	PaymentMethodCredit PaymentMethod = "credit"
)

type PaymentStatus string

const (
	PaymentStatusUnpaid        PaymentStatus = "unpaid"
	PaymentStatusPartiallyPaid PaymentStatus = "partially_paid"
	PaymentStatusPaid          PaymentStatus = "paid"
)

type BalanceOp string

const (
	BalanceOpAdd      BalanceOp = "add"
	BalanceOpSubtract BalanceOp = "subtract"
)

type ReconciliationStatus string

const (
	ReconciliationStatusMatched     ReconciliationStatus = "matched"
	ReconciliationStatusDiscrepancy ReconciliationStatus = "discrepancy"
)

// Reference types for ledger transactions and stock movements not created from a trade document.
const (
	ReferenceTypeManual         = "manual"
	ReferenceTypeAdjustment     = "adjustment"
	ReferenceTypeOpeningBalance = "opening_balance"
	ReferenceTypePayment        = "payment"
)
