package models

import (
	"errors"
	"fmt"

	"github.com/mmdatafocus/erp_core/utils"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrInactiveAccount         = errors.New("account is inactive")
	ErrIdempotencyInProgress   = errors.New("idempotency in progress")
	ErrChartNotBootstrapped    = errors.New("chart of accounts is not bootstrapped")
	ErrCannotReverseReversal   = errors.New("a reversal cannot be reversed")
	ErrInvalidReturn           = errors.New("invalid return")
	ErrBusinessIdRequired      = errors.New("business id is required")
)

type UnbalancedEntryError struct {
	Debit      decimal.Decimal
	Credit     decimal.Decimal
	Difference decimal.Decimal
}

func (e *UnbalancedEntryError) Error() string {
	return fmt.Sprintf("unbalanced entry: debit %s, credit %s, difference %s",
		e.Debit.StringFixed(4), e.Credit.StringFixed(4), e.Difference.StringFixed(4))
}

type InsufficientStockError struct {
	ProductId   int
	WarehouseId int
	Available   decimal.Decimal
	Requested   decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d in warehouse %d: available %s, requested %s",
		e.ProductId, e.WarehouseId, e.Available.String(), e.Requested.String())
}

type InsufficientBalanceError struct {
	AccountId int
	Code      string
	Balance   decimal.Decimal
	Required  decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance on account %d (%s): balance %s, required %s",
		e.AccountId, e.Code, e.Balance.StringFixed(4), e.Required.StringFixed(4))
}

type InvalidTransferError struct {
	Reason string
}

func (e *InvalidTransferError) Error() string {
	return "invalid transfer: " + e.Reason
}

type NotBankAccountError struct {
	AccountId int
	Kind      AccountKind
}

func (e *NotBankAccountError) Error() string {
	return fmt.Sprintf("account %d is not a bank account (kind %s)", e.AccountId, e.Kind)
}

type DuplicateMovementError struct {
	ReferenceKey string
	MovementId   int
}

func (e *DuplicateMovementError) Error() string {
	return fmt.Sprintf("movement for reference %s already applied (movement %d)", e.ReferenceKey, e.MovementId)
}

type NumberingError struct {
	DocumentType DocumentType
	Err          error
}

func (e *NumberingError) Error() string {
	return fmt.Sprintf("numbering %s: %v", e.DocumentType, e.Err)
}

func (e *NumberingError) Unwrap() error { return e.Err }

// ValidationError carries a field-level input problem not covered by struct tags.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

type ErrorKind string

const (
	ErrorKindValidation     ErrorKind = "validation"
	ErrorKindConflict       ErrorKind = "conflict"
	ErrorKindNotFound       ErrorKind = "not_found"
	ErrorKindInfrastructure ErrorKind = "infrastructure"
)

// ClassifyError maps an error returned by the engine to the category callers act on.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var (
		unbalanced *UnbalancedEntryError
		stock      *InsufficientStockError
		balance    *InsufficientBalanceError
		transfer   *InvalidTransferError
		notBank    *NotBankAccountError
		validation *ValidationError
		duplicate  *DuplicateMovementError
		numbering  *NumberingError
	)
	switch {
	case errors.As(err, &numbering):
		return ErrorKindInfrastructure
	case errors.As(err, &duplicate),
		errors.Is(err, ErrIdempotencyInProgress),
		utils.IsDuplicateKeyErr(err):
		return ErrorKindConflict
	case errors.Is(err, utils.ErrorRecordNotFound):
		return ErrorKindNotFound
	case errors.As(err, &unbalanced),
		errors.As(err, &stock),
		errors.As(err, &balance),
		errors.As(err, &transfer),
		errors.As(err, &notBank),
		errors.As(err, &validation),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidStatusTransition),
		errors.Is(err, ErrInactiveAccount),
		errors.Is(err, ErrChartNotBootstrapped),
		errors.Is(err, ErrCannotReverseReversal),
		errors.Is(err, ErrInvalidReturn),
		errors.Is(err, ErrBusinessIdRequired),
		utils.IsValidationError(err):
		return ErrorKindValidation
	}
	return ErrorKindInfrastructure
}
