package config

import (
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

// UnbalancedPolicy controls what PostTransaction does with a debit/credit gap above the rounding tolerance.
type UnbalancedPolicy string

const (
	UnbalancedPolicyReject UnbalancedPolicy = "reject"
	// UnbalancedPolicyFlag books the gap to the suspense account and marks the transaction unreconciled.
	UnbalancedPolicyFlag UnbalancedPolicy = "flag"
)

var defaultRoundingTolerance = decimal.NewFromFloat(0.01)

// LedgerRoundingTolerance is the largest debit/credit gap that is auto-corrected on the last line.
// It should equal the minor unit of the deployment's currency.
//
// Set via env:
// - LEDGER_ROUNDING_TOLERANCE=0.01 (use 0 to disable auto-correction, 1 for MMK-style whole units)
func LedgerRoundingTolerance() decimal.Decimal {
	raw := strings.TrimSpace(os.Getenv("LEDGER_ROUNDING_TOLERANCE"))
	if raw == "" {
		return defaultRoundingTolerance
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return defaultRoundingTolerance
	}
	return d
}

// LedgerUnbalancedPolicy reads LEDGER_UNBALANCED_POLICY (reject|flag). Default reject.
func LedgerUnbalancedPolicy() UnbalancedPolicy {
	switch UnbalancedPolicy(strings.ToLower(strings.TrimSpace(os.Getenv("LEDGER_UNBALANCED_POLICY")))) {
	case UnbalancedPolicyFlag:
		return UnbalancedPolicyFlag
	default:
		return UnbalancedPolicyReject
	}
}

// AllowNegativeCash lets cash/bank/wallet accounts go below zero on orchestrated postings.
//
// Set via env:
// - LEDGER_ALLOW_NEGATIVE_CASH=true
func AllowNegativeCash() bool {
	return envBool("LEDGER_ALLOW_NEGATIVE_CASH")
}

// SerialNumberPadding is the zero-padded width of the counter part of document numbers.
func SerialNumberPadding() int {
	n := intFromEnv("SERIAL_NUMBER_PADDING", 4)
	if n <= 0 {
		return 4
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
