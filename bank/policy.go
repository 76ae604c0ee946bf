/*
policy.go - Static policy values for the bank domain

PURPOSE:
  The engine takes every policy value as an explicit parameter; this file
  names the documented defaults and gives config a single struct to
  override.

DEFAULTS:
  Minimum transfer amount:      1 unit
  Fixed deposit annual rate:    7.10% p.a.
  Fixed deposit tenure:         1 year
  Opening balance on register:  10000 units
*/
package bank

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/bank-ledger/ledger"
)

// Policy holds the static business constants every operation consults.
type Policy struct {
	// MinTransferAmount rejects dust transfers (BelowMinimum).
	MinTransferAmount ledger.Amount

	// DepositAnnualRate is the fixed-deposit rate in percent per annum.
	DepositAnnualRate decimal.Decimal

	// DepositTenureYears sets maturity = open date + this many years.
	DepositTenureYears int

	// OpeningBalance seeds the primary account at registration.
	OpeningBalance ledger.Amount

	// Currency is the ledger's canonical unit label.
	Currency string
}

// DefaultPolicy returns the documented defaults.
func DefaultPolicy() Policy {
	return Policy{
		MinTransferAmount:  ledger.NewAmountFromInt(1),
		DepositAnnualRate:  decimal.NewFromFloat(7.10),
		DepositTenureYears: 1,
		OpeningBalance:     ledger.NewAmountFromInt(10000),
		Currency:           "USD",
	}
}

// MaturityFrom computes the maturity date for a deposit opened at t.
func (p Policy) MaturityFrom(t time.Time) time.Time {
	return t.AddDate(p.DepositTenureYears, 0, 0)
}
