/*
interest.go - Fixed-deposit interest projection

PURPOSE:
  Projects what a deposit is worth: interest accrued so far and the
  value at maturity. Projections are computed on demand from the
  deposit's stored principal, rate, and dates - nothing here is
  persisted, and closing a deposit pays out principal only (accrued
  interest display is informational).

MODEL:
  Simple interest, day-prorated over a 365-day year:
    interest(asOf) = principal * rate/100 * min(days(open..asOf), tenure)/365
*/
package bank

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/bank-ledger/ledger"
)

const daysPerYear = 365

// Projection describes a fixed deposit's earning trajectory.
type Projection struct {
	Principal       ledger.Amount
	AnnualRate      decimal.Decimal
	AccruedInterest ledger.Amount
	MaturityValue   ledger.Amount
	MaturityDate    time.Time
}

// Project computes the projection for a fixed-deposit account as of a
// given time. Non-deposit accounts project zero interest.
func Project(a ledger.Account, asOf time.Time) Projection {
	p := Projection{
		Principal:       a.Principal,
		AnnualRate:      a.InterestRate,
		AccruedInterest: ledger.ZeroAmount(),
		MaturityValue:   a.Principal,
		MaturityDate:    a.MaturityDate,
	}
	if !a.IsDeposit() || a.OpenedAt.IsZero() {
		return p
	}

	p.AccruedInterest = simpleInterest(a.Principal, a.InterestRate, a.OpenedAt, minTime(asOf, a.MaturityDate))
	p.MaturityValue = a.Principal.Add(simpleInterest(a.Principal, a.InterestRate, a.OpenedAt, a.MaturityDate))
	return p
}

func simpleInterest(principal ledger.Amount, ratePercent decimal.Decimal, from, to time.Time) ledger.Amount {
	if !to.After(from) {
		return ledger.ZeroAmount()
	}
	days := decimal.NewFromFloat(to.Sub(from).Hours() / 24)
	factor := ratePercent.
		Div(decimal.NewFromInt(100)).
		Mul(days).
		Div(decimal.NewFromInt(daysPerYear))
	return ledger.Amount{Value: principal.Value.Mul(factor).Round(2)}
}

func minTime(a, b time.Time) time.Time {
	if b.IsZero() || a.Before(b) {
		return a
	}
	return b
}
