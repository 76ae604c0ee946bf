/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for API communication, decoupled from the domain types
  so field names and shapes can evolve without touching the engine.

NAMING CONVENTION:
  - *DTO: response types returned to clients
  - *Request: request body types from clients

AMOUNTS:
  Monetary amounts are decimal.Decimal end to end, never float64; on the
  wire they are decimal strings (requests may also send plain numbers).
  Request amounts are pointers so an absent amount is distinguishable
  from zero (missing-fields check).
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/bank-ledger/bank"
	"github.com/warp/bank-ledger/ledger"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// RegisterRequest creates a ledger for a new user.
type RegisterRequest struct {
	UserID   string `json:"user_id"`
	Nickname string `json:"nickname,omitempty"`
}

// TransferRequest submits a transfer. DestinationOwner, when set, routes
// the credit into another user's ledger (cross-ledger transfer).
type TransferRequest struct {
	Source           string           `json:"source_account"`
	Destination      string           `json:"destination_account"`
	Amount           *decimal.Decimal `json:"amount"`
	Description      string           `json:"description,omitempty"`
	DestinationOwner string           `json:"destination_owner,omitempty"`
	IdempotencyKey   string           `json:"idempotency_key,omitempty"`
}

// OpenDepositRequest opens a fixed deposit.
type OpenDepositRequest struct {
	Amount   *decimal.Decimal `json:"amount"`
	Nickname string           `json:"nickname,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// AccountDTO represents an account in API responses. Deposit fields are
// omitted for ordinary accounts.
type AccountDTO struct {
	ID           string          `json:"id"`
	Number       string          `json:"account_number"`
	Type         string          `json:"type"`
	Status       string          `json:"status"`
	Nickname     string          `json:"nickname,omitempty"`
	Balance      decimal.Decimal `json:"balance"`
	Principal    decimal.Decimal `json:"principal,omitempty"`
	InterestRate decimal.Decimal `json:"interest_rate,omitempty"`
	OpenedAt     string          `json:"opened_at,omitempty"`
	MaturityDate string          `json:"maturity_date,omitempty"`
}

// EntryDTO represents a transaction log entry.
type EntryDTO struct {
	ID             string          `json:"id"`
	AccountID      string          `json:"account_id"`
	AccountNumber  string          `json:"account_number"`
	Type           string          `json:"type"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description,omitempty"`
	Date           string          `json:"date"`
	Status         string          `json:"status"`
	ReferenceID    string          `json:"reference_id,omitempty"`
}

// LedgerDTO is the full ledger view: accounts plus log.
type LedgerDTO struct {
	OwnerID  string       `json:"owner_id"`
	Currency string       `json:"currency"`
	Version  uint64       `json:"version"`
	Accounts []AccountDTO `json:"accounts"`
	Entries  []EntryDTO   `json:"transactions"`
}

// ProjectionDTO is a fixed deposit's interest projection.
type ProjectionDTO struct {
	DepositID       string          `json:"deposit_id"`
	Principal       decimal.Decimal `json:"principal"`
	AnnualRate      decimal.Decimal `json:"annual_rate"`
	AccruedInterest decimal.Decimal `json:"accrued_interest"`
	MaturityValue   decimal.Decimal `json:"maturity_value"`
	MaturityDate    string          `json:"maturity_date"`
}

// ErrorDTO is the uniform error envelope.
type ErrorDTO struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// =============================================================================
// MAPPING
// =============================================================================

func toAccountDTO(a ledger.Account) AccountDTO {
	dto := AccountDTO{
		ID:       string(a.ID),
		Number:   a.Number,
		Type:     string(a.Type),
		Status:   string(a.Status),
		Nickname: a.Nickname,
		Balance:  a.Balance.Value,
		OpenedAt: formatTime(a.OpenedAt),
	}
	if a.IsDeposit() {
		dto.Principal = a.Principal.Value
		dto.InterestRate = a.InterestRate
		dto.MaturityDate = formatTime(a.MaturityDate)
	}
	return dto
}

func toEntryDTO(e ledger.Entry) EntryDTO {
	return EntryDTO{
		ID:            string(e.ID),
		AccountID:     string(e.AccountID),
		AccountNumber: e.AccountNumber,
		Type:          string(e.Type),
		Amount:        e.Amount.Value,
		Description:   e.Description,
		Date:          formatTime(e.Date),
		Status:        string(e.Status),
		ReferenceID:   e.ReferenceID,
	}
}

func toLedgerDTO(s ledger.Snapshot) LedgerDTO {
	dto := LedgerDTO{
		OwnerID:  string(s.OwnerID),
		Currency: s.Currency,
		Version:  s.Version,
		Accounts: make([]AccountDTO, 0, len(s.Accounts)),
		Entries:  make([]EntryDTO, 0, len(s.Log)),
	}
	for _, a := range s.Accounts {
		dto.Accounts = append(dto.Accounts, toAccountDTO(a))
	}
	for _, e := range s.Log {
		dto.Entries = append(dto.Entries, toEntryDTO(e))
	}
	return dto
}

func toProjectionDTO(id ledger.AccountID, p bank.Projection) ProjectionDTO {
	return ProjectionDTO{
		DepositID:       string(id),
		Principal:       p.Principal.Value,
		AnnualRate:      p.AnnualRate,
		AccruedInterest: p.AccruedInterest.Value,
		MaturityValue:   p.MaturityValue.Value,
		MaturityDate:    formatTime(p.MaturityDate),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
