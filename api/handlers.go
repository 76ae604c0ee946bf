/*
handlers.go - HTTP API handlers for the bank ledger service

PURPOSE:
  Exposes the bank service via REST. Handles HTTP request/response and
  JSON serialization; every business decision is delegated to bank and
  ledger.

ENDPOINTS:
  POST   /api/users                                Register (seed ledger)
  GET    /api/users/{id}                           Full ledger view
  GET    /api/users/{id}/accounts                  Accounts
  GET    /api/users/{id}/transactions              Entry log
  POST   /api/users/{id}/transfers                 Transfer
  POST   /api/users/{id}/deposits                  Open fixed deposit
  POST   /api/users/{id}/deposits/{fd}/close       Close fixed deposit
  GET    /api/users/{id}/deposits/{fd}/projection  Interest projection

ERROR HANDLING:
  Typed ledger errors map to status codes:
  - 400: validation failures (missing fields, invalid destination, same
         account, non-positive, below minimum, insufficient funds)
  - 404: unknown ledger/account/deposit
  - 409: already closed, optimistic-concurrency conflict, duplicates
  - 503: persistence unavailable (write fate unknown; re-read first)
  Internal error text is never echoed to clients for 5xx.

SEE ALSO:
  - dto.go: request/response shapes
  - server.go: router and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/bank-ledger/bank"
	"github.com/warp/bank-ledger/ledger"
)

// Handler holds the handler dependencies.
type Handler struct {
	Service *bank.Service
}

func NewHandler(svc *bank.Service) *Handler {
	return &Handler{Service: svc}
}

// =============================================================================
// USERS
// =============================================================================

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}
	if req.UserID == "" {
		writeDomainError(w, ledger.ErrMissingFields)
		return
	}

	snap, err := h.Service.Register(r.Context(), ledger.OwnerID(req.UserID), req.Nickname)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLedgerDTO(snap))
}

func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Service.Ledger(r.Context(), ownerParam(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLedgerDTO(snap))
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Service.Accounts(r.Context(), ownerParam(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]AccountDTO, 0, len(accounts))
	for _, a := range accounts {
		dtos = append(dtos, toAccountDTO(a))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Service.Entries(r.Context(), ownerParam(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]EntryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, toEntryDTO(e))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// TRANSFERS
// =============================================================================

func (h *Handler) SubmitTransfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}
	// Absent amount is a missing field, not a zero amount.
	if req.Amount == nil || req.Source == "" || req.Destination == "" {
		writeDomainError(w, ledger.ErrMissingFields)
		return
	}

	domainReq := bank.TransferRequest{
		Source:         req.Source,
		Destination:    req.Destination,
		Amount:         ledger.Amount{Value: *req.Amount},
		Description:    req.Description,
		IdempotencyKey: req.IdempotencyKey,
	}

	owner := ownerParam(r)
	var entry *ledger.Entry
	var err error
	if req.DestinationOwner != "" && req.DestinationOwner != string(owner) {
		entry, err = h.Service.TransferBetween(r.Context(), owner, ledger.OwnerID(req.DestinationOwner), domainReq)
	} else {
		entry, err = h.Service.Transfer(r.Context(), owner, domainReq)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(*entry))
}

// =============================================================================
// FIXED DEPOSITS
// =============================================================================

func (h *Handler) OpenDeposit(w http.ResponseWriter, r *http.Request) {
	var req OpenDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}
	if req.Amount == nil {
		writeDomainError(w, ledger.ErrMissingFields)
		return
	}

	deposit, err := h.Service.OpenDeposit(r.Context(), ownerParam(r),
		ledger.Amount{Value: *req.Amount}, req.Nickname)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(*deposit))
}

func (h *Handler) CloseDeposit(w http.ResponseWriter, r *http.Request) {
	depositID := ledger.AccountID(chi.URLParam(r, "depositID"))
	if err := h.Service.CloseDeposit(r.Context(), ownerParam(r), depositID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (h *Handler) DepositProjection(w http.ResponseWriter, r *http.Request) {
	depositID := ledger.AccountID(chi.URLParam(r, "depositID"))
	deposit, err := h.Service.Deposit(r.Context(), ownerParam(r), depositID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	p := bank.Project(*deposit, nowUTC())
	writeJSON(w, http.StatusOK, toProjectionDTO(depositID, p))
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func ownerParam(r *http.Request) ledger.OwnerID {
	return ledger.OwnerID(chi.URLParam(r, "userID"))
}

func nowUTC() time.Time { return time.Now().UTC() }

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorDTO{Error: code, Message: message})
}

// writeDomainError maps the ledger error taxonomy onto HTTP statuses.
// Client errors echo their message; server errors never do.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrMissingFields):
		writeError(w, http.StatusBadRequest, "missing_fields", err.Error())
	case errors.Is(err, ledger.ErrInvalidDestination):
		writeError(w, http.StatusBadRequest, "invalid_destination", err.Error())
	case errors.Is(err, ledger.ErrSameAccount):
		writeError(w, http.StatusBadRequest, "same_account", err.Error())
	case errors.Is(err, ledger.ErrNonPositiveAmount):
		writeError(w, http.StatusBadRequest, "non_positive_amount", err.Error())
	case errors.Is(err, ledger.ErrBelowMinimum):
		writeError(w, http.StatusBadRequest, "below_minimum", err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds):
		writeError(w, http.StatusBadRequest, "insufficient_funds", err.Error())
	case errors.Is(err, ledger.ErrAccountClosed):
		writeError(w, http.StatusBadRequest, "account_closed", err.Error())
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ledger.ErrDepositAlreadyClosed):
		writeError(w, http.StatusConflict, "already_closed", err.Error())
	case errors.Is(err, ledger.ErrDuplicateIdempotencyKey):
		writeError(w, http.StatusConflict, "duplicate_request", err.Error())
	case errors.Is(err, ledger.ErrLedgerExists):
		writeError(w, http.StatusConflict, "ledger_exists", err.Error())
	case errors.Is(err, ledger.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", "concurrent modification, re-read and retry")
	case errors.Is(err, ledger.ErrPersistenceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "persistence_unavailable",
			"storage unavailable; re-read state before retrying")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
