package models

import "errors"

// Domain errors. Callers match with errors.Is; services wrap them with context.
var (
	ErrPlanNotFound           = errors.New("investment plan not found")
	ErrPlanInactive           = errors.New("investment plan is inactive")
	ErrInvestmentNotFound     = errors.New("investment not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrInsufficientPrincipal  = errors.New("withdrawal exceeds principal above minimum balance")
	ErrUnauthorized           = errors.New("investment does not belong to user")
	ErrLedgerDebitFailed      = errors.New("ledger debit failed")
	ErrLedgerCreditFailed     = errors.New("ledger credit failed")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidTerm            = errors.New("invalid term")
	ErrVersionConflict        = errors.New("investment was modified concurrently")
	ErrPayoutNotDue           = errors.New("payout is not yet due")
	ErrNoPayoutDue            = errors.New("no further payouts for investment")
	ErrRunInProgress          = errors.New("payout run already in progress")
	ErrOverrideNotFound       = errors.New("rate override not found")
	ErrPayoutNotFound         = errors.New("payout record not found")
)
