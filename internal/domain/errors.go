package domain

import "errors"

var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrLedgerCommit        = errors.New("ledger commit failed")
	ErrWalletConfigMissing = errors.New("wallet credentials are not configured")
	ErrWalletDispatch      = errors.New("wallet dispatch failed")
	ErrPushDispatch        = errors.New("push dispatch failed")
	ErrUnauthorized        = errors.New("unauthorized")

	// ErrTargetGone is returned by a transport when the platform reports the
	// device, object or endpoint no longer exists.
	ErrTargetGone = errors.New("delivery target gone")
)

const (
	CodeValidation          = "VALIDATION"
	CodeNotFound            = "NOT_FOUND"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeLedgerCommit        = "LEDGER_COMMIT_FAILURE"
	CodeWalletConfigMissing = "WALLET_CONFIG_MISSING"
	CodeWalletDispatch      = "WALLET_DISPATCH_FAILURE"
	CodePushDispatch        = "PUSH_DISPATCH_FAILURE"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeInternal            = "INTERNAL_ERROR"
)

// Code maps an error to its taxonomy code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInsufficientBalance):
		return CodeInsufficientBalance
	case errors.Is(err, ErrLedgerCommit):
		return CodeLedgerCommit
	case errors.Is(err, ErrWalletConfigMissing):
		return CodeWalletConfigMissing
	case errors.Is(err, ErrWalletDispatch):
		return CodeWalletDispatch
	case errors.Is(err, ErrPushDispatch):
		return CodePushDispatch
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	default:
		return CodeInternal
	}
}
