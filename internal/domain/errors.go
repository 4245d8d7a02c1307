package domain

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrProviderNotFound no wallet provider in the host environment; the user must install or enable one.
	ErrProviderNotFound = errors.New("wallet provider not found")
	// ErrUserRejected the user declined the request in the wallet.
	ErrUserRejected = errors.New("request rejected by user")
	// ErrNoAccounts the wallet returned no authorized accounts.
	ErrNoAccounts = errors.New("no accounts found, unlock the wallet")
	// ErrNotConnected the operation needs a connected wallet.
	ErrNotConnected = errors.New("wallet not connected")
	// ErrInvalidRequest caller supplied malformed input.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInsufficientTreasuryFunds the treasury cannot cover the conversion.
	ErrInsufficientTreasuryFunds = errors.New("insufficient funds in treasury")
	// ErrNetworkSwitchFailed switching (and registering) the network failed.
	ErrNetworkSwitchFailed = errors.New("network switch failed")
	// ErrTreasuryNotConfigured the backend has no treasury signing key.
	ErrTreasuryNotConfigured = errors.New("treasury private key not configured")
	// ErrConfirmationFailed the transfer was not confirmed; on-chain state is unknown or reverted.
	ErrConfirmationFailed = errors.New("transaction confirmation failed")
	// ErrClaimInProgress another claim for this session has not finished yet.
	ErrClaimInProgress = errors.New("claim already in progress")
	// ErrTransferFailed the transfer could not be executed.
	ErrTransferFailed = errors.New("transfer failed")
)

// InsufficientFundsError carries both figures of a failed solvency check.
type InsufficientFundsError struct {
	Available decimal.Decimal
	Required  decimal.Decimal
	Symbol    string
}

func (e *InsufficientFundsError) Error() string {
	symbol := e.Symbol
	if symbol == "" {
		symbol = "ETH"
	}
	return fmt.Sprintf("Insufficient funds in treasury. Available: %s %s, Required: %s %s",
		e.Available.String(), symbol, e.Required.String(), symbol)
}

// Is makes errors.Is(err, ErrInsufficientTreasuryFunds) match.
func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientTreasuryFunds
}
