// Package provider locates the wallet provider in the host environment and exposes
// typed access to the subset of the wallet RPC surface the session core relies on.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/event"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/karmabridge/internal/domain"
)

// Wallet RPC methods.
const (
	MethodRequestAccounts = "eth_requestAccounts"
	MethodAccounts        = "eth_accounts"
	MethodChainID         = "eth_chainId"
	MethodSwitchChain     = "wallet_switchEthereumChain"
	MethodAddChain        = "wallet_addEthereumChain"
	MethodGetBalance      = "eth_getBalance"
)

// EIP-1193 provider error codes.
const (
	CodeUserRejected      = 4001
	CodeUnrecognizedChain = 4902
)

// Provider is an EIP-1193 style wallet: a request channel plus an ordered event stream.
type Provider interface {
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
	// Subscribe delivers accountsChanged and chainChanged events on one channel,
	// in the order the wallet produced them.
	Subscribe(ch chan<- Event) event.Subscription
}

// EventKind distinguishes provider events.
type EventKind int

const (
	AccountsChanged EventKind = iota
	ChainChanged
)

// String returns the provider event name.
func (k EventKind) String() string {
	switch k {
	case AccountsChanged:
		return "accountsChanged"
	case ChainChanged:
		return "chainChanged"
	default:
		return "unknown"
	}
}

// Event is a provider-emitted notification.
type Event struct {
	Kind     EventKind
	Accounts []string
	// ChainID is the hex quantity as emitted by the wallet.
	ChainID string
}

// ChainIDValue decodes the event's chain id.
func (e Event) ChainIDValue() (uint64, error) {
	return ParseChainID(e.ChainID)
}

// ParseChainID decodes a wallet chain id, accepting 0x-prefixed hex quantities.
func ParseChainID(raw string) (uint64, error) {
	raw = strings.TrimSpace(raw)
	id, err := hexutil.DecodeUint64(raw)
	if err != nil {
		return 0, errors.Wrapf(err, "decode chain id %q", raw)
	}
	return id, nil
}

// RequestError is an error reported by the wallet for a request.
type RequestError struct {
	Code    int
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// ErrorCode returns the provider error code.
func (e *RequestError) ErrorCode() int { return e.Code }

// Is maps user rejections onto domain.ErrUserRejected.
func (e *RequestError) Is(target error) bool {
	return target == domain.ErrUserRejected && e.Code == CodeUserRejected
}

// IsUserRejected reports whether the wallet user declined the request.
func IsUserRejected(err error) bool {
	return errors.Is(err, domain.ErrUserRejected)
}

// IsUnrecognizedChain reports whether the wallet does not know the requested chain.
func IsUnrecognizedChain(err error) bool {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Code == CodeUnrecognizedChain
	}
	return false
}
