package domain

import "github.com/shopspring/decimal"

// SessionStatus is the state machine position of a wallet session.
type SessionStatus int

const (
	StatusDisconnected SessionStatus = iota
	StatusConnecting
	StatusConnected
	StatusError
)

// String returns the string representation of the status.
func (s SessionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// WalletSession is the client's view of the wallet connection.
// IsConnected implies Address != nil; IsLoading implies Error == "".
type WalletSession struct {
	IsConnected bool             `json:"isConnected"`
	Address     *Address         `json:"address"`
	Balance     *decimal.Decimal `json:"balance"`
	ChainID     *uint64          `json:"chainId"`
	IsLoading   bool             `json:"isLoading"`
	Error       string           `json:"error,omitempty"`
}

// NewDisconnectedSession returns the initial session state.
func NewDisconnectedSession() WalletSession {
	return WalletSession{}
}

// Status derives the state machine position from the session fields.
func (s WalletSession) Status() SessionStatus {
	switch {
	case s.IsLoading:
		return StatusConnecting
	case s.Error != "":
		return StatusError
	case s.IsConnected:
		return StatusConnected
	default:
		return StatusDisconnected
	}
}

// Clone returns a deep copy so readers never share pointers with the owner.
func (s WalletSession) Clone() WalletSession {
	out := s
	if s.Address != nil {
		addr := *s.Address
		out.Address = &addr
	}
	if s.Balance != nil {
		bal := *s.Balance
		out.Balance = &bal
	}
	if s.ChainID != nil {
		id := *s.ChainID
		out.ChainID = &id
	}
	return out
}

// SessionMarker is the durable hint used to attempt silent reconnection on startup.
// The provider's live account list always wins over it.
type SessionMarker struct {
	Connected bool
	Address   Address
}
