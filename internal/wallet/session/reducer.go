package session

import (
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/karmabridge/internal/domain"
)

// Event is a session transition. The set of implementations is closed.
type Event interface {
	isEvent()
}

// Loading marks an operation in progress and clears any previous error.
type Loading struct{}

// Connected is a successful connect, reconciliation or account change.
type Connected struct {
	Address domain.Address
	ChainID uint64
}

// ConnectFailed drops the session into the error state without an account.
type ConnectFailed struct {
	Message string
}

// Failed reports an error for a connected session (e.g. a rejected network switch)
// while keeping its address and chain.
type Failed struct {
	Message string
}

// BalanceUpdated carries a balance read for Address.
type BalanceUpdated struct {
	Address domain.Address
	Balance decimal.Decimal
}

// ChainChanged is the wallet reporting a different active chain.
type ChainChanged struct {
	ChainID uint64
}

// NetworkSwitched is a switch requested by us that the wallet accepted.
type NetworkSwitched struct {
	ChainID uint64
}

// Disconnected resets the session.
type Disconnected struct{}

func (Loading) isEvent()         {}
func (Connected) isEvent()       {}
func (ConnectFailed) isEvent()   {}
func (Failed) isEvent()          {}
func (BalanceUpdated) isEvent()  {}
func (ChainChanged) isEvent()    {}
func (NetworkSwitched) isEvent() {}
func (Disconnected) isEvent()    {}

// Reduce returns the session that results from applying ev to s. It never mutates s.
func Reduce(s domain.WalletSession, ev Event) domain.WalletSession {
	next := s.Clone()

	switch e := ev.(type) {
	case Loading:
		next.IsLoading = true
		next.Error = ""

	case Connected:
		addr := e.Address
		chainID := e.ChainID
		if next.Address == nil || !next.Address.Equal(addr) {
			next.Balance = nil
		}
		next.IsConnected = true
		next.Address = &addr
		next.ChainID = &chainID
		next.IsLoading = false
		next.Error = ""

	case ConnectFailed:
		next = domain.NewDisconnectedSession()
		next.Error = e.Message

	case Failed:
		next.IsLoading = false
		next.Error = e.Message

	case BalanceUpdated:
		if !next.IsConnected || next.Address == nil || !next.Address.Equal(e.Address) {
			return next
		}
		balance := e.Balance
		next.Balance = &balance

	case ChainChanged:
		chainID := e.ChainID
		next.ChainID = &chainID

	case NetworkSwitched:
		chainID := e.ChainID
		next.ChainID = &chainID
		next.IsLoading = false
		next.Error = ""

	case Disconnected:
		next = domain.NewDisconnectedSession()
	}

	return next
}
