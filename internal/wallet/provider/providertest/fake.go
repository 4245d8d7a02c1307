// Package providertest provides an in-memory wallet provider for tests.
package providertest

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/event"

	"github.com/vadiminshakov/karmabridge/internal/wallet/provider"
)

// Fake is a scripted wallet. Zero value is not usable, call New.
type Fake struct {
	mu       sync.Mutex
	accounts []string
	chainID  uint64
	balances map[string]*big.Int
	known    map[uint64]bool
	failures map[string][]error
	calls    []string

	feed        event.Feed
	subscribers atomic.Int32
}

// New creates a wallet authorized for accounts and sitting on chainID.
func New(chainID uint64, accounts ...string) *Fake {
	return &Fake{
		accounts: accounts,
		chainID:  chainID,
		balances: make(map[string]*big.Int),
		known:    map[uint64]bool{chainID: true, 1: true},
		failures: make(map[string][]error),
	}
}

// SetBalance sets the wei balance returned for addr.
func (f *Fake) SetBalance(addr string, wei *big.Int) {
	f.mu.Lock()
	f.balances[strings.ToLower(addr)] = wei
	f.mu.Unlock()
}

// SetAccounts replaces the authorized accounts without emitting an event.
func (f *Fake) SetAccounts(accounts ...string) {
	f.mu.Lock()
	f.accounts = accounts
	f.mu.Unlock()
}

// KnowChain marks chainID as registered in the wallet.
func (f *Fake) KnowChain(chainID uint64) {
	f.mu.Lock()
	f.known[chainID] = true
	f.mu.Unlock()
}

// Fail queues errors returned by successive calls of method.
func (f *Fake) Fail(method string, errs ...error) {
	f.mu.Lock()
	f.failures[method] = append(f.failures[method], errs...)
	f.mu.Unlock()
}

// Reject returns an EIP-1193 user rejection error.
func Reject() error {
	return &provider.RequestError{Code: provider.CodeUserRejected, Message: "User rejected the request."}
}

// Calls returns the methods requested so far.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// ChainID returns the wallet's current chain.
func (f *Fake) ChainID() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chainID
}

// Subscribers returns the number of live event subscriptions.
func (f *Fake) Subscribers() int {
	return int(f.subscribers.Load())
}

// EmitAccounts changes the authorized accounts and emits accountsChanged.
func (f *Fake) EmitAccounts(accounts ...string) {
	f.SetAccounts(accounts...)
	f.feed.Send(provider.Event{Kind: provider.AccountsChanged, Accounts: accounts})
}

// EmitChain changes the active chain and emits chainChanged.
func (f *Fake) EmitChain(chainID uint64) {
	f.mu.Lock()
	f.chainID = chainID
	f.mu.Unlock()
	f.feed.Send(provider.Event{Kind: provider.ChainChanged, ChainID: hexutil.EncodeUint64(chainID)})
}

// Subscribe implements provider.Provider.
func (f *Fake) Subscribe(ch chan<- provider.Event) event.Subscription {
	f.subscribers.Add(1)
	return &countedSub{Subscription: f.feed.Subscribe(ch), counter: &f.subscribers}
}

// Request implements provider.Provider.
func (f *Fake) Request(_ context.Context, method string, params ...any) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, method)
	if queued := f.failures[method]; len(queued) > 0 {
		err := queued[0]
		f.failures[method] = queued[1:]
		f.mu.Unlock()
		return nil, err
	}
	defer f.mu.Unlock()

	switch method {
	case provider.MethodRequestAccounts, provider.MethodAccounts:
		accounts := f.accounts
		if accounts == nil {
			accounts = []string{}
		}
		return json.Marshal(accounts)
	case provider.MethodChainID:
		return json.Marshal(hexutil.EncodeUint64(f.chainID))
	case provider.MethodSwitchChain:
		id, err := chainParam(params)
		if err != nil {
			return nil, err
		}
		if !f.known[id] {
			return nil, &provider.RequestError{Code: provider.CodeUnrecognizedChain, Message: "Unrecognized chain ID"}
		}
		f.chainID = id
		return json.Marshal(nil)
	case provider.MethodAddChain:
		id, err := chainParam(params)
		if err != nil {
			return nil, err
		}
		f.known[id] = true
		return json.Marshal(nil)
	case provider.MethodGetBalance:
		if len(params) == 0 {
			return nil, fmt.Errorf("missing address")
		}
		addr, _ := params[0].(string)
		wei := f.balances[strings.ToLower(addr)]
		if wei == nil {
			wei = new(big.Int)
		}
		return json.Marshal(hexutil.EncodeBig(wei))
	default:
		return nil, &provider.RequestError{Code: 4200, Message: "unsupported method " + method}
	}
}

func chainParam(params []any) (uint64, error) {
	if len(params) == 0 {
		return 0, fmt.Errorf("missing chain params")
	}
	raw, err := json.Marshal(params[0])
	if err != nil {
		return 0, err
	}
	var p struct {
		ChainID string `json:"chainId"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return 0, err
	}
	return provider.ParseChainID(p.ChainID)
}

type countedSub struct {
	event.Subscription
	once    sync.Once
	counter *atomic.Int32
}

func (s *countedSub) Unsubscribe() {
	s.once.Do(func() { s.counter.Add(-1) })
	s.Subscription.Unsubscribe()
}
