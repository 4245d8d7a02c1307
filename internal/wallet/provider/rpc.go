package provider

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const defaultPollInterval = 2 * time.Second

// RPCProvider talks to an external wallet over JSON-RPC (http, ws or ipc endpoint).
// Events are produced by polling the wallet's account list and chain id.
type RPCProvider struct {
	client       *rpc.Client
	pollInterval time.Duration
	l            *zap.Logger
}

// DialRPCProvider connects to the wallet endpoint at url.
func DialRPCProvider(ctx context.Context, url string, pollInterval time.Duration, l *zap.Logger) (*RPCProvider, error) {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "dial wallet provider %s", url)
	}
	return &RPCProvider{client: client, pollInterval: pollInterval, l: l}, nil
}

// Request performs a wallet RPC call.
func (p *RPCProvider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	var result json.RawMessage
	if err := p.client.CallContext(ctx, &result, method, params...); err != nil {
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			return nil, &RequestError{Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
		}
		return nil, errors.Wrapf(err, "call %s", method)
	}
	return result, nil
}

// Subscribe starts a watcher that emits events until the subscription is cancelled.
func (p *RPCProvider) Subscribe(ch chan<- Event) event.Subscription {
	return event.NewSubscription(func(quit <-chan struct{}) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-quit:
				cancel()
			case <-ctx.Done():
			}
		}()

		accounts, chainID, _ := p.snapshot(ctx)

		ticker := time.NewTicker(p.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-quit:
				return nil
			case <-ticker.C:
				nextAccounts, nextChain, err := p.snapshot(ctx)
				if err != nil {
					p.l.Debug("wallet provider poll failed", zap.Error(err))
					continue
				}

				// accounts first, then chain: the order a wallet reports a combined switch
				if !sameAccounts(accounts, nextAccounts) {
					accounts = nextAccounts
					if !deliver(ch, quit, Event{Kind: AccountsChanged, Accounts: nextAccounts}) {
						return nil
					}
				}
				if !strings.EqualFold(chainID, nextChain) {
					chainID = nextChain
					if !deliver(ch, quit, Event{Kind: ChainChanged, ChainID: nextChain}) {
						return nil
					}
				}
			}
		}
	})
}

// Close releases the RPC connection.
func (p *RPCProvider) Close() {
	p.client.Close()
}

func (p *RPCProvider) snapshot(ctx context.Context) ([]string, string, error) {
	var accounts []string
	if err := p.client.CallContext(ctx, &accounts, MethodAccounts); err != nil {
		return nil, "", errors.Wrap(err, "poll accounts")
	}
	var chainID string
	if err := p.client.CallContext(ctx, &chainID, MethodChainID); err != nil {
		return nil, "", errors.Wrap(err, "poll chain id")
	}
	if accounts == nil {
		accounts = []string{}
	}
	return accounts, chainID, nil
}

func deliver(ch chan<- Event, quit <-chan struct{}, ev Event) bool {
	select {
	case ch <- ev:
		return true
	case <-quit:
		return false
	}
}

func sameAccounts(a, b []string) bool {
	if a == nil {
		// first successful poll after a failed priming call
		return false
	}
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}
