package conversion

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/karmabridge/internal/domain"
	"github.com/vadiminshakov/karmabridge/internal/wallet/provider"
	"github.com/vadiminshakov/karmabridge/internal/wallet/query"
)

// ClientSource yields the client of the connected wallet, nil when disconnected.
type ClientSource interface {
	Client() *provider.Client
}

// SessionBalances reads balances through the connected wallet and uses fallback
// (usually a node client) when no wallet is connected.
type SessionBalances struct {
	src      ClientSource
	fallback BalanceReader
	l        *zap.Logger
}

func NewSessionBalances(src ClientSource, fallback BalanceReader, l *zap.Logger) *SessionBalances {
	return &SessionBalances{src: src, fallback: fallback, l: l}
}

func (b *SessionBalances) RequireBalance(ctx context.Context, addr domain.Address) (decimal.Decimal, error) {
	if client := b.src.Client(); client != nil {
		return query.New(client, b.l).RequireBalance(ctx, addr)
	}
	if b.fallback == nil {
		return decimal.Zero, domain.ErrNotConnected
	}
	return b.fallback.RequireBalance(ctx, addr)
}
