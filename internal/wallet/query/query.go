// Package query reads native balances and chain identity. It never mutates state.
package query

import (
	"context"
	"math/big"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vadiminshakov/karmabridge/internal/domain"
)

// weiDecimals is the native asset precision.
const weiDecimals = 18

// Backend is satisfied by both provider.Client and ethclient.Client.
type Backend interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// Query answers balance and chain questions against one backend.
type Query struct {
	backend Backend
	l       *zap.Logger
}

// New creates a Query over backend.
func New(backend Backend, l *zap.Logger) *Query {
	return &Query{backend: backend, l: l}
}

// Balance returns the advisory display balance of addr. Failures yield zero.
func (q *Query) Balance(ctx context.Context, addr domain.Address) decimal.Decimal {
	bal, err := q.RequireBalance(ctx, addr)
	if err != nil {
		q.l.Warn("balance lookup failed, showing zero", zap.String("address", addr.String()), zap.Error(err))
		return decimal.Zero
	}
	return bal
}

// RequireBalance returns the balance of addr or an error.
// Use it whenever the balance feeds a monetary decision.
func (q *Query) RequireBalance(ctx context.Context, addr domain.Address) (decimal.Decimal, error) {
	wei, err := q.backend.BalanceAt(ctx, addr.Common(), nil)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "get balance of %s", addr)
	}
	return FromWei(wei), nil
}

// ChainID returns the backend's chain id.
func (q *Query) ChainID(ctx context.Context) (uint64, error) {
	id, err := q.backend.ChainID(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "get chain id")
	}
	if !id.IsUint64() {
		return 0, errors.Errorf("chain id %s out of range", id)
	}
	return id.Uint64(), nil
}

// FromWei converts a wei amount into native units.
func FromWei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -weiDecimals)
}

// ToWei converts native units into wei, dropping anything below one wei.
func ToWei(value decimal.Decimal) *big.Int {
	return value.Shift(weiDecimals).Truncate(0).BigInt()
}
