// Package conversion turns karma points into native tokens paid from the treasury.
package conversion

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/karmabridge/internal/domain"
)

// Session is the part of the wallet session a claim needs.
type Session interface {
	IsConnected() bool
	SwitchNetwork(ctx context.Context, network domain.NetworkDescriptor) error
}

// BalanceReader reads balances strictly: failures are returned, never defaulted.
type BalanceReader interface {
	RequireBalance(ctx context.Context, addr domain.Address) (decimal.Decimal, error)
}

// Transferer moves value from the treasury to the request destination.
type Transferer interface {
	Transfer(ctx context.Context, req domain.ConversionRequest, value decimal.Decimal) (domain.ConversionReceipt, error)
}

// Option configures a Service.
type Option func(*Service)

// WithSession switches the connected wallet to the conversion network before each claim.
func WithSession(s Session) Option {
	return func(svc *Service) {
		svc.session = s
	}
}

// WithNetwork overrides the conversion network.
func WithNetwork(n domain.NetworkDescriptor) Option {
	return func(svc *Service) {
		svc.network = n
	}
}

// Service runs claims one at a time.
type Service struct {
	treasury domain.Address
	balances BalanceReader
	transfer Transferer
	session  Session
	network  domain.NetworkDescriptor
	l        *zap.Logger

	inFlight atomic.Bool
}

// NewService creates a conversion service paying from treasury.
func NewService(treasury domain.Address, balances BalanceReader, transfer Transferer, l *zap.Logger, opts ...Option) *Service {
	svc := &Service{
		treasury: treasury,
		balances: balances,
		transfer: transfer,
		network:  domain.ArbitrumSepolia,
		l:        l.With(zap.String("component", "conversion")),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// InFlight reports whether a claim is running.
func (s *Service) InFlight() bool {
	return s.inFlight.Load()
}

// Network returns the network claims are paid on.
func (s *Service) Network() domain.NetworkDescriptor {
	return s.network
}

// Claim converts req.Points and pays them to req.Destination. It is not idempotent:
// every successful call is a separate transfer. A claim started while another one is
// running fails with domain.ErrClaimInProgress.
func (s *Service) Claim(ctx context.Context, req domain.ConversionRequest) (domain.ConversionReceipt, error) {
	if err := req.Validate(); err != nil {
		return domain.ConversionReceipt{}, err
	}

	if !s.inFlight.CompareAndSwap(false, true) {
		return domain.ConversionReceipt{}, domain.ErrClaimInProgress
	}
	defer s.inFlight.Store(false)

	l := s.l.With(zap.Uint64("points", req.Points), zap.String("destination", req.Destination.String()))

	if s.session != nil && s.session.IsConnected() {
		if err := s.session.SwitchNetwork(ctx, s.network); err != nil {
			l.Warn("network switch failed", zap.Error(err))
			if errors.Is(err, domain.ErrNetworkSwitchFailed) {
				return domain.ConversionReceipt{}, err
			}
			return domain.ConversionReceipt{}, errors.Wrapf(domain.ErrNetworkSwitchFailed, "%s: %v", s.network.Name, err)
		}
	}

	value := PointsToValue(req.Points)

	available, err := s.balances.RequireBalance(ctx, s.treasury)
	if err != nil {
		return domain.ConversionReceipt{}, errors.Wrap(err, "query treasury balance")
	}
	if available.LessThan(value) {
		return domain.ConversionReceipt{}, &domain.InsufficientFundsError{
			Available: available,
			Required:  value,
			Symbol:    s.network.NativeCurrency.Symbol,
		}
	}

	// once dispatched the transfer may already be on chain, so the caller
	// giving up must not turn it into a failure and unlock another claim
	receipt, err := s.transfer.Transfer(context.WithoutCancel(ctx), req, value)
	if err != nil {
		l.Error("transfer failed", zap.Error(err))
		return domain.ConversionReceipt{}, err
	}
	if !receipt.Success {
		return domain.ConversionReceipt{}, errors.Wrap(domain.ErrTransferFailed, receipt.Message)
	}
	receipt.ValueSent = value

	l.Info("claim paid", zap.String("tx", receipt.TxHash), zap.String("value", value.String()))
	return receipt, nil
}
