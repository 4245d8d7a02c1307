// Package treasury signs and submits native transfers from the treasury account.
// The signing key lives only in the backend process.
package treasury

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/karmabridge/internal/domain"
	"github.com/vadiminshakov/karmabridge/internal/storage/claims"
	"github.com/vadiminshakov/karmabridge/internal/wallet/query"
)

const (
	// TransferGas is the gas of a plain native transfer.
	TransferGas uint64 = 21000

	defaultConfirmTimeout = 2 * time.Minute
	defaultPollInterval   = time.Second
)

// ChainBackend is the node API used to send and confirm transfers. *ethclient.Client satisfies it.
type ChainBackend interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Journal records transfer attempts.
type Journal interface {
	Prepare(to domain.Address, value decimal.Decimal) (*claims.Intent, error)
	MarkSubmitted(intent *claims.Intent, txHash string) error
	MarkConfirmed(intent *claims.Intent, block uint64) error
	MarkFailed(intent *claims.Intent, cause error) error
}

// Option configures a Treasury.
type Option func(*Treasury)

func WithJournal(j Journal) Option {
	return func(t *Treasury) {
		t.journal = j
	}
}

func WithConfirmTimeout(d time.Duration) Option {
	return func(t *Treasury) {
		t.confirmTimeout = d
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(t *Treasury) {
		t.pollInterval = d
	}
}

func WithNetwork(n domain.NetworkDescriptor) Option {
	return func(t *Treasury) {
		t.network = n
	}
}

// Treasury pays native tokens from the account controlled by key.
type Treasury struct {
	key     *ecdsa.PrivateKey
	address common.Address
	backend ChainBackend
	journal Journal
	network domain.NetworkDescriptor
	signer  types.Signer
	l       *zap.Logger

	confirmTimeout time.Duration
	pollInterval   time.Duration

	// serialises nonce allocation and submission
	mu sync.Mutex
}

// New parses the hex private key and binds it to backend.
// An empty key yields domain.ErrTreasuryNotConfigured.
func New(keyHex string, backend ChainBackend, l *zap.Logger, opts ...Option) (*Treasury, error) {
	keyHex = strings.TrimPrefix(strings.TrimSpace(keyHex), "0x")
	if keyHex == "" {
		return nil, domain.ErrTreasuryNotConfigured
	}

	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, errors.Wrap(err, "parse treasury private key")
	}

	t := &Treasury{
		key:            key,
		address:        crypto.PubkeyToAddress(key.PublicKey),
		backend:        backend,
		network:        domain.ArbitrumSepolia,
		l:              l.With(zap.String("component", "treasury")),
		confirmTimeout: defaultConfirmTimeout,
		pollInterval:   defaultPollInterval,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.signer = types.LatestSignerForChainID(new(big.Int).SetUint64(t.network.ChainID))

	return t, nil
}

// Address returns the treasury account.
func (t *Treasury) Address() domain.Address {
	return domain.NewAddress(t.address.Hex())
}

// Network returns the network transfers are signed for.
func (t *Treasury) Network() domain.NetworkDescriptor {
	return t.network
}

// Balance reads the treasury balance from the node. Errors are returned, never defaulted.
func (t *Treasury) Balance(ctx context.Context) (decimal.Decimal, error) {
	wei, err := t.backend.BalanceAt(ctx, t.address, nil)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "get treasury balance")
	}
	return query.FromWei(wei), nil
}

// Send transfers value to `to` and blocks until the transfer is mined or the
// confirmation timeout expires. A missing confirmation is a failure even though
// the transaction may still land; the journal keeps its hash.
//
// ctx only bounds the work before submission. Once the transfer is being
// signed and sent, cancelling ctx no longer interrupts it: submission and the
// confirmation wait run until done or until the confirmation timeout.
func (t *Treasury) Send(ctx context.Context, to domain.Address, value decimal.Decimal) (domain.ConversionReceipt, error) {
	if !to.Valid() {
		return domain.ConversionReceipt{}, errors.Wrapf(domain.ErrInvalidRequest, "invalid destination address %q", to)
	}
	if !value.IsPositive() {
		return domain.ConversionReceipt{}, errors.Wrap(domain.ErrInvalidRequest, "value must be positive")
	}

	l := t.l.With(zap.String("to", to.String()), zap.String("value", value.String()))

	// re-read right before sending, never from a cache
	available, err := t.Balance(ctx)
	if err != nil {
		return domain.ConversionReceipt{}, err
	}
	if available.LessThan(value) {
		return domain.ConversionReceipt{}, &domain.InsufficientFundsError{
			Available: available,
			Required:  value,
			Symbol:    t.network.NativeCurrency.Symbol,
		}
	}

	if err := ctx.Err(); err != nil {
		return domain.ConversionReceipt{}, errors.Wrap(err, "transfer abandoned before submission")
	}

	intent, err := t.prepare(to, value)
	if err != nil {
		return domain.ConversionReceipt{}, err
	}

	// point of no return
	committed := context.WithoutCancel(ctx)

	tx, err := t.submitWithin(committed, to, value)
	if err != nil {
		t.markFailed(intent, err)
		l.Error("transfer submission failed", zap.Error(err))
		return domain.ConversionReceipt{}, errors.Wrapf(domain.ErrTransferFailed, "%v", err)
	}

	hash := tx.Hash().Hex()
	l = l.With(zap.String("tx", hash))
	if t.journal != nil {
		if err := t.journal.MarkSubmitted(intent, hash); err != nil {
			l.Warn("failed to journal submitted transfer", zap.Error(err))
		}
	}
	l.Info("transfer submitted", zap.Uint64("nonce", tx.Nonce()))

	receipt, err := t.waitMined(committed, tx.Hash())
	if err != nil {
		t.markFailed(intent, err)
		l.Error("transfer not confirmed", zap.Error(err))
		return domain.ConversionReceipt{}, errors.Wrapf(domain.ErrConfirmationFailed, "tx %s: %v", hash, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		cause := errors.Errorf("tx %s reverted in block %s", hash, receipt.BlockNumber)
		t.markFailed(intent, cause)
		return domain.ConversionReceipt{}, errors.Wrap(domain.ErrConfirmationFailed, cause.Error())
	}

	block := receipt.BlockNumber.Uint64()
	if t.journal != nil {
		if err := t.journal.MarkConfirmed(intent, block); err != nil {
			l.Warn("failed to journal confirmed transfer", zap.Error(err))
		}
	}
	l.Info("transfer confirmed", zap.Uint64("block", block))

	return domain.ConversionReceipt{
		Success:     true,
		TxHash:      hash,
		BlockNumber: block,
		ValueSent:   value,
		Message:     fmt.Sprintf("Successfully sent %s %s to %s", value.String(), t.network.NativeCurrency.Symbol, to),
	}, nil
}

// ConfirmTimeout is the longest Send waits for a receipt after submission.
func (t *Treasury) ConfirmTimeout() time.Duration {
	return t.confirmTimeout
}

func (t *Treasury) submitWithin(ctx context.Context, to domain.Address, value decimal.Decimal) (*types.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, t.confirmTimeout)
	defer cancel()
	return t.submit(ctx, to, value)
}

func (t *Treasury) submit(ctx context.Context, to domain.Address, value decimal.Decimal) (*types.Transaction, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	nonce, err := t.backend.PendingNonceAt(ctx, t.address)
	if err != nil {
		return nil, errors.Wrap(err, "get nonce")
	}
	gasPrice, err := t.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "get gas price")
	}

	toAddr := to.Common()
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &toAddr,
		Value:    query.ToWei(value),
		Gas:      TransferGas,
		GasPrice: gasPrice,
	})

	signed, err := types.SignTx(tx, t.signer, t.key)
	if err != nil {
		return nil, errors.Wrap(err, "sign transfer")
	}
	if err := t.backend.SendTransaction(ctx, signed); err != nil {
		return nil, errors.Wrap(err, "send transfer")
	}
	return signed, nil
}

// waitMined polls for the receipt until it exists or the confirmation timeout hits.
func (t *Treasury) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, t.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := t.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			t.l.Debug("receipt lookup failed", zap.String("tx", hash.Hex()), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "wait for confirmation")
		case <-ticker.C:
		}
	}
}

func (t *Treasury) prepare(to domain.Address, value decimal.Decimal) (*claims.Intent, error) {
	if t.journal == nil {
		return nil, nil
	}
	intent, err := t.journal.Prepare(to, value)
	if err != nil {
		return nil, errors.Wrap(err, "journal transfer intent")
	}
	return intent, nil
}

func (t *Treasury) markFailed(intent *claims.Intent, cause error) {
	if t.journal == nil {
		return
	}
	if err := t.journal.MarkFailed(intent, cause); err != nil {
		t.l.Warn("failed to journal failed transfer", zap.Error(err))
	}
}
