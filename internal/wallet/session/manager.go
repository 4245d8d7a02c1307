package session

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/karmabridge/internal/domain"
	"github.com/vadiminshakov/karmabridge/internal/events"
	"github.com/vadiminshakov/karmabridge/internal/wallet/provider"
	"github.com/vadiminshakov/karmabridge/internal/wallet/query"
	"github.com/vadiminshakov/karmabridge/pkg/retrier"
)

const eventBuffer = 16

// ErrClosed is returned by operations attempted after Close.
var ErrClosed = errors.New("session manager closed")

// Detector finds the wallet provider.
type Detector interface {
	Detect(ctx context.Context) (provider.Provider, error)
}

// MarkerStore persists the reconnect hint.
type MarkerStore interface {
	Load() (domain.SessionMarker, error)
	Save(addr domain.Address) error
	Clear() error
}

// Option configures a Manager.
type Option func(*Manager)

// WithRetrier overrides the retry policy used for balance refreshes.
func WithRetrier(r *retrier.Retrier) Option {
	return func(m *Manager) {
		m.retrier = r
	}
}

// WithBroadcaster makes the manager publish state through b.
func WithBroadcaster(b *events.SessionBroadcaster) Option {
	return func(m *Manager) {
		m.broadcaster = b
	}
}

// Manager owns the wallet session. All state changes go through Reduce under mu.
type Manager struct {
	discovery   Detector
	markers     MarkerStore
	broadcaster *events.SessionBroadcaster
	retrier     *retrier.Retrier
	l           *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	state  domain.WalletSession
	client *provider.Client
	sub    event.Subscription
	closed bool
}

// NewManager creates a manager in the disconnected state.
func NewManager(discovery Detector, markers MarkerStore, l *zap.Logger, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		discovery: discovery,
		markers:   markers,
		l:         l.With(zap.String("component", "session")),
		ctx:       ctx,
		cancel:    cancel,
		state:     domain.NewDisconnectedSession(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.broadcaster == nil {
		m.broadcaster = events.NewSessionBroadcaster(eventBuffer)
	}
	if m.retrier == nil {
		m.retrier = retrier.New(
			retrier.WithInitialInterval(500*time.Millisecond),
			retrier.WithMaxRetries(2),
			retrier.WithRetryIf(func(err error) bool { return !errors.Is(err, context.Canceled) }),
			retrier.WithOnRetry(func(attempt int, err error, wait time.Duration) {
				m.l.Debug("retrying wallet call", zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
			}),
		)
	}
	return m
}

// State returns a copy of the current session.
func (m *Manager) State() domain.WalletSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// IsConnected reports whether a wallet account is active.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.IsConnected
}

// Client returns the provider client of the connected wallet, or nil.
func (m *Manager) Client() *provider.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.IsConnected {
		return nil
	}
	return m.client
}

// Subscribe returns a channel receiving every new session state.
func (m *Manager) Subscribe() chan domain.WalletSession {
	return m.broadcaster.Subscribe()
}

// Unsubscribe stops delivery to ch.
func (m *Manager) Unsubscribe(ch chan domain.WalletSession) {
	m.broadcaster.Unsubscribe(ch)
}

// Connect asks the wallet for account access. It may block until the user answers
// the wallet prompt; bound it with ctx if needed.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.dispatchLocked(Loading{})
	m.mu.Unlock()

	p, err := m.discovery.Detect(ctx)
	if err != nil {
		return m.connectFailed(err)
	}

	client := provider.NewClient(p)

	accounts, err := client.RequestAccounts(ctx)
	if err != nil {
		return m.connectFailed(err)
	}
	if len(accounts) == 0 {
		return m.connectFailed(domain.ErrNoAccounts)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return m.connectFailed(errors.Wrap(err, "read chain id"))
	}

	addr := accounts[0]
	if err := m.establish(client, addr, chainID.Uint64()); err != nil {
		return err
	}

	if err := m.markers.Save(addr); err != nil {
		m.l.Warn("failed to persist session marker", zap.Error(err))
	}

	m.l.Info("wallet connected", zap.String("address", addr.String()), zap.Uint64("chain_id", chainID.Uint64()))
	return nil
}

// Disconnect forgets the session and the persisted marker. Safe to call when already disconnected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.teardownLocked()
	m.dispatchLocked(Disconnected{})
	m.mu.Unlock()

	m.clearMarker()
}

// SwitchToMainnet switches the wallet to Ethereum mainnet.
func (m *Manager) SwitchToMainnet(ctx context.Context) error {
	return m.SwitchNetwork(ctx, domain.EthereumMainnet)
}

// SwitchNetwork moves the wallet to network, registering it once if the wallet does not know it.
// On failure the session keeps its chain id and records the error.
func (m *Manager) SwitchNetwork(ctx context.Context, network domain.NetworkDescriptor) error {
	m.mu.Lock()
	if !m.state.IsConnected || m.client == nil {
		m.mu.Unlock()
		return domain.ErrNotConnected
	}
	client := m.client
	m.dispatchLocked(Loading{})
	m.mu.Unlock()

	if err := SwitchChain(ctx, client, network); err != nil {
		m.apply(Failed{Message: err.Error()})
		return err
	}

	m.apply(NetworkSwitched{ChainID: network.ChainID})
	return nil
}

// Restore silently reconnects a session remembered from a previous run.
// Failures never surface: the marker is dropped and the session stays disconnected.
func (m *Manager) Restore(ctx context.Context) {
	marker, err := m.markers.Load()
	if err != nil {
		m.l.Warn("failed to load session marker", zap.Error(err))
		m.clearMarker()
		return
	}
	if !marker.Connected || marker.Address == "" {
		return
	}

	p, err := m.discovery.Detect(ctx)
	if err != nil {
		m.l.Info("skip session restore", zap.Error(err))
		m.clearMarker()
		return
	}

	client := provider.NewClient(p)

	accounts, err := client.Accounts(ctx)
	if err != nil || len(accounts) == 0 || !accounts[0].Equal(marker.Address) {
		m.l.Info("stored session does not match wallet", zap.Error(err))
		m.clearMarker()
		return
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		m.l.Info("skip session restore", zap.Error(err))
		m.clearMarker()
		return
	}

	if err := m.establish(client, accounts[0], chainID.Uint64()); err != nil {
		m.l.Info("skip session restore", zap.Error(err))
		return
	}
	m.l.Info("wallet session restored", zap.String("address", accounts[0].String()))
}

// Close tears down the provider subscription and waits for background work.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.teardownLocked()
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	m.broadcaster.Close()
}

// SwitchChain asks the wallet to switch to network. Anything but a user rejection
// gets one add-chain attempt followed by a single retry.
func SwitchChain(ctx context.Context, client *provider.Client, network domain.NetworkDescriptor) error {
	err := client.SwitchChain(ctx, network.ChainID)
	if err == nil {
		return nil
	}
	if provider.IsUserRejected(err) {
		return errors.Wrap(domain.ErrUserRejected, "switch network")
	}

	if addErr := client.AddChain(ctx, network); addErr != nil {
		return errors.Wrapf(domain.ErrNetworkSwitchFailed, "add %s: %v", network.Name, addErr)
	}
	if err := client.SwitchChain(ctx, network.ChainID); err != nil {
		return errors.Wrapf(domain.ErrNetworkSwitchFailed, "switch to %s: %v", network.Name, err)
	}
	return nil
}

func (m *Manager) connectFailed(err error) error {
	m.mu.Lock()
	m.teardownLocked()
	m.dispatchLocked(ConnectFailed{Message: err.Error()})
	m.mu.Unlock()

	m.l.Warn("wallet connect failed", zap.Error(err))
	return err
}

// establish installs the subscription for client and enters the connected state.
// A manager closed while the wallet was being asked stays untouched.
func (m *Manager) establish(client *provider.Client, addr domain.Address, chainID uint64) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.teardownLocked()
	m.client = client

	ch := make(chan provider.Event, eventBuffer)
	sub := client.Provider().Subscribe(ch)
	m.sub = sub
	m.wg.Add(1)
	go m.watch(sub, ch)

	m.dispatchLocked(Connected{Address: addr, ChainID: chainID})
	m.refreshBalanceLocked(client, addr)
	m.mu.Unlock()
	return nil
}

// watch applies provider events in delivery order until sub ends.
func (m *Manager) watch(sub event.Subscription, ch <-chan provider.Event) {
	defer m.wg.Done()
	for {
		select {
		case ev := <-ch:
			m.handle(sub, ev)
		case err, ok := <-sub.Err():
			if ok && err != nil {
				m.l.Warn("provider subscription ended", zap.Error(err))
			}
			return
		}
	}
}

func (m *Manager) handle(sub event.Subscription, ev provider.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// events from a torn down subscription are stale
	if m.sub != sub {
		return
	}

	switch ev.Kind {
	case provider.AccountsChanged:
		if len(ev.Accounts) == 0 {
			m.teardownLocked()
			m.dispatchLocked(Disconnected{})
			m.clearMarker()
			m.l.Info("wallet disconnected by provider")
			return
		}

		addr := domain.NewAddress(ev.Accounts[0])
		if m.state.Address != nil && m.state.Address.Equal(addr) {
			return
		}
		var chainID uint64
		if m.state.ChainID != nil {
			chainID = *m.state.ChainID
		}
		m.dispatchLocked(Connected{Address: addr, ChainID: chainID})
		if err := m.markers.Save(addr); err != nil {
			m.l.Warn("failed to persist session marker", zap.Error(err))
		}
		m.refreshBalanceLocked(m.client, addr)
		m.l.Info("wallet account changed", zap.String("address", addr.String()))

	case provider.ChainChanged:
		chainID, err := ev.ChainIDValue()
		if err != nil {
			m.l.Warn("ignore malformed chain id", zap.String("chain_id", ev.ChainID), zap.Error(err))
			return
		}
		m.dispatchLocked(ChainChanged{ChainID: chainID})
		if m.state.Address != nil {
			m.refreshBalanceLocked(m.client, *m.state.Address)
		}
	}
}

// refreshBalanceLocked reads the balance in the background. The result is dropped
// by the reducer if the account changed in the meantime.
func (m *Manager) refreshBalanceLocked(client *provider.Client, addr domain.Address) {
	if m.closed || client == nil {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		q := query.New(client, m.l)
		balance, err := retrier.DoWithData(m.retrier, m.ctx, func(ctx context.Context) (decimal.Decimal, error) {
			bal, err := q.RequireBalance(ctx, addr)
			if provider.IsUserRejected(err) {
				return bal, retrier.Permanent(err)
			}
			return bal, err
		})
		if err != nil {
			if m.ctx.Err() != nil {
				return
			}
			m.l.Warn("balance refresh failed, showing zero", zap.String("address", addr.String()), zap.Error(err))
			balance = decimal.Zero
		}

		m.apply(BalanceUpdated{Address: addr, Balance: balance})
	}()
}

func (m *Manager) apply(ev Event) {
	m.mu.Lock()
	m.dispatchLocked(ev)
	m.mu.Unlock()
}

func (m *Manager) dispatchLocked(ev Event) {
	m.state = Reduce(m.state, ev)
	m.broadcaster.Publish(m.state)
}

func (m *Manager) teardownLocked() {
	if m.sub != nil {
		m.sub.Unsubscribe()
		m.sub = nil
	}
	m.client = nil
}

func (m *Manager) clearMarker() {
	if err := m.markers.Clear(); err != nil {
		m.l.Warn("failed to clear session marker", zap.Error(err))
	}
}
