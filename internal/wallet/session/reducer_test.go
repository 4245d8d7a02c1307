package session

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/karmabridge/internal/domain"
)

const (
	addrA = domain.Address("0xb6ad1ad1637ad0f5c8dd7be68876f508e7e368f9")
	addrB = domain.Address("0x00000000219ab540356cbb839cbe05303d7705fa")
)

func connected(t *testing.T) domain.WalletSession {
	t.Helper()
	s := Reduce(domain.NewDisconnectedSession(), Connected{Address: addrA, ChainID: 421614})
	return Reduce(s, BalanceUpdated{Address: addrA, Balance: decimal.RequireFromString("1.5")})
}

func checkInvariants(t *testing.T, s domain.WalletSession) {
	t.Helper()
	if s.IsConnected {
		assert.NotNil(t, s.Address, "connected session must have an address")
	}
	if s.IsLoading {
		assert.Empty(t, s.Error, "loading clears the error")
	}
}

func TestReduce(t *testing.T) {
	tests := []struct {
		name   string
		start  func(t *testing.T) domain.WalletSession
		event  Event
		verify func(t *testing.T, s domain.WalletSession)
	}{
		{
			name:  "loading clears error",
			start: func(*testing.T) domain.WalletSession { return domain.WalletSession{Error: "boom"} },
			event: Loading{},
			verify: func(t *testing.T, s domain.WalletSession) {
				assert.True(t, s.IsLoading)
				assert.Empty(t, s.Error)
				assert.Equal(t, domain.StatusConnecting, s.Status())
			},
		},
		{
			name:  "connect populates address and chain",
			start: func(*testing.T) domain.WalletSession { return domain.WalletSession{IsLoading: true} },
			event: Connected{Address: addrA, ChainID: 1},
			verify: func(t *testing.T, s domain.WalletSession) {
				require.NotNil(t, s.Address)
				require.NotNil(t, s.ChainID)
				assert.Equal(t, addrA, *s.Address)
				assert.Equal(t, uint64(1), *s.ChainID)
				assert.False(t, s.IsLoading)
				assert.Equal(t, domain.StatusConnected, s.Status())
			},
		},
		{
			name:  "account change resets balance",
			start: connected,
			event: Connected{Address: addrB, ChainID: 421614},
			verify: func(t *testing.T, s domain.WalletSession) {
				assert.Equal(t, addrB, *s.Address)
				assert.Nil(t, s.Balance)
			},
		},
		{
			name:  "same account keeps balance",
			start: connected,
			event: Connected{Address: addrA, ChainID: 1},
			verify: func(t *testing.T, s domain.WalletSession) {
				require.NotNil(t, s.Balance)
				assert.Equal(t, "1.5", s.Balance.String())
			},
		},
		{
			name:  "connect failure leaves no account",
			start: connected,
			event: ConnectFailed{Message: "rejected"},
			verify: func(t *testing.T, s domain.WalletSession) {
				assert.False(t, s.IsConnected)
				assert.Nil(t, s.Address)
				assert.Equal(t, "rejected", s.Error)
				assert.Equal(t, domain.StatusError, s.Status())
			},
		},
		{
			name:  "failure keeps address and chain",
			start: connected,
			event: Failed{Message: "switch failed"},
			verify: func(t *testing.T, s domain.WalletSession) {
				assert.True(t, s.IsConnected)
				assert.Equal(t, addrA, *s.Address)
				assert.Equal(t, uint64(421614), *s.ChainID)
				assert.Equal(t, "switch failed", s.Error)
			},
		},
		{
			name:  "balance for another address is dropped",
			start: connected,
			event: BalanceUpdated{Address: addrB, Balance: decimal.NewFromInt(9)},
			verify: func(t *testing.T, s domain.WalletSession) {
				assert.Equal(t, "1.5", s.Balance.String())
			},
		},
		{
			name:  "balance while disconnected is dropped",
			start: func(*testing.T) domain.WalletSession { return domain.NewDisconnectedSession() },
			event: BalanceUpdated{Address: addrA, Balance: decimal.NewFromInt(9)},
			verify: func(t *testing.T, s domain.WalletSession) {
				assert.Nil(t, s.Balance)
			},
		},
		{
			name:  "chain change keeps connection",
			start: connected,
			event: ChainChanged{ChainID: 1},
			verify: func(t *testing.T, s domain.WalletSession) {
				assert.True(t, s.IsConnected)
				assert.Equal(t, uint64(1), *s.ChainID)
				assert.Equal(t, addrA, *s.Address)
			},
		},
		{
			name: "network switch finishes loading",
			start: func(t *testing.T) domain.WalletSession {
				return Reduce(connected(t), Loading{})
			},
			event: NetworkSwitched{ChainID: 1},
			verify: func(t *testing.T, s domain.WalletSession) {
				assert.False(t, s.IsLoading)
				assert.Equal(t, uint64(1), *s.ChainID)
			},
		},
		{
			name:  "disconnect resets everything",
			start: connected,
			event: Disconnected{},
			verify: func(t *testing.T, s domain.WalletSession) {
				assert.Equal(t, domain.NewDisconnectedSession(), s)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := tt.start(t)
			before := start.Clone()

			next := Reduce(start, tt.event)

			tt.verify(t, next)
			checkInvariants(t, next)
			assert.Equal(t, before, start, "reducer must not mutate its input")
		})
	}
}
