package domain

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const checksummed = "0xB6aD1ad1637Ad0F5C8DD7bE68876F508e7E368f9"

func TestAddress(t *testing.T) {
	addr := NewAddress("  " + checksummed + " ")
	assert.Equal(t, "0xb6ad1ad1637ad0f5c8dd7be68876f508e7e368f9", addr.String())
	assert.True(t, addr.Valid())
	assert.True(t, addr.Equal(Address(checksummed)))
	assert.False(t, addr.Equal(NewAddress("0x0000000000000000000000000000000000000001")))
	assert.Equal(t, "0xb6ad...68f9", addr.Short(4))
	assert.False(t, IsValidAddress("0x1234"))
	assert.False(t, IsValidAddress("not-an-address"))
	assert.True(t, IsValidAddress("0x0000000000000000000000000000000000000000"))
}

func TestWalletSession_Status(t *testing.T) {
	addr := NewAddress(checksummed)
	tests := []struct {
		name    string
		session WalletSession
		want    SessionStatus
	}{
		{"initial", NewDisconnectedSession(), StatusDisconnected},
		{"loading", WalletSession{IsLoading: true}, StatusConnecting},
		{"connected", WalletSession{IsConnected: true, Address: &addr}, StatusConnected},
		{"error", WalletSession{Error: "boom"}, StatusError},
		{"connected with error", WalletSession{IsConnected: true, Address: &addr, Error: "switch failed"}, StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.session.Status())
		})
	}
}

func TestWalletSession_CloneDoesNotShare(t *testing.T) {
	addr := NewAddress(checksummed)
	chain := uint64(1)
	bal := decimal.NewFromInt(2)
	s := WalletSession{IsConnected: true, Address: &addr, ChainID: &chain, Balance: &bal}

	c := s.Clone()
	*c.ChainID = 5
	*c.Address = "changed"

	assert.Equal(t, uint64(1), *s.ChainID)
	assert.Equal(t, addr, *s.Address)
}

func TestConversionRequest_Validate(t *testing.T) {
	err := ConversionRequest{Points: 0, Destination: NewAddress(checksummed)}.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	err = ConversionRequest{Points: 10, Destination: NewAddress("0xabc")}.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	assert.NoError(t, ConversionRequest{Points: 10, Destination: NewAddress(checksummed)}.Validate())
}

func TestInsufficientFundsError(t *testing.T) {
	err := error(&InsufficientFundsError{
		Available: decimal.RequireFromString("0.0000005"),
		Required:  decimal.RequireFromString("0.000001"),
	})
	assert.True(t, errors.Is(err, ErrInsufficientTreasuryFunds))
	assert.Contains(t, err.Error(), "Available: 0.0000005 ETH")
	assert.Contains(t, err.Error(), "Required: 0.000001 ETH")

	wrapped := errors.Wrap(err, "claim")
	assert.True(t, errors.Is(wrapped, ErrInsufficientTreasuryFunds))
}

func TestNetworkDescriptor(t *testing.T) {
	assert.Equal(t, "0x66eee", ArbitrumSepolia.ChainIDHex())
	assert.Equal(t, "0x1", EthereumMainnet.ChainIDHex())
	assert.Equal(t, "https://sepolia.arbiscan.io/tx/0xabc", ArbitrumSepolia.TxURL("0xabc"))
	assert.Equal(t, "Sepolia Testnet", NetworkName(11155111))
	assert.Equal(t, "Chain 42", NetworkName(42))
	assert.Equal(t, "https://polygonscan.com/address/0xab", AddressExplorerURL("0xab", 137))
	assert.Empty(t, AddressExplorerURL("0xab", 42))
}
