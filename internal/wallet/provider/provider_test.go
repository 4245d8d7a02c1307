package provider_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/karmabridge/internal/domain"
	"github.com/vadiminshakov/karmabridge/internal/wallet/provider"
	"github.com/vadiminshakov/karmabridge/internal/wallet/provider/providertest"
)

const user = "0xB6aD1ad1637Ad0F5C8DD7bE68876F508e7E368f9"

func TestDiscovery_Detect(t *testing.T) {
	t.Run("no provider is a terminal error", func(t *testing.T) {
		d := provider.NewDiscovery(zap.NewNop(), provider.URLLocator("", 0, zap.NewNop()))
		_, err := d.Detect(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrProviderNotFound))
	})

	t.Run("locator error is reported as not found", func(t *testing.T) {
		failing := func(context.Context) (provider.Provider, error) { return nil, errors.New("connection refused") }
		d := provider.NewDiscovery(zap.NewNop(), failing)
		_, err := d.Detect(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrProviderNotFound))
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("first provider is cached", func(t *testing.T) {
		fake := providertest.New(1, user)
		calls := 0
		counting := func(context.Context) (provider.Provider, error) {
			calls++
			return fake, nil
		}
		d := provider.NewDiscovery(zap.NewNop(), provider.URLLocator("", 0, zap.NewNop()), counting)

		p1, err := d.Detect(context.Background())
		require.NoError(t, err)
		p2, err := d.Detect(context.Background())
		require.NoError(t, err)

		assert.Same(t, fake, p1)
		assert.Same(t, p1, p2)
		assert.Equal(t, 1, calls)
		assert.Same(t, fake, d.Cached())

		d.Reset()
		assert.Nil(t, d.Cached())
	})
}

func TestClient(t *testing.T) {
	ctx := context.Background()
	fake := providertest.New(421614, user)
	fake.SetBalance(user, big.NewInt(2_000_000_000_000))
	c := provider.NewClient(fake)

	accounts, err := c.RequestAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, domain.NewAddress(user), accounts[0])

	id, err := c.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(421614), id.Int64())

	wei, err := c.BalanceAt(ctx, common.HexToAddress(user), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2_000_000_000_000), wei.Int64())

	err = c.SwitchChain(ctx, 10)
	require.Error(t, err)
	assert.True(t, provider.IsUnrecognizedChain(err))
	assert.False(t, provider.IsUserRejected(err))

	require.NoError(t, c.AddChain(ctx, domain.NetworkDescriptor{ChainID: 10, Name: "Optimism", RPCURL: "https://mainnet.optimism.io"}))
	require.NoError(t, c.SwitchChain(ctx, 10))
	assert.Equal(t, uint64(10), fake.ChainID())
}

func TestRequestError(t *testing.T) {
	err := errors.Wrap(providertest.Reject(), "connect")
	assert.True(t, provider.IsUserRejected(err))
	assert.True(t, errors.Is(err, domain.ErrUserRejected))
	assert.False(t, provider.IsUnrecognizedChain(err))
}

func TestParseChainID(t *testing.T) {
	id, err := provider.ParseChainID("0x66eee")
	require.NoError(t, err)
	assert.Equal(t, uint64(421614), id)

	_, err = provider.ParseChainID("421614")
	assert.Error(t, err)
}
