package events

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/karmabridge/internal/domain"
)

var addr = domain.NewAddress("0xB6aD1ad1637Ad0F5C8DD7bE68876F508e7E368f9")

func connected() domain.WalletSession {
	a := addr
	return domain.WalletSession{IsConnected: true, Address: &a}
}

func TestSessionBroadcaster(t *testing.T) {
	b := NewSessionBroadcaster(2)
	ch := b.Subscribe()

	b.Publish(domain.WalletSession{IsLoading: true})
	b.Publish(connected())

	first := <-ch
	assert.True(t, first.IsLoading)
	second := <-ch
	require.NotNil(t, second.Address)
	assert.Equal(t, addr, *second.Address)

	b.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open)

	// unsubscribing twice is a no-op
	b.Unsubscribe(ch)
}

func TestSessionBroadcaster_SlowReaderKeepsLatest(t *testing.T) {
	b := NewSessionBroadcaster(1)
	ch := b.Subscribe()

	b.Publish(domain.WalletSession{IsLoading: true})
	b.Publish(connected())
	b.Publish(domain.NewDisconnectedSession())

	got := <-ch
	assert.Equal(t, domain.NewDisconnectedSession(), got)
	assert.Empty(t, ch)
}

func TestSessionBroadcaster_PublishCopies(t *testing.T) {
	b := NewSessionBroadcaster(1)
	ch := b.Subscribe()

	bal := decimal.RequireFromString("0.5")
	s := connected()
	s.Balance = &bal
	b.Publish(s)

	*s.Balance = decimal.Zero
	got := <-ch
	require.NotNil(t, got.Balance)
	assert.Equal(t, "0.5", got.Balance.String())
}

func TestSessionBroadcaster_Close(t *testing.T) {
	b := NewSessionBroadcaster(0)
	a, c := b.Subscribe(), b.Subscribe()
	b.Publish(connected())
	b.Close()

	// queued snapshot survives close
	got, ok := <-a
	require.True(t, ok)
	assert.True(t, got.IsConnected)
	_, openA := <-a
	assert.False(t, openA)

	<-c
	_, openC := <-c
	assert.False(t, openC)

	// late subscribers get a closed channel and publishing is inert
	late := b.Subscribe()
	b.Publish(connected())
	_, open := <-late
	assert.False(t, open)
}
