// Package events distributes wallet session snapshots to local observers such as the
// status API stream.
package events

import (
	"sync"

	"github.com/vadiminshakov/karmabridge/internal/domain"
)

const defaultBuffer = 16

// SessionBroadcaster delivers session snapshots to subscribers.
//
// Every snapshot supersedes the previous one, so a subscriber that falls behind
// loses intermediate states but always ends up holding the most recent one:
// when its buffer is full the oldest queued snapshot is evicted.
type SessionBroadcaster struct {
	mu     sync.Mutex
	subs   map[chan domain.WalletSession]struct{}
	buffer int
	closed bool
}

func NewSessionBroadcaster(buffer int) *SessionBroadcaster {
	if buffer < 1 {
		buffer = defaultBuffer
	}
	return &SessionBroadcaster{
		subs:   make(map[chan domain.WalletSession]struct{}),
		buffer: buffer,
	}
}

// Publish queues a copy of s for every subscriber without blocking.
// It is a no-op once the broadcaster is closed.
func (b *SessionBroadcaster) Publish(s domain.WalletSession) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for ch := range b.subs {
		offer(ch, s.Clone())
	}
}

// offer relies on b.mu: only Publish sends, so one eviction always makes room.
func offer(ch chan domain.WalletSession, s domain.WalletSession) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}

// Subscribe registers a new subscriber. After Close it returns an already closed channel.
func (b *SessionBroadcaster) Subscribe() chan domain.WalletSession {
	ch := make(chan domain.WalletSession, b.buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe closes ch. Unknown or already removed channels are ignored.
func (b *SessionBroadcaster) Unsubscribe(ch chan domain.WalletSession) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// Close ends every subscription. Queued snapshots stay readable until drained.
func (b *SessionBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}
