package markers

import (
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/karmabridge/internal/domain"
)

const (
	DefaultDir   = "./wal/session"
	segmentLimit = 100
	maxSegments  = 5

	KeyConnected = "wallet_connected"
	KeyAddress   = "wallet_address"
)

// WALStore keeps the "wallet was connected" hint across restarts.
// The WAL is append-only, so the newest value for each key wins on load.
type WALStore struct {
	wal    *gowal.Wal
	mu     sync.RWMutex
	marker domain.SessionMarker
}

// NewWALStore opens the marker WAL under dir and replays it.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "marker_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init session marker WAL")
	}

	s := &WALStore{wal: wal}
	for msg := range wal.Iterator() {
		switch msg.Key {
		case KeyConnected:
			connected, perr := strconv.ParseBool(string(msg.Value))
			s.marker.Connected = perr == nil && connected
		case KeyAddress:
			s.marker.Address = domain.Address(msg.Value)
		}
	}

	return s, nil
}

// Load returns the last persisted marker.
func (s *WALStore) Load() (domain.SessionMarker, error) {
	if s == nil || s.wal == nil {
		return domain.SessionMarker{}, errors.New("session marker store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.marker, nil
}

// Save records a connected session for addr.
func (s *WALStore) Save(addr domain.Address) error {
	return s.write(domain.SessionMarker{Connected: true, Address: addr})
}

// Clear removes both markers.
func (s *WALStore) Clear() error {
	return s.write(domain.SessionMarker{})
}

func (s *WALStore) write(m domain.SessionMarker) error {
	if s == nil || s.wal == nil {
		return errors.New("session marker store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.wal.CurrentIndex() + 1
	if err := s.wal.Write(next, KeyConnected, []byte(strconv.FormatBool(m.Connected))); err != nil {
		return errors.Wrap(err, "write connected marker")
	}
	if err := s.wal.Write(next+1, KeyAddress, []byte(m.Address)); err != nil {
		return errors.Wrap(err, "write address marker")
	}

	s.marker = m
	return nil
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("session marker store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}

// MemoryStore is an in-process marker store, used when persistence is disabled.
type MemoryStore struct {
	mu     sync.Mutex
	marker domain.SessionMarker
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load() (domain.SessionMarker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.marker, nil
}

func (m *MemoryStore) Save(addr domain.Address) error {
	m.mu.Lock()
	m.marker = domain.SessionMarker{Connected: true, Address: addr}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	m.marker = domain.SessionMarker{}
	m.mu.Unlock()
	return nil
}
