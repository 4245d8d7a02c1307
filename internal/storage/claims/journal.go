package claims

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/karmabridge/internal/domain"
)

const (
	DefaultDir   = "./wal/claims"
	segmentLimit = 1000
	maxSegments  = 20

	intentKeyPrefix = "claim_intent_"
)

// Status of a transfer attempt.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSubmitted Status = "submitted"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Intent is one transfer attempt made by the treasury.
type Intent struct {
	ID          string          `json:"id"`
	Status      Status          `json:"status"`
	Destination domain.Address  `json:"destination"`
	Value       decimal.Decimal `json:"value"`
	TxHash      string          `json:"tx_hash,omitempty"`
	BlockNumber uint64          `json:"block_number,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Journal records transfer intents in a WAL. Every status change appends a new
// record; replay keeps the latest record per intent id.
type Journal struct {
	wal     *gowal.Wal
	mu      sync.Mutex
	intents []*Intent
	index   map[string]*Intent
	now     func() time.Time
}

// Open opens (or creates) the journal under dir and replays existing intents.
func Open(dir string) (*Journal, error) {
	if dir == "" {
		dir = DefaultDir
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "claim_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init claim journal WAL")
	}

	j := &Journal{
		wal:   wal,
		index: make(map[string]*Intent),
		now:   time.Now,
	}

	for msg := range wal.Iterator() {
		if !strings.HasPrefix(msg.Key, intentKeyPrefix) {
			continue
		}
		var intent Intent
		if err := json.Unmarshal(msg.Value, &intent); err != nil {
			return nil, errors.Wrapf(err, "decode claim intent %s", msg.Key)
		}
		if existing, ok := j.index[intent.ID]; ok {
			*existing = intent
			continue
		}
		rec := intent
		j.intents = append(j.intents, &rec)
		j.index[rec.ID] = &rec
	}

	return j, nil
}

// Prepare records a pending transfer before anything is signed.
func (j *Journal) Prepare(to domain.Address, value decimal.Decimal) (*Intent, error) {
	now := j.now()
	intent := &Intent{
		ID:          uuid.New().String(),
		Status:      StatusPending,
		Destination: to,
		Value:       value,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.persist(intent); err != nil {
		return nil, err
	}
	j.intents = append(j.intents, intent)
	j.index[intent.ID] = intent
	return intent, nil
}

// MarkSubmitted stores the hash of the broadcast transaction.
func (j *Journal) MarkSubmitted(intent *Intent, txHash string) error {
	return j.update(intent, func(i *Intent) {
		i.Status = StatusSubmitted
		i.TxHash = txHash
	})
}

// MarkConfirmed records the block the transfer was included in.
func (j *Journal) MarkConfirmed(intent *Intent, block uint64) error {
	return j.update(intent, func(i *Intent) {
		i.Status = StatusConfirmed
		i.BlockNumber = block
		i.Error = ""
	})
}

// MarkFailed keeps the tx hash, if any, so operators can follow up on ambiguous transfers.
func (j *Journal) MarkFailed(intent *Intent, cause error) error {
	return j.update(intent, func(i *Intent) {
		i.Status = StatusFailed
		if cause != nil {
			i.Error = cause.Error()
		}
	})
}

// Intents returns copies of all known intents in creation order.
func (j *Journal) Intents() []Intent {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]Intent, 0, len(j.intents))
	for _, i := range j.intents {
		out = append(out, *i)
	}
	return out
}

// Pending returns intents that never reached a final status.
func (j *Journal) Pending() []Intent {
	var out []Intent
	for _, i := range j.Intents() {
		if i.Status == StatusPending || i.Status == StatusSubmitted {
			out = append(out, i)
		}
	}
	return out
}

// Close closes the underlying WAL.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.wal.Close()
}

func (j *Journal) update(intent *Intent, apply func(*Intent)) error {
	if intent == nil {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	apply(intent)
	intent.UpdatedAt = j.now()
	return j.persist(intent)
}

func (j *Journal) persist(intent *Intent) error {
	data, err := json.Marshal(intent)
	if err != nil {
		return errors.Wrap(err, "marshal claim intent")
	}
	key := fmt.Sprintf("%s%s", intentKeyPrefix, intent.ID)
	return j.wal.Write(j.wal.CurrentIndex()+1, key, data)
}
