package claims

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/karmabridge/internal/domain"
)

const dest = domain.Address("0xb6ad1ad1637ad0f5c8dd7be68876f508e7e368f9")

func TestJournal_Lifecycle(t *testing.T) {
	dir := t.TempDir()

	j, err := Open(dir)
	require.NoError(t, err)

	value := decimal.RequireFromString("0.000001")
	ok, err := j.Prepare(dest, value)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, ok.Status)
	assert.NotEmpty(t, ok.ID)

	require.NoError(t, j.MarkSubmitted(ok, "0xabc"))
	require.NoError(t, j.MarkConfirmed(ok, 42))

	bad, err := j.Prepare(dest, value)
	require.NoError(t, err)
	require.NoError(t, j.MarkSubmitted(bad, "0xdef"))
	require.NoError(t, j.MarkFailed(bad, errors.New("confirmation timeout")))

	stuck, err := j.Prepare(dest, value)
	require.NoError(t, err)

	require.NoError(t, j.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	intents := reopened.Intents()
	require.Len(t, intents, 3)

	assert.Equal(t, ok.ID, intents[0].ID)
	assert.Equal(t, StatusConfirmed, intents[0].Status)
	assert.Equal(t, uint64(42), intents[0].BlockNumber)
	assert.True(t, value.Equal(intents[0].Value))

	assert.Equal(t, StatusFailed, intents[1].Status)
	assert.Equal(t, "0xdef", intents[1].TxHash)
	assert.Equal(t, "confirmation timeout", intents[1].Error)

	pending := reopened.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, stuck.ID, pending[0].ID)
}

func TestJournal_NilIntentIsIgnored(t *testing.T) {
	j, err := Open(t.TempDir())
	require.NoError(t, err)
	defer j.Close()

	assert.NoError(t, j.MarkFailed(nil, errors.New("x")))
	assert.Empty(t, j.Intents())
}
