package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelNames(t *testing.T) {
	assert.Equal(t, "substrate:polkadot:block.processed", GetBlockProcessedChannel("polkadot"))
	assert.Equal(t, "substrate:polkadot:accounts4snapshot", GetAccounts4SnapshotStream("polkadot"))
	assert.Equal(t, "substrate:kusama:custom", GetChannel("kusama", "custom"))
}

func TestBlockProcessedEventJSON(t *testing.T) {
	ev := BlockProcessedEvent{
		Event:     EventBlockProcessed,
		Chain:     "polkadot",
		Number:    42,
		Timestamp: time.Date(2022, 5, 1, 10, 30, 0, 0, time.UTC),
		Accounts:  []string{"A", "B"},
		Records:   map[string]int{"transfer": 1},
	}
	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "block.processed", fields["event"])
	assert.Equal(t, float64(42), fields["number"])
	assert.Equal(t, []any{"A", "B"}, fields["accounts"])
	assert.Equal(t, "2022-05-01T10:30:00Z", fields["timestamp"])
}
