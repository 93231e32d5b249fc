package balances

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/canopy-network/balancex/pkg/db/models/ledger"
	"github.com/canopy-network/balancex/pkg/substrate"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeStore records every saved record and can fail on the n-th save (1-based).
type fakeStore struct {
	saved  []ledger.Record
	calls  int
	failAt int
	err    error
}

func (s *fakeStore) Save(_ context.Context, record ledger.Record) error {
	s.calls++
	if s.failAt > 0 && s.calls == s.failAt {
		if s.err == nil {
			return errors.New("clickhouse: connection reset")
		}
		return s.err
	}
	s.saved = append(s.saved, record)
	return nil
}

var testTime = time.Date(2022, 5, 1, 10, 30, 0, 0, time.UTC)

func newTestProcessor(t *testing.T, store Store) *Processor {
	t.Helper()
	p, err := NewProcessor(zaptest.NewLogger(t), store, WithIDGenerator(&SequenceGenerator{Prefix: "rec"}))
	require.NoError(t, err)
	return p
}

func event(t *testing.T, section, method string, fields ...any) substrate.Event {
	t.Helper()
	ev, err := substrate.NewEvent(section, method, fields...)
	require.NoError(t, err)
	return ev
}

func balancesEvent(t *testing.T, method string, fields ...any) substrate.Event {
	t.Helper()
	return event(t, substrate.SectionBalances, method, fields...)
}

func block(number uint64, events ...substrate.Event) substrate.Block {
	return substrate.Block{Number: number, Timestamp: testTime, Events: events}
}
