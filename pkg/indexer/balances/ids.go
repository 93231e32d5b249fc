package balances

import (
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// IDGenerator produces record identifiers.
type IDGenerator interface {
	NewID() string
}

// UUIDv7Generator issues time-ordered UUIDv7 identifiers. The millisecond timestamp keeps
// ids sortable by creation time; the random and sequence bits make collisions negligible
// even for ids minted within the same millisecond.
type UUIDv7Generator struct{}

func (UUIDv7Generator) NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequenceGenerator issues "<prefix>-<n>" with a process-wide monotonic n starting at 1.
// Unique within one process only.
type SequenceGenerator struct {
	Prefix string
	n      atomic.Uint64
}

func (g *SequenceGenerator) NewID() string {
	return fmt.Sprintf("%s-%d", g.Prefix, g.n.Add(1))
}

// LegacyIDGenerator issues "<unix-ms>-<4 hex>" ids, the format of ledgers written before
// UUIDv7. Only 65536 values exist per millisecond, so two records of one block can collide;
// use it only to append to a ledger that already holds ids of this shape.
type LegacyIDGenerator struct {
	Now func() time.Time
}

func (g LegacyIDGenerator) NewID() string {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	return fmt.Sprintf("%d-%04x", now().UnixMilli(), rand.N(0x10000))
}
