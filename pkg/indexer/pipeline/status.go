package pipeline

import (
	"sync"
	"time"

	"github.com/canopy-network/balancex/pkg/db/entities"
	"github.com/canopy-network/balancex/pkg/indexer/balances"
	"github.com/puzpuzpuz/xsync/v4"
)

// Status tracks the runner's progress. It is written by the runner and read concurrently
// by the HTTP controller.
type Status struct {
	chain   string
	started time.Time
	records *xsync.Map[string, uint64]

	mu            sync.RWMutex
	blocks        uint64
	lastBlock     uint64
	hasBlock      bool
	lastAt        time.Time
	failedBlock   uint64
	hasFailed     bool
	failedMessage string
	lastErr       string
	stopped       bool
}

// Snapshot is a point-in-time copy of Status. FailedBlock is only set when the failing
// stream entry carried a readable block; FailedMessage names the entry either way.
type Snapshot struct {
	Chain         string            `json:"chain"`
	Started       time.Time         `json:"started"`
	Running       bool              `json:"running"`
	Blocks        uint64            `json:"blocksProcessed"`
	LastBlock     *uint64           `json:"lastBlock,omitempty"`
	LastBlockAt   *time.Time        `json:"lastBlockAt,omitempty"`
	Records       map[string]uint64 `json:"records"`
	FailedBlock   *uint64           `json:"failedBlock,omitempty"`
	FailedMessage string            `json:"failedMessage,omitempty"`
	LastError     string            `json:"lastError,omitempty"`
}

func NewStatus(chain string) *Status {
	s := &Status{
		chain:   chain,
		started: time.Now().UTC(),
		records: xsync.NewMap[string, uint64](),
	}
	for _, e := range entities.All() {
		s.records.Store(e.String(), 0)
	}
	return s
}

func (s *Status) recordBlock(res balances.BlockResult, at time.Time) {
	for e, n := range res.Records {
		s.records.Compute(e.String(), func(oldValue uint64, loaded bool) (uint64, xsync.ComputeOp) {
			return oldValue + uint64(n), xsync.UpdateOp
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks++
	s.lastBlock = res.Number
	s.hasBlock = true
	s.lastAt = at
	s.lastErr = ""
	s.failedBlock = 0
	s.hasFailed = false
	s.failedMessage = ""
}

// recordFailure notes a block that could not be processed.
func (s *Status) recordFailure(messageID string, number uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedMessage = messageID
	s.failedBlock = number
	s.hasFailed = true
	s.lastErr = err.Error()
}

// recordBadMessage notes a stream entry that never yielded a block number.
func (s *Status) recordBadMessage(messageID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedMessage = messageID
	s.failedBlock = 0
	s.hasFailed = false
	s.lastErr = err.Error()
}

func (s *Status) markStopped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

// LastBlock returns the number of the last fully processed block.
func (s *Status) LastBlock() (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastBlock, s.hasBlock
}

func (s *Status) Snapshot() Snapshot {
	out := Snapshot{
		Chain:   s.chain,
		Started: s.started,
		Records: make(map[string]uint64),
	}
	s.records.Range(func(entity string, n uint64) bool {
		out.Records[entity] = n
		return true
	})

	s.mu.RLock()
	defer s.mu.RUnlock()
	out.Running = !s.stopped
	out.Blocks = s.blocks
	if s.hasBlock {
		last, at := s.lastBlock, s.lastAt
		out.LastBlock = &last
		out.LastBlockAt = &at
	}
	if s.hasFailed {
		failed := s.failedBlock
		out.FailedBlock = &failed
	}
	out.FailedMessage = s.failedMessage
	out.LastError = s.lastErr
	return out
}
