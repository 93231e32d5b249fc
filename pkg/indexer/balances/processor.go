// Package balances turns balances-module chain events into ledger-change records.
//
// A Processor walks one block's events in order, routes each balances event to the
// handler registered for its method, and collects the accounts the block touched.
// Each handler decodes its positional payload, builds exactly one record and waits for
// the store to persist it before returning.
package balances

import (
	"context"
	"errors"
	"fmt"

	"github.com/canopy-network/balancex/pkg/db/entities"
	"github.com/canopy-network/balancex/pkg/db/models/ledger"
	"github.com/canopy-network/balancex/pkg/substrate"
	"go.uber.org/zap"
)

var (
	// ErrPersist is matched by every failure of the store while saving a record.
	ErrPersist = errors.New("balances: persist record")
	// ErrMissingHandler is returned by NewProcessor when a modeled kind has no handler.
	ErrMissingHandler = errors.New("balances: missing handler")
)

// Store is the persistence collaborator. Save must not return before the record is durable.
type Store interface {
	Save(ctx context.Context, record ledger.Record) error
}

// Handler maps one event to one persisted record and returns the accounts it affected.
type Handler func(ctx context.Context, block substrate.Block, event substrate.Event) ([]string, error)

// BlockResult summarizes one processed block.
type BlockResult struct {
	Number uint64
	// Accounts is every account touched by the block's balances events, deduplicated
	// in first-occurrence order. Downstream balance snapshotting consumes it.
	Accounts []string
	// Records counts persisted records per entity.
	Records map[entities.Entity]int
	// Events is the number of balances events that matched a handler.
	Events int
}

// Processor dispatches balances events to their handlers. It keeps no state between
// blocks; callers must not run ProcessBlock for two blocks at once if they rely on
// the per-block ordering of writes.
type Processor struct {
	logger   *zap.Logger
	store    Store
	ids      IDGenerator
	handlers map[EventKind]Handler
}

// Option customizes a Processor.
type Option func(*Processor)

// WithIDGenerator replaces the default UUIDv7 identifiers.
func WithIDGenerator(ids IDGenerator) Option {
	return func(p *Processor) { p.ids = ids }
}

// WithHandler registers h for kind, replacing the built-in handler if there is one.
func WithHandler(kind EventKind, h Handler) Option {
	return func(p *Processor) { p.handlers[kind] = h }
}

// NewProcessor builds a processor with a handler for every kind in AllKinds.
func NewProcessor(logger *zap.Logger, store Store, opts ...Option) (*Processor, error) {
	if store == nil {
		return nil, errors.New("balances: store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Processor{
		logger: logger.Named("balances"),
		store:  store,
		ids:    UUIDv7Generator{},
	}
	p.handlers = map[EventKind]Handler{
		KindEndowed:           p.handleEndowed,
		KindTransfer:          p.handleTransfer,
		KindBalanceSet:        p.handleBalanceSet,
		KindDeposit:           p.handleDeposit,
		KindReserved:          p.handleReserved,
		KindUnreserved:        p.handleUnreserved,
		KindWithdraw:          p.handleWithdraw,
		KindSlash:             p.handleSlash,
		KindReservRepatriated: p.handleReservRepatriated,
	}
	for _, opt := range opts {
		opt(p)
	}
	for _, kind := range AllKinds() {
		if p.handlers[kind] == nil {
			return nil, fmt.Errorf("%w for %s", ErrMissingHandler, kind)
		}
	}
	for kind, h := range p.handlers {
		if h == nil {
			return nil, fmt.Errorf("%w: nil handler registered for %s", ErrMissingHandler, kind)
		}
	}
	return p, nil
}

// Handler returns the handler registered for kind.
func (p *Processor) Handler(kind EventKind) (Handler, bool) {
	h, ok := p.handlers[kind]
	return h, ok
}

// ProcessBlock handles every balances event of block in order. Events of other sections
// and unknown balances methods are skipped. The first handler error aborts the block;
// records saved by earlier events of the same block stay persisted.
func (p *Processor) ProcessBlock(ctx context.Context, block substrate.Block) (BlockResult, error) {
	result := BlockResult{
		Number:  block.Number,
		Records: make(map[entities.Entity]int),
	}
	var touched AccountSet

	for i, event := range block.Events {
		if event.Section != substrate.SectionBalances {
			continue
		}
		kind := EventKind(event.Method)
		handler, ok := p.handlers[kind]
		if !ok {
			p.logger.Debug("Skipping unhandled balances event",
				zap.Uint64("block", block.Number),
				zap.Int("index", i),
				zap.String("event", event.Name()))
			continue
		}

		p.logger.Info("Balances event",
			zap.Uint64("block", block.Number),
			zap.Int("index", i),
			zap.String("event", event.Name()))

		accounts, err := handler(ctx, block, event)
		if err != nil {
			return result, fmt.Errorf("block %d event %d (%s): %w", block.Number, i, event.Name(), err)
		}
		touched.Add(accounts...)
		result.Events++
		if e, ok := kind.Entity(); ok {
			result.Records[e]++
		}
	}

	result.Accounts = touched.List()
	return result, nil
}

func (p *Processor) base(block substrate.Block) ledger.Base {
	return ledger.Base{
		ID:          p.ids.NewID(),
		BlockNumber: block.Number,
		Timestamp:   block.Timestamp,
	}
}

func (p *Processor) save(ctx context.Context, record ledger.Record) ([]string, error) {
	if err := p.store.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrPersist, record.Entity(), record.RecordID(), err)
	}
	return record.Accounts(), nil
}
