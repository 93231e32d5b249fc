// Package substrate holds the decoded block shape handed to the indexer by the
// upstream chain-streaming collaborator. SCALE decoding happens upstream; here a
// block is plain JSON with ordered events whose payload is a positional tuple.
package substrate

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SectionBalances is the module name of the balances pallet.
const SectionBalances = "balances"

// Block is one chain block as seen by the indexer.
type Block struct {
	Number    uint64    `json:"number"`
	Timestamp time.Time `json:"timestamp"`
	Events    []Event   `json:"events"`
}

// Event is a chain event tagged by module section and method name.
// Data keeps each positional field undecoded; interpreting it is the job of the
// per-kind decoders.
type Event struct {
	Section string            `json:"section"`
	Method  string            `json:"method"`
	Data    []json.RawMessage `json:"data"`
}

// Name returns "section/method", the form used in logs.
func (e Event) Name() string {
	return e.Section + "/" + e.Method
}

// NewEvent builds an Event from Go values, mostly for tests and fixtures.
func NewEvent(section, method string, fields ...any) (Event, error) {
	data := make([]json.RawMessage, len(fields))
	for i, f := range fields {
		raw, err := json.Marshal(f)
		if err != nil {
			return Event{}, fmt.Errorf("encode field %d of %s/%s: %w", i, section, method, err)
		}
		data[i] = raw
	}
	return Event{Section: section, Method: method, Data: data}, nil
}

// ParseBlock decodes a block from its JSON form and checks the envelope.
func ParseBlock(raw []byte) (Block, error) {
	if len(raw) == 0 {
		return Block{}, errors.New("empty block payload")
	}
	var b Block
	if err := json.Unmarshal(raw, &b); err != nil {
		return Block{}, fmt.Errorf("decode block: %w", err)
	}
	if b.Timestamp.IsZero() {
		return Block{}, fmt.Errorf("block %d: missing timestamp", b.Number)
	}
	for i, ev := range b.Events {
		if ev.Section == "" || ev.Method == "" {
			return Block{}, fmt.Errorf("block %d: event %d has no section or method", b.Number, i)
		}
	}
	return b, nil
}
