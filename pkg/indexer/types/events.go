// Package types holds the messages the indexer exchanges with other services.
package types

import (
	"time"
)

const (
	// EventBlockProcessed is the event name of BlockProcessedEvent.
	EventBlockProcessed = "block.processed"
	// StreamAccounts4Snapshot is the stream suffix that carries the accounts touched by each block.
	StreamAccounts4Snapshot = "accounts4snapshot"
)

// BlockProcessedEvent reports a block whose balances events are all persisted.
// Accounts is the block's accounts4snapshot set: every account whose balance may have
// changed, deduplicated in first-occurrence order. Records counts persisted records per
// entity and Indexed is the publication time (UTC).
type BlockProcessedEvent struct {
	Event     string         `json:"event"` // Always "block.processed"
	Chain     string         `json:"chain"`
	Number    uint64         `json:"number"`
	Timestamp time.Time      `json:"timestamp"`
	Accounts  []string       `json:"accounts"`
	Records   map[string]int `json:"records"`
	Indexed   time.Time      `json:"indexed"`
}

// GetChannel returns the Redis Pub/Sub channel name for a given chain and event type.
// Channel format: substrate:{chain}:{eventType}
// Example: substrate:polkadot:block.processed
func GetChannel(chain, eventType string) string {
	return "substrate:" + chain + ":" + eventType
}

// GetBlockProcessedChannel returns the Redis channel for block.processed events.
func GetBlockProcessedChannel(chain string) string {
	return GetChannel(chain, EventBlockProcessed)
}

// GetAccounts4SnapshotStream returns the Redis stream snapshot workers read touched accounts from.
func GetAccounts4SnapshotStream(chain string) string {
	return GetChannel(chain, StreamAccounts4Snapshot)
}
