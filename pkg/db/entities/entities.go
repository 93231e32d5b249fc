// Package entities names the ledger-change record kinds written by the balances indexer.
//
// Each Entity is both the record kind and the ClickHouse table that stores it, so the
// processor, the store and the status endpoint all agree on one spelling:
//
//	for _, e := range entities.All() {
//	    query := fmt.Sprintf("SELECT count() FROM %s", e.TableName())
//	}
package entities

import (
	"fmt"
	"strings"
)

// Entity is a record kind produced from a balances event.
type Entity string

const (
	// Endowed is an account's first balance credit.
	Endowed Entity = "endowed"
	// Transfer moves free balance between two accounts.
	Transfer Entity = "transfer"
	// BalanceSet is an administrative balance assignment, recorded as free+reserved.
	BalanceSet Entity = "balance_set"
	// Deposit increases free balance.
	Deposit Entity = "deposit"
	// Reserved moves free balance into reserve.
	Reserved Entity = "reserved"
	// Unreserved moves reserve back into free balance.
	Unreserved Entity = "unreserved"
	// Withdraw decreases free balance.
	Withdraw Entity = "withdraw"
	// Slash decreases total balance; the free/reserve split is not observable.
	Slash Entity = "slash"
	// ReservRepatriated moves reserve from one account to another account's free or reserve part.
	ReservRepatriated Entity = "reserv_repatriated"
)

// allEntities must list every constant above.
var allEntities = []Entity{
	Endowed,
	Transfer,
	BalanceSet,
	Deposit,
	Reserved,
	Unreserved,
	Withdraw,
	Slash,
	ReservRepatriated,
}

func init() {
	seen := make(map[Entity]bool, len(allEntities))
	for _, e := range allEntities {
		if e == "" {
			panic("entities: empty entity name detected in allEntities")
		}
		if strings.ContainsAny(string(e), " .\"`") {
			panic(fmt.Sprintf("entities: entity name %q is not a valid table name", e))
		}
		if seen[e] {
			panic(fmt.Sprintf("entities: duplicate entity %q", e))
		}
		seen[e] = true
	}
}

// String returns the entity name.
func (e Entity) String() string {
	return string(e)
}

// TableName returns the table that stores records of this kind.
func (e Entity) TableName() string {
	return string(e)
}

// All returns a copy of the known entities in declaration order.
func All() []Entity {
	result := make([]Entity, len(allEntities))
	copy(result, allEntities)
	return result
}
