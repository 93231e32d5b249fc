// Package ledger defines the normalized balance-change records and their table layout.
//
// Records are deltas: BalanceChange is always a non-negative magnitude and the sign of
// the change is implied by the record kind. Nothing here tracks running balances.
package ledger

import (
	"math/big"
	"time"

	"github.com/canopy-network/balancex/pkg/db/entities"
)

// Record is a write-once ledger entry produced from one balances event.
type Record interface {
	Entity() entities.Entity
	RecordID() string
	// Accounts returns the distinct accounts the record references, in event order.
	Accounts() []string
	// Values returns the column values in the order of Columns(Entity()).
	Values() []any
}

// Base carries the fields shared by every record.
type Base struct {
	ID          string    `ch:"id" json:"id"`
	BlockNumber uint64    `ch:"block_number" json:"blockNumber"`
	Timestamp   time.Time `ch:"timestamp" json:"timestamp"`
}

// RecordID returns the record identifier.
func (b Base) RecordID() string { return b.ID }

func (b Base) values(rest ...any) []any {
	return append([]any{b.ID, b.BlockNumber, b.Timestamp}, rest...)
}

// Endowed is an account's first credit. The whole amount lands in free balance.
type Endowed struct {
	Base
	AccountID      string   `ch:"account_id" json:"accountId"`
	FreeBalance    *big.Int `ch:"free_balance" json:"freeBalance"`
	ReserveBalance *big.Int `ch:"reserve_balance" json:"reserveBalance"`
	TotalBalance   *big.Int `ch:"total_balance" json:"totalBalance"`
}

func (r *Endowed) Entity() entities.Entity { return entities.Endowed }
func (r *Endowed) Accounts() []string      { return []string{r.AccountID} }
func (r *Endowed) Values() []any {
	return r.Base.values(r.AccountID, r.FreeBalance, r.ReserveBalance, r.TotalBalance)
}

// Transfer moves BalanceChange of free balance from FromAccountID to ToAccountID.
type Transfer struct {
	Base
	FromAccountID string   `ch:"from_account_id" json:"fromAccountId"`
	ToAccountID   string   `ch:"to_account_id" json:"toAccountId"`
	BalanceChange *big.Int `ch:"balance_change" json:"balanceChange"`
}

func (r *Transfer) Entity() entities.Entity { return entities.Transfer }
func (r *Transfer) Accounts() []string      { return pair(r.FromAccountID, r.ToAccountID) }
func (r *Transfer) Values() []any {
	return r.Base.values(r.FromAccountID, r.ToAccountID, r.BalanceChange)
}

// BalanceSet records an administrative assignment as the sum of the new free and
// reserved balances.
type BalanceSet struct {
	Base
	AccountID     string   `ch:"account_id" json:"accountId"`
	BalanceChange *big.Int `ch:"balance_change" json:"balanceChange"`
}

func (r *BalanceSet) Entity() entities.Entity { return entities.BalanceSet }
func (r *BalanceSet) Accounts() []string      { return []string{r.AccountID} }
func (r *BalanceSet) Values() []any           { return r.Base.values(r.AccountID, r.BalanceChange) }

// AccountChange is the shape shared by the single-account kinds
// (Deposit, Reserved, Unreserved, Withdraw, Slash).
type AccountChange struct {
	Base
	Kind          entities.Entity `ch:"-" json:"-"`
	AccountID     string          `ch:"account_id" json:"accountId"`
	BalanceChange *big.Int        `ch:"balance_change" json:"balanceChange"`
}

func (r *AccountChange) Entity() entities.Entity { return r.Kind }
func (r *AccountChange) Accounts() []string      { return []string{r.AccountID} }
func (r *AccountChange) Values() []any           { return r.Base.values(r.AccountID, r.BalanceChange) }

// ReservRepatriated moves reserve of FromAccountID into the Status part
// ("Free" or "Reserved") of ToAccountID.
type ReservRepatriated struct {
	Base
	FromAccountID string   `ch:"from_account_id" json:"fromAccountId"`
	ToAccountID   string   `ch:"to_account_id" json:"toAccountId"`
	BalanceChange *big.Int `ch:"balance_change" json:"balanceChange"`
	Status        string   `ch:"status" json:"status"`
}

func (r *ReservRepatriated) Entity() entities.Entity { return entities.ReservRepatriated }
func (r *ReservRepatriated) Accounts() []string      { return pair(r.FromAccountID, r.ToAccountID) }
func (r *ReservRepatriated) Values() []any {
	return r.Base.values(r.FromAccountID, r.ToAccountID, r.BalanceChange, r.Status)
}

// pair returns both accounts, or one when an account transfers to itself.
func pair(from, to string) []string {
	if from == to {
		return []string{from}
	}
	return []string{from, to}
}
