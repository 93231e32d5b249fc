package ledger

import (
	"fmt"

	"github.com/canopy-network/balancex/pkg/db/entities"
)

var baseColumns = []ColumnDef{
	{Name: "id", Type: "String", Codec: "ZSTD(1)"},
	{Name: "block_number", Type: "UInt64", Codec: "Delta, ZSTD(3)"},
	{Name: "timestamp", Type: "DateTime64(6)", Codec: "DoubleDelta, ZSTD(1)"},
}

var (
	accountColumn     = ColumnDef{Name: "account_id", Type: "String", Codec: "ZSTD(1)"}
	fromAccountColumn = ColumnDef{Name: "from_account_id", Type: "String", Codec: "ZSTD(1)"}
	toAccountColumn   = ColumnDef{Name: "to_account_id", Type: "String", Codec: "ZSTD(1)"}
	changeColumn      = ColumnDef{Name: "balance_change", Type: "UInt256", Codec: "ZSTD(1)"}
)

// Substrate balances are u128; UInt256 leaves room for BalanceSet sums.
var entityColumns = map[entities.Entity][]ColumnDef{
	entities.Endowed: withBase(
		accountColumn,
		ColumnDef{Name: "free_balance", Type: "UInt256", Codec: "ZSTD(1)"},
		ColumnDef{Name: "reserve_balance", Type: "UInt256", Codec: "ZSTD(1)"},
		ColumnDef{Name: "total_balance", Type: "UInt256", Codec: "ZSTD(1)"},
	),
	entities.Transfer:   withBase(fromAccountColumn, toAccountColumn, changeColumn),
	entities.BalanceSet: withBase(accountColumn, changeColumn),
	entities.Deposit:    withBase(accountColumn, changeColumn),
	entities.Reserved:   withBase(accountColumn, changeColumn),
	entities.Unreserved: withBase(accountColumn, changeColumn),
	entities.Withdraw:   withBase(accountColumn, changeColumn),
	entities.Slash:      withBase(accountColumn, changeColumn),
	entities.ReservRepatriated: withBase(
		fromAccountColumn,
		toAccountColumn,
		changeColumn,
		ColumnDef{Name: "status", Type: "LowCardinality(String)"},
	),
}

func withBase(cols ...ColumnDef) []ColumnDef {
	out := make([]ColumnDef, 0, len(baseColumns)+len(cols))
	out = append(out, baseColumns...)
	return append(out, cols...)
}

// Columns returns the column layout of the table backing e.
func Columns(e entities.Entity) ([]ColumnDef, error) {
	cols, ok := entityColumns[e]
	if !ok {
		return nil, fmt.Errorf("no columns defined for entity %q", e)
	}
	return cols, nil
}

// OrderBy returns the sorting key of the table backing e. Account-first keys serve
// per-account history queries; id keeps rows from distinct events apart.
func OrderBy(e entities.Entity) string {
	switch e {
	case entities.Transfer, entities.ReservRepatriated:
		return "(from_account_id, block_number, id)"
	default:
		return "(account_id, block_number, id)"
	}
}
