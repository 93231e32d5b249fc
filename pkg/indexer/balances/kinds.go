package balances

import "github.com/canopy-network/balancex/pkg/db/entities"

// EventKind is the method name of a balances-module event.
type EventKind string

const (
	KindEndowed           EventKind = "Endowed"
	KindTransfer          EventKind = "Transfer"
	KindBalanceSet        EventKind = "BalanceSet"
	KindDeposit           EventKind = "Deposit"
	KindReserved          EventKind = "Reserved"
	KindUnreserved        EventKind = "Unreserved"
	KindWithdraw          EventKind = "Withdraw"
	KindSlash             EventKind = "Slash"
	KindReservRepatriated EventKind = "ReservRepatriated"
)

var kindEntities = map[EventKind]entities.Entity{
	KindEndowed:           entities.Endowed,
	KindTransfer:          entities.Transfer,
	KindBalanceSet:        entities.BalanceSet,
	KindDeposit:           entities.Deposit,
	KindReserved:          entities.Reserved,
	KindUnreserved:        entities.Unreserved,
	KindWithdraw:          entities.Withdraw,
	KindSlash:             entities.Slash,
	KindReservRepatriated: entities.ReservRepatriated,
}

// AllKinds returns the modeled event kinds. Every kind has a built-in handler.
func AllKinds() []EventKind {
	return []EventKind{
		KindEndowed,
		KindTransfer,
		KindBalanceSet,
		KindDeposit,
		KindReserved,
		KindUnreserved,
		KindWithdraw,
		KindSlash,
		KindReservRepatriated,
	}
}

// Entity returns the record kind written for k.
func (k EventKind) Entity() (entities.Entity, bool) {
	e, ok := kindEntities[k]
	return e, ok
}

func (k EventKind) String() string {
	return string(k)
}
