package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntityConstants(t *testing.T) {
	tests := []struct {
		entity        Entity
		expectedTable string
	}{
		{entity: Endowed, expectedTable: "endowed"},
		{entity: Transfer, expectedTable: "transfer"},
		{entity: BalanceSet, expectedTable: "balance_set"},
		{entity: Deposit, expectedTable: "deposit"},
		{entity: Reserved, expectedTable: "reserved"},
		{entity: Unreserved, expectedTable: "unreserved"},
		{entity: Withdraw, expectedTable: "withdraw"},
		{entity: Slash, expectedTable: "slash"},
		{entity: ReservRepatriated, expectedTable: "reserv_repatriated"},
	}

	for _, tt := range tests {
		t.Run(tt.expectedTable, func(t *testing.T) {
			assert.Equal(t, tt.expectedTable, tt.entity.TableName())
			assert.Equal(t, tt.expectedTable, tt.entity.String())
			assert.Contains(t, All(), tt.entity)
		})
	}
	assert.Len(t, All(), len(tests))
}

func TestAllReturnsCopy(t *testing.T) {
	all := All()
	all[0] = "mutated"
	assert.Equal(t, Endowed, All()[0])
}
