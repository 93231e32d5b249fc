package balances

import (
	"context"
	"math/big"

	"github.com/canopy-network/balancex/pkg/db/entities"
	"github.com/canopy-network/balancex/pkg/db/models/ledger"
	"github.com/canopy-network/balancex/pkg/substrate"
	"go.uber.org/zap"
)

// handleEndowed: the account is created with amount as free balance and nothing reserved.
func (p *Processor) handleEndowed(ctx context.Context, block substrate.Block, event substrate.Event) ([]string, error) {
	payload, err := DecodeAccountAmount(KindEndowed, event.Data)
	if err != nil {
		return nil, err
	}
	p.logger.Info("New Endowed",
		zap.Uint64("block", block.Number),
		zap.String("account", payload.Account),
		zap.Stringer("amount", payload.Amount))

	return p.save(ctx, &ledger.Endowed{
		Base:           p.base(block),
		AccountID:      payload.Account,
		FreeBalance:    payload.Amount,
		ReserveBalance: new(big.Int),
		TotalBalance:   new(big.Int).Set(payload.Amount),
	})
}

// handleTransfer: from's free balance - amount, to's free balance + amount.
func (p *Processor) handleTransfer(ctx context.Context, block substrate.Block, event substrate.Event) ([]string, error) {
	payload, err := DecodeTransfer(event.Data)
	if err != nil {
		return nil, err
	}
	p.logger.Info("New Transfer",
		zap.Uint64("block", block.Number),
		zap.String("from", payload.From),
		zap.String("to", payload.To),
		zap.Stringer("amount", payload.Amount))

	return p.save(ctx, &ledger.Transfer{
		Base:          p.base(block),
		FromAccountID: payload.From,
		ToAccountID:   payload.To,
		BalanceChange: payload.Amount,
	})
}

// handleBalanceSet: free balance = free, reserve balance = reserved. Recorded as their sum.
func (p *Processor) handleBalanceSet(ctx context.Context, block substrate.Block, event substrate.Event) ([]string, error) {
	payload, err := DecodeBalanceSet(event.Data)
	if err != nil {
		return nil, err
	}
	p.logger.Info("New BalanceSet",
		zap.Uint64("block", block.Number),
		zap.String("account", payload.Account),
		zap.Stringer("free", payload.Free),
		zap.Stringer("reserved", payload.Reserved))

	return p.save(ctx, &ledger.BalanceSet{
		Base:          p.base(block),
		AccountID:     payload.Account,
		BalanceChange: new(big.Int).Add(payload.Free, payload.Reserved),
	})
}

// handleDeposit: free balance + amount.
func (p *Processor) handleDeposit(ctx context.Context, block substrate.Block, event substrate.Event) ([]string, error) {
	return p.accountChange(ctx, block, event, KindDeposit, entities.Deposit)
}

// handleReserved: free balance - amount, reserve balance + amount.
func (p *Processor) handleReserved(ctx context.Context, block substrate.Block, event substrate.Event) ([]string, error) {
	return p.accountChange(ctx, block, event, KindReserved, entities.Reserved)
}

// handleUnreserved: reserve balance - amount, free balance + amount.
func (p *Processor) handleUnreserved(ctx context.Context, block substrate.Block, event substrate.Event) ([]string, error) {
	return p.accountChange(ctx, block, event, KindUnreserved, entities.Unreserved)
}

// handleWithdraw: free balance - amount.
func (p *Processor) handleWithdraw(ctx context.Context, block substrate.Block, event substrate.Event) ([]string, error) {
	return p.accountChange(ctx, block, event, KindWithdraw, entities.Withdraw)
}

// handleSlash: total balance - amount. A plain slash takes free balance first and falls
// back to reserve; slash_reserved takes reserve only. The event does not say which.
func (p *Processor) handleSlash(ctx context.Context, block substrate.Block, event substrate.Event) ([]string, error) {
	return p.accountChange(ctx, block, event, KindSlash, entities.Slash)
}

// handleReservRepatriated: from's reserve - amount, to's status part + amount.
func (p *Processor) handleReservRepatriated(ctx context.Context, block substrate.Block, event substrate.Event) ([]string, error) {
	payload, err := DecodeRepatriated(event.Data)
	if err != nil {
		return nil, err
	}
	p.logger.Info("New ReservRepatriated",
		zap.Uint64("block", block.Number),
		zap.String("from", payload.From),
		zap.String("to", payload.To),
		zap.Stringer("amount", payload.Amount),
		zap.String("status", string(payload.Status)))

	return p.save(ctx, &ledger.ReservRepatriated{
		Base:          p.base(block),
		FromAccountID: payload.From,
		ToAccountID:   payload.To,
		BalanceChange: payload.Amount,
		Status:        string(payload.Status),
	})
}

func (p *Processor) accountChange(ctx context.Context, block substrate.Block, event substrate.Event, kind EventKind, entity entities.Entity) ([]string, error) {
	payload, err := DecodeAccountAmount(kind, event.Data)
	if err != nil {
		return nil, err
	}
	p.logger.Info("New "+kind.String(),
		zap.Uint64("block", block.Number),
		zap.String("account", payload.Account),
		zap.Stringer("amount", payload.Amount))

	return p.save(ctx, &ledger.AccountChange{
		Base:          p.base(block),
		Kind:          entity,
		AccountID:     payload.Account,
		BalanceChange: payload.Amount,
	})
}
