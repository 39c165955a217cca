package payout

import (
	"context"
	"math/big"
	"sync"

	"go.uber.org/zap"
)

// Bank keeps external balances in memory.
type Bank struct {
	mu       sync.RWMutex
	balances map[string]*big.Int
	released map[string]bool
	fail     error
}

func NewBank() *Bank {
	return &Bank{balances: make(map[string]*big.Int), released: make(map[string]bool)}
}

func (b *Bank) Release(_ context.Context, to string, amount *big.Int, reference string) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.fail != nil {
		return b.fail
	}
	if b.released[reference] {
		zap.L().With(zap.String("reference", reference)).Warn("Payout: Duplicate release ignored")
		return nil
	}
	b.released[reference] = true

	balance, ok := b.balances[to]
	if !ok {
		balance = new(big.Int)
		b.balances[to] = balance
	}
	balance.Add(balance, amount)

	zap.L().With(zap.String("to", to), zap.String("amount", amount.String()), zap.String("reference", reference)).Info("Payout: Released funds")

	return nil
}

func (b *Bank) BalanceOf(owner string) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if balance, ok := b.balances[owner]; ok {
		return new(big.Int).Set(balance)
	}
	return new(big.Int)
}

// FailWith makes every following Release return err until reset with nil.
func (b *Bank) FailWith(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.fail = err
}
