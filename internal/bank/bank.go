// Package bank implements the in-process value ledger the settlement engine
// moves payment through. Recipients may register a receive hook that runs
// when value lands on their account, modelling a contract recipient whose
// receive path executes arbitrary code; a hook error fails the transfer and
// restores both balances.
package bank

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/curatorlabs/marketd/internal/domain"
)

// ReceiveHook runs after a transfer credits the recipient. Returning an
// error rejects the payment and the transfer is undone.
type ReceiveHook func(ctx context.Context, from common.Address, amount *big.Int) error

// Bank implements domain.ValueLedger with per-address balances.
type Bank struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
	hooks    map[common.Address]ReceiveHook
}

// New creates an empty bank.
func New() *Bank {
	return &Bank{
		balances: make(map[common.Address]*big.Int),
		hooks:    make(map[common.Address]ReceiveHook),
	}
}

// Credit adds amount to addr's balance. Used to fund accounts in tests and
// the standalone mode.
func (b *Bank) Credit(addr common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[addr] = new(big.Int).Add(b.balance(addr), amount)
}

// SetReceiveHook registers a hook invoked whenever addr receives value.
// Passing nil removes the hook.
func (b *Bank) SetReceiveHook(addr common.Address, hook ReceiveHook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if hook == nil {
		delete(b.hooks, addr)
		return
	}
	b.hooks[addr] = hook
}

// balance returns addr's balance without copying. Caller holds b.mu.
func (b *Bank) balance(addr common.Address) *big.Int {
	if v, ok := b.balances[addr]; ok {
		return v
	}
	return big.NewInt(0)
}

// Transfer moves amount from one address to the other. The recipient's
// receive hook, if any, runs outside the balance lock so it may call back
// into the ledger; if the hook errors the transfer is undone and the error
// returned.
func (b *Bank) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return domain.ErrInvalidPrice
	}

	b.mu.Lock()
	if b.balance(from).Cmp(amount) < 0 {
		b.mu.Unlock()
		return domain.ErrInsufficientFunds
	}
	b.balances[from] = new(big.Int).Sub(b.balance(from), amount)
	b.balances[to] = new(big.Int).Add(b.balance(to), amount)
	hook := b.hooks[to]
	b.mu.Unlock()

	if hook == nil {
		return nil
	}
	if err := hook(ctx, from, amount); err != nil {
		b.mu.Lock()
		b.balances[to] = new(big.Int).Sub(b.balance(to), amount)
		b.balances[from] = new(big.Int).Add(b.balance(from), amount)
		b.mu.Unlock()
		return err
	}
	return nil
}

// BalanceOf returns addr's current balance.
func (b *Bank) BalanceOf(_ context.Context, addr common.Address) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.balance(addr)), nil
}
