package storage

import (
	"context"
	"math/big"

	"raffle/internal/raffle"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger pays winners by crediting their winnings balance.
type Ledger struct {
	storage Storage
}

func NewLedger(storage Storage) *Ledger {
	return &Ledger{storage: storage}
}

func (l *Ledger) Pay(_ context.Context, winner common.Address, amount *big.Int) error {
	return retryBusyExec(func() error { return l.storage.CreditBalance(winner.Hex(), amount) })
}

// Settle credits the winner and journals the settled snapshot in one
// transaction.
func (l *Ledger) Settle(_ context.Context, winner common.Address, amount *big.Int, next raffle.Snapshot) error {
	row := FromSnapshot(next)
	return retryBusyExec(func() error { return l.storage.SettleSnapshot(winner.Hex(), amount, row) })
}

func (l *Ledger) Balance(address common.Address) (*big.Int, int, error) {
	balance, err := l.storage.GetBalance(address.Hex())
	if err != nil {
		return nil, 0, err
	}
	amount, _ := new(big.Int).SetString(orZero(balance.Amount), 10)
	if amount == nil {
		amount = new(big.Int)
	}
	return amount, balance.Wins, nil
}
