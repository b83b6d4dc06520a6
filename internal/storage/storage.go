package storage

import (
	"errors"
	"math/big"
	"time"
)

var ErrNotFound = errors.New("storage: not found")

type Storage interface {
	// raffle snapshot
	GetSnapshot() (*RaffleSnapshot, error)
	UpdateSnapshot(snapshot *RaffleSnapshot) error

	// entry history
	CreateEntry(entry *Entry) error
	GetEntriesByRound(round uint64) ([]*Entry, error)

	// draw history
	CreateDraw(draw *Draw) error
	SettleDraw(requestID uint64, winner string, winnerIndex int, prize string, closedAt time.Time) error
	ExpireDraw(requestID uint64, closedAt time.Time) error
	GetDraw(requestID uint64) (*Draw, error)
	GetRecentDraws(status DrawStatus, limit int) ([]*Draw, error)

	// draw proofs
	CreateProof(proof *DrawProof) error
	GetProof(requestID uint64) (*DrawProof, error)

	// winnings
	CreditBalance(address string, amount *big.Int) error
	SettleSnapshot(address string, amount *big.Int, snapshot *RaffleSnapshot) error
	GetBalance(address string) (*Balance, error)

	Close() error
}
