package raffle

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrInsufficientPayment = errors.New("raffle: payment below entrance fee")
	ErrNotOpen             = errors.New("raffle: not open")
	ErrUpkeepNotNeeded     = errors.New("raffle: upkeep not needed")
	ErrUnknownRequest      = errors.New("raffle: unknown randomness request")
	ErrEmptyRandomness     = errors.New("raffle: no random values supplied")
	ErrPayoutFailed        = errors.New("raffle: payout failed")
)

// UpkeepNotNeededError carries the gate inputs observed when a draw was refused.
type UpkeepNotNeededError struct {
	Pot         *big.Int
	PlayerCount int
	State       State
}

func (e *UpkeepNotNeededError) Error() string {
	return fmt.Sprintf("raffle: upkeep not needed (pot=%s, players=%d, state=%s)", e.Pot, e.PlayerCount, e.State)
}

func (e *UpkeepNotNeededError) Is(target error) bool {
	return target == ErrUpkeepNotNeeded
}

// PayoutError wraps the transfer failure reported by the Payer.
type PayoutError struct {
	Winner string
	Amount *big.Int
	Cause  error
}

func (e *PayoutError) Error() string {
	return fmt.Sprintf("raffle: payout of %s to %s failed: %v", e.Amount, e.Winner, e.Cause)
}

func (e *PayoutError) Unwrap() error {
	return e.Cause
}

func (e *PayoutError) Is(target error) bool {
	return target == ErrPayoutFailed
}
