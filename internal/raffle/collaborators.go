package raffle

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// OracleRequest holds the pass-through parameters forwarded to the oracle.
type OracleRequest struct {
	KeyHash              string
	SubscriptionID       uint64
	RequestConfirmations uint16
	CallbackGasLimit     uint32
	NumWords             uint32
}

// Oracle issues randomness requests. Implementations must deliver the result
// later from another goroutine, never from inside RequestRandomness.
type Oracle interface {
	RequestRandomness(ctx context.Context, request OracleRequest) (RequestID, error)
}

// Consumer is the fulfillment target an Oracle delivers to.
type Consumer interface {
	Fulfill(ctx context.Context, id RequestID, randomWords []*big.Int) error
}

type Payer interface {
	Pay(ctx context.Context, winner common.Address, amount *big.Int) error
}

// Settler is implemented by a Payer that can credit the winner and store the
// settled snapshot as one atomic write. Fulfill prefers it over Pay followed by
// a journal commit.
type Settler interface {
	Settle(ctx context.Context, winner common.Address, amount *big.Int, next Snapshot) error
}

type Journal interface {
	Commit(ctx context.Context, snapshot Snapshot) error
}

type Emitter interface {
	Emit(event Event)
}

type Clock func() time.Time

type nopJournal struct{}

func (nopJournal) Commit(context.Context, Snapshot) error { return nil }

type nopEmitter struct{}

func (nopEmitter) Emit(Event) {}
