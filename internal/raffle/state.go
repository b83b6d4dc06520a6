package raffle

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type State uint8

const (
	Open State = iota
	Calculating
)

func (s State) String() string {
	switch s {
	case Open:
		return "OPEN"
	case Calculating:
		return "CALCULATING"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

func ParseState(value string) (State, error) {
	switch value {
	case "OPEN":
		return Open, nil
	case "CALCULATING":
		return Calculating, nil
	default:
		return 0, fmt.Errorf("raffle: unknown state %q", value)
	}
}

type RequestID uint64

// Snapshot is a detached copy of every mutable field of a Raffle.
type Snapshot struct {
	State         State
	Players       []common.Address
	Pot           *big.Int
	LastTimestamp time.Time
	RecentWinner  *common.Address
	PendingID     *RequestID
	RequestedAt   time.Time
	Round         uint64
	// LastRequestID is the newest id this raffle was ever issued, pending or
	// not. A restarted oracle resumes after it.
	LastRequestID RequestID
}

func (s Snapshot) clone() Snapshot {
	c := s
	c.Players = append([]common.Address(nil), s.Players...)
	c.Pot = new(big.Int)
	if s.Pot != nil {
		c.Pot.Set(s.Pot)
	}
	if s.RecentWinner != nil {
		w := *s.RecentWinner
		c.RecentWinner = &w
	}
	if s.PendingID != nil {
		id := *s.PendingID
		c.PendingID = &id
	}
	return c
}

// UpkeepStatus is the diagnostic view returned with CheckReady.
type UpkeepStatus struct {
	Pot         *big.Int
	PlayerCount int
	State       State
	Elapsed     time.Duration
}
