package raffle

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	TopicEntered       = "raffle:entered"
	TopicDrawRequested = "raffle:draw_requested"
	TopicWinnerPicked  = "raffle:winner_picked"
	TopicDrawExpired   = "raffle:draw_expired"
)

var Topics = []string{TopicEntered, TopicDrawRequested, TopicWinnerPicked, TopicDrawExpired}

type Event interface {
	Topic() string
}

type Entered struct {
	Player common.Address `json:"player"`
	Amount *big.Int       `json:"amount"`
	Round  uint64         `json:"round"`
}

func (Entered) Topic() string { return TopicEntered }

type DrawRequested struct {
	RequestID RequestID `json:"requestId"`
	Players   int       `json:"players"`
	Pot       *big.Int  `json:"pot"`
	Round     uint64    `json:"round"`
}

func (DrawRequested) Topic() string { return TopicDrawRequested }

type WinnerPicked struct {
	RequestID   RequestID      `json:"requestId"`
	Winner      common.Address `json:"winner"`
	WinnerIndex int            `json:"winnerIndex"`
	Prize       *big.Int       `json:"prize"`
	Players     int            `json:"players"`
	Round       uint64         `json:"round"`
}

func (WinnerPicked) Topic() string { return TopicWinnerPicked }

// DrawExpired is only emitted when a draw timeout is configured.
type DrawExpired struct {
	RequestID RequestID `json:"requestId"`
	Round     uint64    `json:"round"`
}

func (DrawExpired) Topic() string { return TopicDrawExpired }
