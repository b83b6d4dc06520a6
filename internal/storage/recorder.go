package storage

import (
	"time"

	"raffle/internal/logger"
	"raffle/internal/raffle"

	"go.uber.org/zap"
)

// Recorder keeps the entry and draw history from the raffle event stream.
// History is best effort: write failures are logged, never propagated.
type Recorder struct {
	storage Storage
	clock   func() time.Time
}

func NewRecorder(storage Storage, clock func() time.Time) *Recorder {
	if clock == nil {
		clock = time.Now
	}
	return &Recorder{storage: storage, clock: clock}
}

func (r *Recorder) Handle(event raffle.Event) {
	err := retryBusyExec(func() error { return r.write(event) })
	if err != nil {
		logger.Error("recorder: cannot persist event", zap.String("topic", event.Topic()), zap.Error(err))
	}
}

func (r *Recorder) write(event raffle.Event) error {
	switch e := event.(type) {
	case raffle.Entered:
		return r.storage.CreateEntry(&Entry{
			Round:  e.Round,
			Player: e.Player.Hex(),
			Amount: e.Amount.String(),
		})
	case raffle.DrawRequested:
		return r.storage.CreateDraw(&Draw{
			RequestID:   uint64(e.RequestID),
			Round:       e.Round,
			Status:      DrawPending,
			Players:     e.Players,
			Pot:         e.Pot.String(),
			RequestedAt: r.clock(),
		})
	case raffle.WinnerPicked:
		return r.storage.SettleDraw(uint64(e.RequestID), e.Winner.Hex(), e.WinnerIndex, e.Prize.String(), r.clock())
	case raffle.DrawExpired:
		return r.storage.ExpireDraw(uint64(e.RequestID), r.clock())
	}
	return nil
}
