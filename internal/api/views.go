package api

import (
	"encoding/hex"
	"time"

	"raffle/internal/oracle"
	"raffle/internal/raffle"
	"raffle/internal/storage"
)

// Amounts are rendered as base-10 strings; they routinely exceed 2^53.

type stateView struct {
	State                string    `json:"state"`
	Players              []string  `json:"players"`
	Pot                  string    `json:"pot"`
	LastTimestamp        time.Time `json:"lastTimestamp"`
	RecentWinner         *string   `json:"recentWinner"`
	PendingRequestID     *uint64   `json:"pendingRequestId"`
	Round                uint64    `json:"round"`
	EntranceFee          string    `json:"entranceFee"`
	Interval             string    `json:"interval"`
	DrawTimeout          string    `json:"drawTimeout"`
	NumWords             uint32    `json:"numWords"`
	RequestConfirmations uint16    `json:"requestConfirmations"`
}

func newStateView(r Raffle) stateView {
	s := r.Snapshot()
	view := stateView{
		State:                s.State.String(),
		Players:              make([]string, len(s.Players)),
		Pot:                  s.Pot.String(),
		LastTimestamp:        s.LastTimestamp,
		Round:                s.Round,
		EntranceFee:          r.EntranceFee().String(),
		Interval:             r.Interval().String(),
		DrawTimeout:          r.DrawTimeout().String(),
		NumWords:             r.NumWords(),
		RequestConfirmations: r.RequestConfirmations(),
	}
	for i, player := range s.Players {
		view.Players[i] = player.Hex()
	}
	if s.RecentWinner != nil {
		winner := s.RecentWinner.Hex()
		view.RecentWinner = &winner
	}
	if s.PendingID != nil {
		id := uint64(*s.PendingID)
		view.PendingRequestID = &id
	}
	return view
}

type upkeepView struct {
	UpkeepNeeded bool   `json:"upkeepNeeded"`
	Pot          string `json:"pot"`
	Players      int    `json:"players"`
	State        string `json:"state"`
	Elapsed      string `json:"elapsed,omitempty"`
}

func newUpkeepView(ready bool, status raffle.UpkeepStatus) upkeepView {
	view := upkeepView{
		UpkeepNeeded: ready,
		Pot:          "0",
		Players:      status.PlayerCount,
		State:        status.State.String(),
	}
	if status.Pot != nil {
		view.Pot = status.Pot.String()
	}
	if status.Elapsed != 0 {
		view.Elapsed = status.Elapsed.String()
	}
	return view
}

type drawView struct {
	RequestID   uint64     `json:"requestId"`
	Round       uint64     `json:"round"`
	Status      string     `json:"status"`
	Players     int        `json:"players"`
	Pot         string     `json:"pot"`
	Winner      string     `json:"winner,omitempty"`
	WinnerIndex *int       `json:"winnerIndex,omitempty"`
	Prize       string     `json:"prize,omitempty"`
	RequestedAt time.Time  `json:"requestedAt"`
	ClosedAt    *time.Time `json:"closedAt,omitempty"`
}

func newDrawView(d *storage.Draw) drawView {
	view := drawView{
		RequestID:   d.RequestID,
		Round:       d.Round,
		Status:      d.Status,
		Players:     d.Players,
		Pot:         d.Pot,
		Winner:      d.Winner,
		Prize:       d.Prize,
		RequestedAt: d.RequestedAt,
		ClosedAt:    d.ClosedAt,
	}
	if d.Status == storage.DrawSettled {
		index := d.WinnerIndex
		view.WinnerIndex = &index
	}
	return view
}

type entryView struct {
	Player    string    `json:"player"`
	Amount    string    `json:"amount"`
	CreatedAt time.Time `json:"createdAt"`
}

type proofView struct {
	RequestID uint64 `json:"requestId"`
	Seed      string `json:"seed"`
	Signature string `json:"signature"`
	PublicKey string `json:"publicKey"`
}

func newProofView(proof oracle.Proof, publicKey string) proofView {
	return proofView{
		RequestID: uint64(proof.RequestID),
		Seed:      hex.EncodeToString(proof.Seed),
		Signature: hex.EncodeToString(proof.Signature),
		PublicKey: publicKey,
	}
}
