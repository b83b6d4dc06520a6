package storage

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"raffle/internal/raffle"

	"github.com/ethereum/go-ethereum/common"
)

// Journal persists every committed raffle snapshot so a restart resumes the
// same round.
type Journal struct {
	storage Storage
}

func NewJournal(storage Storage) *Journal {
	return &Journal{storage: storage}
}

func (j *Journal) Commit(_ context.Context, snapshot raffle.Snapshot) error {
	row := FromSnapshot(snapshot)
	return retryBusyExec(func() error { return j.storage.UpdateSnapshot(row) })
}

// Load returns the last committed snapshot, or nil when nothing was journaled.
func (j *Journal) Load() (*raffle.Snapshot, error) {
	row, err := retryBusy(j.storage.GetSnapshot)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	snapshot, err := row.ToSnapshot()
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// LastRequestID returns the highest request id issued before a restart. The
// journaled snapshot is authoritative; the draw history only covers rows the
// recorder managed to write.
func LastRequestID(storage Storage, saved *raffle.Snapshot) (raffle.RequestID, error) {
	var last raffle.RequestID
	if saved != nil {
		last = saved.LastRequestID
		if saved.PendingID != nil && *saved.PendingID > last {
			last = *saved.PendingID
		}
	}

	draws, err := storage.GetRecentDraws("", 1)
	if err != nil {
		return 0, fmt.Errorf("storage: load draw history: %w", err)
	}
	if len(draws) > 0 && raffle.RequestID(draws[0].RequestID) > last {
		last = raffle.RequestID(draws[0].RequestID)
	}
	return last, nil
}

func FromSnapshot(snapshot raffle.Snapshot) *RaffleSnapshot {
	players := make([]string, len(snapshot.Players))
	for i, player := range snapshot.Players {
		players[i] = player.Hex()
	}

	row := &RaffleSnapshot{
		ID:              snapshotRowID,
		State:           snapshot.State.String(),
		Players:         players,
		Pot:             "0",
		LastTimestampNs: unixNano(snapshot.LastTimestamp),
		LastRequestID:   uint64(snapshot.LastRequestID),
		RequestedAtNs:   unixNano(snapshot.RequestedAt),
		Round:           snapshot.Round,
	}
	if snapshot.Pot != nil {
		row.Pot = snapshot.Pot.String()
	}
	if snapshot.RecentWinner != nil {
		row.RecentWinner = snapshot.RecentWinner.Hex()
	}
	if snapshot.PendingID != nil {
		id := uint64(*snapshot.PendingID)
		row.PendingID = &id
	}
	return row
}

func (r *RaffleSnapshot) ToSnapshot() (raffle.Snapshot, error) {
	state, err := raffle.ParseState(r.State)
	if err != nil {
		return raffle.Snapshot{}, err
	}

	pot, ok := new(big.Int).SetString(orZero(r.Pot), 10)
	if !ok {
		return raffle.Snapshot{}, fmt.Errorf("storage: snapshot pot is corrupt: %q", r.Pot)
	}

	players := make([]common.Address, len(r.Players))
	for i, player := range r.Players {
		if !common.IsHexAddress(player) {
			return raffle.Snapshot{}, fmt.Errorf("storage: snapshot player %d is not an address: %q", i, player)
		}
		players[i] = common.HexToAddress(player)
	}

	snapshot := raffle.Snapshot{
		State:         state,
		Players:       players,
		Pot:           pot,
		LastTimestamp: fromUnixNano(r.LastTimestampNs),
		RequestedAt:   fromUnixNano(r.RequestedAtNs),
		Round:         r.Round,
		LastRequestID: raffle.RequestID(r.LastRequestID),
	}
	if r.RecentWinner != "" {
		winner := common.HexToAddress(r.RecentWinner)
		snapshot.RecentWinner = &winner
	}
	if r.PendingID != nil {
		id := raffle.RequestID(*r.PendingID)
		snapshot.PendingID = &id
	}
	return snapshot, nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
