// Package raffle implements the raffle state machine: paid entries while open,
// a gated draw that asks an external oracle for randomness, and settlement of
// the whole pot to the selected entrant when the oracle calls back.
//
// A Raffle serializes every operation behind one mutex. Collaborators (oracle,
// payer, journal, emitter) are called while that mutex is held and must not
// call back into the Raffle synchronously.
package raffle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"raffle/internal/logger"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

type Config struct {
	EntranceFee *big.Int
	Interval    time.Duration
	// DrawTimeout enables ExpireDraw when positive. Zero keeps a raffle in
	// CALCULATING until its request is fulfilled.
	DrawTimeout time.Duration
	Oracle      OracleRequest
}

func (c Config) Validate() error {
	if c.EntranceFee == nil || c.EntranceFee.Sign() <= 0 {
		return errors.New("raffle: entrance fee must be positive")
	}
	if c.Interval <= 0 {
		return errors.New("raffle: interval must be positive")
	}
	if c.DrawTimeout < 0 {
		return errors.New("raffle: draw timeout must not be negative")
	}
	return nil
}

type Option func(*Raffle)

func WithJournal(journal Journal) Option {
	return func(r *Raffle) { r.journal = journal }
}

func WithEmitter(emitter Emitter) Option {
	return func(r *Raffle) { r.emitter = emitter }
}

func WithClock(clock Clock) Option {
	return func(r *Raffle) { r.clock = clock }
}

func WithLogger(log *zap.Logger) Option {
	return func(r *Raffle) { r.log = log }
}

// WithSnapshot restores previously journaled state instead of starting a
// fresh round.
func WithSnapshot(snapshot Snapshot) Option {
	return func(r *Raffle) { r.restore = &snapshot }
}

type Raffle struct {
	mu sync.Mutex

	entranceFee *big.Int
	interval    time.Duration
	drawTimeout time.Duration
	request     OracleRequest

	oracle  Oracle
	payer   Payer
	journal Journal
	emitter Emitter
	clock   Clock
	log     *zap.Logger

	restore *Snapshot
	s       Snapshot
}

func New(config Config, oracle Oracle, payer Payer, options ...Option) (*Raffle, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if oracle == nil || payer == nil {
		return nil, errors.New("raffle: oracle and payer are required")
	}

	request := config.Oracle
	if request.NumWords == 0 {
		request.NumWords = 1
	}

	r := &Raffle{
		entranceFee: new(big.Int).Set(config.EntranceFee),
		interval:    config.Interval,
		drawTimeout: config.DrawTimeout,
		request:     request,
		oracle:      oracle,
		payer:       payer,
		journal:     nopJournal{},
		emitter:     nopEmitter{},
		clock:       time.Now,
		log:         logger.Named("raffle"),
	}
	for _, option := range options {
		option(r)
	}

	if r.restore != nil {
		if err := validateSnapshot(*r.restore); err != nil {
			return nil, err
		}
		r.s = r.restore.clone()
		r.restore = nil
		if r.s.PendingID != nil && *r.s.PendingID > r.s.LastRequestID {
			r.s.LastRequestID = *r.s.PendingID
		}
		r.log.Info("raffle: restored from snapshot",
			zap.Stringer("state", r.s.State),
			zap.Int("players", len(r.s.Players)),
			zap.Uint64("round", r.s.Round))
		return r, nil
	}

	r.s = Snapshot{
		State:         Open,
		Players:       make([]common.Address, 0),
		Pot:           new(big.Int),
		LastTimestamp: r.clock(),
	}
	return r, nil
}

func validateSnapshot(s Snapshot) error {
	if s.Pot == nil || s.Pot.Sign() < 0 {
		return errors.New("raffle: snapshot pot is invalid")
	}
	switch s.State {
	case Open:
		if s.PendingID != nil {
			return errors.New("raffle: open snapshot has a pending request")
		}
	case Calculating:
		if s.PendingID == nil || len(s.Players) == 0 {
			return errors.New("raffle: calculating snapshot without pending request or players")
		}
	default:
		return fmt.Errorf("raffle: snapshot has unknown state %d", s.State)
	}
	return nil
}

// Enter records one entry for sender. The fee check runs before the state
// check, so an underpayment is reported as such in every state.
func (r *Raffle) Enter(ctx context.Context, sender common.Address, payment *big.Int) error {
	if payment == nil || payment.Cmp(r.entranceFee) < 0 {
		return ErrInsufficientPayment
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.s.State != Open {
		return ErrNotOpen
	}

	next := r.s.clone()
	next.Players = append(next.Players, sender)
	next.Pot.Add(next.Pot, payment)

	if err := r.journal.Commit(ctx, next); err != nil {
		return fmt.Errorf("raffle: commit entry: %w", err)
	}
	r.s = next

	r.log.Debug("raffle: entered", zap.String("player", sender.Hex()), zap.String("amount", payment.String()))
	r.emitter.Emit(Entered{Player: sender, Amount: new(big.Int).Set(payment), Round: next.Round})
	return nil
}

func (r *Raffle) CheckReady() (bool, UpkeepStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checkLocked(r.clock())
}

func (r *Raffle) checkLocked(now time.Time) (bool, UpkeepStatus) {
	status := UpkeepStatus{
		Pot:         new(big.Int).Set(r.s.Pot),
		PlayerCount: len(r.s.Players),
		State:       r.s.State,
		Elapsed:     now.Sub(r.s.LastTimestamp),
	}
	ready := status.State == Open &&
		status.Elapsed > r.interval &&
		status.PlayerCount > 0 &&
		status.Pot.Sign() > 0
	return ready, status
}

// RequestDraw re-evaluates the upkeep gate and, when it holds, asks the oracle
// for randomness and moves the raffle to CALCULATING.
func (r *Raffle) RequestDraw(ctx context.Context) (RequestID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	ready, status := r.checkLocked(now)
	if !ready {
		return 0, &UpkeepNotNeededError{Pot: status.Pot, PlayerCount: status.PlayerCount, State: status.State}
	}

	id, err := r.oracle.RequestRandomness(ctx, r.request)
	if err != nil {
		return 0, fmt.Errorf("raffle: request randomness: %w", err)
	}

	next := r.s.clone()
	next.State = Calculating
	next.PendingID = &id
	next.LastRequestID = id
	next.RequestedAt = now

	if err := r.journal.Commit(ctx, next); err != nil {
		// The orphaned request will be rejected as unknown when it arrives.
		return 0, fmt.Errorf("raffle: commit draw request %d: %w", id, err)
	}
	r.s = next

	r.log.Info("raffle: draw requested",
		zap.Uint64("request id", uint64(id)),
		zap.Int("players", len(next.Players)),
		zap.String("pot", next.Pot.String()))
	r.emitter.Emit(DrawRequested{RequestID: id, Players: len(next.Players), Pot: new(big.Int).Set(next.Pot), Round: next.Round})
	return id, nil
}

// Fulfill settles the pending draw. Only the first random word is used.
func (r *Raffle) Fulfill(ctx context.Context, id RequestID, randomWords []*big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.s.State != Calculating || r.s.PendingID == nil || *r.s.PendingID != id {
		return fmt.Errorf("%w: %d", ErrUnknownRequest, id)
	}
	if len(randomWords) == 0 || randomWords[0] == nil {
		return ErrEmptyRandomness
	}

	count := len(r.s.Players)
	index := int(new(big.Int).Mod(randomWords[0], big.NewInt(int64(count))).Int64())
	winner := r.s.Players[index]
	prize := new(big.Int).Set(r.s.Pot)

	next := r.s.clone()
	next.State = Open
	next.Players = make([]common.Address, 0)
	next.Pot = new(big.Int)
	next.LastTimestamp = r.clock()
	next.RecentWinner = &winner
	next.PendingID = nil
	next.RequestedAt = time.Time{}
	next.Round++

	if err := r.settle(ctx, winner, prize, next); err != nil {
		r.log.Error("raffle: payout failed, keeping draw pending",
			zap.Uint64("request id", uint64(id)),
			zap.String("winner", winner.Hex()),
			zap.Error(err))
		return &PayoutError{Winner: winner.Hex(), Amount: prize, Cause: err}
	}
	r.s = next

	r.log.Info("raffle: winner picked",
		zap.Uint64("request id", uint64(id)),
		zap.String("winner", winner.Hex()),
		zap.Int("index", index),
		zap.String("prize", prize.String()))
	r.emitter.Emit(WinnerPicked{
		RequestID:   id,
		Winner:      winner,
		WinnerIndex: index,
		Prize:       prize,
		Players:     count,
		Round:       next.Round - 1,
	})
	return nil
}

// settle moves the prize and persists the settled snapshot. With a plain Payer
// the two writes are separate and a failed commit after a successful payout
// is only logged.
func (r *Raffle) settle(ctx context.Context, winner common.Address, prize *big.Int, next Snapshot) error {
	if settler, ok := r.payer.(Settler); ok {
		return settler.Settle(ctx, winner, prize, next)
	}
	if err := r.payer.Pay(ctx, winner, prize); err != nil {
		return err
	}
	if err := r.journal.Commit(ctx, next); err != nil {
		r.log.Error("raffle: commit settlement", zap.Uint64("round", next.Round), zap.Error(err))
	}
	return nil
}

// ExpireDraw reopens a raffle whose pending request outlived the configured
// draw timeout. Entrants and pot are kept. It reports whether a draw expired.
func (r *Raffle) ExpireDraw(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.drawTimeout <= 0 || r.s.State != Calculating || r.s.PendingID == nil {
		return false, nil
	}
	if r.clock().Sub(r.s.RequestedAt) < r.drawTimeout {
		return false, nil
	}

	id := *r.s.PendingID
	next := r.s.clone()
	next.State = Open
	next.PendingID = nil
	next.RequestedAt = time.Time{}

	if err := r.journal.Commit(ctx, next); err != nil {
		return false, fmt.Errorf("raffle: commit draw expiry %d: %w", id, err)
	}
	r.s = next

	r.log.Warn("raffle: draw expired", zap.Uint64("request id", uint64(id)), zap.Duration("timeout", r.drawTimeout))
	r.emitter.Emit(DrawExpired{RequestID: id, Round: next.Round})
	return true, nil
}

func (r *Raffle) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s.clone()
}

func (r *Raffle) EntranceFee() *big.Int {
	return new(big.Int).Set(r.entranceFee)
}

func (r *Raffle) Interval() time.Duration {
	return r.interval
}

func (r *Raffle) DrawTimeout() time.Duration {
	return r.drawTimeout
}

func (r *Raffle) NumWords() uint32 {
	return r.request.NumWords
}

func (r *Raffle) RequestConfirmations() uint16 {
	return r.request.RequestConfirmations
}

func (r *Raffle) Player(index int) (common.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.s.Players) {
		return common.Address{}, fmt.Errorf("raffle: player index %d out of range [0, %d)", index, len(r.s.Players))
	}
	return r.s.Players[index], nil
}

func (r *Raffle) NumberOfPlayers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.s.Players)
}

func (r *Raffle) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s.State
}

func (r *Raffle) Pot() *big.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return new(big.Int).Set(r.s.Pot)
}

func (r *Raffle) LastTimestamp() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s.LastTimestamp
}

func (r *Raffle) RecentWinner() (common.Address, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.s.RecentWinner == nil {
		return common.Address{}, false
	}
	return *r.s.RecentWinner, true
}

func (r *Raffle) PendingRequest() (RequestID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.s.PendingID == nil {
		return 0, false
	}
	return *r.s.PendingID, true
}
