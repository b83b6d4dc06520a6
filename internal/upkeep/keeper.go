package upkeep

import (
	"context"
	"errors"
	"time"

	"raffle/internal/logger"
	"raffle/internal/raffle"

	"go.uber.org/zap"
)

type Target interface {
	CheckReady() (bool, raffle.UpkeepStatus)
	RequestDraw(ctx context.Context) (raffle.RequestID, error)
	ExpireDraw(ctx context.Context) (bool, error)
}

type Outcome int

const (
	Idle Outcome = iota
	Requested
	Expired
)

func (o Outcome) String() string {
	switch o {
	case Requested:
		return "requested"
	case Expired:
		return "expired"
	default:
		return "idle"
	}
}

// Keeper polls the raffle and triggers a draw whenever the upkeep check
// passes. A failed request is retried on the next tick.
type Keeper struct {
	target   Target
	interval time.Duration
	log      *zap.Logger
}

func NewKeeper(target Target, interval time.Duration) *Keeper {
	return &Keeper{
		target:   target,
		interval: interval,
		log:      logger.Named("upkeep"),
	}
}

func (k *Keeper) Run(ctx context.Context) error {
	k.log.Info("upkeep: started", zap.Duration("poll interval", k.interval))

	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			k.log.Info("upkeep: stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := k.Tick(ctx); err != nil {
				k.log.Warn("upkeep: tick failed", zap.Error(err))
			}
		}
	}
}

func (k *Keeper) Tick(ctx context.Context) (Outcome, error) {
	expired, err := k.target.ExpireDraw(ctx)
	if err != nil {
		return Idle, err
	}
	if expired {
		return Expired, nil
	}

	ready, status := k.target.CheckReady()
	if !ready {
		k.log.Debug("upkeep: not needed",
			zap.Stringer("state", status.State),
			zap.Int("players", status.PlayerCount),
			zap.String("pot", status.Pot.String()),
			zap.Duration("elapsed", status.Elapsed))
		return Idle, nil
	}

	id, err := k.target.RequestDraw(ctx)
	if errors.Is(err, raffle.ErrUpkeepNotNeeded) {
		k.log.Debug("upkeep: draw refused after check", zap.Error(err))
		return Idle, nil
	}
	if err != nil {
		return Idle, err
	}

	k.log.Info("upkeep: draw requested", zap.Uint64("request id", uint64(id)))
	return Requested, nil
}
