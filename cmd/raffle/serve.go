package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"raffle/internal/api"
	"raffle/internal/config"
	"raffle/internal/events"
	"raffle/internal/logger"
	"raffle/internal/metrics"
	"raffle/internal/oracle"
	"raffle/internal/raffle"
	"raffle/internal/storage"
	"raffle/internal/upkeep"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the raffle with its oracle, upkeep loop and HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

// randomness is what both oracle kinds offer the service.
type randomness interface {
	raffle.Oracle
	Register(consumer raffle.Consumer)
	ResumeAfter(last raffle.RequestID)
	Close() error
}

func serve(ctx context.Context) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if err := logger.Initialize(cfg.LoggerConfiguration()); err != nil {
		return err
	}
	defer logger.Sync()

	store, err := storage.NewSqliteStorage(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	journal := storage.NewJournal(store)
	saved, err := journal.Load()
	if err != nil {
		return fmt.Errorf("load raffle: %w", err)
	}

	source, proofs, err := newOracle(cfg, store)
	if err != nil {
		return err
	}
	defer source.Close()

	last, err := storage.LastRequestID(store, saved)
	if err != nil {
		return err
	}
	source.ResumeAfter(last)

	bus := events.NewBus()
	options := []raffle.Option{
		raffle.WithJournal(journal),
		raffle.WithEmitter(bus),
		raffle.WithLogger(logger.Named("raffle")),
	}
	if saved != nil {
		options = append(options, raffle.WithSnapshot(*saved))
	}

	raffleConfig, err := cfg.RaffleConfig()
	if err != nil {
		return err
	}
	r, err := raffle.New(raffleConfig, source, storage.NewLedger(store), options...)
	if err != nil {
		return err
	}
	source.Register(r)

	if pending, ok := r.PendingRequest(); ok {
		// The previous oracle instance took its undelivered request with it.
		logger.Warn("raffle: resumed with a pending draw, awaiting external fulfillment or draw timeout",
			zap.Uint64("request id", uint64(pending)),
			zap.Duration("draw timeout", r.DrawTimeout()))
	}

	broadcaster := events.NewBroadcaster()
	collector := metrics.New(r)
	for _, handler := range []events.Handler{
		storage.NewRecorder(store, time.Now).Handle,
		broadcaster.Handle,
		collector.Handle,
	} {
		if err := bus.SubscribeAll(handler); err != nil {
			return err
		}
	}

	server := api.NewServer(api.Options{
		Raffle:      r,
		History:     store,
		Balances:    storage.NewLedger(store),
		Broadcaster: broadcaster,
		Proofs:      proofs,
		Metrics:     collector,
		AdminToken:  cfg.HTTP.AdminToken,
		OracleToken: cfg.HTTP.OracleToken,
	})
	keeper := upkeep.NewKeeper(r, cfg.Upkeep.PollInterval)

	logger.Info("raffle: started",
		zap.String("state", r.State().String()),
		zap.Int("players", r.NumberOfPlayers()),
		zap.String("pot", r.Pot().String()),
		zap.String("oracle", cfg.Oracle.Kind),
		zap.Stringer("log level", logger.Level()))

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return keeper.Run(ctx)
	})
	group.Go(func() error {
		return server.Serve(ctx, cfg.HTTP.Addr)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("raffle: stopped with error", zap.Error(err))
		return err
	}
	logger.Info("raffle: stopped")
	return nil
}

func newOracle(cfg *config.Config, store storage.Storage) (randomness, api.Proofs, error) {
	switch cfg.Oracle.Kind {
	case config.OracleBLS:
		o, err := oracle.NewBLS(cfg.Oracle.BLSPrivateKey, cfg.Oracle.Delay,
			oracle.WithProofStore(storage.NewProofStore(store)))
		if err != nil {
			return nil, nil, err
		}
		public, err := o.PublicKeyHex()
		if err != nil {
			return nil, nil, err
		}
		logger.Info("oracle: bls", zap.String("public key", public))
		return o, o, nil
	default:
		return oracle.NewLocal(cfg.Oracle.Delay), nil, nil
	}
}
