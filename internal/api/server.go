// Package api serves the raffle over HTTP with gin: entries, state queries,
// the admin draw trigger, external oracle fulfillment, history and a
// server-sent event stream.
package api

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"time"

	"raffle/internal/events"
	"raffle/internal/logger"
	"raffle/internal/metrics"
	"raffle/internal/oracle"
	"raffle/internal/raffle"
	"raffle/internal/storage"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

type Raffle interface {
	Enter(ctx context.Context, sender common.Address, payment *big.Int) error
	CheckReady() (bool, raffle.UpkeepStatus)
	RequestDraw(ctx context.Context) (raffle.RequestID, error)
	Fulfill(ctx context.Context, id raffle.RequestID, randomWords []*big.Int) error
	Snapshot() raffle.Snapshot
	EntranceFee() *big.Int
	Interval() time.Duration
	DrawTimeout() time.Duration
	NumWords() uint32
	RequestConfirmations() uint16
}

type History interface {
	GetRecentDraws(status storage.DrawStatus, limit int) ([]*storage.Draw, error)
	GetDraw(requestID uint64) (*storage.Draw, error)
	GetEntriesByRound(round uint64) ([]*storage.Entry, error)
}

type Balances interface {
	Balance(address common.Address) (*big.Int, int, error)
}

type Proofs interface {
	Proof(id raffle.RequestID) (oracle.Proof, bool)
	PublicKeyHex() (string, error)
}

type Options struct {
	Raffle      Raffle
	History     History
	Balances    Balances
	Broadcaster *events.Broadcaster
	// Proofs and Metrics are optional.
	Proofs      Proofs
	Metrics     *metrics.Metrics
	AdminToken  string
	OracleToken string
}

type Server struct {
	options Options
	router  *gin.Engine
	log     *zap.Logger
}

func NewServer(options Options) *Server {
	s := &Server{
		options: options,
		log:     logger.Named("api"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestID(), requestLogger(s.log))
	if s.options.Metrics != nil {
		router.Use(s.options.Metrics.Middleware())
		router.GET("/metrics", gin.WrapH(s.options.Metrics.Handler()))
	}

	api := router.Group("/api")
	{
		api.POST("/enter", s.enter)
		api.GET("/state", s.state)
		api.GET("/upkeep", s.upkeep)
		api.POST("/draw", bearer(s.options.AdminToken), s.draw)
		api.POST("/oracle/fulfill", bearer(s.options.OracleToken), s.fulfill)
		api.GET("/winners", s.winners)
		api.GET("/draws/:requestId", s.drawByID)
		api.GET("/draws/:requestId/proof", s.proof)
		api.GET("/rounds/:round/entries", s.entries)
		api.GET("/balances/:address", s.balance)
	}
	router.GET("/events", s.stream)

	return router
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		s.log.Info("api: listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	// Streaming clients never finish on their own.
	if s.options.Broadcaster != nil {
		s.options.Broadcaster.Close()
	}

	s.log.Info("api: shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("api: shutting down... done")
	return <-errs
}
