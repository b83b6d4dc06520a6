package api

import (
	"errors"
	"io"
	"math/big"
	"net/http"
	"strconv"

	"raffle/internal/raffle"
	"raffle/internal/storage"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultWinnersLimit = 20
	maxWinnersLimit     = 500
)

type enterRequest struct {
	Player string `json:"player" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

type fulfillRequest struct {
	RequestID   *uint64  `json:"requestId" binding:"required"`
	RandomWords []string `json:"randomWords"`
}

func (s *Server) enter(c *gin.Context) {
	var request enterRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !common.IsHexAddress(request.Player) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid player address"})
		return
	}
	amount, ok := new(big.Int).SetString(request.Amount, 10)
	if !ok || amount.Sign() < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a non-negative base-10 integer"})
		return
	}

	if err := s.options.Raffle.Enter(c.Request.Context(), common.HexToAddress(request.Player), amount); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newStateView(s.options.Raffle))
}

func (s *Server) state(c *gin.Context) {
	c.JSON(http.StatusOK, newStateView(s.options.Raffle))
}

func (s *Server) upkeep(c *gin.Context) {
	c.JSON(http.StatusOK, newUpkeepView(s.options.Raffle.CheckReady()))
}

func (s *Server) draw(c *gin.Context) {
	id, err := s.options.Raffle.RequestDraw(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requestId": uint64(id)})
}

func (s *Server) fulfill(c *gin.Context) {
	var request fulfillRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	words := make([]*big.Int, len(request.RandomWords))
	for i, raw := range request.RandomWords {
		// base 0 accepts decimal and 0x-prefixed hex
		word, ok := new(big.Int).SetString(raw, 0)
		if !ok || word.Sign() < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "random word " + strconv.Itoa(i) + " is not a non-negative integer"})
			return
		}
		words[i] = word
	}

	id := raffle.RequestID(*request.RequestID)
	if err := s.options.Raffle.Fulfill(c.Request.Context(), id, words); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newStateView(s.options.Raffle))
}

func (s *Server) winners(c *gin.Context) {
	limit := defaultWinnersLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(parsed, maxWinnersLimit)
	}

	draws, err := s.options.History.GetRecentDraws(storage.DrawSettled, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	views := make([]drawView, len(draws))
	for i, d := range draws {
		views[i] = newDrawView(d)
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) drawByID(c *gin.Context) {
	id, ok := requestIDParam(c)
	if !ok {
		return
	}
	draw, err := s.options.History.GetDraw(id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newDrawView(draw))
}

func (s *Server) proof(c *gin.Context) {
	if s.options.Proofs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "oracle does not publish proofs"})
		return
	}
	id, ok := requestIDParam(c)
	if !ok {
		return
	}
	proof, found := s.options.Proofs.Proof(raffle.RequestID(id))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no proof for request"})
		return
	}
	publicKey, err := s.options.Proofs.PublicKeyHex()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newProofView(proof, publicKey))
}

func (s *Server) entries(c *gin.Context) {
	round, err := strconv.ParseUint(c.Param("round"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid round"})
		return
	}
	entries, err := s.options.History.GetEntriesByRound(round)
	if err != nil {
		s.fail(c, err)
		return
	}
	views := make([]entryView, len(entries))
	for i, e := range entries {
		views[i] = entryView{Player: e.Player, Amount: e.Amount, CreatedAt: e.CreatedAt}
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) balance(c *gin.Context) {
	raw := c.Param("address")
	if !common.IsHexAddress(raw) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return
	}
	address := common.HexToAddress(raw)
	amount, wins, err := s.options.Balances.Balance(address)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": address.Hex(), "amount": amount.String(), "wins": wins})
}

func (s *Server) stream(c *gin.Context) {
	client, err := s.options.Broadcaster.Register()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server is shutting down"})
		return
	}
	defer s.options.Broadcaster.Unregister(client)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	done := c.Request.Context().Done()
	c.Stream(func(io.Writer) bool {
		select {
		case message, ok := <-client.Chan():
			if !ok {
				return false
			}
			c.SSEvent(message.Type, message.Data)
			return true
		case <-done:
			return false
		}
	})
}

func requestIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("requestId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return 0, false
	}
	return id, true
}

// fail maps raffle and storage errors onto HTTP statuses.
func (s *Server) fail(c *gin.Context, err error) {
	_ = c.Error(err)

	var notNeeded *raffle.UpkeepNotNeededError
	switch {
	case errors.As(err, &notNeeded):
		c.JSON(http.StatusConflict, gin.H{
			"error":   err.Error(),
			"pot":     notNeeded.Pot.String(),
			"players": notNeeded.PlayerCount,
			"state":   notNeeded.State.String(),
		})
	case errors.Is(err, raffle.ErrInsufficientPayment):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error(), "entranceFee": s.options.Raffle.EntranceFee().String()})
	case errors.Is(err, raffle.ErrNotOpen):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, raffle.ErrUnknownRequest), errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, raffle.ErrEmptyRandomness):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, raffle.ErrPayoutFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		s.log.Error("api: request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
