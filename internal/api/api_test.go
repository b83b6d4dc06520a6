package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"raffle/internal/events"
	"raffle/internal/metrics"
	"raffle/internal/oracle"
	"raffle/internal/raffle"
	"raffle/internal/storage"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	adminToken  = "admin-secret"
	oracleToken = "oracle-secret"
	alice       = "0x00000000000000000000000000000000000000A1"
	bob         = "0x00000000000000000000000000000000000000B2"
)

type counterOracle struct{ next raffle.RequestID }

func (o *counterOracle) RequestRandomness(context.Context, raffle.OracleRequest) (raffle.RequestID, error) {
	o.next++
	return o.next, nil
}

type failingPayer struct{}

func (failingPayer) Pay(context.Context, common.Address, *big.Int) error {
	return errors.New("wallet offline")
}

type stubProofs struct{ proofs map[raffle.RequestID]oracle.Proof }

func (s stubProofs) Proof(id raffle.RequestID) (oracle.Proof, bool) {
	proof, ok := s.proofs[id]
	return proof, ok
}

func (stubProofs) PublicKeyHex() (string, error) { return "abcd", nil }

type harness struct {
	server      *Server
	raffle      *raffle.Raffle
	storage     *storage.SqliteStorage
	broadcaster *events.Broadcaster
	now         time.Time
}

type harnessOption func(*Options, *raffle.Payer)

func withPayer(payer raffle.Payer) harnessOption {
	return func(_ *Options, p *raffle.Payer) { *p = payer }
}

func withProofs(proofs Proofs) harnessOption {
	return func(o *Options, _ *raffle.Payer) { o.Proofs = proofs }
}

func newHarness(t *testing.T, options ...harnessOption) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s, err := storage.NewSqliteStorage(filepath.Join(t.TempDir(), "raffle.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	h := &harness{storage: s, broadcaster: events.NewBroadcaster(), now: time.Unix(1_700_000_000, 0)}
	clock := func() time.Time { return h.now }

	bus := events.NewBus()
	require.NoError(t, bus.SubscribeAll(storage.NewRecorder(s, clock).Handle))
	require.NoError(t, bus.SubscribeAll(h.broadcaster.Handle))

	opts := Options{
		History:     s,
		Balances:    storage.NewLedger(s),
		Broadcaster: h.broadcaster,
		AdminToken:  adminToken,
		OracleToken: oracleToken,
	}
	var payer raffle.Payer = storage.NewLedger(s)
	for _, option := range options {
		option(&opts, &payer)
	}

	h.raffle, err = raffle.New(raffle.Config{EntranceFee: big.NewInt(10), Interval: 30 * time.Second},
		&counterOracle{}, payer,
		raffle.WithJournal(storage.NewJournal(s)), raffle.WithEmitter(bus), raffle.WithClock(clock))
	require.NoError(t, err)

	opts.Raffle = h.raffle
	opts.Metrics = metrics.New(h.raffle)
	h.server = NewServer(opts)
	return h
}

func (h *harness) do(method, path, body, token string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(w, request)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestEnter(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/api/enter", `{"player":"`+alice+`","amount":"10"}`, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	view := decode[stateView](t, w)
	assert.Equal(t, "OPEN", view.State)
	assert.Equal(t, []string{common.HexToAddress(alice).Hex()}, view.Players)
	assert.Equal(t, "10", view.Pot)
	assert.Equal(t, "10", view.EntranceFee)
	assert.Equal(t, "30s", view.Interval)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"underpaid", `{"player":"` + bob + `","amount":"9"}`, http.StatusPaymentRequired},
		{"bad address", `{"player":"0x123","amount":"10"}`, http.StatusBadRequest},
		{"bad amount", `{"player":"` + bob + `","amount":"ten"}`, http.StatusBadRequest},
		{"missing fields", `{}`, http.StatusBadRequest},
		{"not json", `player=bob`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, h.do(http.MethodPost, "/api/enter", tt.body, "").Code)
		})
	}
	assert.Equal(t, 1, h.raffle.NumberOfPlayers())
}

func TestDrawAuthorization(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/api/draw", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/api/draw", "", "wrong").Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/api/draw", "", oracleToken).Code)

	disabled := NewServer(Options{Raffle: h.raffle, Broadcaster: h.broadcaster})
	w := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/api/draw", nil)
	request.Header.Set("Authorization", "Bearer ")
	disabled.Handler().ServeHTTP(w, request)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDrawAndFulfill(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/api/draw", "", adminToken)
	require.Equal(t, http.StatusConflict, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "0", body["pot"])
	assert.Equal(t, float64(0), body["players"])
	assert.Equal(t, "OPEN", body["state"])

	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/enter", `{"player":"`+alice+`","amount":"10"}`, "").Code)
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/enter", `{"player":"`+bob+`","amount":"15"}`, "").Code)

	upkeep := decode[upkeepView](t, h.do(http.MethodGet, "/api/upkeep", "", ""))
	assert.False(t, upkeep.UpkeepNeeded)
	assert.Equal(t, 2, upkeep.Players)
	assert.Equal(t, "25", upkeep.Pot)

	h.now = h.now.Add(31 * time.Second)
	upkeep = decode[upkeepView](t, h.do(http.MethodGet, "/api/upkeep", "", ""))
	assert.True(t, upkeep.UpkeepNeeded)

	w = h.do(http.MethodPost, "/api/draw", "", adminToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(1), decode[map[string]any](t, w)["requestId"])
	assert.Equal(t, http.StatusConflict, h.do(http.MethodPost, "/api/enter", `{"player":"`+alice+`","amount":"10"}`, "").Code)

	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/api/oracle/fulfill", `{"requestId":1,"randomWords":["3"]}`, adminToken).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/api/oracle/fulfill", `{"requestId":7,"randomWords":["3"]}`, oracleToken).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/oracle/fulfill", `{"requestId":1,"randomWords":[]}`, oracleToken).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/oracle/fulfill", `{"requestId":1,"randomWords":["-1"]}`, oracleToken).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/oracle/fulfill", `{"randomWords":["3"]}`, oracleToken).Code)

	w = h.do(http.MethodPost, "/api/oracle/fulfill", `{"requestId":1,"randomWords":["0x3"]}`, oracleToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	view := decode[stateView](t, w)
	assert.Equal(t, "OPEN", view.State)
	assert.Empty(t, view.Players)
	require.NotNil(t, view.RecentWinner)
	assert.Equal(t, common.HexToAddress(bob).Hex(), *view.RecentWinner)
	assert.Equal(t, uint64(1), view.Round)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/api/oracle/fulfill", `{"requestId":1,"randomWords":["3"]}`, oracleToken).Code)

	winners := decode[[]drawView](t, h.do(http.MethodGet, "/api/winners", "", ""))
	require.Len(t, winners, 1)
	assert.Equal(t, common.HexToAddress(bob).Hex(), winners[0].Winner)
	assert.Equal(t, "25", winners[0].Prize)
	require.NotNil(t, winners[0].WinnerIndex)
	assert.Equal(t, 1, *winners[0].WinnerIndex)

	draw := decode[drawView](t, h.do(http.MethodGet, "/api/draws/1", "", ""))
	assert.Equal(t, storage.DrawSettled, draw.Status)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/draws/2", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/draws/abc", "", "").Code)

	entries := decode[[]entryView](t, h.do(http.MethodGet, "/api/rounds/0/entries", "", ""))
	require.Len(t, entries, 2)
	assert.Equal(t, "15", entries[1].Amount)

	balance := decode[map[string]any](t, h.do(http.MethodGet, "/api/balances/"+bob, "", ""))
	assert.Equal(t, "25", balance["amount"])
	assert.Equal(t, float64(1), balance["wins"])
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/balances/nobody", "", "").Code)
}

func TestWinnersLimit(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/winners?limit=0", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/winners?limit=x", "", "").Code)
	w := h.do(http.MethodGet, "/api/winners?limit=5", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestPayoutFailureKeepsDrawPending(t *testing.T) {
	h := newHarness(t, withPayer(failingPayer{}))

	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/enter", `{"player":"`+alice+`","amount":"10"}`, "").Code)
	h.now = h.now.Add(31 * time.Second)
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/draw", "", adminToken).Code)

	w := h.do(http.MethodPost, "/api/oracle/fulfill", `{"requestId":1,"randomWords":["5"]}`, oracleToken)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, raffle.Calculating, h.raffle.State())
}

func TestProof(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/draws/1/proof", "", "").Code)

	h = newHarness(t, withProofs(stubProofs{proofs: map[raffle.RequestID]oracle.Proof{
		3: {RequestID: 3, Seed: []byte{0x01, 0x02}, Signature: []byte{0xff}},
	}}))
	w := h.do(http.MethodGet, "/api/draws/3/proof", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"requestId":3,"seed":"0102","signature":"ff","publicKey":"abcd"}`, w.Body.String())
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/draws/4/proof", "", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/enter", `{"player":"`+alice+`","amount":"10"}`, "").Code)

	w := h.do(http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "raffle_players 1")
	assert.Contains(t, w.Body.String(), "raffle_pot 10")
}

func TestEventStream(t *testing.T) {
	h := newHarness(t)
	server := httptest.NewServer(h.server.Handler())
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/events", nil)
	require.NoError(t, err)
	response, err := http.DefaultClient.Do(request)
	require.NoError(t, err)
	defer response.Body.Close()
	assert.Equal(t, "text/event-stream", response.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return h.broadcaster.Clients() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, h.raffle.Enter(context.Background(), common.HexToAddress(alice), big.NewInt(10)))

	scanner := bufio.NewScanner(response.Body)
	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" && len(lines) > 0 {
			break
		}
		if line != "" {
			lines = append(lines, line)
		}
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "event:"+raffle.TopicEntered, lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "data:"))
	assert.Contains(t, lines[1], `"amount":10`)

	cancel()
	require.Eventually(t, func() bool { return h.broadcaster.Clients() == 0 }, time.Second, 5*time.Millisecond)
}

func TestEventStreamRefusedAfterClose(t *testing.T) {
	h := newHarness(t)
	h.broadcaster.Close()

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- h.do(http.MethodGet, "/events", "", "") }()

	select {
	case response := <-done:
		assert.Equal(t, http.StatusServiceUnavailable, response.Code)
	case <-time.After(time.Second):
		t.Fatal("stream registered after the broadcaster closed")
	}
	assert.Equal(t, 0, h.broadcaster.Clients())
}
