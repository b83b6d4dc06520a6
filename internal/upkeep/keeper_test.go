package upkeep

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"raffle/internal/raffle"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTarget struct {
	mu         sync.Mutex
	ready      bool
	requestErr error
	expired    bool
	expireErr  error
	requests   int
}

func (s *stubTarget) CheckReady() (bool, raffle.UpkeepStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready, raffle.UpkeepStatus{Pot: big.NewInt(0)}
}

func (s *stubTarget) RequestDraw(context.Context) (raffle.RequestID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	if s.requestErr != nil {
		return 0, s.requestErr
	}
	return raffle.RequestID(s.requests), nil
}

func (s *stubTarget) ExpireDraw(context.Context) (bool, error) {
	return s.expired, s.expireErr
}

func (s *stubTarget) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func TestTickOutcomes(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		target  *stubTarget
		outcome Outcome
		wantErr bool
		calls   int
	}{
		{name: "not ready", target: &stubTarget{}, outcome: Idle},
		{name: "ready", target: &stubTarget{ready: true}, outcome: Requested, calls: 1},
		{name: "lost race", target: &stubTarget{ready: true, requestErr: &raffle.UpkeepNotNeededError{Pot: big.NewInt(0)}}, outcome: Idle, calls: 1},
		{name: "oracle down", target: &stubTarget{ready: true, requestErr: errors.New("oracle down")}, outcome: Idle, wantErr: true, calls: 1},
		{name: "expired", target: &stubTarget{ready: true, expired: true}, outcome: Expired},
		{name: "expire failed", target: &stubTarget{expireErr: errors.New("disk full")}, outcome: Idle, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := NewKeeper(tt.target, time.Second).Tick(ctx)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.outcome, outcome)
			assert.Equal(t, tt.calls, tt.target.requestCount())
		})
	}
}

func TestRunStopsWithContext(t *testing.T) {
	target := &stubTarget{ready: true}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- NewKeeper(target, time.Millisecond).Run(ctx) }()

	require.Eventually(t, func() bool { return target.requestCount() > 0 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("keeper did not stop")
	}
}

type nopOracle struct{ next raffle.RequestID }

func (o *nopOracle) RequestRandomness(context.Context, raffle.OracleRequest) (raffle.RequestID, error) {
	o.next++
	return o.next, nil
}

type nopPayer struct{}

func (nopPayer) Pay(context.Context, common.Address, *big.Int) error { return nil }

func TestKeeperDrivesRaffle(t *testing.T) {
	now := time.Unix(0, 0)
	r, err := raffle.New(raffle.Config{EntranceFee: big.NewInt(1), Interval: 30 * time.Second, DrawTimeout: time.Minute},
		&nopOracle{}, nopPayer{}, raffle.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	keeper := NewKeeper(r, time.Second)
	ctx := context.Background()

	outcome, err := keeper.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, Idle, outcome)

	require.NoError(t, r.Enter(ctx, common.Address{1}, big.NewInt(1)))
	now = now.Add(31 * time.Second)
	outcome, err = keeper.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, Requested, outcome)
	assert.Equal(t, raffle.Calculating, r.State())

	outcome, err = keeper.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, Idle, outcome)

	now = now.Add(time.Minute)
	outcome, err = keeper.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, Expired, outcome)

	outcome, err = keeper.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, Requested, outcome)
	id, ok := r.PendingRequest()
	require.True(t, ok)
	assert.Equal(t, raffle.RequestID(2), id)
}
