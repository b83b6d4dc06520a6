package oracle

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

type fulfillment struct {
	id    raffle.RequestID
	words []*big.Int
}

type consumer struct {
	mu    sync.Mutex
	err   error
	calls []fulfillment
}

func (c *consumer) Fulfill(_ context.Context, id raffle.RequestID, words []*big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, fulfillment{id: id, words: words})
	return c.err
}

func (c *consumer) received() []fulfillment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]fulfillment(nil), c.calls...)
}

func TestLocalRequiresConsumer(t *testing.T) {
	o := NewLocal(0)
	defer o.Close()

	_, err := o.RequestRandomness(context.Background(), raffle.OracleRequest{})
	require.ErrorIs(t, err, ErrNotRegistered)
}

func TestLocalDeliversOncePerRequest(t *testing.T) {
	o := NewLocal(time.Millisecond)
	defer o.Close()
	c := &consumer{}
	o.Register(c)

	first, err := o.RequestRandomness(context.Background(), raffle.OracleRequest{NumWords: 3})
	require.NoError(t, err)
	second, err := o.RequestRandomness(context.Background(), raffle.OracleRequest{})
	require.NoError(t, err)
	assert.Equal(t, raffle.RequestID(1), first)
	assert.Equal(t, raffle.RequestID(2), second)

	require.Eventually(t, func() bool { return len(c.received()) == 2 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	calls := c.received()
	require.Len(t, calls, 2)
	byID := map[raffle.RequestID][]*big.Int{}
	for _, call := range calls {
		byID[call.id] = call.words
	}
	require.Len(t, byID[first], 3)
	require.Len(t, byID[second], 1)
	for _, word := range byID[first] {
		assert.True(t, word.Cmp(wordLimit) < 0)
		assert.True(t, word.Sign() >= 0)
	}
	assert.Equal(t, 0, o.Pending())
}

func TestLocalRejectedFulfillmentIsNotRedelivered(t *testing.T) {
	o := NewLocal(0)
	defer o.Close()
	c := &consumer{err: errors.New("payout failed")}
	o.Register(c)

	_, err := o.RequestRandomness(context.Background(), raffle.OracleRequest{})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(c.received()) == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Len(t, c.received(), 1)
}

func TestCloseCancelsPendingDeliveries(t *testing.T) {
	o := NewLocal(time.Hour)
	c := &consumer{}
	o.Register(c)

	_, err := o.RequestRandomness(context.Background(), raffle.OracleRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, o.Pending())

	require.NoError(t, o.Close())
	assert.Equal(t, 0, o.Pending())

	_, err = o.RequestRandomness(context.Background(), raffle.OracleRequest{})
	require.ErrorIs(t, err, ErrClosed)
	assert.Empty(t, c.received())
}

func TestResumeAfterSkipsIssuedIDs(t *testing.T) {
	o := NewLocal(time.Hour)
	defer o.Close()
	o.Register(&consumer{})

	o.ResumeAfter(41)
	o.ResumeAfter(7)
	id, err := o.RequestRandomness(context.Background(), raffle.OracleRequest{})
	require.NoError(t, err)
	assert.Equal(t, raffle.RequestID(42), id)
}

func TestBLSWordsAreVerifiable(t *testing.T) {
	private, public, err := GenerateKey()
	require.NoError(t, err)
	require.NotEmpty(t, public)

	o, err := NewBLS(private, 0)
	require.NoError(t, err)
	defer o.Close()
	c := &consumer{}
	o.Register(c)

	publicHex, err := o.PublicKeyHex()
	require.NoError(t, err)
	assert.Equal(t, public, publicHex)

	id, err := o.RequestRandomness(context.Background(), raffle.OracleRequest{NumWords: 2})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(c.received()) == 1 }, time.Second, time.Millisecond)

	words := c.received()[0].words
	require.Len(t, words, 2)

	proof, ok := o.Proof(id)
	require.True(t, ok)
	require.NoError(t, Verify(o.PublicKey(), proof, words))

	tampered := []*big.Int{new(big.Int).Add(words[0], big.NewInt(1)), words[1]}
	require.Error(t, Verify(o.PublicKey(), proof, tampered))

	other, err := NewBLS(private, 0)
	require.NoError(t, err)
	defer other.Close()
	forged := proof
	forged.Seed = other.seed(id)
	require.Error(t, Verify(o.PublicKey(), forged, words))
}

func TestParsePrivateKeyRejectsGarbage(t *testing.T) {
	_, err := ParsePrivateKey("not-hex")
	require.Error(t, err)

	_, err = NewBLS("0102", 0)
	require.Error(t, err)
}

func TestOracleDrivesRaffleRound(t *testing.T) {
	o := NewLocal(0)
	defer o.Close()

	r, err := raffle.New(raffle.Config{EntranceFee: big.NewInt(1), Interval: time.Nanosecond}, o, sinkPayer{})
	require.NoError(t, err)
	o.Register(r)

	ctx := context.Background()
	require.NoError(t, r.Enter(ctx, common.Address{1}, big.NewInt(1)))
	time.Sleep(time.Millisecond)

	_, err = r.RequestDraw(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return r.State() == raffle.Open }, time.Second, time.Millisecond)
	winner, ok := r.RecentWinner()
	require.True(t, ok)
	assert.Equal(t, common.Address{1}, winner)
}

type sinkPayer struct{}

func (sinkPayer) Pay(context.Context, common.Address, *big.Int) error { return nil }

type memoryProofs struct {
	mu     sync.Mutex
	proofs map[raffle.RequestID]Proof
}

func (m *memoryProofs) SaveProof(proof Proof) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proofs[proof.RequestID] = proof
	return nil
}

func (m *memoryProofs) LoadProof(id raffle.RequestID) (Proof, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	proof, ok := m.proofs[id]
	return proof, ok, nil
}

func TestBLSProofOutlivesOracle(t *testing.T) {
	private, _, err := GenerateKey()
	require.NoError(t, err)
	store := &memoryProofs{proofs: make(map[raffle.RequestID]Proof)}

	first, err := NewBLS(private, 0, WithProofStore(store))
	require.NoError(t, err)
	c := &consumer{}
	first.Register(c)
	id, err := first.RequestRandomness(context.Background(), raffle.OracleRequest{})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(c.received()) == 1 }, time.Second, time.Millisecond)
	require.NoError(t, first.Close())

	second, err := NewBLS(private, 0, WithProofStore(store))
	require.NoError(t, err)
	defer second.Close()

	proof, ok := second.Proof(id)
	require.True(t, ok)
	require.NoError(t, Verify(second.PublicKey(), proof, c.received()[0].words))

	_, ok = second.Proof(id + 1)
	assert.False(t, ok)
}
