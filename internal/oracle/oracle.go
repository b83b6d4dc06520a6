// Package oracle provides randomness oracles for the raffle. Requests get
// sequential ids and are fulfilled once, on a timer goroutine, by calling back
// the registered consumer.
package oracle

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"raffle/internal/raffle"

	"go.uber.org/zap"
)

var (
	ErrClosed        = errors.New("oracle: closed")
	ErrNotRegistered = errors.New("oracle: no consumer registered")
)

// wordSource produces the random words for a request at delivery time.
type wordSource func(id raffle.RequestID, numWords uint32) ([]*big.Int, error)

type dispatcher struct {
	mu       sync.Mutex
	consumer raffle.Consumer
	delay    time.Duration
	next     raffle.RequestID
	pending  map[raffle.RequestID]*time.Timer
	closed   bool
	source   wordSource
	log      *zap.Logger
}

func newDispatcher(delay time.Duration, source wordSource, log *zap.Logger) *dispatcher {
	return &dispatcher{
		delay:   delay,
		pending: make(map[raffle.RequestID]*time.Timer),
		source:  source,
		log:     log,
	}
}

// Register binds the consumer that receives fulfillments.
func (d *dispatcher) Register(consumer raffle.Consumer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.consumer = consumer
}

// ResumeAfter makes the next request id follow last. Ids issued before a
// restart are never reused.
func (d *dispatcher) ResumeAfter(last raffle.RequestID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last > d.next {
		d.next = last
	}
}

func (d *dispatcher) RequestRandomness(_ context.Context, request raffle.OracleRequest) (raffle.RequestID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, ErrClosed
	}
	if d.consumer == nil {
		return 0, ErrNotRegistered
	}

	numWords := request.NumWords
	if numWords == 0 {
		numWords = 1
	}

	d.next++
	id := d.next
	d.pending[id] = time.AfterFunc(d.delay, func() {
		d.deliver(id, numWords)
	})

	d.log.Debug("oracle: randomness requested",
		zap.Uint64("request id", uint64(id)),
		zap.String("key hash", request.KeyHash),
		zap.Uint64("subscription id", request.SubscriptionID),
		zap.Uint32("num words", numWords))
	return id, nil
}

func (d *dispatcher) deliver(id raffle.RequestID, numWords uint32) {
	d.mu.Lock()
	if _, ok := d.pending[id]; !ok {
		d.mu.Unlock()
		return
	}
	delete(d.pending, id)
	consumer := d.consumer
	d.mu.Unlock()

	words, err := d.source(id, numWords)
	if err != nil {
		d.log.Error("oracle: cannot produce random words", zap.Uint64("request id", uint64(id)), zap.Error(err))
		return
	}

	if err := consumer.Fulfill(context.Background(), id, words); err != nil {
		d.log.Error("oracle: fulfillment rejected", zap.Uint64("request id", uint64(id)), zap.Error(err))
		return
	}
	d.log.Debug("oracle: fulfilled", zap.Uint64("request id", uint64(id)))
}

// Pending reports how many requests still await delivery.
func (d *dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Close cancels undelivered requests. Later requests fail with ErrClosed.
func (d *dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for id, timer := range d.pending {
		timer.Stop()
		delete(d.pending, id)
	}
	return nil
}
