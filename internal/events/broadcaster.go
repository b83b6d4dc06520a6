package events

import (
	"errors"
	"sync"

	"raffle/internal/raffle"
)

const clientBuffer = 16

var ErrClosed = errors.New("events: broadcaster closed")

type Message struct {
	Type string       `json:"type"`
	Data raffle.Event `json:"data"`
}

type Client struct {
	ch chan Message
}

func (c *Client) Chan() <-chan Message {
	return c.ch
}

// Broadcaster fans events out to streaming clients. A client that falls
// behind loses messages rather than stalling the raffle.
type Broadcaster struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
	dropped uint64
	closed  bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{clients: map[*Client]struct{}{}}
}

// Register adds a streaming client. It fails with ErrClosed once Close has
// run.
func (b *Broadcaster) Register() (*Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	client := &Client{ch: make(chan Message, clientBuffer)}
	b.clients[client] = struct{}{}
	return client, nil
}

func (b *Broadcaster) Unregister(c *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.ch)
	}
}

func (b *Broadcaster) Handle(event raffle.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	message := Message{Type: event.Topic(), Data: event}
	for c := range b.clients {
		select {
		case c.ch <- message:
		default:
			b.dropped++
		}
	}
}

func (b *Broadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

func (b *Broadcaster) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close disconnects every client and refuses new ones.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for c := range b.clients {
		delete(b.clients, c)
		close(c.ch)
	}
}
