package events

import (
	"fmt"

	"raffle/internal/logger"
	"raffle/internal/raffle"

	evbus "github.com/asaskevich/EventBus"
	"go.uber.org/zap"
)

// Handler receives raffle events synchronously, in emission order. It runs
// while the raffle and the bus hold their locks: it must not call back into
// either.
type Handler func(event raffle.Event)

// Bus publishes raffle events on an asaskevich/EventBus, one topic per event
// kind.
type Bus struct {
	bus evbus.Bus
	log *zap.Logger
}

func NewBus() *Bus {
	return &Bus{
		bus: evbus.New(),
		log: logger.Named("events"),
	}
}

func (b *Bus) Emit(event raffle.Event) {
	b.log.Debug("events: publish", zap.String("topic", event.Topic()))
	b.bus.Publish(event.Topic(), event)
}

func (b *Bus) Subscribe(topic string, handler Handler) error {
	if err := b.bus.Subscribe(topic, handler); err != nil {
		return fmt.Errorf("events: subscribe %s: %w", topic, err)
	}
	return nil
}

// SubscribeAll registers handler on every raffle topic.
func (b *Bus) SubscribeAll(handler Handler) error {
	for _, topic := range raffle.Topics {
		if err := b.Subscribe(topic, handler); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bus) HasSubscribers(topic string) bool {
	return b.bus.HasCallback(topic)
}
