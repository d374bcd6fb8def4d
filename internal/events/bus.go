// Package events provides the in-process alert bus. The simulator and the
// background monitor publish AlertEvents here; the notification layer (out of
// scope) subscribes through the same bus.
package events

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/SkyNet-coder2025/skynet-trading/internal/domain"
)

// recentCapacity bounds the ring buffer kept for the query surface.
const recentCapacity = 256

// Subscriber receives every published alert. Callbacks must be fast; slow
// consumers should hand off to their own goroutine.
type Subscriber func(domain.AlertEvent)

// Bus is a minimal publish/subscribe hub for alert events.
type Bus struct {
	mu          sync.RWMutex
	subscribers []Subscriber
	recent      []domain.AlertEvent
	log         zerolog.Logger
}

// NewBus creates an alert bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		log: log.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a callback for all future alerts.
func (b *Bus) Subscribe(fn Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, fn)
}

// PublishAlert implements domain.AlertPublisher.
func (b *Bus) PublishAlert(event domain.AlertEvent) {
	b.mu.Lock()
	b.recent = append(b.recent, event)
	if len(b.recent) > recentCapacity {
		b.recent = b.recent[len(b.recent)-recentCapacity:]
	}
	subs := make([]Subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.Unlock()

	b.log.Info().
		Str("kind", string(event.Kind)).
		Float64("value", event.Value).
		Float64("threshold", event.Threshold).
		Msg(event.Message)

	for _, fn := range subs {
		fn(event)
	}
}

// Recent returns a copy of the most recent alerts, oldest first.
func (b *Bus) Recent() []domain.AlertEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.AlertEvent, len(b.recent))
	copy(out, b.recent)
	return out
}
