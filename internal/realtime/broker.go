// Package realtime fans row-level change notifications out to subscribers.
//
// The data service publishes a model.Change after every successful write.
// Each signed-in workspace holds a Subscription filtered to its own profile
// and mirrors the changes into memory; the SSE handler streams the same
// changes to the browser.
//
// Delivery is best-effort: every subscription has a buffered channel, and a
// subscriber that falls behind loses events rather than stalling writers.
package realtime

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/sakif/wedchart/internal/model"
)

// DefaultBufferSize is the per-subscription channel capacity.
const DefaultBufferSize = 64

// Recorder receives delivery counts. *metrics.Collector implements it.
type Recorder interface {
	RecordRealtimeDelivered(relation string)
	RecordRealtimeDropped(relation string)
}

// Broker routes changes to subscriptions by profile and relation.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	buffer int
	logger *slog.Logger
	rec    Recorder
}

// NewBroker creates a Broker. rec may be nil.
func NewBroker(logger *slog.Logger, rec Recorder) *Broker {
	return &Broker{
		subs:   make(map[string]*Subscription),
		buffer: DefaultBufferSize,
		logger: logger,
		rec:    rec,
	}
}

// Subscription is one listener's handle. Close it to stop delivery; the
// Changes channel is closed afterwards.
type Subscription struct {
	id        string
	profileID string
	relations map[model.Relation]bool
	ch        chan model.Change
	broker    *Broker
	once      sync.Once
}

// Subscribe registers a listener for changes to profileID's rows. With no
// relations given, every relation is delivered.
func (b *Broker) Subscribe(profileID string, relations ...model.Relation) *Subscription {
	sub := &Subscription{
		id:        uuid.NewString(),
		profileID: profileID,
		relations: make(map[model.Relation]bool, len(relations)),
		ch:        make(chan model.Change, b.buffer),
		broker:    b,
	}
	for _, r := range relations {
		sub.relations[r] = true
	}

	b.mu.Lock()
	b.subs[sub.id] = sub
	count := len(b.subs)
	b.mu.Unlock()

	b.logger.Debug("realtime subscription opened",
		slog.String("subscription_id", sub.id),
		slog.String("profile_id", profileID),
		slog.Int("subscriptions", count),
	)
	return sub
}

// Publish delivers c to every matching subscription without blocking.
func (b *Broker) Publish(c model.Change) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if !sub.matches(c) {
			continue
		}
		select {
		case sub.ch <- c:
			if b.rec != nil {
				b.rec.RecordRealtimeDelivered(string(c.Relation))
			}
		default:
			if b.rec != nil {
				b.rec.RecordRealtimeDropped(string(c.Relation))
			}
			b.logger.Warn("realtime subscriber buffer full, dropping change",
				slog.String("subscription_id", sub.id),
				slog.String("relation", string(c.Relation)),
				slog.String("type", string(c.Type)),
			)
		}
	}
}

// SubscriberCount returns the number of open subscriptions.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every open subscription.
func (b *Broker) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*Subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.once.Do(func() { close(sub.ch) })
	}
}

// ID identifies the subscription in logs.
func (s *Subscription) ID() string { return s.id }

// Changes returns the delivery channel. It is closed by Close.
func (s *Subscription) Changes() <-chan model.Change { return s.ch }

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		b := s.broker
		// Holding the write lock means no Publish is mid-send on s.ch.
		b.mu.Lock()
		delete(b.subs, s.id)
		close(s.ch)
		b.mu.Unlock()

		b.logger.Debug("realtime subscription closed", slog.String("subscription_id", s.id))
	})
}

func (s *Subscription) matches(c model.Change) bool {
	if c.ProfileID != s.profileID {
		return false
	}
	return len(s.relations) == 0 || s.relations[c.Relation]
}
