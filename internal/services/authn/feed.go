package authn

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcoot/marketid/internal/model"
)

// Subscription receives session events published for one user
type Subscription struct {
	userID      model.PrincipalID
	send        chan model.SessionEvent
	connectedAt time.Time
	// registered is closed once the feed routes events to this subscription
	registered chan struct{}
}

// Events returns the channel events are delivered on. It is closed on unsubscribe.
func (s *Subscription) Events() <-chan model.SessionEvent {
	return s.send
}

type userEvent struct {
	userID model.PrincipalID
	event  model.SessionEvent
}

// Feed routes session events to every subscription held for the affected user
type Feed struct {
	subscriptions map[model.PrincipalID]map[*Subscription]bool
	mu            sync.RWMutex
	logger        *slog.Logger
	bufferSize    int
	dropped       atomic.Uint64

	register   chan *Subscription
	unregister chan *Subscription
	publish    chan userEvent
	done       chan struct{}
	closeOnce  sync.Once
}

// NewFeed creates a feed; call Run to start delivering events
func NewFeed(logger *slog.Logger, bufferSize int) *Feed {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	return &Feed{
		subscriptions: make(map[model.PrincipalID]map[*Subscription]bool),
		logger:        logger.With(slog.String("component", "session-feed")),
		bufferSize:    bufferSize,
		register:      make(chan *Subscription),
		unregister:    make(chan *Subscription),
		publish:       make(chan userEvent, 256),
		done:          make(chan struct{}),
	}
}

// Run starts the feed's event loop
func (f *Feed) Run() {
	f.logger.Info("session feed started")
	for {
		select {
		case sub := <-f.register:
			f.mu.Lock()
			subs, ok := f.subscriptions[sub.userID]
			if !ok {
				subs = make(map[*Subscription]bool)
				f.subscriptions[sub.userID] = subs
			}
			subs[sub] = true
			count := len(subs)
			f.mu.Unlock()
			close(sub.registered)
			f.logger.Debug("session subscription registered",
				slog.String("user_id", string(sub.userID)),
				slog.Int("user_subscriptions", count))

		case sub := <-f.unregister:
			f.mu.Lock()
			if subs, ok := f.subscriptions[sub.userID]; ok && subs[sub] {
				delete(subs, sub)
				if len(subs) == 0 {
					delete(f.subscriptions, sub.userID)
				}
				close(sub.send)
				f.mu.Unlock()
				f.logger.Debug("session subscription removed",
					slog.String("user_id", string(sub.userID)),
					slog.Duration("subscription_duration", time.Since(sub.connectedAt)))
			} else {
				f.mu.Unlock()
			}

		case msg := <-f.publish:
			f.mu.RLock()
			sent, dropped := 0, 0
			for sub := range f.subscriptions[msg.userID] {
				select {
				case sub.send <- msg.event:
					sent++
				default:
					dropped++
				}
			}
			f.mu.RUnlock()
			if dropped > 0 {
				f.dropped.Add(uint64(dropped))
				f.logger.Warn("session event dropped - subscriber buffer full",
					slog.String("user_id", string(msg.userID)),
					slog.String("kind", string(msg.event.Kind)),
					slog.Int("sent", sent),
					slog.Int("dropped", dropped))
			}

		case <-f.done:
			f.mu.Lock()
			count := 0
			for userID, subs := range f.subscriptions {
				for sub := range subs {
					close(sub.send)
					count++
				}
				delete(f.subscriptions, userID)
			}
			f.mu.Unlock()
			f.logger.Info("session feed stopped", slog.Int("closed_subscriptions", count))
			return
		}
	}
}

// Subscribe registers interest in events for userID and returns once the
// subscription is live. Returns nil if the feed has been closed.
func (f *Feed) Subscribe(userID model.PrincipalID) *Subscription {
	sub := &Subscription{
		userID:      userID,
		send:        make(chan model.SessionEvent, f.bufferSize),
		connectedAt: time.Now(),
		registered:  make(chan struct{}),
	}
	select {
	case f.register <- sub:
	case <-f.done:
		return nil
	}
	select {
	case <-sub.registered:
		return sub
	case <-f.done:
		return nil
	}
}

// Unsubscribe removes sub and closes its channel
func (f *Feed) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	select {
	case f.unregister <- sub:
	case <-f.done:
	}
}

// Publish delivers event to every subscription for userID
func (f *Feed) Publish(userID model.PrincipalID, event model.SessionEvent) {
	select {
	case f.publish <- userEvent{userID: userID, event: event}:
	default:
		f.logger.Warn("session event dropped - feed buffer full",
			slog.String("user_id", string(userID)),
			slog.String("kind", string(event.Kind)))
	}
}

// Dropped returns how many deliveries were skipped because a subscriber's buffer was full
func (f *Feed) Dropped() uint64 {
	return f.dropped.Load()
}

// SubscriptionCount returns the number of subscriptions held for userID
func (f *Feed) SubscriptionCount(userID model.PrincipalID) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscriptions[userID])
}

// Close shuts down the feed and closes every subscription
func (f *Feed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
