package service

import (
	"sync"

	"github.com/initcodes20/releasegate/cmd/releasegate/models"
	"github.com/initcodes20/releasegate/common/logger"
)

// Broadcaster fans the ordered catalog out to live subscribers.
//
// Delivery is best-effort and eventually consistent: each subscriber
// holds a one-slot latest-wins mailbox, so a slow consumer observes
// the newest snapshot without ever blocking the writer that triggered
// the broadcast. Intermediate snapshots may be skipped; a full
// snapshot always heals staleness.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
	log  *logger.Logger
}

// NewBroadcaster creates an empty broadcaster
func NewBroadcaster(log *logger.Logger) *Broadcaster {
	return &Broadcaster{
		subs: make(map[*Subscription]struct{}),
		log:  log,
	}
}

// Subscription is a live catalog feed. The holder must call
// Unsubscribe on teardown; an unreleased subscription stays in the
// fan-out set indefinitely.
type Subscription struct {
	// C receives the full ordered catalog: once immediately on
	// subscribing, then after every observed mutation. Closed by
	// Unsubscribe.
	C <-chan []models.Version

	ch   chan []models.Version
	b    *Broadcaster
	once sync.Once
}

// Subscribe registers a new subscriber seeded with the given snapshot
func (b *Broadcaster) Subscribe(snapshot []models.Version) *Subscription {
	sub := &Subscription{
		ch: make(chan []models.Version, 1),
		b:  b,
	}
	sub.C = sub.ch
	sub.ch <- snapshot

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	count := len(b.subs)
	b.mu.Unlock()

	b.log.Debug("subscriber registered", "subscribers", count)
	return sub
}

// Broadcast pushes a snapshot to every active subscriber without
// blocking on any of them
func (b *Broadcaster) Broadcast(snapshot []models.Version) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		sub.push(snapshot)
	}

	b.log.Debug("catalog broadcast", "subscribers", len(b.subs), "versions", len(snapshot))
}

// Count returns the number of active subscribers
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// push replaces the subscriber's buffered snapshot if it has not been
// consumed yet (latest wins)
func (s *Subscription) push(snapshot []models.Version) {
	for {
		select {
		case s.ch <- snapshot:
			return
		default:
			select {
			case <-s.ch:
			default:
			}
		}
	}
}

// Unsubscribe removes the subscription from fan-out and closes C.
// Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.b.mu.Lock()
		delete(s.b.subs, s)
		s.b.mu.Unlock()
		close(s.ch)
	})
}
