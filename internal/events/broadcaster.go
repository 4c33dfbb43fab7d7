// Package events delivers committed engine changes to interested parties, in
// process through a Broadcaster or across processes through Redis Pub/Sub.
package events

import (
	"context"
	"sync"
	"sync/atomic"

	"farm-ledger/internal/core"
	ledgerlog "farm-ledger/internal/logger"

	"go.uber.org/zap"
)

// Broadcaster fans change events out to in-process subscribers. Each subscriber has
// a buffered channel; when it is full the event is dropped for that subscriber and
// counted, so a slow reader never stalls a committed write.
type Broadcaster struct {
	mu      sync.RWMutex
	subs    map[int]chan core.ChangeEvent
	nextID  int
	buffer  int
	closed  bool
	dropped atomic.Int64
	logger  *zap.Logger
}

// NewBroadcaster creates a broadcaster whose subscriber channels hold buffer events.
func NewBroadcaster(buffer int, logger *zap.Logger) *Broadcaster {
	if buffer <= 0 {
		buffer = 64
	}
	logger = ledgerlog.OrNop(logger)
	return &Broadcaster{
		subs:   make(map[int]chan core.ChangeEvent),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe returns a channel of future events and a func that ends the subscription
// and closes the channel. The func is safe to call more than once.
func (b *Broadcaster) Subscribe() (<-chan core.ChangeEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan core.ChangeEvent, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// NotifyChange implements core.ChangeNotifier.
func (b *Broadcaster) NotifyChange(_ context.Context, ev core.ChangeEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
			b.logger.Warn("subscriber buffer full, dropping change event",
				zap.Int("subscriber", id),
				zap.String("entity", ev.Entity),
				zap.String("id", ev.ID))
		}
	}
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (b *Broadcaster) Dropped() int64 {
	return b.dropped.Load()
}

// Close ends all subscriptions. Later events are discarded.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

var _ core.ChangeNotifier = (*Broadcaster)(nil)
