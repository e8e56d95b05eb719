package streaming

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
)

const defaultChannelBuffer = 64

// subscription is one Subscribe call. Its channel is closed exactly once,
// by end.
type subscription struct {
	ch      chan SceneEvent
	filter  EventFilter
	dropped atomic.Uint64
	end     func()
}

// MemoryHub fans scene events out to in-process subscribers. Delivery never
// blocks the publishing session: a subscriber whose buffer is full misses
// the event.
type MemoryHub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*subscription
	// dropped by subscriptions that have since ended
	retired atomic.Uint64
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{subs: make(map[uint64]*subscription)}
}

func (h *MemoryHub) Publish(ctx context.Context, event SceneEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if !matchFilter(sub.filter, event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			sub.dropped.Add(1)
		}
	}
	return nil
}

// Subscribe registers a subscription that lasts until the returned cancel
// is called or ctx ends, whichever comes first. Either way the channel is
// closed. cancel may be called more than once.
func (h *MemoryHub) Subscribe(ctx context.Context, filter EventFilter) (<-chan SceneEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	sub := &subscription{ch: make(chan SceneEvent, defaultChannelBuffer), filter: filter}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	var once sync.Once
	sub.end = func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			h.retired.Add(sub.dropped.Load())
			close(sub.ch)
		})
	}
	h.subs[id] = sub
	h.mu.Unlock()

	stop := context.AfterFunc(ctx, sub.end)
	cancel := func() {
		stop()
		sub.end()
	}
	return sub.ch, cancel, nil
}

// Close ends every subscription.
func (h *MemoryHub) Close() {
	h.mu.RLock()
	subs := make([]*subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()
	for _, s := range subs {
		s.end()
	}
}

func (h *MemoryHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many events subscribers have missed, including
// subscribers that are gone.
func (h *MemoryHub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := h.retired.Load()
	for _, s := range h.subs {
		n += s.dropped.Load()
	}
	return n
}

func matchFilter(f EventFilter, e SceneEvent) bool {
	switch {
	case f.DocumentID != "" && f.DocumentID != e.DocumentID:
		return false
	case f.ItemID != "" && f.ItemID != e.ItemID:
		return false
	case len(f.EventTypes) > 0 && !slices.Contains(f.EventTypes, e.EventType):
		return false
	}
	return true
}

var _ EventHub = (*MemoryHub)(nil)
