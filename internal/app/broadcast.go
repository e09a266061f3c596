package app

import (
	"sync"

	"github.com/crooner-live/crooner/internal/session"
)

// broadcaster fans one session's finite event stream out to any number of
// subscribers. Late subscribers get the full history replayed before live
// events, so a UI that connects mid-song still renders every word color.
type broadcaster struct {
	mu     sync.Mutex
	log    []session.Event
	subs   map[int]chan session.Event
	next   int
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]chan session.Event)}
}

// publish appends ev to the history and delivers it to live subscribers.
// A subscriber that has stopped draining loses events rather than blocking
// the pump.
func (b *broadcaster) publish(ev session.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.log = append(b.log, ev)
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// close ends the stream: all subscriber channels are closed and future
// subscribers get history-only channels.
func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}

// subscribe returns a channel that replays the history and then follows live
// events. The returned stop function detaches the subscriber; it is safe to
// call more than once.
func (b *broadcaster) subscribe() (<-chan session.Event, func()) {
	b.mu.Lock()
	history := make([]session.Event, len(b.log))
	copy(history, b.log)

	// Headroom beyond the history so live events rarely drop.
	ch := make(chan session.Event, len(history)+256)
	for _, ev := range history {
		ch <- ev
	}

	if b.closed {
		close(ch)
		b.mu.Unlock()
		return ch, func() {}
	}

	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			b.mu.Lock()
			if !b.closed {
				if sub, ok := b.subs[id]; ok {
					delete(b.subs, id)
					close(sub)
				}
			}
			b.mu.Unlock()
		})
	}
	return ch, stop
}
