package events

import "sync"

// Event represents a structured state change emitted by the node.
type Event interface {
	EventType() string
	// Attributes renders the event as flat string attributes for journals and
	// streams.
	Attributes() map[string]string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, journals).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer holds events until the surrounding transaction commits.
type Buffer struct {
	events []Event
}

func (b *Buffer) Emit(e Event) {
	if e == nil {
		return
	}
	b.events = append(b.events, e)
}

// Events returns the buffered events in emission order.
func (b *Buffer) Events() []Event {
	return append([]Event(nil), b.events...)
}

// Flush forwards every buffered event to dst and empties the buffer.
func (b *Buffer) Flush(dst Emitter) {
	if dst != nil {
		for _, e := range b.events {
			dst.Emit(e)
		}
	}
	b.events = nil
}

// Reset drops buffered events.
func (b *Buffer) Reset() { b.events = nil }

// Multi fans events out to several emitters in order.
type Multi []Emitter

func (m Multi) Emit(e Event) {
	for _, dst := range m {
		if dst != nil {
			dst.Emit(e)
		}
	}
}

// Broadcaster delivers events to live subscribers. Slow subscribers drop
// events rather than blocking the emitter.
type Broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
	size   int
}

// NewBroadcaster creates a broadcaster whose subscriber channels hold size events.
func NewBroadcaster(size int) *Broadcaster {
	if size <= 0 {
		size = 64
	}
	return &Broadcaster{subs: make(map[int]chan Event), size: size}
}

// Subscribe registers a subscriber. The returned cancel func closes the channel.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.size)
	b.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

func (b *Broadcaster) Emit(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
