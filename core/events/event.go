package events

// Event represents a structured state change emitted by the escrow ledger.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers such as the RPC layer,
// the evidence store and notification delivery.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// keeps event emission optional for components that do not subscribe.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer queues events until the surrounding unit of work settles: Flush
// relays the queued events to the wrapped emitter in order, Discard drops
// them. Callers serialize Emit, Flush and Discard externally.
type Buffer struct {
	sink   Emitter
	queued []Event
}

// NewBuffer wraps an emitter in a buffering layer.
func NewBuffer(sink Emitter) *Buffer {
	if sink == nil {
		sink = NoopEmitter{}
	}
	return &Buffer{sink: sink}
}

// Emit queues the event without relaying it.
func (b *Buffer) Emit(evt Event) {
	b.queued = append(b.queued, evt)
}

// Flush relays the queued events to the wrapped emitter and empties the
// buffer.
func (b *Buffer) Flush() {
	queued := b.queued
	b.queued = nil
	for _, evt := range queued {
		b.sink.Emit(evt)
	}
}

// Discard drops the queued events without relaying them.
func (b *Buffer) Discard() {
	b.queued = nil
}

// Fanout broadcasts each event to every subscriber in order.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(evt Event) {
	for _, emitter := range f {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}
