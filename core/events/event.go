package events

import (
	"sync"

	"pixcashier/core/types"
)

// Event represents a structured state change emitted by the settlement
// engines.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (RPC, audit archive,
// metrics).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is the default wired into engines until a real sink is configured.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Log is an in-memory append-only emitter. Entries are recorded in emission
// order; the slice returned by Entries is a copy.
type Log struct {
	mu      sync.RWMutex
	entries []*types.Event
}

// NewLog returns an empty event log.
func NewLog() *Log {
	return &Log{}
}

// Emit appends the event payload to the log.
func (l *Log) Emit(evt Event) {
	if l == nil || evt == nil {
		return
	}
	payload := evt.Event()
	if payload == nil {
		return
	}
	l.mu.Lock()
	l.entries = append(l.entries, payload)
	l.mu.Unlock()
}

// Entries returns a snapshot of the recorded events in emission order.
func (l *Log) Entries() []*types.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*types.Event, len(l.entries))
	copy(out, l.entries)
	return out
}

// Multi fans a single emission out to every configured sink in order.
type Multi []Emitter

// Emit implements the Emitter interface.
func (m Multi) Emit(evt Event) {
	for _, sink := range m {
		if sink != nil {
			sink.Emit(evt)
		}
	}
}
