package audit

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/testguard/internal/model"
)

// Sink receives every appended event, in sequence order.
type Sink interface {
	Write(Event) error
}

// Log is the append-only in-memory audit trail of one session.
// Appends are serialized; readers get copies and never block writers
// for longer than a slice header copy.
type Log struct {
	mu     sync.Mutex
	events []Event
	sinks  []Sink
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithSink adds a durable sink.
func WithSink(s Sink) Option {
	return func(l *Log) {
		if s != nil {
			l.sinks = append(l.sinks, s)
		}
	}
}

// WithLogger sets the logger used for sink failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLog creates an empty Log.
func NewLog(opts ...Option) *Log {
	l := &Log{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AddSink attaches s; it receives events appended from now on.
func (l *Log) AddSink(s Sink) {
	if s == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, s)
}

// Append records r and returns the stored event. It always succeeds:
// sink failures are logged and dropped.
func (l *Log) Append(r Record) Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev := Event{
		Seq:       uint64(len(l.events)) + 1,
		ID:        uuid.NewString(),
		Timestamp: l.now().UTC(),
		SessionID: r.SessionID,
		Category:  r.Category,
		Surface:   r.Surface,
		Target:    r.Target,
		Decision:  r.Decision,
		Reason:    r.Reason,
		RuleID:    r.RuleID,
	}
	l.events = append(l.events, ev)

	for _, s := range l.sinks {
		l.writeSink(s, ev)
	}
	return ev
}

func (l *Log) writeSink(s Sink, ev Event) {
	defer func() {
		if p := recover(); p != nil {
			l.logger.Error("audit sink panicked", "seq", ev.Seq, "panic", fmt.Sprint(p))
		}
	}()
	if err := s.Write(ev); err != nil {
		l.logger.Error("audit sink write failed", "seq", ev.Seq, "error", err)
	}
}

// view returns the events appended so far. Elements below len are never
// rewritten, so the returned slice can be read without the lock.
func (l *Log) view() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[:len(l.events):len(l.events)]
}

// Events yields the events present when iteration starts, in sequence
// order. Each range over the result starts from the first event again.
func (l *Log) Events() iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for _, ev := range l.view() {
			if !yield(ev) {
				return
			}
		}
	}
}

// Snapshot returns a copy of all events.
func (l *Log) Snapshot() []Event {
	return append([]Event(nil), l.view()...)
}

// Since returns a copy of the events with Seq greater than seq.
func (l *Log) Since(seq uint64) []Event {
	events := l.view()
	if seq >= uint64(len(events)) {
		return nil
	}
	return append([]Event(nil), events[seq:]...)
}

// Len returns the number of events.
func (l *Log) Len() int {
	return len(l.view())
}

// Count returns the number of events with the given decision.
func (l *Log) Count(d model.Decision) int {
	n := 0
	for _, ev := range l.view() {
		if ev.Decision == d {
			n++
		}
	}
	return n
}

// Close closes every sink that implements io.Closer.
func (l *Log) Close() error {
	l.mu.Lock()
	sinks := l.sinks
	l.sinks = nil
	l.mu.Unlock()

	var errs []error
	for _, s := range sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
