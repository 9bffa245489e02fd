// Package events distributes post-commit engine notifications to sinks.
package events

import (
	"sync"
	"time"

	"github.com/authrail/authrail-go/pkg/types"
	"go.uber.org/zap"
)

// DefaultMemorySinkCapacity bounds the in-memory recorder when no explicit
// capacity is given.
const DefaultMemorySinkCapacity = 1024

// Sink consumes events emitted after an operation commits. Publish is called
// in commit order while the engine still holds the signer lock, so
// implementations must return quickly.
type Sink interface {
	Publish(event types.Event)
}

// LogSink writes events to the structured log.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink backed by the given logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Publish logs one event with kind-specific fields.
func (s *LogSink) Publish(event types.Event) {
	switch event.Kind {
	case types.EventTransfer:
		s.logger.Sugar().Infow("Transfer",
			"from", event.From.Hex(),
			"to", event.To.Hex(),
			"value", event.Value.String())
	case types.EventAuthorizationUsed:
		s.logger.Sugar().Infow("Authorization used",
			"authorizer", event.Authorizer.Hex(),
			"nonce", event.Nonce.Hex())
	case types.EventAuthorizationCanceled:
		s.logger.Sugar().Infow("Authorization canceled",
			"authorizer", event.Authorizer.Hex(),
			"nonce", event.Nonce.Hex())
	default:
		s.logger.Sugar().Warnw("Unknown event kind", "kind", event.Kind)
	}
}

// Record is an event with its assigned sequence number. Sequence numbers
// start at 1 and never repeat within one sink.
type Record struct {
	Sequence   uint64
	Event      types.Event
	ObservedAt time.Time
}

// MemorySink keeps the most recent events in a fixed-size buffer for the
// query API. Older events are dropped once capacity is reached; the sequence
// numbers keep counting so gaps are visible to consumers.
type MemorySink struct {
	mu       sync.Mutex
	records  []Record
	capacity int
	next     uint64
}

// NewMemorySink creates a recorder holding up to capacity events. A capacity
// below one falls back to the default.
func NewMemorySink(capacity int) *MemorySink {
	if capacity < 1 {
		capacity = DefaultMemorySinkCapacity
	}
	return &MemorySink{capacity: capacity}
}

// Publish records one event, dropping the oldest once full.
func (s *MemorySink) Publish(event types.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	if len(s.records) == s.capacity {
		s.records = s.records[1:]
	}
	s.records = append(s.records, Record{
		Sequence:   s.next,
		Event:      event,
		ObservedAt: time.Now(),
	})
}

// Recent returns up to limit of the newest records, oldest first. A limit
// below one returns everything retained.
func (s *MemorySink) Recent(limit int) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.records)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]Record, n)
	copy(out, s.records[len(s.records)-n:])
	return out
}

// Total returns how many events have ever been published to this sink.
func (s *MemorySink) Total() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.next
}

// MultiSink fans one event out to every configured sink, in order. An empty
// MultiSink is a valid no-op sink.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks into one.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Publish delivers the event to every sink.
func (s *MultiSink) Publish(event types.Event) {
	for _, sink := range s.sinks {
		sink.Publish(event)
	}
}
