// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WireGate Contributors

// Package audit provides a fire-and-forget sink for security-relevant
// events. Sinks are observers passed by reference into the dispatcher; a
// failing or slow sink must never affect dispatch correctness.
package audit

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Kind classifies an audit event.
type Kind string

// Audit event kinds.
const (
	KindRegister     Kind = "register"
	KindLogin        Kind = "login"
	KindLoginFailed  Kind = "login_failed"
	KindUnauthorized Kind = "unauthorized"
	KindDispatch     Kind = "dispatch"
)

// Event is one audit record. UserID is empty when the actor is anonymous.
type Event struct {
	Time        time.Time
	Kind        Kind
	Channel     string
	UserID      string
	ClientIP    string
	ClientAgent string
	Detail      string
}

// Sink consumes audit events. Emit must not block for long and must never
// panic into the caller.
type Sink interface {
	Emit(event Event)
}

// NopSink discards every event.
type NopSink struct{}

// Emit discards the event.
func (NopSink) Emit(Event) {}

// LogSink writes events to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger selects slog.Default.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Emit writes the event as one log record.
func (s *LogSink) Emit(event Event) {
	s.logger.Info("audit",
		"kind", string(event.Kind),
		"channel", event.Channel,
		"user_id", event.UserID,
		"client_ip", event.ClientIP,
		"client_agent", event.ClientAgent,
		"detail", event.Detail,
	)
}

// AsyncSink decouples emitters from a possibly slow inner sink with a
// buffered channel. Events are dropped when the buffer is full rather than
// ever blocking a dispatch.
type AsyncSink struct {
	inner   Sink
	ch      chan Event
	dropped atomic.Int64
	done    chan struct{}
	once    sync.Once

	mu     sync.RWMutex
	closed bool
}

// NewAsyncSink creates and starts an AsyncSink draining into inner.
// A buffer below 1 defaults to 256.
func NewAsyncSink(inner Sink, buffer int) *AsyncSink {
	if buffer < 1 {
		buffer = 256
	}
	s := &AsyncSink{
		inner: inner,
		ch:    make(chan Event, buffer),
		done:  make(chan struct{}),
	}
	go s.drain()
	return s
}

// Emit enqueues the event, dropping it if the buffer is full or the sink
// is closed.
func (s *AsyncSink) Emit(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.ch <- event:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns the number of events discarded due to a full buffer.
func (s *AsyncSink) Dropped() int64 {
	return s.dropped.Load()
}

// Close stops the drain goroutine after flushing buffered events.
// Emit calls after Close are dropped.
func (s *AsyncSink) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		<-s.done
	})
}

func (s *AsyncSink) drain() {
	defer close(s.done)
	for event := range s.ch {
		s.inner.Emit(event)
	}
}
