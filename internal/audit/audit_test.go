// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WireGate Contributors

package audit_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wiregate/wiregate/internal/audit"
)

// recordingSink captures emitted events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *recordingSink) Emit(event audit.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) all() []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Event(nil), s.events...)
}

// blockingSink blocks Emit until released, to force a full buffer.
type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Emit(audit.Event) {
	<-s.release
}

func TestLogSink_Emit(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	sink := audit.NewLogSink(logger)
	sink.Emit(audit.Event{
		Time:        time.Now(),
		Kind:        audit.KindLogin,
		Channel:     "auth/generateToken",
		UserID:      "user-1",
		ClientIP:    "192.0.2.1",
		ClientAgent: "TestClient/1.0",
	})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "audit", entry["msg"])
	assert.Equal(t, "login", entry["kind"])
	assert.Equal(t, "auth/generateToken", entry["channel"])
	assert.Equal(t, "user-1", entry["user_id"])
	assert.Equal(t, "192.0.2.1", entry["client_ip"])
}

func TestAsyncSink_DeliversToInner(t *testing.T) {
	inner := &recordingSink{}
	sink := audit.NewAsyncSink(inner, 16)

	sink.Emit(audit.Event{Kind: audit.KindRegister, Channel: "auth/register"})
	sink.Emit(audit.Event{Kind: audit.KindDispatch, Channel: "user/read"})
	sink.Close()

	events := inner.all()
	require.Len(t, events, 2)
	assert.Equal(t, audit.KindRegister, events[0].Kind)
	assert.Equal(t, audit.KindDispatch, events[1].Kind)
	assert.False(t, events[0].Time.IsZero(), "zero event time should be stamped")
	assert.Zero(t, sink.Dropped())
}

func TestAsyncSink_DropsWhenFull(t *testing.T) {
	inner := &blockingSink{release: make(chan struct{})}
	sink := audit.NewAsyncSink(inner, 1)

	// First two events occupy the drain goroutine and the buffer slot. The
	// exact split is timing-dependent, so overfill generously.
	for range 10 {
		sink.Emit(audit.Event{Kind: audit.KindDispatch})
	}

	assert.Positive(t, sink.Dropped())

	close(inner.release)
	sink.Close()
}

func TestAsyncSink_EmitAfterCloseIsDropped(t *testing.T) {
	inner := &recordingSink{}
	sink := audit.NewAsyncSink(inner, 16)
	sink.Close()

	assert.NotPanics(t, func() {
		sink.Emit(audit.Event{Kind: audit.KindDispatch})
	})
	assert.Equal(t, int64(1), sink.Dropped())
	assert.Empty(t, inner.all())
}

func TestAsyncSink_CloseIsIdempotent(t *testing.T) {
	sink := audit.NewAsyncSink(&recordingSink{}, 16)
	assert.NotPanics(t, func() {
		sink.Close()
		sink.Close()
	})
}
