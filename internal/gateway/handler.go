package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"

	"github.com/oklog/ulid/v2"
)

// maxFrameBytes caps one inbound line. Frames past the cap poison the
// scanner, which ends the connection; a malformed-but-bounded frame only
// earns an error response.
const maxFrameBytes = 1 << 20

// ConnectionHandler handles a single client connection. Messages are read,
// dispatched, and replied to strictly in order, one at a time, which is
// what guarantees responses never reorder relative to requests on the same
// connection.
type ConnectionHandler struct {
	conn       net.Conn
	dispatcher *Dispatcher
	logger     *slog.Logger
	connID     ulid.ULID
	meta       ConnMeta
}

// NewConnectionHandler creates a handler for one accepted connection.
func NewConnectionHandler(conn net.Conn, dispatcher *Dispatcher, logger *slog.Logger) *ConnectionHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ConnectionHandler{
		conn:       conn,
		dispatcher: dispatcher,
		logger:     logger,
		connID:     ulid.Make(),
		meta:       ConnMeta{ClientIP: remoteIP(conn)},
	}
}

// Handle processes the connection until it closes or ctx is cancelled.
// A dropped connection aborts only its own in-flight dispatch.
func (h *ConnectionHandler) Handle(ctx context.Context) {
	defer func() {
		if err := h.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			h.logger.Debug("error closing connection", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lineCh := make(chan []byte)
	errCh := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(h.conn)
		scanner.Buffer(make([]byte, 0, 4096), maxFrameBytes)
		for scanner.Scan() {
			line := make([]byte, len(scanner.Bytes()))
			copy(line, scanner.Bytes())
			select {
			case lineCh <- line:
			case <-ctx.Done():
				return
			}
		}
		err := scanner.Err()
		if err == nil {
			err = io.EOF
		}
		select {
		case errCh <- err:
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-errCh:
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				h.logger.Debug("connection read error",
					"conn_id", h.connID.String(),
					"error", err,
				)
			}
			return

		case line := <-lineCh:
			if len(line) == 0 || len(strings.TrimSpace(string(line))) == 0 {
				continue
			}
			h.captureAgent(line)
			resp := h.dispatcher.Dispatch(ctx, line, h.meta)
			if !h.send(resp) {
				return
			}
		}
	}
}

// captureAgent records the first agent string a connection announces.
// Later values are ignored so the metadata stays connection-scoped.
func (h *ConnectionHandler) captureAgent(line []byte) {
	if h.meta.ClientAgent != "" {
		return
	}
	var probe struct {
		Agent string `json:"agent"`
	}
	if err := json.Unmarshal(line, &probe); err == nil && probe.Agent != "" {
		h.meta.ClientAgent = probe.Agent
	}
}

// send writes one response frame. Returns false if the connection is gone.
func (h *ConnectionHandler) send(resp Response) bool {
	data, err := json.Marshal(resp)
	if err != nil {
		// Response values are built from marshalable types; treat this as
		// an internal fault but still answer the client.
		h.logger.Error("failed to marshal response",
			"conn_id", h.connID.String(),
			"error", err,
		)
		data = []byte(`{"error":"` + ErrMsgInternal + `"}`)
	}
	data = append(data, '\n')

	if _, err := h.conn.Write(data); err != nil {
		h.logger.Debug("failed to send response",
			"conn_id", h.connID.String(),
			"error", err,
		)
		return false
	}
	return true
}

// remoteIP extracts the host part of the connection's remote address.
func remoteIP(conn net.Conn) string {
	addr := conn.RemoteAddr()
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
