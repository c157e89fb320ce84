package gateway

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"sync"

	"github.com/samber/oops"
)

// ConnObserver is notified when a connection is accepted.
type ConnObserver func()

// Server accepts persistent client connections and runs one
// ConnectionHandler goroutine per connection. Connections are fully
// independent; there is no ordering guarantee across them.
type Server struct {
	addr       string
	dispatcher *Dispatcher
	logger     *slog.Logger
	onConn     ConnObserver
	tlsConf    *tls.Config

	mu       sync.RWMutex
	listener net.Listener
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithConnObserver sets a callback invoked per accepted connection.
func WithConnObserver(onConn ConnObserver) ServerOption {
	return func(s *Server) {
		if onConn != nil {
			s.onConn = onConn
		}
	}
}

// WithTLSConfig wraps the listener with TLS.
func WithTLSConfig(conf *tls.Config) ServerOption {
	return func(s *Server) {
		s.tlsConf = conf
	}
}

// WithServerLogger sets the server logger. Defaults to slog.Default.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a gateway server.
func NewServer(addr string, dispatcher *Dispatcher, opts ...ServerOption) (*Server, error) {
	if addr == "" {
		return nil, oops.Errorf("listen address is required")
	}
	if dispatcher == nil {
		return nil, oops.Errorf("dispatcher is required")
	}
	s := &Server{
		addr:       addr,
		dispatcher: dispatcher,
		logger:     slog.Default(),
		onConn:     func() {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Addr returns the bound listen address, or "" before Run.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run starts the server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return oops.Code("GATE_LISTEN_FAILED").
			With("addr", s.addr).
			Wrap(err)
	}

	if s.tlsConf != nil {
		listener = tls.NewListener(listener, s.tlsConf)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("gateway server started", "addr", listener.Addr(), "tls", s.tlsConf != nil)

	go func() {
		<-ctx.Done()
		if err := listener.Close(); err != nil {
			s.logger.Debug("error closing listener", "error", err)
		}
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.logger.Error("accept failed", "error", err)
				continue
			}
		}
		s.onConn()
		handler := NewConnectionHandler(conn, s.dispatcher, s.logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			handler.Handle(ctx)
		}()
	}
}
