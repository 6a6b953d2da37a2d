package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/danl5/govotifier/pkg/config"
	"github.com/danl5/govotifier/pkg/metrics"
	"github.com/danl5/govotifier/pkg/model"
	"github.com/danl5/govotifier/pkg/protocol"
)

const (
	// initial delay after a failed accept
	acceptRetryMin = 5 * time.Millisecond
	// maximum delay after repeated failed accepts
	acceptRetryMax = time.Second
)

// New creates a votifier server. m may be nil to disable metrics.
func New(cfg *config.Config, sink model.VoteSink, m *metrics.Metrics, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("new server, config is nil")
	}
	if sink == nil {
		return nil, errors.New("new server, sink is nil")
	}
	if logger == nil {
		return nil, errors.New("new server, logger is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("new server, %w", err)
	}

	return &Server{
		cfg:     cfg,
		sink:    sink,
		parser:  protocol.NewParser(clockwork.NewRealClock()),
		metrics: m,
		limits:  NewConnectionLimits(cfg.Limits),
		logger:  logger.With("component", "votifier server"),
	}, nil
}

// Server accepts votifier connections and serves each one on its own goroutine.
type Server struct {
	// cfg is read only once the server is created
	cfg *config.Config
	// sink receives every validated vote
	sink model.VoteSink
	// parser decodes vote payloads
	parser *protocol.Parser
	// metrics may be nil
	metrics *metrics.Metrics
	// limits is nil when no connection limit is configured
	limits *ConnectionLimits
	logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	running  atomic.Bool

	// acceptLoops tracks the accept goroutine
	acceptLoops sync.WaitGroup
	// handlers tracks in-flight connections
	handlers sync.WaitGroup
}

// Start binds the listener and starts accepting connections. A bind failure
// returns an error wrapping model.ErrBind and leaves the server stopped.
// Starting a running server only logs a warning.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		s.logger.Warn("votifier server is already running")
		return nil
	}

	address := s.cfg.Address()
	l, err := net.Listen("tcp", address)
	if err != nil {
		s.logger.Error("failed to start votifier server", "address", address, "error", err.Error())
		return fmt.Errorf("%w: %s", model.ErrBind, err.Error())
	}

	s.listener = l
	s.running.Store(true)
	s.acceptLoops.Add(1)
	go s.acceptLoop(l)

	s.logger.Info("votifier v2 server started", "address", l.Addr().String(), "debug", s.cfg.DebugMode)
	return nil
}

// Stop closes the listener. Connections already accepted are left to finish.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Swap(false) {
		return
	}

	if err := s.listener.Close(); err != nil {
		s.logger.Error("error stopping votifier server", "error", err.Error())
	}
	s.listener = nil
	s.logger.Info("votifier server stopped")
}

// IsRunning reports whether the server is accepting connections.
func (s *Server) IsRunning() bool {
	return s.running.Load()
}

// Addr returns the bound address, nil when stopped.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Wait blocks until the accept loop has exited and every in-flight
// connection is done, or ctx ends.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.acceptLoops.Wait()
		s.handlers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) acceptLoop(l net.Listener) {
	defer s.acceptLoops.Done()

	var delay time.Duration
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}

			// a single failed accept does not stop the server
			delay = nextAcceptDelay(delay)
			s.logger.Error("failed to accept votifier connection", "error", err.Error(), "retryIn", delay)
			time.Sleep(delay)
			continue
		}

		delay = 0
		s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	ip := remoteIP(conn.RemoteAddr())
	if s.limits != nil {
		if ok, reason := s.limits.Acquire(ip); !ok {
			s.metrics.ConnectionRejected(string(reason))
			if s.cfg.DebugMode {
				s.logger.Warn("connection refused by limit", "remote", ip, "reason", reason)
			}
			_ = conn.Close()
			return
		}
	}

	logger := s.logger.With("conn", uuid.NewString(), "remote", conn.RemoteAddr().String())
	h := newConnHandler(s, conn, logger)

	s.handlers.Add(1)
	go func() {
		defer s.handlers.Done()
		if s.limits != nil {
			defer s.limits.Release(ip)
		}
		h.serve(context.Background())
	}()
}

func nextAcceptDelay(delay time.Duration) time.Duration {
	if delay == 0 {
		return acceptRetryMin
	}
	delay *= 2
	if delay > acceptRetryMax {
		delay = acceptRetryMax
	}
	return delay
}
