package govotifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/danl5/govotifier/pkg/config"
	"github.com/danl5/govotifier/pkg/forward"
	"github.com/danl5/govotifier/pkg/metrics"
	"github.com/danl5/govotifier/pkg/model"
	"github.com/danl5/govotifier/pkg/server"
	"github.com/danl5/govotifier/pkg/transport/rpc"
)

const (
	// metricsReadHeaderTimeout bounds slow metrics scrapers
	metricsReadHeaderTimeout = 5 * time.Second
	// metricsPath serves the prometheus metrics
	metricsPath = "/metrics"
)

// NewVotifier creates a votifier from cfg. Votes handled on this node go to
// sink; when forward backends are configured, votes received from vote sites
// are relayed to the backends instead.
func NewVotifier(cfg *config.Config, sink model.VoteSink, logger *slog.Logger) (*Votifier, error) {
	if cfg == nil {
		return nil, errors.New("new votifier, config is nil")
	}
	if sink == nil {
		return nil, errors.New("new votifier, sink is nil")
	}
	if logger == nil {
		return nil, errors.New("new votifier, logger is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	v := &Votifier{
		cfg:      cfg,
		sink:     sink,
		logger:   logger.With("component", "votifier"),
		registry: metrics.NewRegistry(),
		errChan:  make(chan error, 10),
	}
	v.metrics = metrics.New(v.registry)

	voteSink := sink
	if cfg.Forward.Enabled() || cfg.Forward.Listen != "" {
		transport, err := rpc.NewRPC(v.forwardNode(), logger)
		if err != nil {
			return nil, err
		}
		v.transport = transport

		if cfg.Forward.Enabled() {
			v.forwarder, err = forward.NewForwarder(v.forwardNode(), cfg.Forward.Backends, &transport.Client, logger)
			if err != nil {
				return nil, err
			}
			voteSink = v.forwarder
		}
	}

	srv, err := server.New(cfg, voteSink, v.metrics, logger)
	if err != nil {
		return nil, err
	}
	v.server = srv
	return v, nil
}

// Votifier runs the votifier server together with vote forwarding and the
// metrics endpoint.
type Votifier struct {
	cfg    *config.Config
	sink   model.VoteSink
	logger *slog.Logger

	server *server.Server
	// transport is nil unless forwarding is configured
	transport *rpc.RPC
	// forwarder is nil unless forward backends are configured
	forwarder *forward.Forwarder

	registry      *prometheus.Registry
	metrics       *metrics.Metrics
	metricsServer *http.Server
	metricsAddr   net.Addr

	// errChan is a channel for errors of background components
	errChan chan error
	stopped sync.Once
}

// Run starts the forward receiver, the metrics endpoint and the votifier
// server. A component that fails to start stops those already running.
func (v *Votifier) Run() error {
	if err := v.startForwarding(); err != nil {
		v.logger.Error("votifier, failed to start vote forwarding", "error", err.Error())
		v.shutdown(context.Background())
		return err
	}

	if err := v.startMetrics(); err != nil {
		v.logger.Error("votifier, failed to start metrics server", "error", err.Error())
		v.shutdown(context.Background())
		return err
	}

	if err := v.server.Start(); err != nil {
		v.shutdown(context.Background())
		return err
	}

	v.logger.Info("votifier started", "config", v.cfg)
	return nil
}

// Stop stops every component and waits for in-flight connections until ctx
// ends.
func (v *Votifier) Stop(ctx context.Context) error {
	err := v.shutdown(ctx)
	v.logger.Info("votifier stopped")
	return err
}

// Errors returns a receive-only channel of errors raised by background
// components after Run returned.
func (v *Votifier) Errors() <-chan error {
	return v.errChan
}

// Addr returns the address of the votifier server, nil when not running.
func (v *Votifier) Addr() net.Addr {
	return v.server.Addr()
}

// ForwardAddr returns the address receiving forwarded votes, nil when not
// listening.
func (v *Votifier) ForwardAddr() net.Addr {
	if v.transport == nil {
		return nil
	}
	return v.transport.Addr()
}

// MetricsAddr returns the address of the metrics endpoint, nil when disabled.
func (v *Votifier) MetricsAddr() net.Addr {
	return v.metricsAddr
}

// Registry returns the prometheus registry holding the votifier metrics.
func (v *Votifier) Registry() *prometheus.Registry {
	return v.registry
}

func (v *Votifier) forwardNode() model.Node {
	address := v.cfg.Forward.Listen
	if address == "" {
		address = v.cfg.Address()
	}
	return model.Node{ID: v.cfg.Forward.NodeID, Address: address}
}

func (v *Votifier) startForwarding() error {
	if v.transport == nil {
		return nil
	}

	if v.cfg.Forward.Listen != "" {
		err := v.transport.Start(v.cfg.Forward.Listen, v.sink, &v.cfg.Forward.Transport)
		if err != nil {
			return err
		}
	}

	if v.forwarder != nil {
		nodes := make([]*model.Node, 0, len(v.cfg.Forward.Backends))
		for i := range v.cfg.Forward.Backends {
			nodes = append(nodes, &v.cfg.Forward.Backends[i])
		}
		if err := v.transport.InitConnections(nodes, &v.cfg.Forward.Transport); err != nil {
			return err
		}
		v.logger.Info("forwarding votes", "backends", len(nodes))
	}
	return nil
}

func (v *Votifier) startMetrics() error {
	if v.cfg.MetricsAddress == "" {
		return nil
	}

	l, err := net.Listen("tcp", v.cfg.MetricsAddress)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle(metricsPath, metrics.Handler(v.registry))
	v.metricsServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}
	v.metricsAddr = l.Addr()

	go func() {
		err := v.metricsServer.Serve(l)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			v.logger.Error("votifier, metrics server failed", "error", err.Error())
			v.sendError(err)
		}
	}()

	v.logger.Info("metrics server started", "address", l.Addr().String())
	return nil
}

func (v *Votifier) shutdown(ctx context.Context) error {
	var err error
	v.stopped.Do(func() {
		g := errgroup.Group{}
		g.Go(func() error {
			v.server.Stop()
			return v.server.Wait(ctx)
		})
		if v.transport != nil {
			g.Go(func() error {
				v.transport.Close()
				return v.transport.Stop()
			})
		}
		if v.metricsServer != nil {
			g.Go(func() error {
				return v.metricsServer.Shutdown(ctx)
			})
		}
		err = g.Wait()
	})
	return err
}

func (v *Votifier) sendError(err error) {
	select {
	case v.errChan <- err:
	default:
	}
}
