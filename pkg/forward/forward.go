// Package forward relays accepted votes to backend votifier nodes.
package forward

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/danl5/govotifier/pkg/model"
)

const (
	// breakerFailures opens the breaker of a backend after this many consecutive failures
	breakerFailures = 3
	// breakerTimeout is how long an open breaker rejects votes before probing again
	breakerTimeout = 30 * time.Second
)

// NewForwarder creates a vote sink that sends every vote to all backends
// through client. The client must already be connected to the backends.
func NewForwarder(node model.Node, backends []model.Node, client model.Client, logger *slog.Logger) (*Forwarder, error) {
	if err := node.Validate(); err != nil {
		return nil, err
	}
	if len(backends) == 0 {
		return nil, errors.New("new forwarder, no backends")
	}
	if client == nil {
		return nil, errors.New("new forwarder, client is nil")
	}
	if logger == nil {
		return nil, errors.New("new forwarder, logger is nil")
	}

	f := &Forwarder{
		node:     node,
		backends: append([]model.Node(nil), backends...),
		client:   client,
		logger:   logger.With("component", "forwarder"),
		breakers: make(map[string]*gobreaker.CircuitBreaker, len(backends)),
	}
	for _, backend := range backends {
		f.breakers[backend.ID] = f.newBreaker(backend.ID)
	}
	return f, nil
}

// Forwarder is a vote sink that fans votes out to backend nodes.
type Forwarder struct {
	node     model.Node
	backends []model.Node
	client   model.Client
	logger   *slog.Logger

	// breakers skip backends that keep failing, by backend id
	breakers map[string]*gobreaker.CircuitBreaker
}

// HandleVote sends the vote to every backend concurrently. The vote is
// accepted if at least one backend accepted it.
func (f *Forwarder) HandleVote(ctx context.Context, vote model.Vote) bool {
	var accepted atomic.Int32
	g := errgroup.Group{}
	for _, backend := range f.backends {
		backendID := backend.ID
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("backend %s: %w", backendID, err)
			}

			resp := &model.ForwardResponse{}
			_, err := f.breakers[backendID].Execute(func() (interface{}, error) {
				return nil, f.client.SendVote(backendID, &model.ForwardRequest{
					Header: model.Header{Node: f.node},
					Vote:   vote,
				}, resp)
			})
			if err != nil {
				f.logger.Error("failed to forward vote", "backend", backendID, "error", err.Error())
				return fmt.Errorf("backend %s: %s", backendID, err.Error())
			}
			if !resp.Accepted {
				f.logger.Warn("backend did not accept vote", "backend", backendID, "message", resp.Message)
				return nil
			}

			accepted.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		f.logger.Debug("forward error", "error", err.Error())
	}

	f.logger.Debug("forwarded vote", "username", vote.Username,
		"accepted", accepted.Load(), "backends", len(f.backends))
	return accepted.Load() > 0
}

func (f *Forwarder) newBreaker(backendID string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    backendID,
		Timeout: breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			f.logger.Warn("backend circuit breaker state changed",
				"backend", name, "from", from.String(), "to", to.String())
		},
	})
}
