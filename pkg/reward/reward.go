// Package reward turns accepted votes into reward commands and a broadcast
// announcement.
package reward

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/danl5/govotifier/pkg/config"
	"github.com/danl5/govotifier/pkg/model"
)

// Listener is notified of every vote before rewards are given. Returning
// false cancels the vote.
type Listener func(ctx context.Context, vote model.Vote) bool

// Executor runs one reward command.
type Executor interface {
	Execute(ctx context.Context, cmd Command) error
}

// Broadcaster announces a message to everyone.
type Broadcaster interface {
	Broadcast(ctx context.Context, message string) error
}

// Options are the reward settings of the votifier config.
type Options struct {
	Commands         []string
	Broadcast        bool
	BroadcastMessage string
	Debug            bool
}

// OptionsFrom takes the reward settings from cfg.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		Commands:         append([]string(nil), cfg.RewardCommands...),
		Broadcast:        cfg.BroadcastVotes,
		BroadcastMessage: cfg.BroadcastMessage,
		Debug:            cfg.DebugMode,
	}
}

// Rewarder is the vote sink that runs the reward commands of accepted votes.
type Rewarder struct {
	opts        Options
	executor    Executor
	broadcaster Broadcaster
	logger      *slog.Logger

	mu        sync.RWMutex
	listeners []Listener
}

// New creates a Rewarder. A nil broadcaster disables the announcement.
func New(opts Options, executor Executor, broadcaster Broadcaster, logger *slog.Logger) (*Rewarder, error) {
	if executor == nil {
		return nil, errors.New("new rewarder, executor is nil")
	}
	if logger == nil {
		return nil, errors.New("new rewarder, logger is nil")
	}

	return &Rewarder{
		opts:        opts,
		executor:    executor,
		broadcaster: broadcaster,
		logger:      logger.With("component", "rewarder"),
	}, nil
}

// AddListener registers a listener. Listeners run in registration order and
// every listener sees the vote even if an earlier one cancelled it.
func (r *Rewarder) AddListener(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// HandleVote notifies the listeners and, unless one cancelled the vote, gives
// the rewards and broadcasts the vote.
func (r *Rewarder) HandleVote(ctx context.Context, vote model.Vote) bool {
	if !r.notify(ctx, vote) {
		if r.opts.Debug {
			r.logger.Info("vote cancelled by listener", "vote", vote.String())
		}
		return false
	}

	r.giveRewards(ctx, vote)
	r.broadcast(ctx, vote)

	r.logger.Info("processed vote", "username", vote.Username, "service", vote.ServiceName)
	return true
}

func (r *Rewarder) notify(ctx context.Context, vote model.Vote) bool {
	r.mu.RLock()
	listeners := r.listeners
	r.mu.RUnlock()

	accepted := true
	for _, l := range listeners {
		if !l(ctx, vote) {
			accepted = false
		}
	}
	return accepted
}

func (r *Rewarder) giveRewards(ctx context.Context, vote model.Vote) {
	if len(r.opts.Commands) == 0 {
		r.logger.Warn("no reward commands configured")
		return
	}

	for _, template := range r.opts.Commands {
		cmd := Command{Template: template, Vote: vote}
		if err := r.executor.Execute(ctx, cmd); err != nil {
			r.logger.Error("failed to execute reward command", "command", cmd.String(), "error", err.Error())
			continue
		}
		if r.opts.Debug {
			r.logger.Info("executed reward command", "command", cmd.String())
		}
	}
}

func (r *Rewarder) broadcast(ctx context.Context, vote model.Vote) {
	if !r.opts.Broadcast || r.broadcaster == nil {
		return
	}

	message := BroadcastText(r.opts.BroadcastMessage, vote)
	if err := r.broadcaster.Broadcast(ctx, message); err != nil {
		r.logger.Error("failed to broadcast vote message", "error", err.Error())
	}
}

// BroadcastText expands {player} and {service}, then turns every & of the
// result into a section sign color code.
func BroadcastText(template string, vote model.Vote) string {
	text := strings.NewReplacer(
		"{player}", vote.Username,
		"{service}", vote.ServiceName,
	).Replace(template)
	return strings.ReplaceAll(text, "&", "§")
}
