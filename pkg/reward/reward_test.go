package reward

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danl5/govotifier/pkg/config"
	"github.com/danl5/govotifier/pkg/model"
)

var vote = model.Vote{
	ServiceName: "TopServers",
	Username:    "Steve",
	Address:     "203.0.113.7",
	Timestamp:   "1700000000000",
}

type recordingExecutor struct {
	mu       sync.Mutex
	commands []string
	fail     map[string]bool
}

func (e *recordingExecutor) Execute(_ context.Context, cmd Command) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.commands = append(e.commands, cmd.String())
	if e.fail[cmd.Template] {
		return errors.New("unknown command")
	}
	return nil
}

type recordingBroadcaster struct {
	messages []string
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, message string) error {
	b.messages = append(b.messages, message)
	return nil
}

func newRewarder(t *testing.T, opts Options, executor Executor, bc Broadcaster) (*Rewarder, *bytes.Buffer) {
	t.Helper()

	var logs bytes.Buffer
	r, err := New(opts, executor, bc, slog.New(slog.NewTextHandler(&logs, nil)))
	require.NoError(t, err)
	return r, &logs
}

func TestRewarder_HandleVote(t *testing.T) {
	executor := &recordingExecutor{}
	bc := &recordingBroadcaster{}
	opts := Options{
		Commands:         []string{"give {player} Rock_Gem_Diamond 1", "log {service} {address} {timestamp}"},
		Broadcast:        true,
		BroadcastMessage: "&6{player}&r voted on {service}!",
	}
	r, logs := newRewarder(t, opts, executor, bc)

	assert.True(t, r.HandleVote(context.Background(), vote))
	assert.Equal(t, []string{
		"give Steve Rock_Gem_Diamond 1",
		"log TopServers 203.0.113.7 1700000000000",
	}, executor.commands)
	assert.Equal(t, []string{"§6Steve§r voted on TopServers!"}, bc.messages)
	assert.Contains(t, logs.String(), "processed vote")
}

func TestRewarder_FailingCommandDoesNotStopTheRest(t *testing.T) {
	executor := &recordingExecutor{fail: map[string]bool{"broken {player}": true}}
	opts := Options{Commands: []string{"broken {player}", "give {player} 1"}}
	r, logs := newRewarder(t, opts, executor, nil)

	assert.True(t, r.HandleVote(context.Background(), vote))
	assert.Equal(t, []string{"broken Steve", "give Steve 1"}, executor.commands)
	assert.Contains(t, logs.String(), "failed to execute reward command")
}

func TestRewarder_NoCommands(t *testing.T) {
	bc := &recordingBroadcaster{}
	opts := Options{Broadcast: true, BroadcastMessage: "{player}"}
	r, logs := newRewarder(t, opts, &recordingExecutor{}, bc)

	assert.True(t, r.HandleVote(context.Background(), vote))
	assert.Contains(t, logs.String(), "no reward commands configured")
	assert.Equal(t, []string{"Steve"}, bc.messages)
}

func TestRewarder_BroadcastDisabled(t *testing.T) {
	bc := &recordingBroadcaster{}
	opts := Options{Commands: []string{"give {player} 1"}, BroadcastMessage: "{player}"}
	r, _ := newRewarder(t, opts, &recordingExecutor{}, bc)

	assert.True(t, r.HandleVote(context.Background(), vote))
	assert.Empty(t, bc.messages)
}

func TestRewarder_Listeners(t *testing.T) {
	tests := []struct {
		name      string
		results   []bool
		wantOk    bool
		wantCalls int
	}{
		{name: "no_listeners", wantOk: true},
		{name: "all_accept", results: []bool{true, true}, wantOk: true, wantCalls: 2},
		{name: "first_cancels", results: []bool{false, true}, wantOk: false, wantCalls: 2},
		{name: "last_cancels", results: []bool{true, false}, wantOk: false, wantCalls: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executor := &recordingExecutor{}
			opts := Options{Commands: []string{"give {player} 1"}, Debug: true}
			r, logs := newRewarder(t, opts, executor, nil)

			calls := 0
			for _, result := range tt.results {
				result := result
				r.AddListener(func(_ context.Context, v model.Vote) bool {
					calls++
					assert.Equal(t, vote, v)
					return result
				})
			}

			assert.Equal(t, tt.wantOk, r.HandleVote(context.Background(), vote))
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantOk {
				assert.Len(t, executor.commands, 1)
			} else {
				assert.Empty(t, executor.commands)
				assert.Contains(t, logs.String(), "vote cancelled by listener")
			}
		})
	}
}

func TestNew_Errors(t *testing.T) {
	_, err := New(Options{}, nil, nil, slog.Default())
	assert.Error(t, err)
	_, err = New(Options{}, &recordingExecutor{}, nil, nil)
	assert.Error(t, err)
}

func TestOptionsFrom(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.DebugMode = true

	opts := OptionsFrom(cfg)
	assert.Equal(t, config.DefaultRewardCommands, opts.Commands)
	assert.True(t, opts.Broadcast)
	assert.Equal(t, config.DefaultBroadcastMessage, opts.BroadcastMessage)
	assert.True(t, opts.Debug)

	opts.Commands[0] = "changed"
	assert.NotEqual(t, "changed", cfg.RewardCommands[0])
}

func TestBroadcastText(t *testing.T) {
	tests := []struct {
		template string
		want     string
	}{
		{template: "{player} has voted for the server! Thank you!", want: "Steve has voted for the server! Thank you!"},
		{template: "&a{player}&r via {service}", want: "§aSteve§r via TopServers"},
		{template: "{address} {timestamp}", want: "{address} {timestamp}"},
	}
	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			assert.Equal(t, tt.want, BroadcastText(tt.template, vote))
		})
	}
}

func TestCommand_Args(t *testing.T) {
	v := vote
	v.Username = "Steve; rm -rf /"

	cmd := Command{Template: "give  {player} Rock_Gem_Diamond 1", Vote: v}
	assert.Equal(t, []string{"give", "Steve; rm -rf /", "Rock_Gem_Diamond", "1"}, cmd.Args())
	assert.Equal(t, "give  Steve; rm -rf / Rock_Gem_Diamond 1", cmd.String())
}

func TestLogExecutor(t *testing.T) {
	var logs bytes.Buffer
	e := LogExecutor{Logger: slog.New(slog.NewTextHandler(&logs, nil))}

	require.NoError(t, e.Execute(context.Background(), Command{Template: "give {player} 1", Vote: vote}))
	assert.Contains(t, logs.String(), `command="give Steve 1"`)
}

func TestLogBroadcaster(t *testing.T) {
	var logs bytes.Buffer
	b := LogBroadcaster{Logger: slog.New(slog.NewTextHandler(&logs, nil))}

	require.NoError(t, b.Broadcast(context.Background(), "hello"))
	assert.Contains(t, logs.String(), "message=hello")
}

func TestExecExecutor(t *testing.T) {
	if _, err := exec.LookPath("touch"); err != nil {
		t.Skip("touch is not available")
	}
	dir := t.TempDir()
	e := ExecExecutor{Dir: dir}

	v := vote
	v.Username = "Steve;touch injected"
	require.NoError(t, e.Execute(context.Background(), Command{Template: "touch {player}", Vote: v}))

	_, err := os.Stat(filepath.Join(dir, v.Username))
	assert.NoError(t, err, "the vote field is a single argument")
	_, err = os.Stat(filepath.Join(dir, "injected"))
	assert.True(t, os.IsNotExist(err))
}

func TestExecExecutor_Errors(t *testing.T) {
	e := ExecExecutor{}

	err := e.Execute(context.Background(), Command{Template: "   "})
	assert.Error(t, err)

	err = e.Execute(context.Background(), Command{Template: "votifier-command-that-does-not-exist {player}", Vote: vote})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "votifier-command-that-does-not-exist"))
}
