package reward

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/danl5/govotifier/pkg/log"
	"github.com/danl5/govotifier/pkg/model"
)

// Command is a reward command template bound to a vote.
type Command struct {
	Template string
	Vote     model.Vote
}

func (c Command) replacer() *strings.Replacer {
	return strings.NewReplacer(
		"{player}", c.Vote.Username,
		"{service}", c.Vote.ServiceName,
		"{address}", c.Vote.Address,
		"{timestamp}", c.Vote.Timestamp,
	)
}

// String returns the command line with every placeholder expanded.
func (c Command) String() string {
	return c.replacer().Replace(c.Template)
}

// Args splits the template on whitespace and then expands each word, so a
// vote field always stays within a single argument.
func (c Command) Args() []string {
	r := c.replacer()
	words := strings.Fields(c.Template)
	args := make([]string, len(words))
	for i, w := range words {
		args[i] = r.Replace(w)
	}
	return args
}

// LogExecutor only logs the commands it is given.
type LogExecutor struct {
	Logger log.Logger
}

func (e LogExecutor) Execute(_ context.Context, cmd Command) error {
	e.Logger.Info("reward command", "command", cmd.String())
	return nil
}

// ExecExecutor runs the command as a process, without a shell.
type ExecExecutor struct {
	// Dir is the working directory of the process, the current one if empty
	Dir string
}

func (e ExecExecutor) Execute(ctx context.Context, cmd Command) error {
	args := cmd.Args()
	if len(args) == 0 {
		return errors.New("empty command")
	}

	c := exec.CommandContext(ctx, args[0], args[1:]...)
	c.Dir = e.Dir
	var stderr bytes.Buffer
	c.Stderr = &stderr

	if err := c.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", args[0], err, msg)
		}
		return fmt.Errorf("%s: %w", args[0], err)
	}
	return nil
}

// LogBroadcaster logs announcements instead of sending them.
type LogBroadcaster struct {
	Logger log.Logger
}

func (b LogBroadcaster) Broadcast(_ context.Context, message string) error {
	b.Logger.Info("broadcast", "message", message)
	return nil
}
