// Package client sends votes to a votifier v2 server, the way vote sites do.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/danl5/govotifier/pkg/model"
	"github.com/danl5/govotifier/pkg/protocol"
)

// ErrNoReply means the server closed the connection without a status reply.
var ErrNoReply = errors.New("server closed the connection without a reply")

const (
	// defaultTimeout bounds a whole exchange when ctx carries no deadline
	defaultTimeout = 10 * time.Second
	// maxReplySize is more than any status reply
	maxReplySize = 1024
)

// Send performs one handshake with the server at address and returns the
// status it replied with.
func Send(ctx context.Context, address, token string, vote model.Vote) (model.Status, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return "", fmt.Errorf("dial votifier server: %w", err)
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	_ = conn.SetDeadline(deadline)

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read greeting: %w", err)
	}
	challenge, err := protocol.ParseGreeting(line)
	if err != nil {
		return "", err
	}

	payload, err := protocol.EncodePayload(protocol.NewPayload(challenge, vote))
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	body, err := protocol.Seal(payload, token)
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}
	if err := protocol.WriteFrame(conn, body); err != nil {
		return "", fmt.Errorf("write frame: %w", err)
	}

	reply, err := io.ReadAll(io.LimitReader(reader, maxReplySize))
	if err != nil {
		return "", fmt.Errorf("read reply: %w", err)
	}
	if len(reply) == 0 {
		return "", ErrNoReply
	}
	return protocol.DecodeStatus(reply)
}
