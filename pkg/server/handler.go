package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/looplab/fsm"

	"github.com/danl5/govotifier/pkg/metrics"
	"github.com/danl5/govotifier/pkg/model"
	"github.com/danl5/govotifier/pkg/protocol"
)

// connHandler runs the exchange of exactly one accepted connection.
type connHandler struct {
	conn        net.Conn
	token       string
	debug       bool
	readTimeout time.Duration
	sinkTimeout time.Duration
	sink        model.VoteSink
	parser      *protocol.Parser
	metrics     *metrics.Metrics
	logger      *slog.Logger

	// fsm tracks the stage the exchange has reached
	fsm *fsm.FSM
	// challenge is the nonce sent to this connection only
	challenge string
}

func newConnHandler(s *Server, conn net.Conn, logger *slog.Logger) *connHandler {
	h := &connHandler{
		conn:        conn,
		token:       s.cfg.Token,
		debug:       s.cfg.DebugMode,
		readTimeout: s.cfg.ReadTimeoutDuration(),
		sinkTimeout: s.cfg.SinkTimeoutDuration(),
		sink:        s.sink,
		parser:      s.parser,
		metrics:     s.metrics,
		logger:      logger,
	}
	h.fsm = newConnFSM(fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) {
			h.debugLog(slog.LevelDebug, "connection stage", "from", e.Src, "to", e.Dst)
		},
	})
	return h
}

// serve runs the exchange and closes the connection on every path.
func (h *connHandler) serve(ctx context.Context) {
	started := time.Now()
	h.metrics.ConnectionOpened()
	defer h.metrics.ConnectionClosed(started)
	defer h.conn.Close()
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic while serving votifier connection", "panic", r)
		}
	}()

	if h.readTimeout > 0 {
		_ = h.conn.SetDeadline(started.Add(h.readTimeout))
	}

	err := h.exchange(ctx)
	if err == nil {
		return
	}

	stage := h.fsm.Current()
	_ = h.fsm.Event(ctx, model.EventAbort.String())
	h.metrics.ConnectionFailed(stage)

	reply := replyFor(err)
	if reply {
		h.metrics.VoteProcessed(metrics.ResultError)
		if werr := h.write(model.StatusError.Reply()); werr != nil {
			h.debugLog(slog.LevelWarn, "failed to write error reply", "error", werr.Error())
		}
	}
	h.debugLog(slog.LevelWarn, "rejected votifier connection", "stage", stage, "replied", reply, "error", err.Error())
}

// replyFor reports whether a failed exchange is answered with an error
// status. Only messages that made it past the frame and envelope decoding
// are answered, everything else is closed silently.
func replyFor(err error) bool {
	switch {
	case errors.Is(err, model.ErrPayloadDecode),
		errors.Is(err, model.ErrSignatureMismatch),
		errors.Is(err, model.ErrChallengeMismatch),
		errors.Is(err, model.ErrVoteInvalid):
		return true
	default:
		return false
	}
}

func (h *connHandler) exchange(ctx context.Context) error {
	challenge, err := protocol.NewChallenge()
	if err != nil {
		return fmt.Errorf("%w: generate challenge: %s", model.ErrIO, err.Error())
	}
	h.challenge = challenge

	if err := h.write(protocol.Greeting(challenge)); err != nil {
		return err
	}
	h.debugLog(slog.LevelInfo, "sent challenge", "challenge", challenge)
	if err := h.transition(ctx, model.EventChallengeSent); err != nil {
		return err
	}

	length, err := protocol.ReadHeader(h.conn)
	if err != nil {
		return err
	}
	if err := h.transition(ctx, model.EventHeaderRead); err != nil {
		return err
	}

	body, err := protocol.ReadBody(h.conn, length)
	if err != nil {
		return err
	}
	h.debugLog(slog.LevelInfo, "received message", "length", length, "read", len(body), "message", string(body))
	if err := h.transition(ctx, model.EventBodyRead); err != nil {
		return err
	}

	envelope, err := protocol.DecodeEnvelope(body)
	if err != nil {
		return err
	}
	if !protocol.Verify(envelope.Payload, h.token, envelope.Signature) {
		return model.ErrSignatureMismatch
	}
	if err := h.transition(ctx, model.EventSignatureValid); err != nil {
		return err
	}

	received, err := protocol.DecodeChallenge(envelope.Payload)
	if err != nil {
		return err
	}
	if received != h.challenge {
		return fmt.Errorf("%w: got %q", model.ErrChallengeMismatch, received)
	}
	if err := h.transition(ctx, model.EventChallengeValid); err != nil {
		return err
	}

	vote, err := h.parser.Parse(envelope.Payload)
	if err != nil {
		return fmt.Errorf("%w: %s", model.ErrVoteInvalid, err.Error())
	}
	if !protocol.Validate(vote) {
		return fmt.Errorf("%w: blank field in %s", model.ErrVoteInvalid, vote)
	}
	if err := h.transition(ctx, model.EventVoteValid); err != nil {
		return err
	}

	accepted := h.dispatch(ctx, vote)
	if err := h.transition(ctx, model.EventDispatch); err != nil {
		return err
	}
	// the vote is handed off, a slow sink must not cost the reply
	if h.readTimeout > 0 {
		_ = h.conn.SetWriteDeadline(time.Now().Add(h.readTimeout))
	}
	if err := h.write(model.StatusOk.Reply()); err != nil {
		return err
	}

	result := metrics.ResultOk
	if !accepted {
		result = metrics.ResultVetoed
	}
	h.metrics.VoteProcessed(result)
	h.debugLog(slog.LevelInfo, "received vote", "vote", vote.String(), "accepted", accepted)
	return nil
}

// dispatch hands the vote to the sink on this connection's goroutine.
func (h *connHandler) dispatch(ctx context.Context, vote model.Vote) bool {
	if h.sinkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.sinkTimeout)
		defer cancel()
	}
	return h.sink.HandleVote(ctx, vote)
}

func (h *connHandler) transition(ctx context.Context, ev model.ConnEvent) error {
	if err := h.fsm.Event(ctx, ev.String()); err != nil {
		return fmt.Errorf("%w: stage %s, event %s: %s", model.ErrIO, h.fsm.Current(), ev, err.Error())
	}
	return nil
}

func (h *connHandler) write(data []byte) error {
	if _, err := h.conn.Write(data); err != nil {
		return fmt.Errorf("%w: write: %s", model.ErrIO, err.Error())
	}
	return nil
}

// debugLog logs per connection diagnostics, only in debug mode.
func (h *connHandler) debugLog(level slog.Level, msg string, args ...any) {
	if !h.debug {
		return
	}
	h.logger.Log(context.Background(), level, msg, args...)
}
