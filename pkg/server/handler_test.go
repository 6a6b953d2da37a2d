package server

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/looplab/fsm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danl5/govotifier/pkg/model"
)

func TestReplyFor(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{err: model.ErrFrame, want: false},
		{err: model.ErrEnvelopeDecode, want: false},
		{err: model.ErrIO, want: false},
		{err: errors.New("unexpected"), want: false},
		{err: model.ErrPayloadDecode, want: true},
		{err: model.ErrSignatureMismatch, want: true},
		{err: fmt.Errorf("%w: got %q", model.ErrChallengeMismatch, "x"), want: true},
		{err: fmt.Errorf("%w: blank field", model.ErrVoteInvalid), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, replyFor(tt.err))
		})
	}
}

func TestConnFSM(t *testing.T) {
	ctx := context.Background()
	machine := newConnFSM(fsm.Callbacks{})
	assert.Equal(t, model.ConnStateGreeting.String(), machine.Current())

	// stages can not be skipped
	err := machine.Event(ctx, model.EventBodyRead.String())
	assert.Error(t, err)

	steps := []struct {
		event model.ConnEvent
		state model.ConnState
	}{
		{event: model.EventChallengeSent, state: model.ConnStateHeader},
		{event: model.EventHeaderRead, state: model.ConnStateBody},
		{event: model.EventBodyRead, state: model.ConnStateEnvelope},
		{event: model.EventSignatureValid, state: model.ConnStateVerified},
		{event: model.EventChallengeValid, state: model.ConnStateChallenged},
		{event: model.EventVoteValid, state: model.ConnStateDecoded},
		{event: model.EventDispatch, state: model.ConnStateDispatched},
	}
	for _, step := range steps {
		require.NoError(t, machine.Event(ctx, step.event.String()))
		assert.Equal(t, step.state.String(), machine.Current())
	}

	require.NoError(t, machine.Event(ctx, model.EventAbort.String()))
	assert.Equal(t, model.ConnStateAborted.String(), machine.Current())
	assert.Error(t, machine.Event(ctx, model.EventAbort.String()), "aborted is final")
}

func TestVisualize(t *testing.T) {
	out := Visualize()
	assert.Contains(t, out, "digraph fsm")
	assert.Contains(t, out, model.ConnStateGreeting.String())
	assert.Contains(t, out, model.EventSignatureValid.String())
	assert.Contains(t, out, model.ConnStateAborted.String())
}
