package server

import (
	"github.com/looplab/fsm"

	"github.com/danl5/govotifier/pkg/model"
)

// newConnFSM builds the stage machine of one connection. Every stage can
// only be left forward or to the aborted state.
func newConnFSM(callbacks fsm.Callbacks) *fsm.FSM {
	return fsm.NewFSM(
		model.ConnStateGreeting.String(),
		fsm.Events{
			{
				Name: model.EventChallengeSent.String(),
				Src:  []string{model.ConnStateGreeting.String()},
				Dst:  model.ConnStateHeader.String(),
			},
			{
				Name: model.EventHeaderRead.String(),
				Src:  []string{model.ConnStateHeader.String()},
				Dst:  model.ConnStateBody.String(),
			},
			{
				Name: model.EventBodyRead.String(),
				Src:  []string{model.ConnStateBody.String()},
				Dst:  model.ConnStateEnvelope.String(),
			},
			{
				Name: model.EventSignatureValid.String(),
				Src:  []string{model.ConnStateEnvelope.String()},
				Dst:  model.ConnStateVerified.String(),
			},
			{
				Name: model.EventChallengeValid.String(),
				Src:  []string{model.ConnStateVerified.String()},
				Dst:  model.ConnStateChallenged.String(),
			},
			{
				Name: model.EventVoteValid.String(),
				Src:  []string{model.ConnStateChallenged.String()},
				Dst:  model.ConnStateDecoded.String(),
			},
			{
				Name: model.EventDispatch.String(),
				Src:  []string{model.ConnStateDecoded.String()},
				Dst:  model.ConnStateDispatched.String(),
			},
			{
				Name: model.EventAbort.String(),
				Src: []string{
					model.ConnStateGreeting.String(),
					model.ConnStateHeader.String(),
					model.ConnStateBody.String(),
					model.ConnStateEnvelope.String(),
					model.ConnStateVerified.String(),
					model.ConnStateChallenged.String(),
					model.ConnStateDecoded.String(),
					model.ConnStateDispatched.String(),
				},
				Dst: model.ConnStateAborted.String(),
			},
		},
		callbacks,
	)
}

// Visualize returns the connection state machine in Graphviz format.
func Visualize() string {
	return fsm.Visualize(newConnFSM(fsm.Callbacks{}))
}
