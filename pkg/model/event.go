package model

// ConnEvent represents the events in the lifecycle of a votifier connection,
// used to drive the connection Finite State Machine (FSM)
type ConnEvent string

const (
	// EventChallengeSent the greeting line was written
	EventChallengeSent ConnEvent = "challenge_sent"
	// EventHeaderRead a frame header with valid magic was read
	EventHeaderRead ConnEvent = "header_read"
	// EventBodyRead the frame body was read
	EventBodyRead ConnEvent = "body_read"
	// EventSignatureValid the envelope decoded and its signature matched
	EventSignatureValid ConnEvent = "signature_valid"
	// EventChallengeValid the payload challenge matched
	EventChallengeValid ConnEvent = "challenge_valid"
	// EventVoteValid the vote decoded and passed validation
	EventVoteValid ConnEvent = "vote_valid"
	// EventDispatch the vote was handed to the sink
	EventDispatch ConnEvent = "dispatch"
	// EventAbort the connection is rejected
	EventAbort ConnEvent = "abort"
)

func (e ConnEvent) String() string {
	return string(e)
}
