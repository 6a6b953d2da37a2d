package model

// ConnState represents the stage a votifier connection has reached.
type ConnState string

const (
	// ConnStateGreeting the challenge line is being sent
	ConnStateGreeting ConnState = "greeting"
	// ConnStateHeader waiting for the 4 byte frame header
	ConnStateHeader ConnState = "header"
	// ConnStateBody waiting for the frame body
	ConnStateBody ConnState = "body"
	// ConnStateEnvelope the body has been read, envelope not yet decoded
	ConnStateEnvelope ConnState = "envelope"
	// ConnStateVerified the payload signature has been checked
	ConnStateVerified ConnState = "verified"
	// ConnStateChallenged the payload challenge matched this connection
	ConnStateChallenged ConnState = "challenged"
	// ConnStateDecoded the vote has been decoded and validated
	ConnStateDecoded ConnState = "decoded"
	// ConnStateDispatched the vote was handed to the sink
	ConnStateDispatched ConnState = "dispatched"
	// ConnStateAborted the connection was rejected
	ConnStateAborted ConnState = "aborted"
)

func (s ConnState) String() string {
	return string(s)
}

// Status is the status field of a reply frame.
type Status string

const (
	// StatusOk is sent after a vote was dispatched
	StatusOk Status = "ok"
	// StatusError is sent for an authenticated but invalid message
	StatusError Status = "error"
)

func (s Status) String() string {
	return string(s)
}

// Reply returns the literal reply bytes for the status.
func (s Status) Reply() []byte {
	return []byte(`{"status":"` + string(s) + `"}`)
}
