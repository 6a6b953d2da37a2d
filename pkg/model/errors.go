package model

import "errors"

var (
	// ErrBind is returned when the listening socket can not be created.
	ErrBind = errors.New("bind error")
	// ErrFrame means the frame header, magic or body could not be trusted.
	ErrFrame = errors.New("malformed frame")
	// ErrEnvelopeDecode means the outer signature/payload envelope is not a JSON object.
	ErrEnvelopeDecode = errors.New("envelope decode error")
	// ErrPayloadDecode means the signed payload is not a JSON object.
	ErrPayloadDecode = errors.New("payload decode error")
	// ErrSignatureMismatch means the payload signature does not match the shared token.
	ErrSignatureMismatch = errors.New("signature mismatch")
	// ErrChallengeMismatch means the payload was signed for another handshake.
	ErrChallengeMismatch = errors.New("challenge mismatch")
	// ErrVoteInvalid means the vote could not be decoded or has blank fields.
	ErrVoteInvalid = errors.New("invalid vote")
	// ErrIO is any other socket failure during a connection.
	ErrIO = errors.New("connection io error")
)
