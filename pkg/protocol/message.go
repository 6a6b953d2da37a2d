package protocol

import (
	"fmt"

	"github.com/danl5/govotifier/pkg/model"
)

// Envelope is the outer message of a frame body.
type Envelope struct {
	Signature string `mapstructure:"signature" codec:"signature"`
	Payload   string `mapstructure:"payload" codec:"payload"`
}

// Payload is the signed inner message.
type Payload struct {
	Challenge   string `mapstructure:"challenge" codec:"challenge"`
	ServiceName string `mapstructure:"serviceName" codec:"serviceName"`
	Username    string `mapstructure:"username" codec:"username"`
	Address     string `mapstructure:"address" codec:"address"`
	Timestamp   string `mapstructure:"timestamp" codec:"timestamp"`
}

// NewPayload binds a vote to the challenge of one handshake.
func NewPayload(challenge string, vote model.Vote) Payload {
	return Payload{
		Challenge:   challenge,
		ServiceName: vote.ServiceName,
		Username:    vote.Username,
		Address:     vote.Address,
		Timestamp:   vote.Timestamp,
	}
}

// DecodeEnvelope decodes a frame body. Missing members default to "".
func DecodeEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := decodeObject(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %s", model.ErrEnvelopeDecode, err.Error())
	}
	return env, nil
}

// DecodeChallenge returns the challenge member of a payload, "" if absent.
func DecodeChallenge(payload string) (string, error) {
	var p struct {
		Challenge string `mapstructure:"challenge"`
	}
	if err := decodeObject([]byte(payload), &p); err != nil {
		return "", fmt.Errorf("%w: %s", model.ErrPayloadDecode, err.Error())
	}
	return p.Challenge, nil
}

// EncodePayload renders the payload as JSON text.
func EncodePayload(p Payload) (string, error) {
	out, err := encodeJSON(p)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Seal signs the payload with token and returns the frame body.
func Seal(payload, token string) ([]byte, error) {
	return encodeJSON(Envelope{
		Signature: Sign(payload, token),
		Payload:   payload,
	})
}

// DecodeStatus decodes the reply sent by the server after a frame.
func DecodeStatus(reply []byte) (model.Status, error) {
	var r struct {
		Status string `mapstructure:"status"`
	}
	if err := decodeObject(reply, &r); err != nil {
		return "", fmt.Errorf("decode reply: %w", err)
	}
	switch status := model.Status(r.Status); status {
	case model.StatusOk, model.StatusError:
		return status, nil
	default:
		return "", fmt.Errorf("unexpected reply status %q", r.Status)
	}
}
