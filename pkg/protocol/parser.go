package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/danl5/govotifier/pkg/model"
)

const (
	defaultServiceName = "Unknown"
	defaultAddress     = "0.0.0.0"
)

var defaultParser = NewParser(clockwork.NewRealClock())

// Parser decodes vote payloads. The clock supplies the timestamp of votes
// that do not carry one.
type Parser struct {
	clock clockwork.Clock
}

func NewParser(clock clockwork.Clock) *Parser {
	return &Parser{clock: clock}
}

// Parse decodes a payload with the default parser.
func Parse(payload string) (model.Vote, error) {
	return defaultParser.Parse(payload)
}

// Parse decodes a vote from its JSON payload. Missing members are filled
// with defaults; only a payload that is not a JSON object is an error.
func (p *Parser) Parse(payload string) (model.Vote, error) {
	vote := model.Vote{
		ServiceName: defaultServiceName,
		Address:     defaultAddress,
		Timestamp:   strconv.FormatInt(p.clock.Now().UnixMilli(), 10),
	}
	if err := decodeObject([]byte(payload), &vote); err != nil {
		return model.Vote{}, fmt.Errorf("parse vote: %w", err)
	}
	return vote, nil
}

// Validate reports whether every field of the vote holds a non blank value.
func Validate(vote model.Vote) bool {
	for _, field := range []string{vote.ServiceName, vote.Username, vote.Address, vote.Timestamp} {
		if strings.TrimSpace(field) == "" {
			return false
		}
	}
	return true
}
