package model

import (
	"context"
	"fmt"
)

// Vote is a single vote notification received from a vote site.
// All fields are free-form text as sent by the site.
type Vote struct {
	// ServiceName is the name of the vote site
	ServiceName string `json:"serviceName" mapstructure:"serviceName" codec:"serviceName"`
	// Username is the player that voted
	Username string `json:"username" mapstructure:"username" codec:"username"`
	// Address is the address the vote was cast from
	Address string `json:"address" mapstructure:"address" codec:"address"`
	// Timestamp is the vote time as reported by the site
	Timestamp string `json:"timestamp" mapstructure:"timestamp" codec:"timestamp"`
}

func (v Vote) String() string {
	return fmt.Sprintf("Vote(service=%s, username=%s, address=%s, timestamp=%s)",
		v.ServiceName, v.Username, v.Address, v.Timestamp)
}

// VoteSink receives every vote that passed authentication and validation.
// Implementations are called concurrently from many connections.
type VoteSink interface {
	// HandleVote processes the vote and reports whether it was accepted.
	// A false result means the sink vetoed the vote.
	HandleVote(ctx context.Context, vote Vote) bool
}

// VoteSinkFunc adapts a function to the VoteSink interface.
type VoteSinkFunc func(ctx context.Context, vote Vote) bool

func (f VoteSinkFunc) HandleVote(ctx context.Context, vote Vote) bool {
	return f(ctx, vote)
}
