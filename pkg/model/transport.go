package model

// Header is a common structure for both forward requests and responses.
type Header struct {
	// Node field, which represents the information of the sending node
	Node Node `json:"node" codec:"node"`
}

// ForwardRequest carries a vote from a forwarding node to a backend node.
type ForwardRequest struct {
	Header
	// Vote is the vote received by the forwarding node.
	Vote Vote `json:"vote" codec:"vote"`
}

// ForwardResponse is the answer of a backend node.
type ForwardResponse struct {
	Header
	// Accepted reports whether the backend sink accepted the vote.
	Accepted bool `json:"accepted" codec:"accepted"`
	// Message is an optional human readable reason.
	Message string `json:"message,omitempty" codec:"message,omitempty"`
}

// TransportConfig is an interface representing the contract for a configuration object
// that can be validated.
type TransportConfig interface {
	Validate() error
}

// Server receives forwarded votes and hands them to a local sink.
type Server interface {
	// Start initiates the server to begin listening on the specified address.
	Start(listenAddress string, sink VoteSink, config TransportConfig) error
	// Stop closes the listener.
	Stop() error
}

// Client sends votes to backend nodes.
type Client interface {
	// InitConnections initializes a set of connections to the given nodes.
	// It returns an error if any connection fails.
	InitConnections(nodes []*Node, config TransportConfig) error

	// SendVote forwards the vote to the node with the given id.
	SendVote(nodeId string, request *ForwardRequest, response *ForwardResponse) error
}
