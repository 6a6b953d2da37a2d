package rpc

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danl5/govotifier/pkg/model"
)

type recordingSink struct {
	mu     sync.Mutex
	votes  []model.Vote
	accept bool
}

func (r *recordingSink) HandleVote(_ context.Context, vote model.Vote) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.votes = append(r.votes, vote)
	return r.accept
}

func (r *recordingSink) received() []model.Vote {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Vote(nil), r.votes...)
}

func startBackend(t *testing.T, sink model.VoteSink) *RPC {
	t.Helper()

	backend, err := NewRPC(model.Node{ID: "lobby", Address: "127.0.0.1:0"}, slog.Default())
	require.NoError(t, err)
	require.NoError(t, backend.Start("127.0.0.1:0", sink, &Config{}))
	t.Cleanup(func() { _ = backend.Stop() })
	return backend
}

func newForwarder(t *testing.T, backendAddr string) *RPC {
	t.Helper()

	proxy, err := NewRPC(model.Node{ID: "proxy", Address: "127.0.0.1:0"}, slog.Default())
	require.NoError(t, err)
	require.NoError(t, proxy.InitConnections([]*model.Node{{ID: "lobby", Address: backendAddr}}, &Config{ConnectTimeout: 2}))
	t.Cleanup(proxy.Close)
	return proxy
}

func TestNewRPC(t *testing.T) {
	_, err := NewRPC(model.Node{ID: "a", Address: "b"}, nil)
	assert.Error(t, err)

	_, err = NewRPC(model.Node{Address: "b"}, slog.Default())
	assert.Error(t, err)
}

func TestRPC_ForwardVote(t *testing.T) {
	sink := &recordingSink{accept: true}
	backend := startBackend(t, sink)
	proxy := newForwarder(t, backend.Addr().String())

	vote := model.Vote{ServiceName: "TopSites", Username: "steve", Address: "10.0.0.1", Timestamp: "1700000000000"}
	for i := 0; i < 3; i++ {
		resp := &model.ForwardResponse{}
		err := proxy.SendVote("lobby", &model.ForwardRequest{
			Header: model.Header{Node: model.Node{ID: "proxy", Address: "127.0.0.1:0"}},
			Vote:   vote,
		}, resp)
		require.NoError(t, err)
		assert.True(t, resp.Accepted)
		assert.Equal(t, "lobby", resp.Node.ID)
	}

	assert.Equal(t, []model.Vote{vote, vote, vote}, sink.received())
}

func TestRPC_ForwardVetoedVote(t *testing.T) {
	sink := &recordingSink{accept: false}
	backend := startBackend(t, sink)
	proxy := newForwarder(t, backend.Addr().String())

	resp := &model.ForwardResponse{}
	err := proxy.SendVote("lobby", &model.ForwardRequest{
		Vote: model.Vote{ServiceName: "s", Username: "u", Address: "a", Timestamp: "t"},
	}, resp)
	require.NoError(t, err)
	assert.False(t, resp.Accepted)
	assert.Len(t, sink.received(), 1)
}

func TestRPC_ForwardInvalidVote(t *testing.T) {
	sink := &recordingSink{accept: true}
	backend := startBackend(t, sink)
	proxy := newForwarder(t, backend.Addr().String())

	resp := &model.ForwardResponse{}
	err := proxy.SendVote("lobby", &model.ForwardRequest{
		Vote: model.Vote{ServiceName: "s", Username: " ", Address: "a", Timestamp: "t"},
	}, resp)
	require.NoError(t, err)
	assert.False(t, resp.Accepted)
	assert.Equal(t, model.ErrVoteInvalid.Error(), resp.Message)
	assert.Empty(t, sink.received())
}

func TestRPC_UnknownNode(t *testing.T) {
	proxy, err := NewRPC(model.Node{ID: "proxy", Address: "x"}, slog.Default())
	require.NoError(t, err)

	err = proxy.SendVote("nowhere", &model.ForwardRequest{}, &model.ForwardResponse{})
	assert.ErrorContains(t, err, "no client pool found for node nowhere")
}

func TestRPC_BackendDown(t *testing.T) {
	sink := &recordingSink{accept: true}
	backend := startBackend(t, sink)
	addr := backend.Addr().String()
	require.NoError(t, backend.Stop())

	proxy := newForwarder(t, addr)
	err := proxy.SendVote("lobby", &model.ForwardRequest{
		Vote: model.Vote{ServiceName: "s", Username: "u", Address: "a", Timestamp: "t"},
	}, &model.ForwardResponse{})
	assert.Error(t, err)
}

func TestServer_StartInvalidConfig(t *testing.T) {
	srv, err := NewRPC(model.Node{ID: "lobby", Address: "x"}, slog.Default())
	require.NoError(t, err)

	err = srv.Start("127.0.0.1:0", &recordingSink{}, &Config{ServerKey: "key.pem"})
	assert.Error(t, err)
	assert.Nil(t, srv.Addr())
	assert.NoError(t, srv.Stop())
}
