package server

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danl5/govotifier/pkg/config"
)

func TestNewConnectionLimits_Disabled(t *testing.T) {
	assert.Nil(t, NewConnectionLimits(config.LimitsConfig{}))
}

func TestConnectionLimits_Global(t *testing.T) {
	l := NewConnectionLimits(config.LimitsConfig{MaxConnections: 2})
	require.NotNil(t, l)

	ok, _ := l.Acquire("10.0.0.1")
	assert.True(t, ok)
	ok, _ = l.Acquire("10.0.0.2")
	assert.True(t, ok)

	ok, reason := l.Acquire("10.0.0.3")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonGlobal, reason)
	assert.Equal(t, int64(2), l.Current())

	l.Release("10.0.0.1")
	ok, _ = l.Acquire("10.0.0.3")
	assert.True(t, ok)
}

func TestConnectionLimits_PerIP(t *testing.T) {
	l := NewConnectionLimits(config.LimitsConfig{MaxConnectionsPerIP: 1})
	require.NotNil(t, l)

	ok, _ := l.Acquire("10.0.0.1")
	assert.True(t, ok)

	ok, reason := l.Acquire("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonPerIP, reason)
	assert.Equal(t, int64(1), l.Current(), "a refused connection gives its global slot back")

	ok, _ = l.Acquire("10.0.0.2")
	assert.True(t, ok)

	l.Release("10.0.0.1")
	ok, _ = l.Acquire("10.0.0.1")
	assert.True(t, ok)
}

func TestConnectionLimits_Rate(t *testing.T) {
	l := NewConnectionLimits(config.LimitsConfig{ConnectionRate: 0.001, ConnectionBurst: 2})
	require.NotNil(t, l)

	for i := 0; i < 2; i++ {
		ok, _ := l.Acquire("10.0.0.1")
		require.True(t, ok)
		l.Release("10.0.0.1")
	}

	ok, reason := l.Acquire("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonRate, reason)

	ok, _ = l.Acquire("10.0.0.2")
	assert.True(t, ok, "each address has its own bucket")
}

func TestRemoteIP(t *testing.T) {
	tests := []struct {
		name string
		addr net.Addr
		want string
	}{
		{name: "ipv4", addr: &net.TCPAddr{IP: net.ParseIP("192.0.2.1"), Port: 4000}, want: "192.0.2.1"},
		{name: "ipv6", addr: &net.TCPAddr{IP: net.ParseIP("2001:db8::1"), Port: 4000}, want: "2001:db8::1"},
		{name: "nil", addr: nil, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, remoteIP(tt.addr))
		})
	}
}
