package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/ugorji/go/codec"
	"go-simpler.org/env"

	"github.com/danl5/govotifier/pkg/model"
	"github.com/danl5/govotifier/pkg/protocol"
	"github.com/danl5/govotifier/pkg/transport/rpc"
)

const (
	// DefaultHost listens on every interface
	DefaultHost = "0.0.0.0"
	// DefaultPort is the customary votifier port
	DefaultPort = 8192
	// DefaultBroadcastMessage is announced for every accepted vote
	DefaultBroadcastMessage = "{player} has voted for the server! Thank you!"

	// tokenLength is the length of a generated shared secret
	tokenLength = 26
)

// DefaultRewardCommands are run for every accepted vote unless configured otherwise.
var DefaultRewardCommands = []string{
	"give {player} Rock_Gem_Diamond 1",
	"give {player} Rock_Gem_Emerald 2",
}

// Config represents the votifier config
type Config struct {
	// Host is the address the votifier server binds to
	Host string `json:"Host" env:"VOTIFIER_HOST"`
	// Port is the TCP port of the votifier server
	Port int `json:"Port" env:"VOTIFIER_PORT"`
	// Token is the secret shared with vote sites. Never log it.
	Token string `json:"Token" env:"VOTIFIER_TOKEN"`
	// DebugMode enables per connection diagnostics
	DebugMode bool `json:"DebugMode" env:"VOTIFIER_DEBUG"`

	// RewardCommands are templates run for every accepted vote
	RewardCommands []string `json:"RewardCommands"`
	// BroadcastVotes enables the vote announcement
	BroadcastVotes bool `json:"BroadcastVotes" env:"VOTIFIER_BROADCAST_VOTES"`
	// BroadcastMessage is the announcement template
	BroadcastMessage string `json:"BroadcastMessage" env:"VOTIFIER_BROADCAST_MESSAGE"`

	// ReadTimeout bounds a whole connection exchange, in seconds. 0 disables it.
	ReadTimeout uint `json:"ReadTimeout" env:"VOTIFIER_READ_TIMEOUT"`
	// SinkTimeout bounds the vote sink call, in seconds. 0 disables it.
	SinkTimeout uint `json:"SinkTimeout" env:"VOTIFIER_SINK_TIMEOUT"`
	// Limits optionally restrict incoming connections
	Limits LimitsConfig `json:"Limits"`

	// MetricsAddress serves prometheus metrics when set, e.g. "127.0.0.1:9102"
	MetricsAddress string `json:"MetricsAddress" env:"VOTIFIER_METRICS_ADDRESS"`
	// LogLevel is one of debug, info, warn, error
	LogLevel string `json:"LogLevel" env:"VOTIFIER_LOG_LEVEL"`
	// LogFormat is text or json
	LogFormat string `json:"LogFormat" env:"VOTIFIER_LOG_FORMAT"`

	// Forward configures vote forwarding between votifier nodes
	Forward ForwardConfig `json:"Forward"`
}

// LimitsConfig holds the optional connection limits. Zero values disable a limit.
type LimitsConfig struct {
	// MaxConnections caps concurrent connections
	MaxConnections int64 `json:"MaxConnections"`
	// MaxConnectionsPerIP caps concurrent connections from one address
	MaxConnectionsPerIP int `json:"MaxConnectionsPerIP"`
	// ConnectionRate is the sustained rate of new connections per address, per second
	ConnectionRate float64 `json:"ConnectionRate"`
	// ConnectionBurst is the burst size of ConnectionRate
	ConnectionBurst int `json:"ConnectionBurst"`
}

// ForwardConfig configures vote forwarding.
type ForwardConfig struct {
	// NodeID identifies this node to its peers
	NodeID string `json:"NodeID"`
	// Listen receives forwarded votes on this address when set
	Listen string `json:"Listen"`
	// Backends receive every accepted vote when set
	Backends []model.Node `json:"Backends"`
	// Transport is the rpc transport config
	Transport rpc.Config `json:"Transport"`
}

// Enabled reports whether this node forwards votes to backends.
func (f *ForwardConfig) Enabled() bool {
	return len(f.Backends) > 0
}

// Default returns a config with a freshly generated token.
func Default() (*Config, error) {
	token, err := GenerateToken()
	if err != nil {
		return nil, err
	}

	return &Config{
		Host:             DefaultHost,
		Port:             DefaultPort,
		Token:            token,
		RewardCommands:   append([]string(nil), DefaultRewardCommands...),
		BroadcastVotes:   true,
		BroadcastMessage: DefaultBroadcastMessage,
		LogLevel:         "info",
		LogFormat:        "text",
	}, nil
}

// GenerateToken returns a new random shared secret.
func GenerateToken() (string, error) {
	return protocol.RandomString(tokenLength)
}

// Load reads the config file at path. A missing file is created with
// defaults and created is true. A config without a token gets one
// generated and written back.
func Load(path string) (cfg *Config, created bool, err error) {
	cfg, err = Default()
	if err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := Save(path, cfg); err != nil {
			return nil, false, err
		}
		return cfg, true, nil
	case err != nil:
		return nil, false, fmt.Errorf("failed to read config: %w", err)
	}

	generated := cfg.Token
	cfg.Token = ""
	if err := codec.NewDecoderBytes(data, jsonHandle()).Decode(cfg); err != nil {
		return nil, false, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	if cfg.Token == "" {
		cfg.Token = generated
		if err := Save(path, cfg); err != nil {
			return nil, false, err
		}
	}
	return cfg, false, nil
}

// Save writes the config as indented JSON, readable by the owner only.
func Save(path string, cfg *Config) error {
	var out []byte
	if err := codec.NewEncoderBytes(&out, jsonHandle()).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, append(out, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyEnv loads the given .env files, when present, and overrides the
// config with VOTIFIER_* environment variables.
func ApplyEnv(cfg *Config, envFiles ...string) error {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load env file: %w", err)
	}

	if err := env.Load(cfg, nil); err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}
	return nil
}

// Validate checks the config for values the server can not run with.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.Token == "" {
		return errors.New("token is required")
	}
	if c.Limits.MaxConnections < 0 || c.Limits.MaxConnectionsPerIP < 0 ||
		c.Limits.ConnectionRate < 0 || c.Limits.ConnectionBurst < 0 {
		return errors.New("connection limits must not be negative")
	}
	if c.Limits.ConnectionRate > 0 && c.Limits.ConnectionBurst == 0 {
		return errors.New("connection burst is required with a connection rate")
	}

	for i := range c.Forward.Backends {
		if err := c.Forward.Backends[i].Validate(); err != nil {
			return fmt.Errorf("forward backend %d: %w", i, err)
		}
	}
	if c.Forward.Enabled() || c.Forward.Listen != "" {
		if c.Forward.NodeID == "" {
			return errors.New("forward node ID is required")
		}
		if err := c.Forward.Transport.Validate(); err != nil {
			return fmt.Errorf("forward transport: %w", err)
		}
	}
	return nil
}

// Address returns the host:port the server binds to.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ReadTimeoutDuration returns the connection deadline, 0 when disabled.
func (c *Config) ReadTimeoutDuration() time.Duration {
	return time.Duration(c.ReadTimeout) * time.Second
}

// SinkTimeoutDuration returns the sink call deadline, 0 when disabled.
func (c *Config) SinkTimeoutDuration() time.Duration {
	return time.Duration(c.SinkTimeout) * time.Second
}

// LogValue keeps the token out of logs.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("host", c.Host),
		slog.Int("port", c.Port),
		slog.String("token", "[redacted]"),
		slog.Bool("debug", c.DebugMode),
		slog.Int("rewardCommands", len(c.RewardCommands)),
		slog.Int("forwardBackends", len(c.Forward.Backends)),
	)
}

func jsonHandle() *codec.JsonHandle {
	h := &codec.JsonHandle{}
	h.Indent = 2
	return h
}
