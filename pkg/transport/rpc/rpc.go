package rpc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"os"
	"sync"
	"time"

	"github.com/silenceper/pool"
	"github.com/ugorji/go/codec"

	"github.com/danl5/govotifier/pkg/model"
	"github.com/danl5/govotifier/pkg/protocol"
)

const (
	// initial capacity of the pool
	poolInitCap = 0
	// maximum number of idle connections in the pool
	poolMaxIdle = 5
	// maximum time a connection can be idle before being closed
	poolMaxIdleTime = 15
	// maximum number of connections in the pool
	poolMaxCap = 20

	// rpc method names
	methodForward = "VoteHandler.Forward"
	methodPing    = "VoteHandler.Ping"
)

var (
	_ model.Server = (*Server)(nil)
	_ model.Client = (*Client)(nil)
)

// NewRPC creates the forwarding transport of the node.
func NewRPC(node model.Node, logger *slog.Logger) (*RPC, error) {
	if logger == nil {
		return nil, fmt.Errorf("new rpc, logger is nil")
	}
	if err := node.Validate(); err != nil {
		return nil, err
	}

	rpc := &RPC{
		Server: Server{
			node:   node,
			logger: logger.With("component", "forward server"),
		},
		Client: Client{
			logger: logger.With("component", "forward client"),
		},
	}

	return rpc, nil
}

// VoteHandler is the rpc receiver of forwarded votes.
type VoteHandler struct {
	node   model.Node
	sink   model.VoteSink
	logger *slog.Logger
}

// Forward hands a forwarded vote to the local sink.
func (h *VoteHandler) Forward(request *model.ForwardRequest, response *model.ForwardResponse) error {
	response.Header = model.Header{Node: h.node}

	if !protocol.Validate(request.Vote) {
		h.logger.Warn("reject forwarded vote with blank fields", "from", request.Node.ID)
		response.Message = model.ErrVoteInvalid.Error()
		return nil
	}

	response.Accepted = h.sink.HandleVote(context.Background(), request.Vote)
	h.logger.Debug("forwarded vote handled", "from", request.Node.ID,
		"username", request.Vote.Username, "accepted", response.Accepted)
	return nil
}

func (h *VoteHandler) Ping(_ struct{}, reply *string) error {
	*reply = "pong"
	return nil
}

// RPC bundles the receiving and the sending side of vote forwarding.
type RPC struct {
	Server
	Client
}

type Server struct {
	node   model.Node
	logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
}

// Start initiates the server to begin listening on the specified address.
func (s *Server) Start(listenAddress string, sink model.VoteSink, serverConfig model.TransportConfig) error {
	cfg, ok := serverConfig.(*Config)
	if !ok {
		return errors.New("not a valid rpc server config")
	}
	if sink == nil {
		return errors.New("forward server, sink is nil")
	}

	err := cfg.Validate()
	if err != nil {
		return err
	}

	handler := &VoteHandler{node: s.node, sink: sink, logger: s.logger}
	err = s.startServer(listenAddress, handler, cfg)
	if err != nil {
		s.logger.Error("failed to start forward server", "error", err.Error())
		return err
	}

	s.logger.Info("forward server started", "listenAddress", s.Addr().String())
	return nil
}

// Stop closes the listener. Connections already served finish on their own.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	s.listener = nil
	return err
}

// Addr returns the listening address, nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) startServer(listenAddress string, handler *VoteHandler, cfg *Config) error {
	tlsConfig, err := s.loadTLSConfig(cfg)
	if err != nil {
		return err
	}

	rpcServer := rpc.NewServer()
	err = rpcServer.Register(handler)
	if err != nil {
		return err
	}

	var l net.Listener
	if tlsConfig != nil {
		l, err = tls.Listen("tcp", listenAddress, tlsConfig)
	} else {
		l, err = net.Listen("tcp", listenAddress)
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					s.logger.Info("forward server stopped")
					return
				}
				s.logger.Error("failed to accept forward connection", "error", err.Error())
				continue
			}

			rpcCodec := codec.MsgpackSpecRpc.ServerCodec(conn, &codec.MsgpackHandle{})
			go rpcServer.ServeCodec(rpcCodec)
		}
	}()
	return nil
}

func (s *Server) loadTLSConfig(cfg *Config) (*tls.Config, error) {
	// if no TLS config is provided, return nil
	if cfg.ServerCert == "" || cfg.ServerKey == "" {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.ServerCert, cfg.ServerKey)
	if err != nil {
		return nil, err
	}
	caPool, err := loadCertPool(cfg.ServerCAs)
	if err != nil {
		return nil, err
	}

	config := &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    caPool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
	}
	if cfg.ServerSkipVerify {
		config.ClientAuth = tls.NoClientCert
	}
	return config, nil
}

type Client struct {
	// node id to client
	// string -> pool.Pool
	clients sync.Map

	logger *slog.Logger
}

// InitConnections initializes a set of connections to the given nodes.
// It returns an error if any connection fails.
func (c *Client) InitConnections(nodes []*model.Node, clientConfig model.TransportConfig) error {
	cfg, ok := clientConfig.(*Config)
	if !ok {
		return errors.New("not a valid rpc client config")
	}

	for _, node := range nodes {
		p, err := c.createClient(*node, cfg)
		if err != nil {
			c.logger.Error("error connecting to node", "node", node.ID, "error", err.Error())
			return err
		}
		c.clients.Store(node.ID, p)
	}
	return nil
}

// SendVote forwards the vote to the node with the given id.
func (c *Client) SendVote(nodeId string, request *model.ForwardRequest, response *model.ForwardResponse) error {
	clientPool, err := c.getPool(nodeId)
	if err != nil {
		return err
	}
	conn, err := clientPool.Get()
	if err != nil {
		return fmt.Errorf("can not get client from pool for node %s: %s", nodeId, err.Error())
	}
	rpcClient := conn.(*rpc.Client)

	err = rpcClient.Call(methodForward, request, response)
	if err != nil {
		// the connection state is unknown after a failed call
		_ = clientPool.Close(rpcClient)
		return fmt.Errorf("failed to forward vote to node %s: %s", nodeId, err.Error())
	}
	if err := clientPool.Put(rpcClient); err != nil {
		c.logger.Error("failed to put rpc client back to pool", "node", nodeId, "error", err.Error())
	}

	c.logger.Debug("forwarded vote", "to", nodeId, "accepted", response.Accepted)
	return nil
}

// Close releases every pooled connection.
func (c *Client) Close() {
	c.clients.Range(func(key, value any) bool {
		value.(pool.Pool).Release()
		c.clients.Delete(key)
		return true
	})
}

func (c *Client) createClient(node model.Node, cfg *Config) (pool.Pool, error) {
	poolConfig := &pool.Config{
		InitialCap:  poolInitCap,
		MaxIdle:     poolMaxIdle,
		MaxCap:      poolMaxCap,
		IdleTimeout: poolMaxIdleTime * time.Second,
		Factory: func() (interface{}, error) {
			tlsConfig, err := c.loadTLSConfig(cfg)
			if err != nil {
				return nil, err
			}
			dialer := &net.Dialer{
				Timeout: time.Duration(cfg.ConnectTimeout) * time.Second,
			}

			var conn net.Conn
			if tlsConfig != nil {
				conn, err = tls.DialWithDialer(dialer, "tcp", node.Address, tlsConfig)
			} else {
				conn, err = dialer.Dial("tcp", node.Address)
			}
			if err != nil {
				return nil, err
			}

			rpcCodec := codec.MsgpackSpecRpc.ClientCodec(conn, &codec.MsgpackHandle{})
			return rpc.NewClientWithCodec(rpcCodec), nil
		},
		Close: func(v interface{}) error { return v.(*rpc.Client).Close() },
		Ping: func(v interface{}) error {
			var reply string
			return v.(*rpc.Client).Call(methodPing, struct{}{}, &reply)
		},
	}
	return pool.NewChannelPool(poolConfig)
}

func (c *Client) getPool(nodeId string) (pool.Pool, error) {
	clientPoolInf, ok := c.clients.Load(nodeId)
	if !ok {
		return nil, fmt.Errorf("no client pool found for node %s", nodeId)
	}
	return clientPoolInf.(pool.Pool), nil
}

func (c *Client) loadTLSConfig(cfg *Config) (*tls.Config, error) {
	// if no TLS config is provided, return nil
	if cfg.ClientCert == "" || cfg.ClientKey == "" {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
	if err != nil {
		return nil, err
	}
	caPool, err := loadCertPool(cfg.ClientCAs)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates:       []tls.Certificate{cert},
		RootCAs:            caPool,
		InsecureSkipVerify: cfg.ClientSkipVerify,
	}, nil
}

func loadCertPool(paths []string) (*x509.CertPool, error) {
	caCertPool := x509.NewCertPool()
	for _, path := range paths {
		caCert, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if ok := caCertPool.AppendCertsFromPEM(caCert); !ok {
			return nil, fmt.Errorf("no certificates found in %s", path)
		}
	}
	return caCertPool, nil
}
