package rpc

import (
	"errors"
)

// Config is the TLS and dial configuration of the forwarding transport.
// Leaving the certificate fields empty runs the transport in plain TCP.
type Config struct {
	// ServerCA defines the set of root certificate authorities
	// that servers use if required to verify a client certificate
	// by the policy in ClientAuth.
	ServerCAs        []string `json:"ServerCAs"`
	ServerKey        string   `json:"ServerKey"`
	ServerCert       string   `json:"ServerCert"`
	ServerSkipVerify bool     `json:"ServerSkipVerify"`

	// ClientCAs defines the set of root certificate authorities
	// that clients use when verifying server certificates.
	// If ClientCAs is nil, TLS uses the host's root CA set.
	ClientCAs        []string `json:"ClientCAs"`
	ClientCert       string   `json:"ClientCert"`
	ClientKey        string   `json:"ClientKey"`
	ClientSkipVerify bool     `json:"ClientSkipVerify"`
	// ConnectTimeout is the maximum amount of time a dial to a backend
	// node will wait for the connection, in seconds. 0 means no timeout.
	ConnectTimeout uint `json:"ConnectTimeout"`
}

func (c *Config) Validate() error {
	cfgCount := 0
	if c.ServerKey != "" {
		cfgCount++
	}
	if c.ServerCert != "" {
		cfgCount++
	}

	if cfgCount == 1 {
		return errors.New("incomplete server certificate configuration")
	}

	// if the server uses TLS, and not skip verification, we need to have server CAs
	if cfgCount == 2 && !c.ServerSkipVerify {
		if len(c.ServerCAs) == 0 {
			return errors.New("no server CAs configured")
		}
	}

	cfgCount = 0
	if c.ClientKey != "" {
		cfgCount++
	}
	if c.ClientCert != "" {
		cfgCount++
	}

	if cfgCount == 1 {
		return errors.New("incomplete client certificate configuration")
	}

	// if the client uses TLS, and not skip verification, we need to have client CAs
	if cfgCount == 2 && !c.ClientSkipVerify {
		if len(c.ClientCAs) == 0 {
			return errors.New("no client CAs configured")
		}
	}

	return nil
}
