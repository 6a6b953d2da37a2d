package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name:    "incomplete server certificate configuration",
			config:  Config{ServerKey: "key.pem"},
			wantErr: "incomplete server certificate configuration",
		},
		{
			name:    "no server CAs configured",
			config:  Config{ServerKey: "cert.key", ServerCert: "cert.pem"},
			wantErr: "no server CAs configured",
		},
		{
			name:   "server CAs configured",
			config: Config{ServerKey: "cert.key", ServerCert: "cert.pem", ServerCAs: []string{"ca.pem"}},
		},
		{
			name:    "incomplete client certificate configuration",
			config:  Config{ClientCert: "cert.pem"},
			wantErr: "incomplete client certificate configuration",
		},
		{
			name:    "no client CAs configured",
			config:  Config{ClientKey: "cert.key", ClientCert: "cert.pem"},
			wantErr: "no client CAs configured",
		},
		{
			name: "valid configuration with skipped verification",
			config: Config{
				ServerKey:        "key.pem",
				ServerCert:       "cert.pem",
				ServerSkipVerify: true,
				ClientKey:        "client_key.pem",
				ClientCert:       "client_cert.pem",
				ClientSkipVerify: true,
				ConnectTimeout:   5,
			},
		},
		{
			name:   "plain tcp",
			config: Config{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}
