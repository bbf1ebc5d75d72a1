package security

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/c360/semrete/errors"
)

func TestServerTLSConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServerTLSConfig
		wantErr bool
	}{
		{name: "disabled", cfg: ServerTLSConfig{}},
		{name: "key pair", cfg: ServerTLSConfig{Enabled: true, CertFile: "c", KeyFile: "k"}},
		{name: "missing key", cfg: ServerTLSConfig{Enabled: true, CertFile: "c"}, wantErr: true},
		{name: "bad version", cfg: ServerTLSConfig{Enabled: true, CertFile: "c", KeyFile: "k", MinVersion: "1.0"}, wantErr: true},
		{
			name:    "mtls without CAs",
			cfg:     ServerTLSConfig{Enabled: true, CertFile: "c", KeyFile: "k", MTLS: ServerMTLSConfig{Enabled: true}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.True(t, errors.IsInvalid(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestClientTLSConfig_Validate(t *testing.T) {
	assert.NoError(t, ClientTLSConfig{}.Validate())
	assert.NoError(t, ClientTLSConfig{Enabled: true, MinVersion: "1.3"}.Validate())
	assert.Error(t, ClientTLSConfig{Enabled: true, MinVersion: "2"}.Validate())
	assert.Error(t, ClientTLSConfig{Enabled: true, MTLS: ClientMTLSConfig{Enabled: true, CertFile: "c"}}.Validate())
}
