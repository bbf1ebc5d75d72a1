// Package security holds the TLS settings shared by servers and clients
package security

import (
	"github.com/c360/semrete/errors"
)

// ServerMTLSConfig controls client certificate validation on a server
type ServerMTLSConfig struct {
	Enabled           bool     `json:"enabled"`
	ClientCAFiles     []string `json:"client_ca_files,omitempty"`
	RequireClientCert bool     `json:"require_client_cert,omitempty"` // false accepts clients without a certificate
	AllowedClientCNs  []string `json:"allowed_client_cns,omitempty"`
}

// ServerTLSConfig holds TLS configuration for HTTP and WebSocket listeners
type ServerTLSConfig struct {
	Enabled    bool             `json:"enabled"`
	CertFile   string           `json:"cert_file,omitempty"`
	KeyFile    string           `json:"key_file,omitempty"`
	MinVersion string           `json:"min_version,omitempty"` // "1.2" or "1.3"
	MTLS       ServerMTLSConfig `json:"mtls,omitempty"`
}

// Validate checks that an enabled server config names its key pair
func (c ServerTLSConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.CertFile == "" || c.KeyFile == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "ServerTLSConfig", "Validate",
			"cert_file and key_file are required")
	}
	if err := validateVersion(c.MinVersion); err != nil {
		return err
	}
	if c.MTLS.Enabled && len(c.MTLS.ClientCAFiles) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "ServerTLSConfig", "Validate",
			"mtls requires client_ca_files")
	}
	return nil
}

// ClientMTLSConfig supplies a client certificate
type ClientMTLSConfig struct {
	Enabled  bool   `json:"enabled"`
	CertFile string `json:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty"`
}

// ClientTLSConfig holds TLS configuration for outgoing connections.
// CAFiles are trusted in addition to the system pool.
type ClientTLSConfig struct {
	Enabled            bool             `json:"enabled"`
	CAFiles            []string         `json:"ca_files,omitempty"`
	InsecureSkipVerify bool             `json:"insecure_skip_verify,omitempty"` // tests only
	MinVersion         string           `json:"min_version,omitempty"`
	MTLS               ClientMTLSConfig `json:"mtls,omitempty"`
}

// Validate checks the client config
func (c ClientTLSConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if err := validateVersion(c.MinVersion); err != nil {
		return err
	}
	if c.MTLS.Enabled && (c.MTLS.CertFile == "" || c.MTLS.KeyFile == "") {
		return errors.WrapInvalid(errors.ErrMissingConfig, "ClientTLSConfig", "Validate",
			"mtls requires cert_file and key_file")
	}
	return nil
}

func validateVersion(v string) error {
	switch v {
	case "", "1.2", "1.3":
		return nil
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "security", "Validate",
			"min_version must be 1.2 or 1.3")
	}
}
