package udp

import (
	"net"

	"github.com/c360/semrete/errors"
	"github.com/c360/semrete/pkg/buffer"
)

// Config holds configuration for the UDP fact source
type Config struct {
	// Addr is the host:port to bind; port 0 picks a free port
	Addr string `json:"addr"`
	// MaxDatagramSize bounds a single datagram in bytes
	MaxDatagramSize int `json:"max_datagram_size"`
	// BufferSize is the number of datagrams held between the socket and the run
	BufferSize int `json:"buffer_size"`
	// Overflow is "drop_oldest" or "drop_newest"
	Overflow string `json:"overflow"`
	// SocketBuffer is the kernel receive buffer in bytes; 0 keeps the OS default
	SocketBuffer int `json:"socket_buffer"`
	// Name labels metrics and logs; defaults to "udp"
	Name string `json:"name,omitempty"`
}

// DefaultConfig returns default configuration for the UDP source
func DefaultConfig() Config {
	return Config{
		Addr:            "0.0.0.0:7878",
		MaxDatagramSize: 65536,
		BufferSize:      5000,
		Overflow:        "drop_oldest",
		SocketBuffer:    2 * 1024 * 1024,
		Name:            "udp",
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "addr is required")
	}
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "addr parsing")
	}
	if c.MaxDatagramSize < 1 || c.MaxDatagramSize > 65536 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_datagram_size must be between 1 and 65536")
	}
	if c.BufferSize < 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "buffer_size must be at least 1")
	}
	if _, ok := buffer.ParseOverflowPolicy(c.Overflow); !ok {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"overflow must be drop_oldest or drop_newest")
	}
	if c.SocketBuffer < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "socket_buffer cannot be negative")
	}
	return nil
}
