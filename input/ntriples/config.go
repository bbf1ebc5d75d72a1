package ntriples

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/c360/semrete/errors"
)

// Config holds configuration for the N-Triples source
type Config struct {
	// URL is a filesystem path, a file:// URL, an http(s):// URL or "-" for stdin
	URL string `json:"url"`
	// Follow keeps reading a local file as it grows until the run is stopped
	Follow bool `json:"follow"`
	// RateLimit caps facts per second; 0 means unlimited
	RateLimit float64 `json:"rate_limit"`
	// Burst is the rate limiter bucket size
	Burst int `json:"burst"`
	// Timeout bounds the HTTP request for remote inputs
	Timeout time.Duration `json:"timeout"`
	// Name labels metrics and logs; defaults to "ntriples"
	Name string `json:"name,omitempty"`
}

// DefaultConfig returns default configuration for the N-Triples source
func DefaultConfig() Config {
	return Config{
		Burst:   1,
		Timeout: 30 * time.Second,
		Name:    "ntriples",
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "url is required")
	}
	if c.RateLimit < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "rate_limit cannot be negative")
	}
	if c.RateLimit > 0 && c.Burst < 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "burst must be at least 1")
	}
	loc, err := parseLocation(c.URL)
	if err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "url validation")
	}
	if c.Follow && loc.kind != locationFile {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "follow requires a local file")
	}
	return nil
}

type locationKind int

const (
	locationFile locationKind = iota
	locationHTTP
	locationStdin
)

type location struct {
	kind locationKind
	path string // file path or full URL
}

func parseLocation(raw string) (location, error) {
	if raw == "-" {
		return location{kind: locationStdin}, nil
	}
	if !strings.Contains(raw, "://") {
		return location{kind: locationFile, path: raw}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return location{}, err
	}
	switch u.Scheme {
	case "file":
		p := u.Path
		if u.Host != "" && u.Host != "localhost" {
			p = u.Host + p
		}
		if p == "" {
			return location{}, fmt.Errorf("%w: empty file URL %q", errors.ErrInvalidConfig, raw)
		}
		return location{kind: locationFile, path: p}, nil
	case "http", "https":
		return location{kind: locationHTTP, path: raw}, nil
	default:
		return location{}, fmt.Errorf("%w: unsupported scheme %q", errors.ErrInvalidConfig, u.Scheme)
	}
}
