package component

import (
	"log/slog"

	"github.com/c360/semrete/metric"
	"github.com/c360/semrete/natsclient"
)

// Dependencies provides the external dependencies factories may use
type Dependencies struct {
	NATSClient      *natsclient.Client      // NATS client for messaging (can be nil)
	MetricsRegistry *metric.MetricsRegistry // Metrics registry for Prometheus (can be nil)
	Logger          *slog.Logger            // Structured logger (can be nil, defaults to slog.Default())
}

// GetLogger returns the configured logger or a default logger if none is provided
func (d *Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// GetLoggerWithComponent returns a logger configured with component context
func (d *Dependencies) GetLoggerWithComponent(componentName string) *slog.Logger {
	return d.GetLogger().With("component", componentName)
}
