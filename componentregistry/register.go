// Package componentregistry registers the built-in fact sources and sinks.
package componentregistry

import (
	"errors"

	"github.com/c360/semrete/component"
	pkgerrors "github.com/c360/semrete/errors"
	"github.com/c360/semrete/input/ntriples"
	"github.com/c360/semrete/input/udp"
	"github.com/c360/semrete/output/file"
	"github.com/c360/semrete/output/httppost"
	natsoutput "github.com/c360/semrete/output/nats"
	"github.com/c360/semrete/output/websocket"
)

// Register registers every built-in component with the provided registry:
//
// Inputs:
//   - ntriples (N-Triples from a file, stdin or HTTP URL)
//   - udp (N-Triples datagrams)
//
// Outputs:
//   - file (N-Triples file)
//   - nats (publish derived triples to a subject)
//   - httppost (batched webhook)
//   - websocket (live feed)
func Register(registry *component.Registry) error {
	// Nil registry is a programming error (fatal), not invalid input
	if registry == nil {
		return pkgerrors.WrapFatal(
			errors.New("registry cannot be nil"),
			"ComponentRegistry", "Register", "registry validation")
	}

	if err := ntriples.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "N-Triples input component registration")
	}

	if err := udp.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "UDP input component registration")
	}

	if err := file.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "File output component registration")
	}

	if err := natsoutput.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "NATS output component registration")
	}

	if err := httppost.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "HTTP POST output component registration")
	}

	if err := websocket.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "WebSocket output component registration")
	}

	return nil
}
