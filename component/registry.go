package component

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/c360/semrete/errors"
)

// Component types understood by the registry
const (
	TypeInput  = "input"
	TypeOutput = "output"
)

// MaxNameLength bounds factory names
const MaxNameLength = 128

// SourceFactory creates a fact source from raw JSON configuration.
// Factories must not perform I/O; that happens in FactSource.Run.
type SourceFactory func(rawConfig json.RawMessage, deps Dependencies) (FactSource, error)

// SinkFactory creates an output sink from raw JSON configuration
type SinkFactory func(rawConfig json.RawMessage, deps Dependencies) (Sink, error)

// Registration holds a factory and metadata for one component type.
// Exactly one of Source and Sink is set, matching Type.
type Registration struct {
	Name        string        `json:"name"`
	Type        string        `json:"type"`
	Protocol    string        `json:"protocol"`
	Description string        `json:"description"`
	Version     string        `json:"version"`
	Source      SourceFactory `json:"-"`
	Sink        SinkFactory   `json:"-"`
}

// Registry manages source and sink factories. Input and output names live in
// separate namespaces, so "nats" can name both an input and an output.
type Registry struct {
	factories map[string]*Registration
	mu        sync.RWMutex
}

// NewRegistry creates a new empty component registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]*Registration)}
}

func registryKey(componentType, name string) string {
	return componentType + "/" + name
}

// RegisterFactory registers a factory. Returns an error if the name is
// invalid, the registration is incomplete or the name is already taken.
func (r *Registry) RegisterFactory(registration *Registration) error {
	if registration == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "registration validation")
	}
	if err := ValidateComponentName(registration.Name); err != nil {
		return errors.Wrap(err, "Registry", "RegisterFactory", "factory name validation")
	}
	switch registration.Type {
	case TypeInput:
		if registration.Source == nil {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "source factory validation")
		}
	case TypeOutput:
		if registration.Sink == nil {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "sink factory validation")
		}
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: unknown component type %q", errors.ErrInvalidConfig, registration.Type),
			"Registry", "RegisterFactory", "component type validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := registryKey(registration.Type, registration.Name)
	if _, exists := r.factories[key]; exists {
		msg := fmt.Errorf("factory '%s' is already registered", key)
		return errors.WrapInvalid(msg, "Registry", "RegisterFactory", "duplicate factory check")
	}
	r.factories[key] = registration
	return nil
}

// CreateSource creates a fact source using the named input factory
func (r *Registry) CreateSource(name string, rawConfig json.RawMessage, deps Dependencies) (FactSource, error) {
	reg, err := r.lookup(TypeInput, name)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateSource", "factory lookup")
	}
	src, err := reg.Source(rawConfig, deps)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateSource", fmt.Sprintf("create %s input", name))
	}
	return src, nil
}

// CreateSink creates an output sink using the named output factory
func (r *Registry) CreateSink(name string, rawConfig json.RawMessage, deps Dependencies) (Sink, error) {
	reg, err := r.lookup(TypeOutput, name)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateSink", "factory lookup")
	}
	sink, err := reg.Sink(rawConfig, deps)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateSink", fmt.Sprintf("create %s output", name))
	}
	return sink, nil
}

func (r *Registry) lookup(componentType, name string) (*Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.factories[registryKey(componentType, name)]
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: no %s factory named %q", errors.ErrInvalidConfig, componentType, name),
			"Registry", "lookup", "factory lookup")
	}
	return reg, nil
}

// ListFactories returns all registrations sorted by type and name
func (r *Registry) ListFactories() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Registration, 0, len(r.factories))
	for _, reg := range r.factories {
		out = append(out, *reg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ValidateComponentName checks a factory name for length and allowed characters
func ValidateComponentName(name string) error {
	if name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ConfigValidator", "ValidateComponentName", "empty name")
	}
	if len(name) > MaxNameLength {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ConfigValidator", "ValidateComponentName", "name too long")
	}
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.') {
			return errors.WrapInvalid(
				errors.ErrInvalidConfig, "ConfigValidator", "ValidateComponentName",
				"invalid name characters")
		}
	}
	return nil
}
