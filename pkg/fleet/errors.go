package fleet

import (
	"errors"
	"fmt"
	"strings"
)

// Error categories. Configuration and topology errors are fatal at plan
// time and abort the run before any instance starts; runtime errors are
// contained per instance and handled by the restart policy.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrTopology      = errors.New("topology error")
)

// UnknownConfigKeyError means an instance override used a key that is not
// a known config key.
type UnknownConfigKeyError struct {
	Instance InstanceID
	Key      string
}

func (e UnknownConfigKeyError) Error() string {
	return fmt.Sprintf("unknown config key %q for instance %s", e.Key, e.Instance)
}

func (e UnknownConfigKeyError) Unwrap() error { return ErrConfiguration }

// MissingRequiredConfigError means a required config key resolved to no
// value for an instance.
type MissingRequiredConfigError struct {
	Instance InstanceID
	Key      string
}

func (e MissingRequiredConfigError) Error() string {
	return fmt.Sprintf("missing required config key %q for instance %s", e.Key, e.Instance)
}

func (e MissingRequiredConfigError) Unwrap() error { return ErrConfiguration }

// DuplicateInstanceError means two declared instances resolve to the same
// identifier.
type DuplicateInstanceError struct {
	ID InstanceID
}

func (e DuplicateInstanceError) Error() string {
	return fmt.Sprintf("duplicate instance: %s declared more than once", e.ID)
}

func (e DuplicateInstanceError) Unwrap() error { return ErrTopology }

// UnknownDependencyError means a dependency edge references an instance
// that is not declared in the fleet.
type UnknownDependencyError struct {
	From InstanceID
	To   InstanceID
}

func (e UnknownDependencyError) Error() string {
	return fmt.Sprintf("instance %s depends on %s, which is not declared in the fleet", e.From, e.To)
}

func (e UnknownDependencyError) Unwrap() error { return ErrTopology }

// DependencyCycleError means the dependency graph contains a cycle.
type DependencyCycleError struct {
	Path []InstanceID
}

func (e DependencyCycleError) Error() string {
	if len(e.Path) == 0 {
		return "dependency cycle detected"
	}
	parts := make([]string, len(e.Path))
	for i, id := range e.Path {
		parts[i] = id.String()
	}
	return "dependency cycle detected: " + strings.Join(parts, " -> ")
}

func (e DependencyCycleError) Unwrap() error { return ErrTopology }

// RoutingCollisionError means two instances derive the same public
// hostname.
type RoutingCollisionError struct {
	Hostname  string
	Instances []InstanceID
}

func (e RoutingCollisionError) Error() string {
	parts := make([]string, len(e.Instances))
	for i, id := range e.Instances {
		parts[i] = id.String()
	}
	return fmt.Sprintf("routing collision: hostname %q derived by instances %s",
		e.Hostname, strings.Join(parts, ", "))
}

func (e RoutingCollisionError) Unwrap() error { return ErrTopology }
