package fleet

import (
	"fmt"
	"time"
)

// Role identifies the kind of service behavior an instance runs.
type Role string

const (
	RolePathfinding      Role = "pathfinding"
	RoleMonitoring       Role = "monitoring"
	RoleRequestCollector Role = "request-collector"
	RoleReverseProxy     Role = "reverse-proxy"
)

// Roles lists all valid roles in a fixed order.
var Roles = []Role{RolePathfinding, RoleMonitoring, RoleRequestCollector, RoleReverseProxy}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RolePathfinding, RoleMonitoring, RoleRequestCollector, RoleReverseProxy:
		return true
	}
	return false
}

// Short returns the abbreviated role name used in instance identifiers
// and hostnames.
func (r Role) Short() string {
	switch r {
	case RolePathfinding:
		return "pfs"
	case RoleMonitoring:
		return "ms"
	case RoleRequestCollector:
		return "msrc"
	case RoleReverseProxy:
		return "proxy"
	default:
		return "unknown"
	}
}

// EnvPrefix returns the environment variable prefix the role's service
// image expects.
func (r Role) EnvPrefix() string {
	switch r {
	case RolePathfinding:
		return "PFS_"
	case RoleMonitoring:
		return "MS_"
	case RoleRequestCollector:
		return "MSRC_"
	default:
		return ""
	}
}

// Public reports whether the role exposes a public API and therefore
// receives a routing rule.
func (r Role) Public() bool {
	return r == RolePathfinding
}

// PerChain reports whether instances of this role are parameterized by a
// chain environment. The reverse proxy is a single fleet-level instance.
func (r Role) PerChain() bool {
	return r != RoleReverseProxy
}

// Chain describes a target blockchain network.
type Chain struct {
	Name    string `yaml:"name"`
	ChainID uint64 `yaml:"chain_id"`
	RPCURL  string `yaml:"rpc_url"`
}

// InstanceID uniquely identifies an instance by (role, chain, fee-variant),
// for example "pfs-ropsten" or "pfs-ropsten-with-fee".
type InstanceID string

func (id InstanceID) String() string {
	return string(id)
}

// MakeID derives the identifier for an instance. Instances with a non-zero
// fee carry a "-with-fee" suffix so they can coexist with the plain variant
// on the same chain.
func MakeID(role Role, chain string, fee uint64) InstanceID {
	id := role.Short()
	if role.PerChain() && chain != "" {
		id += "-" + chain
	}
	if fee > 0 {
		id += "-with-fee"
	}
	return InstanceID(id)
}

// State represents the runtime state of an instance.
type State int

const (
	StatePending State = iota
	StateStarting
	StateRunning
	StateFailed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateFailed:
		return "FAILED"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Instance is one fully resolved deployment of a service role. It is
// created at plan time and owned by the fleet; the lifecycle manager only
// holds references while orchestrating.
type Instance struct {
	ID    InstanceID
	Role  Role
	Chain Chain
	Fee   uint64
	Debug bool
	Image string

	// Env is the resolved environment mapping injected into the container,
	// already rendered with the role's variable prefix.
	Env map[string]string

	// StatePath is the durable storage location assigned by the allocator.
	StatePath string

	// DependsOn lists the instances that must reach RUNNING before this
	// one starts. Populated by the dependency graph builder.
	DependsOn []InstanceID
}

// APIPort returns the container port the instance serves its public API
// on, or 0 for non-public roles.
func (i *Instance) APIPort() uint16 {
	if !i.Role.Public() {
		return 0
	}
	return 6000
}

// Status is a point-in-time view of one instance's runtime state.
type Status struct {
	ID       InstanceID `json:"id"`
	Role     Role       `json:"role"`
	Chain    string     `json:"chain,omitempty"`
	State    State      `json:"-"`
	StateStr string     `json:"state"`
	Since    time.Time  `json:"since"`
	Reason   string     `json:"reason,omitempty"`
	Restarts int        `json:"restarts"`
}

// Metadata describes a fleet declaration document.
type Metadata struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

// Declaration is the operator-authored fleet declaration document.
type Declaration struct {
	APIVersion string   `yaml:"apiVersion"`
	Kind       string   `yaml:"kind"`
	Metadata   Metadata `yaml:"metadata"`
	Spec       Spec     `yaml:"spec"`
}

// Spec lists the declared chains and service instances.
type Spec struct {
	// BaseDomain is the DNS suffix under which public instances are
	// exposed. Overrides the orchestrator config when set.
	BaseDomain string `yaml:"base_domain,omitempty"`

	Chains    []Chain        `yaml:"chains"`
	Instances []InstanceSpec `yaml:"instances"`

	// Defaults are fleet-wide config overrides layered between the
	// orchestrator template and per-instance overrides.
	Defaults map[string]string `yaml:"defaults,omitempty"`
}

// InstanceSpec declares one service instance.
type InstanceSpec struct {
	Role  Role   `yaml:"role"`
	Chain string `yaml:"chain,omitempty"`

	// Fee is the service fee in wei. A non-zero fee makes this a fee
	// variant with its own identity, state path, and hostname.
	Fee uint64 `yaml:"fee,omitempty"`

	// StateDBSuffix names the state database file inside the instance's
	// state directory. Defaults to "state.db".
	StateDBSuffix string `yaml:"state_db_suffix,omitempty"`

	Debug bool   `yaml:"debug,omitempty"`
	Image string `yaml:"image,omitempty"`

	// DependsOn adds explicit start-ordering edges on top of the derived
	// role rules. Entries are instance identifiers.
	DependsOn []string `yaml:"depends_on,omitempty"`

	// Overrides are per-instance config values with the highest
	// precedence. Keys must be known config keys.
	Overrides map[string]string `yaml:"overrides,omitempty"`
}

// ID derives the instance identifier for this spec.
func (s InstanceSpec) ID() InstanceID {
	return MakeID(s.Role, s.Chain, s.Fee)
}

func (s InstanceSpec) String() string {
	return fmt.Sprintf("%s (role=%s chain=%s fee=%d)", s.ID(), s.Role, s.Chain, s.Fee)
}
