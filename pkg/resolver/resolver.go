// Package resolver merges layered configuration into a fully resolved
// environment mapping for one service instance.
package resolver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jihwankim/fleet-utils/pkg/fleet"
)

// Canonical config keys. Overrides may only use keys from this set.
const (
	KeyEthRPC                 = "eth-rpc"
	KeyStateDB                = "state-db"
	KeyLogLevel               = "log-level"
	KeyKeystoreFile           = "keystore-file"
	KeyPassword               = "password"
	KeyServiceFee             = "service-fee"
	KeyChainID                = "chain-id"
	KeyServiceRegistryDeposit = "service-registry-deposit"
	KeyAPIPort                = "api-port"
	KeyAcmeEmail              = "acme-email"
)

// envNames maps canonical keys to the environment variable suffix the
// service images expect.
var envNames = map[string]string{
	KeyEthRPC:                 "ETH_RPC",
	KeyStateDB:                "STATE_DB",
	KeyLogLevel:               "LOG_LEVEL",
	KeyKeystoreFile:           "KEYSTORE_FILE",
	KeyPassword:               "PASSWORD",
	KeyServiceFee:             "SERVICE_FEE",
	KeyChainID:                "CHAIN_ID",
	KeyServiceRegistryDeposit: "SERVICE_REGISTRY_DEPOSIT",
	KeyAPIPort:                "API_PORT",
	KeyAcmeEmail:              "ACME_EMAIL",
}

// requiredKeys lists the keys that must resolve to a value per role.
var requiredKeys = map[fleet.Role][]string{
	fleet.RolePathfinding: {
		KeyEthRPC, KeyChainID, KeyStateDB, KeyKeystoreFile, KeyPassword,
	},
	fleet.RoleMonitoring: {
		KeyEthRPC, KeyChainID, KeyStateDB, KeyKeystoreFile, KeyPassword,
	},
	fleet.RoleRequestCollector: {
		KeyEthRPC, KeyChainID, KeyStateDB, KeyKeystoreFile, KeyPassword,
	},
	fleet.RoleReverseProxy: nil,
}

// Template holds the shared configuration defaults a fleet is resolved
// against: global defaults, then per-role defaults.
type Template struct {
	Global map[string]string
	Role   map[fleet.Role]map[string]string
}

// DefaultTemplate returns the built-in defaults. Keystore credentials and
// the RPC endpoint have no defaults and must come from the operator.
func DefaultTemplate() Template {
	return Template{
		Global: map[string]string{
			KeyLogLevel:               "INFO",
			KeyServiceFee:             "0",
			KeyServiceRegistryDeposit: "3000000000000000000000",
		},
		Role: map[fleet.Role]map[string]string{
			fleet.RolePathfinding: {
				KeyAPIPort: "6000",
			},
		},
	}
}

// KnownKey reports whether key is a member of the canonical key set.
func KnownKey(key string) bool {
	_, ok := envNames[key]
	return ok
}

// Resolve merges the template with the given instance overrides and
// validates the result. Precedence: override > role default > global
// default. Pure: neither the template nor the overrides are mutated, and
// resolving the same inputs twice yields identical mappings.
func Resolve(tmpl Template, id fleet.InstanceID, role fleet.Role, overrides map[string]string) (map[string]string, error) {
	for key := range overrides {
		if !KnownKey(key) {
			return nil, fmt.Errorf("%w (known keys: %s)",
				fleet.UnknownConfigKeyError{Instance: id, Key: key},
				strings.Join(KnownKeys(), ", "))
		}
	}

	merged := make(map[string]string, len(tmpl.Global)+len(overrides))
	for k, v := range tmpl.Global {
		merged[k] = v
	}
	for k, v := range tmpl.Role[role] {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}

	for _, key := range requiredKeys[role] {
		if merged[key] == "" {
			return nil, fleet.MissingRequiredConfigError{Instance: id, Key: key}
		}
	}

	return merged, nil
}

// Env renders a resolved mapping as environment variables with the role's
// prefix, for example "eth-rpc" -> "PFS_ETH_RPC" for a pathfinding
// instance.
func Env(role fleet.Role, resolved map[string]string) map[string]string {
	env := make(map[string]string, len(resolved))
	prefix := role.EnvPrefix()
	for key, value := range resolved {
		env[prefix+envNames[key]] = value
	}
	return env
}

// EnvStrings renders an environment mapping as sorted KEY=VALUE pairs for
// container injection. Sorting keeps the rendering deterministic.
func EnvStrings(env map[string]string) []string {
	pairs := make([]string, 0, len(env))
	for k, v := range env {
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(pairs)
	return pairs
}

// KnownKeys returns the canonical key set, sorted, for error messages and
// validation output.
func KnownKeys() []string {
	keys := make([]string, 0, len(envNames))
	for k := range envNames {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
