// Package validator checks a parsed fleet declaration for structural
// correctness before planning.
package validator

import (
	"fmt"
	"net/url"

	"github.com/jihwankim/fleet-utils/pkg/fleet"
)

// Validator validates fleet declarations. Hard violations are returned as
// errors; questionable but workable declarations accumulate Warnings.
type Validator struct {
	Warnings []string
}

// New creates a new validator.
func New() *Validator {
	return &Validator{}
}

// Validate checks the declaration. It verifies chain declarations, role
// validity, instance/chain pairing, and identifier uniqueness. Dependency
// edges and hostname collisions are checked later by the graph and routing
// builders, which see the resolved instances.
func (v *Validator) Validate(decl *fleet.Declaration) error {
	chains := make(map[string]fleet.Chain, len(decl.Spec.Chains))
	for i, chain := range decl.Spec.Chains {
		if chain.Name == "" {
			return fmt.Errorf("spec.chains[%d].name is required", i)
		}
		if _, dup := chains[chain.Name]; dup {
			return fmt.Errorf("chain %q is declared more than once", chain.Name)
		}
		if chain.RPCURL == "" {
			return fmt.Errorf("chain %q: rpc_url is required", chain.Name)
		}
		if u, err := url.Parse(chain.RPCURL); err != nil || u.Scheme == "" {
			return fmt.Errorf("chain %q: rpc_url %q is not a valid URL", chain.Name, chain.RPCURL)
		}
		if chain.ChainID == 0 {
			return fmt.Errorf("chain %q: chain_id is required", chain.Name)
		}
		chains[chain.Name] = chain
	}

	seen := make(map[fleet.InstanceID]int, len(decl.Spec.Instances))
	for i, spec := range decl.Spec.Instances {
		if !spec.Role.Valid() {
			return fmt.Errorf("spec.instances[%d]: unknown role %q", i, spec.Role)
		}

		if spec.Role.PerChain() {
			if spec.Chain == "" {
				return fmt.Errorf("spec.instances[%d]: role %s requires a chain", i, spec.Role)
			}
			if _, ok := chains[spec.Chain]; !ok {
				return fmt.Errorf("spec.instances[%d]: chain %q is not declared", i, spec.Chain)
			}
		} else if spec.Chain != "" {
			return fmt.Errorf("spec.instances[%d]: role %s is fleet-level and must not name a chain", i, spec.Role)
		}

		if spec.Fee > 0 && !spec.Role.Public() {
			v.Warnings = append(v.Warnings,
				fmt.Sprintf("instance %s: fee is only meaningful for public roles", spec.ID()))
		}

		id := spec.ID()
		if prev, dup := seen[id]; dup {
			return fmt.Errorf("%w (spec.instances[%d] and spec.instances[%d])",
				fleet.DuplicateInstanceError{ID: id}, prev, i)
		}
		seen[id] = i
	}

	return nil
}
