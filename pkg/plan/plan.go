// Package plan turns a validated fleet declaration into a fully resolved
// orchestration plan: per-instance specs, dependency graph, start order,
// state paths, and routing table. Any configuration or topology error
// aborts planning before a single instance starts.
package plan

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/jihwankim/fleet-utils/pkg/config"
	"github.com/jihwankim/fleet-utils/pkg/fleet"
	"github.com/jihwankim/fleet-utils/pkg/fleet/validator"
	"github.com/jihwankim/fleet-utils/pkg/graph"
	"github.com/jihwankim/fleet-utils/pkg/resolver"
	"github.com/jihwankim/fleet-utils/pkg/routing"
	"github.com/jihwankim/fleet-utils/pkg/statedir"
)

// Plan is the complete, immutable result of planning one fleet
// declaration.
type Plan struct {
	RunID       string
	Declaration *fleet.Declaration

	// Instances in declaration order. The plan owns these; the lifecycle
	// manager only references them.
	Instances []*fleet.Instance

	Graph  *graph.Graph
	Routes *routing.Table
	States *statedir.Allocator

	Warnings []string

	byID map[fleet.InstanceID]*fleet.Instance
}

// Build validates and resolves a declaration against the orchestrator
// config.
func Build(cfg *config.Config, decl *fleet.Declaration) (*Plan, error) {
	v := validator.New()
	if err := v.Validate(decl); err != nil {
		return nil, fmt.Errorf("invalid fleet declaration: %w", err)
	}

	p := &Plan{
		RunID:       uuid.NewString(),
		Declaration: decl,
		States:      statedir.New(cfg.State.Root),
		Warnings:    v.Warnings,
		byID:        make(map[fleet.InstanceID]*fleet.Instance, len(decl.Spec.Instances)),
	}

	tmpl := buildTemplate(cfg, decl)
	chains := make(map[string]fleet.Chain, len(decl.Spec.Chains))
	for _, chain := range decl.Spec.Chains {
		chains[chain.Name] = chain
	}

	for _, spec := range decl.Spec.Instances {
		inst, err := p.resolveInstance(cfg, tmpl, chains, spec)
		if err != nil {
			return nil, err
		}
		if _, dup := p.byID[inst.ID]; dup {
			return nil, fleet.DuplicateInstanceError{ID: inst.ID}
		}
		p.byID[inst.ID] = inst
		p.Instances = append(p.Instances, inst)
	}

	g, err := graph.Build(p.Instances)
	if err != nil {
		return nil, err
	}
	p.Graph = g

	baseDomain := decl.Spec.BaseDomain
	if baseDomain == "" {
		baseDomain = cfg.Routing.BaseDomain
	}
	routes, err := routing.Generate(baseDomain, p.Instances)
	if err != nil {
		return nil, err
	}
	p.Routes = routes

	return p, nil
}

// resolveInstance produces one fully resolved instance from its spec.
func (p *Plan) resolveInstance(cfg *config.Config, tmpl resolver.Template, chains map[string]fleet.Chain, spec fleet.InstanceSpec) (*fleet.Instance, error) {
	id := spec.ID()
	chain := chains[spec.Chain]
	statePath := p.States.Path(id, spec.StateDBSuffix)

	overrides := make(map[string]string, len(spec.Overrides)+4)
	if spec.Role.PerChain() {
		overrides[resolver.KeyEthRPC] = chain.RPCURL
		overrides[resolver.KeyChainID] = fmt.Sprintf("%d", chain.ChainID)
		overrides[resolver.KeyStateDB] = containerStatePath(statePath)
	}
	if spec.Fee > 0 {
		overrides[resolver.KeyServiceFee] = fmt.Sprintf("%d", spec.Fee)
	}
	if spec.Debug {
		overrides[resolver.KeyLogLevel] = "DEBUG"
	}
	for k, val := range spec.Overrides {
		overrides[k] = val
	}

	resolved, err := resolver.Resolve(tmpl, id, spec.Role, overrides)
	if err != nil {
		return nil, err
	}

	image := spec.Image
	if image == "" {
		image = cfg.Docker.Images[spec.Role.Short()]
	}
	if image == "" {
		return nil, fmt.Errorf("no image configured for role %s (instance %s)", spec.Role, id)
	}

	deps := make([]fleet.InstanceID, 0, len(spec.DependsOn))
	for _, dep := range spec.DependsOn {
		deps = append(deps, fleet.InstanceID(dep))
	}

	return &fleet.Instance{
		ID:        id,
		Role:      spec.Role,
		Chain:     chain,
		Fee:       spec.Fee,
		Debug:     spec.Debug,
		Image:     image,
		Env:       resolver.Env(spec.Role, resolved),
		StatePath: statePath,
		DependsOn: deps,
	}, nil
}

// buildTemplate layers the orchestrator defaults with the declaration's
// fleet-wide defaults.
func buildTemplate(cfg *config.Config, decl *fleet.Declaration) resolver.Template {
	tmpl := resolver.DefaultTemplate()
	for k, v := range cfg.Defaults {
		tmpl.Global[k] = v
	}
	for k, v := range decl.Spec.Defaults {
		tmpl.Global[k] = v
	}
	for roleName, values := range cfg.RoleDefaults {
		role := fleet.Role(roleName)
		if tmpl.Role[role] == nil {
			tmpl.Role[role] = make(map[string]string, len(values))
		}
		for k, v := range values {
			tmpl.Role[role][k] = v
		}
	}
	return tmpl
}

// containerStatePath maps a host state database path to the fixed mount
// point inside the container. The instance's state directory is bind
// mounted at /state.
func containerStatePath(hostPath string) string {
	return "/state/" + filepath.Base(hostPath)
}

// Instance looks up an instance by identifier.
func (p *Plan) Instance(id fleet.InstanceID) (*fleet.Instance, bool) {
	inst, ok := p.byID[id]
	return inst, ok
}

// StartOrder returns the topological start order.
func (p *Plan) StartOrder() []fleet.InstanceID {
	return p.Graph.TopoOrder()
}
