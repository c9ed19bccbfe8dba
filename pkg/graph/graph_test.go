package graph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihwankim/fleet-utils/pkg/fleet"
)

func inst(role fleet.Role, chain string, fee uint64, deps ...fleet.InstanceID) *fleet.Instance {
	return &fleet.Instance{
		ID:        fleet.MakeID(role, chain, fee),
		Role:      role,
		Chain:     fleet.Chain{Name: chain},
		Fee:       fee,
		DependsOn: deps,
	}
}

func TestBuildCollectorDependsOnMonitoring(t *testing.T) {
	instances := []*fleet.Instance{
		inst(fleet.RoleRequestCollector, "ropsten", 0),
		inst(fleet.RoleMonitoring, "ropsten", 0),
	}

	g, err := Build(instances)
	require.NoError(t, err)

	assert.Equal(t, []fleet.InstanceID{"ms-ropsten"}, g.Dependencies("msrc-ropsten"))
	assert.Equal(t, []fleet.InstanceID{"ms-ropsten", "msrc-ropsten"}, g.TopoOrder())
}

func TestBuildCollectorEdgeIsPerChain(t *testing.T) {
	instances := []*fleet.Instance{
		inst(fleet.RoleMonitoring, "ropsten", 0),
		inst(fleet.RoleMonitoring, "goerli", 0),
		inst(fleet.RoleRequestCollector, "goerli", 0),
	}

	g, err := Build(instances)
	require.NoError(t, err)

	assert.Equal(t, []fleet.InstanceID{"ms-goerli"}, g.Dependencies("msrc-goerli"))
	assert.Empty(t, g.Dependencies("ms-ropsten"))
}

func TestBuildCollectorWithoutMonitoringFails(t *testing.T) {
	instances := []*fleet.Instance{
		inst(fleet.RoleRequestCollector, "ropsten", 0),
	}

	_, err := Build(instances)
	require.Error(t, err)
	assert.ErrorIs(t, err, fleet.ErrTopology)

	var unknown fleet.UnknownDependencyError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, fleet.InstanceID("msrc-ropsten"), unknown.From)
	assert.Equal(t, fleet.InstanceID("ms-ropsten"), unknown.To)
}

func TestBuildProxyDependsOnAllPublic(t *testing.T) {
	instances := []*fleet.Instance{
		inst(fleet.RolePathfinding, "ropsten", 0),
		inst(fleet.RolePathfinding, "ropsten", 100),
		inst(fleet.RoleMonitoring, "ropsten", 0),
		inst(fleet.RoleReverseProxy, "", 0),
	}

	g, err := Build(instances)
	require.NoError(t, err)

	deps := g.Dependencies("proxy")
	assert.ElementsMatch(t, []fleet.InstanceID{"pfs-ropsten", "pfs-ropsten-with-fee"}, deps)
	assert.NotContains(t, deps, fleet.InstanceID("ms-ropsten"))

	order := g.TopoOrder()
	assert.Equal(t, fleet.InstanceID("proxy"), order[len(order)-1])
}

func TestBuildTopoOrderDeterministic(t *testing.T) {
	// Independent instances keep declaration order as the tie break.
	instances := []*fleet.Instance{
		inst(fleet.RolePathfinding, "goerli", 0),
		inst(fleet.RolePathfinding, "ropsten", 0),
		inst(fleet.RoleMonitoring, "ropsten", 0),
	}

	first, err := Build(instances)
	require.NoError(t, err)
	expected := []fleet.InstanceID{"pfs-goerli", "pfs-ropsten", "ms-ropsten"}
	assert.Equal(t, expected, first.TopoOrder())

	for i := 0; i < 10; i++ {
		g, err := Build([]*fleet.Instance{
			inst(fleet.RolePathfinding, "goerli", 0),
			inst(fleet.RolePathfinding, "ropsten", 0),
			inst(fleet.RoleMonitoring, "ropsten", 0),
		})
		require.NoError(t, err)
		assert.Equal(t, expected, g.TopoOrder())
	}
}

func TestBuildExplicitDependsOn(t *testing.T) {
	instances := []*fleet.Instance{
		inst(fleet.RolePathfinding, "ropsten", 0, "ms-ropsten"),
		inst(fleet.RoleMonitoring, "ropsten", 0),
	}

	g, err := Build(instances)
	require.NoError(t, err)
	assert.Equal(t, []fleet.InstanceID{"ms-ropsten", "pfs-ropsten"}, g.TopoOrder())
}

func TestBuildUnknownExplicitDependency(t *testing.T) {
	instances := []*fleet.Instance{
		inst(fleet.RolePathfinding, "ropsten", 0, "ms-kovan"),
	}

	_, err := Build(instances)
	require.Error(t, err)
	var unknown fleet.UnknownDependencyError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, fleet.InstanceID("ms-kovan"), unknown.To)
}

func TestBuildCycleDetected(t *testing.T) {
	instances := []*fleet.Instance{
		inst(fleet.RolePathfinding, "ropsten", 0, "ms-ropsten"),
		inst(fleet.RoleMonitoring, "ropsten", 0, "pfs-ropsten"),
	}

	_, err := Build(instances)
	require.Error(t, err)
	assert.ErrorIs(t, err, fleet.ErrTopology)

	var cycle fleet.DependencyCycleError
	require.ErrorAs(t, err, &cycle)
	require.NotEmpty(t, cycle.Path)
	// The path names both participants and closes the loop.
	assert.Equal(t, cycle.Path[0], cycle.Path[len(cycle.Path)-1])
	assert.Contains(t, err.Error(), "pfs-ropsten")
	assert.Contains(t, err.Error(), "ms-ropsten")
}

func TestBuildDuplicateInstance(t *testing.T) {
	instances := []*fleet.Instance{
		inst(fleet.RolePathfinding, "ropsten", 0),
		inst(fleet.RolePathfinding, "ropsten", 0),
	}

	_, err := Build(instances)
	require.Error(t, err)
	var dup fleet.DuplicateInstanceError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, fleet.InstanceID("pfs-ropsten"), dup.ID)
}

func TestBuildRecordsDependsOnInstances(t *testing.T) {
	instances := []*fleet.Instance{
		inst(fleet.RoleRequestCollector, "ropsten", 0),
		inst(fleet.RoleMonitoring, "ropsten", 0),
	}

	_, err := Build(instances)
	require.NoError(t, err)
	assert.Equal(t, []fleet.InstanceID{"ms-ropsten"}, instances[0].DependsOn)
}

func TestDOT(t *testing.T) {
	g, err := Build([]*fleet.Instance{
		inst(fleet.RoleMonitoring, "ropsten", 0),
		inst(fleet.RoleRequestCollector, "ropsten", 0),
	})
	require.NoError(t, err)

	dot := g.DOT()
	assert.True(t, strings.HasPrefix(dot, "digraph fleet {"))
	assert.Contains(t, dot, "ms-ropsten")
	assert.Contains(t, dot, "msrc-ropsten")
	assert.Contains(t, dot, "->")
}

func TestDependents(t *testing.T) {
	g, err := Build([]*fleet.Instance{
		inst(fleet.RoleMonitoring, "ropsten", 0),
		inst(fleet.RoleRequestCollector, "ropsten", 0),
	})
	require.NoError(t, err)
	assert.Equal(t, []fleet.InstanceID{"msrc-ropsten"}, g.Dependents("ms-ropsten"))
}
