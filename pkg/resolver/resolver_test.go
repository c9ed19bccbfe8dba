package resolver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihwankim/fleet-utils/pkg/fleet"
)

func testTemplate() Template {
	tmpl := DefaultTemplate()
	tmpl.Global[KeyEthRPC] = "http://geth-ropsten:8545"
	tmpl.Global[KeyChainID] = "3"
	tmpl.Global[KeyStateDB] = "/state/state.db"
	tmpl.Global[KeyKeystoreFile] = "/keys/service.json"
	tmpl.Global[KeyPassword] = "hunter2"
	return tmpl
}

func TestResolvePrecedence(t *testing.T) {
	tmpl := testTemplate()
	tmpl.Global[KeyLogLevel] = "INFO"
	tmpl.Role = map[fleet.Role]map[string]string{
		fleet.RolePathfinding: {
			KeyLogLevel: "WARNING",
			KeyAPIPort:  "6000",
		},
	}

	resolved, err := Resolve(tmpl, "pfs-ropsten", fleet.RolePathfinding, map[string]string{
		KeyLogLevel: "DEBUG",
	})
	require.NoError(t, err)

	// instance override > role default > global default
	assert.Equal(t, "DEBUG", resolved[KeyLogLevel])
	assert.Equal(t, "6000", resolved[KeyAPIPort])
	assert.Equal(t, "http://geth-ropsten:8545", resolved[KeyEthRPC])
}

func TestResolveRoleDefaultOverGlobal(t *testing.T) {
	tmpl := testTemplate()
	tmpl.Role = map[fleet.Role]map[string]string{
		fleet.RoleMonitoring: {KeyLogLevel: "WARNING"},
	}

	resolved, err := Resolve(tmpl, "ms-ropsten", fleet.RoleMonitoring, nil)
	require.NoError(t, err)
	assert.Equal(t, "WARNING", resolved[KeyLogLevel])
}

func TestResolveUnknownKey(t *testing.T) {
	_, err := Resolve(testTemplate(), "pfs-ropsten", fleet.RolePathfinding, map[string]string{
		"log-lvl": "DEBUG",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, fleet.ErrConfiguration)

	var unknown fleet.UnknownConfigKeyError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "log-lvl", unknown.Key)
	// The message names the known keys so the operator can spot the typo.
	assert.Contains(t, err.Error(), KeyLogLevel)
}

func TestResolveMissingRequired(t *testing.T) {
	tmpl := testTemplate()
	delete(tmpl.Global, KeyKeystoreFile)

	_, err := Resolve(tmpl, "ms-goerli", fleet.RoleMonitoring, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, fleet.ErrConfiguration)

	var missing fleet.MissingRequiredConfigError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, KeyKeystoreFile, missing.Key)
	assert.Equal(t, fleet.InstanceID("ms-goerli"), missing.Instance)
}

func TestResolveProxyHasNoRequiredKeys(t *testing.T) {
	resolved, err := Resolve(DefaultTemplate(), "proxy", fleet.RoleReverseProxy, map[string]string{
		KeyAcmeEmail: "ops@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", resolved[KeyAcmeEmail])
}

func TestResolveIsPure(t *testing.T) {
	tmpl := testTemplate()
	overrides := map[string]string{KeyLogLevel: "DEBUG"}

	first, err := Resolve(tmpl, "pfs-ropsten", fleet.RolePathfinding, overrides)
	require.NoError(t, err)
	second, err := Resolve(tmpl, "pfs-ropsten", fleet.RolePathfinding, overrides)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "INFO", tmpl.Global[KeyLogLevel], "template must not be mutated")
	assert.Equal(t, map[string]string{KeyLogLevel: "DEBUG"}, overrides, "overrides must not be mutated")
}

func TestEnvPrefixPerRole(t *testing.T) {
	resolved := map[string]string{
		KeyEthRPC:   "http://geth:8545",
		KeyLogLevel: "INFO",
	}

	pfs := Env(fleet.RolePathfinding, resolved)
	assert.Equal(t, "http://geth:8545", pfs["PFS_ETH_RPC"])
	assert.Equal(t, "INFO", pfs["PFS_LOG_LEVEL"])

	msrc := Env(fleet.RoleRequestCollector, resolved)
	assert.Equal(t, "http://geth:8545", msrc["MSRC_ETH_RPC"])
}

func TestEnvStringsSorted(t *testing.T) {
	pairs := EnvStrings(map[string]string{
		"MS_PASSWORD": "hunter2",
		"MS_ETH_RPC":  "http://geth:8545",
		"MS_CHAIN_ID": "3",
	})
	assert.Equal(t, []string{
		"MS_CHAIN_ID=3",
		"MS_ETH_RPC=http://geth:8545",
		"MS_PASSWORD=hunter2",
	}, pairs)
}

func TestKnownKeysSorted(t *testing.T) {
	keys := KnownKeys()
	require.NotEmpty(t, keys)
	assert.Contains(t, keys, KeyEthRPC)
	assert.True(t, sortedStrings(keys))
}

func sortedStrings(s []string) bool {
	for i := 1; i < len(s); i++ {
		if s[i-1] > s[i] {
			return false
		}
	}
	return true
}

func TestErrorCategories(t *testing.T) {
	_, err := Resolve(testTemplate(), "pfs-ropsten", fleet.RolePathfinding, map[string]string{"bogus": "1"})
	assert.True(t, errors.Is(err, fleet.ErrConfiguration))
	assert.False(t, errors.Is(err, fleet.ErrTopology))
}
