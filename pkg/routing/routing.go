// Package routing derives the reverse-proxy routing table from a fleet:
// one deterministic hostname per public instance, published for the
// fronting proxy to consume.
package routing

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jihwankim/fleet-utils/pkg/fleet"
)

// Rule maps one public hostname to a fleet instance. Rules are derived,
// never hand-edited.
type Rule struct {
	Hostname string           `json:"hostname"`
	Instance fleet.InstanceID `json:"instance"`

	// Target is the network address the proxy forwards to, using the
	// instance identifier as the container network alias.
	Target string `json:"target"`
}

// Table is the complete routing table for a fleet. Rules keep declaration
// order, so regenerating from an unchanged fleet is byte-identical.
type Table struct {
	BaseDomain string `json:"base_domain"`
	Rules      []Rule `json:"rules"`
}

// Hostname derives the public hostname for an instance:
// <role>-<chain>[-with-fee].<base-domain>. The instance identifier already
// encodes role, chain, and fee variant.
func Hostname(id fleet.InstanceID, baseDomain string) string {
	return fmt.Sprintf("%s.%s", id, baseDomain)
}

// Generate builds the routing table. Instances without a public role
// produce no rule. Two instances deriving the same hostname is a fatal
// topology error.
func Generate(baseDomain string, instances []*fleet.Instance) (*Table, error) {
	if baseDomain == "" {
		return nil, fmt.Errorf("routing: base domain is empty")
	}

	t := &Table{BaseDomain: baseDomain}
	seen := make(map[string]fleet.InstanceID)

	for _, inst := range instances {
		if !inst.Role.Public() {
			continue
		}
		hostname := Hostname(inst.ID, baseDomain)
		if prev, collided := seen[hostname]; collided {
			return nil, fleet.RoutingCollisionError{
				Hostname:  hostname,
				Instances: []fleet.InstanceID{prev, inst.ID},
			}
		}
		seen[hostname] = inst.ID
		t.Rules = append(t.Rules, Rule{
			Hostname: hostname,
			Instance: inst.ID,
			Target:   fmt.Sprintf("%s:%d", inst.ID, inst.APIPort()),
		})
	}

	return t, nil
}

// Lookup returns the rule for a hostname.
func (t *Table) Lookup(hostname string) (Rule, bool) {
	for _, r := range t.Rules {
		if r.Hostname == hostname {
			return r, true
		}
	}
	return Rule{}, false
}

// Render serializes the table as indented JSON. The schema and rule order
// are stable across regenerations as long as the fleet is unchanged.
func (t *Table) Render() ([]byte, error) {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal routing table: %w", err)
	}
	return append(data, '\n'), nil
}

// Save writes the rendered table to path, creating parent directories as
// needed.
func (t *Table) Save(path string) error {
	data, err := t.Render()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create routing output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write routing table: %w", err)
	}
	return nil
}
