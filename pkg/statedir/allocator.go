// Package statedir assigns each instance an isolated durable-storage
// location under a shared state root.
package statedir

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jihwankim/fleet-utils/pkg/fleet"
)

const (
	// DefaultDBName is the state database filename when the declaration
	// does not override it.
	DefaultDBName = "state.db"

	ownerFile = ".owner"
)

// Allocator maps instance identifiers to state paths. The mapping is
// injective: each identifier gets its own directory named after it, so two
// distinct instances can never share a state file.
//
// Paths outlive the instance declaration. Removing an instance from the
// fleet never deletes its state; in this domain losing a state database
// can mean irrecoverable funds-related data, so deletion is an explicit
// operator action.
type Allocator struct {
	root string
}

// New creates an allocator rooted at root.
func New(root string) *Allocator {
	return &Allocator{root: root}
}

// Root returns the shared state root directory.
func (a *Allocator) Root() string {
	return a.root
}

// Path returns the state database path for an instance without touching
// the filesystem. dbName defaults to DefaultDBName.
func (a *Allocator) Path(id fleet.InstanceID, dbName string) string {
	if dbName == "" {
		dbName = DefaultDBName
	}
	return filepath.Join(a.root, string(id), dbName)
}

// Dir returns the instance's state directory.
func (a *Allocator) Dir(id fleet.InstanceID) string {
	return filepath.Join(a.root, string(id))
}

// Claim creates the instance's state directory and marks its ownership.
// A directory already owned by a different instance is refused rather
// than reused.
func (a *Allocator) Claim(id fleet.InstanceID) (string, error) {
	dir := a.Dir(id)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create state directory for %s: %w", id, err)
	}

	marker := filepath.Join(dir, ownerFile)
	data, err := os.ReadFile(marker)
	switch {
	case err == nil:
		owner := strings.TrimSpace(string(data))
		if owner != string(id) {
			return "", fmt.Errorf("state directory %s is owned by instance %q, refusing to hand it to %s", dir, owner, id)
		}
	case os.IsNotExist(err):
		if err := os.WriteFile(marker, []byte(id.String()+"\n"), 0600); err != nil {
			return "", fmt.Errorf("failed to mark state directory owner for %s: %w", id, err)
		}
	default:
		return "", fmt.Errorf("failed to read state directory owner for %s: %w", id, err)
	}

	return dir, nil
}

// Claimed lists the instance identifiers that own a directory under the
// state root, including ones no longer declared in the fleet.
func (a *Allocator) Claimed() ([]fleet.InstanceID, error) {
	entries, err := os.ReadDir(a.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state root: %w", err)
	}

	var ids []fleet.InstanceID
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		ids = append(ids, fleet.InstanceID(entry.Name()))
	}
	return ids, nil
}
