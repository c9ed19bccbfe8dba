package lifecycle

import (
	"context"
	"time"

	"github.com/jihwankim/fleet-utils/pkg/fleet"
)

// Runtime abstracts the container runtime the manager drives. The Docker
// adapter implements it for real fleets; tests use an in-memory fake.
type Runtime interface {
	// Start launches the instance and returns once the runtime confirms
	// the process/container started. The returned handle identifies the
	// running instance for Wait and Stop.
	Start(ctx context.Context, inst *fleet.Instance) (handle string, err error)

	// Wait blocks until the instance terminates and returns its exit
	// code. A context error means the wait was interrupted, not that the
	// instance exited.
	Wait(ctx context.Context, handle string) (int, error)

	// Stop gracefully stops the instance, killing it after timeout.
	Stop(ctx context.Context, handle string, timeout time.Duration) error
}
