// Package chain verifies declared chain environments against their RPC
// endpoints before the fleet starts. The per-chain services refuse to run
// against a mismatched chain, so surfacing the mismatch at plan time saves
// a crash loop.
package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/sync/errgroup"

	"github.com/jihwankim/fleet-utils/pkg/fleet"
)

// DefaultProbeTimeout bounds a single RPC endpoint check.
const DefaultProbeTimeout = 10 * time.Second

// Verify dials the chain's RPC endpoint and checks that it reports the
// declared chain id.
func Verify(ctx context.Context, c fleet.Chain, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := ethclient.DialContext(ctx, c.RPCURL)
	if err != nil {
		return fmt.Errorf("chain %s: failed to dial RPC endpoint %s: %w", c.Name, c.RPCURL, err)
	}
	defer client.Close()

	id, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("chain %s: failed to query chain id from %s: %w", c.Name, c.RPCURL, err)
	}

	if id.Uint64() != c.ChainID {
		return fmt.Errorf("chain %s: RPC endpoint %s reports chain id %d, declaration says %d",
			c.Name, c.RPCURL, id.Uint64(), c.ChainID)
	}
	return nil
}

// VerifyAll probes every declared chain concurrently and returns the first
// mismatch or connection error.
func VerifyAll(ctx context.Context, chains []fleet.Chain, timeout time.Duration) error {
	eg, egCtx := errgroup.WithContext(ctx)
	for _, c := range chains {
		c := c
		eg.Go(func() error {
			return Verify(egCtx, c, timeout)
		})
	}
	return eg.Wait()
}
