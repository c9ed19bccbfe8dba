package docker

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/go-connections/nat"

	"github.com/jihwankim/fleet-utils/pkg/fleet"
	"github.com/jihwankim/fleet-utils/pkg/resolver"
	"github.com/jihwankim/fleet-utils/pkg/routing"
)

// Labels attached to every fleet container so the fleet can be
// rediscovered by later invocations (status, logs, down).
const (
	LabelInstance  = "fleet.instance"
	LabelRole      = "fleet.role"
	LabelChain     = "fleet.chain"
	LabelRouteHost = "fleet.route.host"
)

// Config contains runtime settings.
type Config struct {
	// Network every fleet container joins, with the instance identifier
	// as network alias.
	Network string

	// BaseDomain for the routing label on public instances.
	BaseDomain string

	StopTimeout time.Duration
}

// Runtime implements the lifecycle runtime over the Docker Engine API.
type Runtime struct {
	client *Client
	cfg    Config
}

// NewRuntime creates a Docker runtime and ensures the fleet network
// exists.
func NewRuntime(ctx context.Context, cfg Config) (*Runtime, error) {
	c, err := NewClient()
	if err != nil {
		return nil, err
	}
	if err := c.EnsureNetwork(ctx, cfg.Network); err != nil {
		c.Close()
		return nil, err
	}
	return &Runtime{client: c, cfg: cfg}, nil
}

// Close releases the Docker client.
func (r *Runtime) Close() error {
	return r.client.Close()
}

// containerName derives the container name for an instance.
func containerName(id fleet.InstanceID) string {
	return "fleet-" + string(id)
}

// Start creates and starts the instance's container. A leftover container
// from a previous run with the same name is force-removed first. Start
// returning without error is the instance's start confirmation signal.
func (r *Runtime) Start(ctx context.Context, inst *fleet.Instance) (string, error) {
	name := containerName(inst.ID)
	if err := r.removeExisting(ctx, inst.ID); err != nil {
		return "", err
	}

	labels := map[string]string{
		LabelInstance: string(inst.ID),
		LabelRole:     string(inst.Role),
	}
	if inst.Role.PerChain() {
		labels[LabelChain] = inst.Chain.Name
	}
	if inst.Role.Public() {
		labels[LabelRouteHost] = routing.Hostname(inst.ID, r.cfg.BaseDomain)
	}

	config := &container.Config{
		Image:  inst.Image,
		Env:    resolver.EnvStrings(inst.Env),
		Labels: labels,
	}

	hostConfig := &container.HostConfig{
		// Supervision and restart policy belong to the lifecycle manager,
		// not the Docker daemon.
		RestartPolicy: container.RestartPolicy{Name: "no"},
	}
	if inst.StatePath != "" {
		hostConfig.Binds = []string{stateDir(inst.StatePath) + ":/state"}
	}

	if inst.Role == fleet.RoleReverseProxy {
		bindings := nat.PortMap{}
		exposed := nat.PortSet{}
		for _, port := range []string{"80", "443"} {
			p := nat.Port(port + "/tcp")
			exposed[p] = struct{}{}
			bindings[p] = []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: port}}
		}
		config.ExposedPorts = exposed
		hostConfig.PortBindings = bindings
	}

	networkingConfig := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			r.cfg.Network: {
				Aliases: []string{string(inst.ID)},
			},
		},
	}

	created, err := r.client.ContainerCreate(ctx, config, hostConfig, networkingConfig, nil, name)
	if err != nil {
		return "", fmt.Errorf("failed to create container for %s: %w", inst.ID, err)
	}

	if err := r.client.ContainerStart(ctx, created.ID, types.ContainerStartOptions{}); err != nil {
		// Clean up the half-created container so the next attempt is not
		// blocked by the name.
		r.client.ContainerRemove(ctx, created.ID, types.ContainerRemoveOptions{Force: true})
		return "", fmt.Errorf("failed to start container for %s: %w", inst.ID, err)
	}

	return created.ID, nil
}

// Wait blocks until the container exits and returns its exit code.
func (r *Runtime) Wait(ctx context.Context, handle string) (int, error) {
	waitCh, errCh := r.client.ContainerWait(ctx, handle)
	select {
	case resp := <-waitCh:
		if resp.Error != nil {
			return int(resp.StatusCode), fmt.Errorf("container wait error: %s", resp.Error.Message)
		}
		return int(resp.StatusCode), nil
	case err := <-errCh:
		return 0, err
	}
}

// Stop gracefully stops the container, then removes it. The instance's
// state directory is untouched.
func (r *Runtime) Stop(ctx context.Context, handle string, timeout time.Duration) error {
	seconds := int(timeout.Seconds())
	if err := r.client.ContainerStop(ctx, handle, &seconds); err != nil {
		return fmt.Errorf("failed to stop container %s: %w", shortID(handle), err)
	}
	if err := r.client.ContainerRemove(ctx, handle, types.ContainerRemoveOptions{RemoveVolumes: false}); err != nil {
		return fmt.Errorf("failed to remove container %s: %w", shortID(handle), err)
	}
	return nil
}

// FleetContainer is one discovered fleet container.
type FleetContainer struct {
	Instance    fleet.InstanceID
	Role        fleet.Role
	Chain       string
	ContainerID string
	State       string
	Status      string
}

// ListFleet discovers all fleet containers (running or not) via labels.
func (r *Runtime) ListFleet(ctx context.Context) ([]FleetContainer, error) {
	containers, err := r.client.ContainerList(ctx, types.ContainerListOptions{
		All:     true,
		Filters: buildLabelFilters(map[string]string{LabelInstance: ""}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list fleet containers: %w", err)
	}

	result := make([]FleetContainer, 0, len(containers))
	for _, ctr := range containers {
		result = append(result, FleetContainer{
			Instance:    fleet.InstanceID(ctr.Labels[LabelInstance]),
			Role:        fleet.Role(ctr.Labels[LabelRole]),
			Chain:       ctr.Labels[LabelChain],
			ContainerID: ctr.ID,
			State:       ctr.State,
			Status:      ctr.Status,
		})
	}
	return result, nil
}

// Logs streams the logs of an instance's container.
func (r *Runtime) Logs(ctx context.Context, id fleet.InstanceID, follow bool, tail string) (io.ReadCloser, error) {
	containers, err := r.client.ContainerList(ctx, types.ContainerListOptions{
		All:     true,
		Filters: buildLabelFilters(map[string]string{LabelInstance: string(id)}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find container for %s: %w", id, err)
	}
	if len(containers) == 0 {
		return nil, fmt.Errorf("no container found for instance %s", id)
	}

	return r.client.ContainerLogs(ctx, containers[0].ID, types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     follow,
		Tail:       tail,
	})
}

// StopInstance stops and removes a discovered instance container by
// identifier, used by the down command.
func (r *Runtime) StopInstance(ctx context.Context, id fleet.InstanceID, timeout time.Duration) error {
	containers, err := r.client.ContainerList(ctx, types.ContainerListOptions{
		All:     true,
		Filters: buildLabelFilters(map[string]string{LabelInstance: string(id)}),
	})
	if err != nil {
		return fmt.Errorf("failed to find container for %s: %w", id, err)
	}
	for _, ctr := range containers {
		if ctr.State == "running" {
			if err := r.Stop(ctx, ctr.ID, timeout); err != nil {
				return err
			}
			continue
		}
		if err := r.client.ContainerRemove(ctx, ctr.ID, types.ContainerRemoveOptions{Force: true}); err != nil {
			return fmt.Errorf("failed to remove container %s: %w", shortID(ctr.ID), err)
		}
	}
	return nil
}

// removeExisting force-removes any leftover container for the instance.
func (r *Runtime) removeExisting(ctx context.Context, id fleet.InstanceID) error {
	containers, err := r.client.ContainerList(ctx, types.ContainerListOptions{
		All:     true,
		Filters: buildLabelFilters(map[string]string{LabelInstance: string(id)}),
	})
	if err != nil {
		return fmt.Errorf("failed to check for leftover container of %s: %w", id, err)
	}
	for _, ctr := range containers {
		if err := r.client.ContainerRemove(ctx, ctr.ID, types.ContainerRemoveOptions{Force: true, RemoveVolumes: false}); err != nil {
			return fmt.Errorf("failed to remove leftover container %s: %w", shortID(ctr.ID), err)
		}
	}
	return nil
}

// stateDir returns the directory containing a state database path.
func stateDir(statePath string) string {
	return filepath.Dir(statePath)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
