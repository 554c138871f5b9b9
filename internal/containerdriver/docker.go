package containerdriver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	dockernetwork "github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
)

const labelManaged = "codesandbox.managed"
const labelPrefix = "codesandbox."

// DockerDriver implements Driver over the Docker Engine API, the same
// client library and resource-limiting conventions (dropped capabilities,
// no-new-privileges, pids limit, nano-CPU quota) the teacher's
// internal/docker client uses.
type DockerDriver struct {
	cli            *client.Client
	defaultNetwork string
}

// NewDockerDriver dials the local Docker daemon via the standard
// environment variables, negotiating the API version. networkName is the
// shared sandbox network EnsureNetwork creates/reuses.
func NewDockerDriver(networkName string) (*DockerDriver, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrEngineUnavailable, err)
	}
	return &DockerDriver{cli: cli, defaultNetwork: networkName}, nil
}

func (d *DockerDriver) Ping(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %s", ErrEngineUnavailable, err)
	}
	return nil
}

func (d *DockerDriver) EnsureNetwork(ctx context.Context) (string, error) {
	return d.ensureNetworkNamed(ctx, d.defaultNetwork)
}

func (d *DockerDriver) ensureNetworkNamed(ctx context.Context, name string) (string, error) {
	nets, err := d.cli.NetworkList(ctx, dockernetwork.ListOptions{
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return "", fmt.Errorf("network list: %w", err)
	}
	for _, n := range nets {
		if n.Name == name {
			return n.ID, nil
		}
	}

	resp, err := d.cli.NetworkCreate(ctx, name, dockernetwork.CreateOptions{
		Driver:   "bridge",
		Internal: false,
	})
	if err != nil {
		return "", fmt.Errorf("network create: %w", err)
	}
	return resp.ID, nil
}

func (d *DockerDriver) Create(ctx context.Context, opts CreateOpts) (string, error) {
	if _, err := d.ensureNetworkNamed(ctx, opts.NetworkName); err != nil {
		return "", err
	}

	labels := map[string]string{labelManaged: "true"}
	for k, v := range opts.Labels {
		labels[k] = v
	}

	resources := container.Resources{
		NanoCPUs:  opts.NanoCPUs,
		Memory:    opts.MemoryBytes,
		PidsLimit: int64Ptr(opts.PidsLimit),
	}

	var mounts []mount.Mount
	for hostPath, m := range opts.Mounts {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   hostPath,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	hostCfg := &container.HostConfig{
		Resources:   resources,
		AutoRemove:  false,
		NetworkMode: container.NetworkMode(opts.NetworkName),
		SecurityOpt: []string{"no-new-privileges"},
		CapDrop:     []string{"ALL"},
		Mounts:      mounts,
	}

	var env []string
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}

	containerCfg := &container.Config{
		Image:  opts.Image,
		Labels: labels,
		Tty:    false,
		Env:    env,
	}

	resp, err := d.cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, opts.Name)
	if err != nil {
		return "", fmt.Errorf("container create: %w", err)
	}
	return resp.ID, nil
}

func (d *DockerDriver) Start(ctx context.Context, containerID string) error {
	if err := d.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		d.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
		return fmt.Errorf("%w: %s", ErrStartFailed, err)
	}
	return nil
}

func (d *DockerDriver) IP(ctx context.Context, containerID string) (string, error) {
	info, err := d.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("container inspect: %w", err)
	}

	networks := info.NetworkSettings.Networks
	for _, n := range networks {
		if n.IPAddress != "" {
			return n.IPAddress, nil
		}
	}
	return "", fmt.Errorf("container %s has no assigned IP", containerID)
}

func (d *DockerDriver) WaitHealthy(ctx context.Context, containerID string, port int, interval, timeout time.Duration) error {
	ip, err := d.IP(ctx, containerID)
	if err != nil {
		return err
	}

	url := "http://" + net.JoinHostPort(ip, strconv.Itoa(port)) + "/health"
	httpClient := &http.Client{Timeout: 5 * time.Second}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err == nil {
			resp, err := httpClient.Do(req)
			if err == nil {
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					return nil
				}
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}

	return ErrHealthTimeout
}

func (d *DockerDriver) Stop(ctx context.Context, containerID string, grace time.Duration) error {
	secs := int(grace.Seconds())
	err := d.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &secs})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("container stop: %w", err)
	}
	return nil
}

func (d *DockerDriver) Remove(ctx context.Context, containerID string) error {
	err := d.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("container remove: %w", err)
	}
	return nil
}

func (d *DockerDriver) Get(ctx context.Context, containerID string) (Info, error) {
	info, err := d.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return Info{}, ErrNotFound
		}
		return Info{}, fmt.Errorf("container inspect: %w", err)
	}
	return Info{
		ContainerID: info.ID,
		Name:        info.Name,
		Labels:      info.Config.Labels,
		Running:     info.State.Running,
	}, nil
}

func (d *DockerDriver) ListByPrefix(ctx context.Context, prefix string) ([]Info, error) {
	f := filters.NewArgs()
	f.Add("label", labelManaged+"=true")
	f.Add("name", prefix)

	containers, err := d.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: f,
	})
	if err != nil {
		return nil, fmt.Errorf("container list: %w", err)
	}

	out := make([]Info, 0, len(containers))
	for _, c := range containers {
		out = append(out, Info{
			ContainerID: c.ID,
			Name:        firstName(c.Names),
			Labels:      c.Labels,
			Running:     c.State == "running",
		})
	}
	return out, nil
}

func firstName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

func int64Ptr(v int64) *int64 { return &v }

var _ Driver = (*DockerDriver)(nil)

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
