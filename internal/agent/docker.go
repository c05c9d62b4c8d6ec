package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/core/job"
)

// DockerRunner drives the container lifecycle through the docker CLI.
// The agent shells out instead of linking a daemon client so it runs
// against whatever docker (or podman wrapper) the host provides.
type DockerRunner struct {
	binary  string
	network string
}

func NewDockerRunner(binary, network string) *DockerRunner {
	if binary == "" {
		binary = "docker"
	}
	return &DockerRunner{binary: binary, network: network}
}

// Pull fetches the image. Failures are tolerated upstream; a stale
// local image still runs.
func (d *DockerRunner) Pull(ctx context.Context, image string) error {
	_, err := d.run(ctx, "pull", image)
	return err
}

// RemoveContainer force-removes a container by name, ignoring absence.
func (d *DockerRunner) RemoveContainer(ctx context.Context, name string) {
	if _, err := d.run(ctx, "rm", "-f", name); err != nil {
		log.Debug().Err(err).Str("container", name).Msg("stale container removal")
	}
}

// HasNetwork reports whether the configured network exists on this host.
func (d *DockerRunner) HasNetwork(ctx context.Context) bool {
	if d.network == "" {
		return false
	}
	_, err := d.run(ctx, "network", "inspect", d.network)
	return err == nil
}

// Start launches the payload detached and returns the container id.
// The configured network is only attached when it exists on this host,
// and GPU access is attempted first then dropped when the runtime
// rejects it.
func (d *DockerRunner) Start(ctx context.Context, p *job.Payload) (string, error) {
	network := d.network
	if network != "" && !d.HasNetwork(ctx) {
		log.Debug().Str("network", network).Msg("docker network missing, starting without it")
		network = ""
	}

	id, err := d.run(ctx, runArgs(p, network, true)...)
	if err == nil {
		return id, nil
	}
	log.Debug().Err(err).Str("job_id", p.JobID).Msg("gpu run failed, retrying without gpus")

	d.RemoveContainer(ctx, p.ContainerName)
	id, err = d.run(ctx, runArgs(p, network, false)...)
	if err != nil {
		return "", fmt.Errorf("docker run: %w", err)
	}
	return id, nil
}

// runArgs builds the docker run argument list for p.
func runArgs(p *job.Payload, network string, gpus bool) []string {
	args := []string{"run", "-d", "--name", p.ContainerName}

	if network != "" {
		args = append(args, "--network", network)
	}
	if gpus {
		args = append(args, "--gpus", "all")
	}

	for _, v := range p.Volumes {
		mode := v.Mode
		if mode == "" {
			mode = "rw"
		}
		args = append(args, "-v", fmt.Sprintf("%s:%s:%s", v.Host, v.Container, mode))
	}

	env := make(map[string]string, len(p.Env)+2)
	for k, v := range p.Env {
		env[k] = v
	}
	if _, ok := env["NVIDIA_VISIBLE_DEVICES"]; !ok {
		env["NVIDIA_VISIBLE_DEVICES"] = "all"
	}
	if _, ok := env["NVIDIA_DRIVER_CAPABILITIES"]; !ok {
		env["NVIDIA_DRIVER_CAPABILITIES"] = "compute,utility"
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", k+"="+env[k])
	}

	args = append(args, p.Image)
	args = append(args, strings.Fields(p.Command)...)
	return args
}

// StreamLogs follows the container log into w until the container
// exits or ctx is cancelled.
func (d *DockerRunner) StreamLogs(ctx context.Context, containerID string, w io.Writer) error {
	cmd := exec.CommandContext(ctx, d.binary, "logs", "-f", containerID)
	cmd.Stdout = w
	cmd.Stderr = w
	return cmd.Run()
}

// Wait blocks until the container exits and returns its exit code.
func (d *DockerRunner) Wait(ctx context.Context, containerID string) (int64, error) {
	out, err := d.run(ctx, "wait", containerID)
	if err != nil {
		return 0, fmt.Errorf("docker wait: %w", err)
	}
	code, err := strconv.ParseInt(strings.TrimSpace(out), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse exit code %q: %w", out, err)
	}
	return code, nil
}

// Stop asks the container to shut down.
func (d *DockerRunner) Stop(ctx context.Context, containerID string) error {
	_, err := d.run(ctx, "stop", containerID)
	return err
}

func (d *DockerRunner) run(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, d.binary, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return "", fmt.Errorf("%s %s: %s", d.binary, args[0], strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("%s %s: %w", d.binary, args[0], err)
	}
	return strings.TrimSpace(string(out)), nil
}
