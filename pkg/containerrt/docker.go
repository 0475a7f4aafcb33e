package containerrt

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// stopGrace is how long a container gets to exit after SIGTERM before the
// daemon kills it.
const stopGrace = 5 // seconds

// DockerRuntime implements Runtime using the Docker SDK. Each Run gets a
// fresh container and a private temp working directory bind-mounted at
// /work; both are removed on every exit path.
type DockerRuntime struct {
	client *client.Client
}

// NewDockerRuntime creates a Docker-based runtime. With an empty host the
// client is initialized from standard environment variables (DOCKER_HOST...).
func NewDockerRuntime(host string) (*DockerRuntime, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &DockerRuntime{client: cli}, nil
}

// Run implements Runtime.
func (d *DockerRuntime) Run(ctx context.Context, spec RunSpec) (*RawOutput, error) {
	if err := d.ensureImage(ctx, spec.Image); err != nil {
		return nil, &StartError{Image: spec.Image, Err: err}
	}

	workDir, err := os.MkdirTemp("", "mdtk-run-*")
	if err != nil {
		return nil, &StartError{Image: spec.Image, Err: fmt.Errorf("create workdir: %w", err)}
	}
	defer os.RemoveAll(workDir)

	for name, data := range spec.InputFiles {
		if err := os.WriteFile(filepath.Join(workDir, name), data, 0o644); err != nil {
			return nil, &StartError{Image: spec.Image, Err: fmt.Errorf("write input %s: %w", name, err)}
		}
	}

	cfg := &container.Config{
		Image:      spec.Image,
		Cmd:        spec.Command,
		Env:        envList(spec.Env),
		WorkingDir: "/work",
	}
	if len(spec.Stdin) > 0 {
		cfg.OpenStdin = true
		cfg.AttachStdin = true
		cfg.StdinOnce = true
	}
	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: workDir,
			Target: "/work",
		}},
		Resources: container.Resources{
			NanoCPUs: int64(spec.Limits.CPUs * 1e9),
			Memory:   spec.Limits.MemoryBytes,
		},
	}

	created, err := d.client.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return nil, &StartError{Image: spec.Image, Err: fmt.Errorf("create container: %w", err)}
	}
	id := created.ID
	// Teardown happens regardless of how the run ends.
	defer func() {
		rmCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = d.client.ContainerRemove(rmCtx, id, container.RemoveOptions{Force: true, RemoveVolumes: true})
	}()

	if len(spec.Stdin) > 0 {
		attach, err := d.client.ContainerAttach(ctx, id, container.AttachOptions{
			Stream: true,
			Stdin:  true,
		})
		if err != nil {
			return nil, &StartError{Image: spec.Image, Err: fmt.Errorf("attach stdin: %w", err)}
		}
		go func() {
			defer attach.Close()
			_, _ = attach.Conn.Write(spec.Stdin)
			_ = attach.CloseWrite()
		}()
	}

	if err := d.client.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return nil, &StartError{Image: spec.Image, Err: fmt.Errorf("start container: %w", err)}
	}

	runCtx := ctx
	if spec.Limits.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, spec.Limits.Timeout)
		defer cancel()
	}

	exitCode, err := d.wait(runCtx, id)
	if err != nil {
		d.stop(id)
		if runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, ErrTimedOut
		}
		return nil, err
	}

	stdout, stderr, err := d.collectLogs(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("collect logs: %w", err)
	}

	out := &RawOutput{
		ExitCode: exitCode,
		Stdout:   stdout,
		Stderr:   stderr,
		Files:    collectFiles(workDir, spec.OutputFiles),
	}
	return out, nil
}

func (d *DockerRuntime) ensureImage(ctx context.Context, ref string) error {
	if _, err := d.client.ImageInspect(ctx, ref); err == nil {
		return nil
	}
	reader, err := d.client.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image: %w", err)
	}
	defer reader.Close()
	_, err = io.Copy(io.Discard, reader)
	return err
}

func (d *DockerRuntime) wait(ctx context.Context, id string) (int, error) {
	statusCh, errCh := d.client.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return -1, err
	case status := <-statusCh:
		if status.Error != nil {
			return int(status.StatusCode), fmt.Errorf("%s", status.Error.Message)
		}
		return int(status.StatusCode), nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// stop forcibly terminates a container that overran its budget or was
// canceled. Errors are ignored: the deferred remove is forced anyway.
func (d *DockerRuntime) stop(id string) {
	grace := stopGrace
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = d.client.ContainerStop(stopCtx, id, container.StopOptions{Timeout: &grace})
}

func (d *DockerRuntime) collectLogs(ctx context.Context, id string) ([]byte, []byte, error) {
	rc, err := d.client.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return nil, nil, err
	}
	defer rc.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, rc); err != nil {
		return nil, nil, err
	}
	return stdout.Bytes(), stderr.Bytes(), nil
}

func envList(m map[string]string) []string {
	var env []string
	for k, v := range m {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

func collectFiles(dir string, names []string) map[string][]byte {
	if len(names) == 0 {
		return nil
	}
	files := make(map[string][]byte)
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		files[name] = data
	}
	return files
}
