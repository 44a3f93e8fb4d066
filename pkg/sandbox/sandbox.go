// Package sandbox runs build commands inside a container instead of on
// the host. The checkout is bind-mounted at /src and commands run there,
// so the build sees the image's toolchain and nothing of the host
// environment. It implements executor.Runner, letting the build step
// swap it in for the host runner without knowing the difference.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	dc "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/go-containerregistry/pkg/name"
	"golang.org/x/sync/errgroup"

	"github.com/slipway-ci/slipway/pkg/config"
	"github.com/slipway-ci/slipway/pkg/executor"
	"github.com/slipway-ci/slipway/pkg/util/console"
)

// workDir is where the checkout is mounted inside the container.
const workDir = "/src"

// tailLimit bounds how much container output an error message carries.
const tailLimit = 8 * 1024

// Runner executes commands in throwaway containers created from a fixed
// image, with hostDir mounted at /src.
type Runner struct {
	docker  *dc.Client
	image   string
	hostDir string
}

// New connects to the container daemon and makes sure the configured
// image is present, pulling it if needed. hostDir is the checkout that
// will be mounted into every container the runner creates.
func New(ctx context.Context, cfg *config.Sandbox, hostDir string) (*Runner, error) {
	if cfg == nil || cfg.Image == "" {
		return nil, errors.New("no sandbox image configured")
	}
	ref, err := name.ParseReference(cfg.Image)
	if err != nil {
		return nil, fmt.Errorf("invalid sandbox image %q: %w", cfg.Image, err)
	}

	docker, err := dc.NewClientWithOpts(dc.FromEnv, dc.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("error creating docker client: %w", err)
	}
	if _, err := docker.Ping(ctx); err != nil {
		return nil, fmt.Errorf("error pinging docker daemon, sandbox builds need a running one: %w", err)
	}

	r := &Runner{docker: docker, image: cfg.Image, hostDir: hostDir}
	if err := r.ensureImage(ctx, ref); err != nil {
		return nil, err
	}
	return r, nil
}

// ensureImage pulls the image unless it is already present locally.
func (r *Runner) ensureImage(ctx context.Context, ref name.Reference) error {
	_, err := r.docker.ImageInspect(ctx, r.image)
	if err == nil {
		return nil
	}
	if !dc.IsErrNotFound(err) {
		console.Warnf("failed to inspect image %q before pulling: %s", r.image, err)
	}

	console.Infof("Pulling sandbox image %s", r.image)
	auth := registryAuth(ctx, ref.Context().RegistryStr())
	output, err := r.docker.ImagePull(ctx, r.image, image.PullOptions{RegistryAuth: auth})
	if err != nil {
		return fmt.Errorf("failed to pull image %q: %w", r.image, err)
	}
	defer output.Close()

	// The pull output is a json message stream; render progress to stderr.
	isTTY := console.IsTTY(os.Stderr)
	if err := jsonmessage.DisplayJSONMessagesStream(output, os.Stderr, os.Stderr.Fd(), isTTY, nil); err != nil {
		return fmt.Errorf("error during image pull: %w", err)
	}
	return nil
}

func (r *Runner) Run(ctx context.Context, cmd executor.Command) error {
	console.Debugf("[%s] $ %s", r.image, cmd)

	tail := &tailWriter{limit: tailLimit}
	err := r.exec(ctx, cmd, tail, tail)
	tail.Flush()
	if err != nil {
		if output := tail.Tail(); output != "" {
			return fmt.Errorf("%s: %w\n%s", cmd.Name, err, output)
		}
		return fmt.Errorf("%s: %w", cmd.Name, err)
	}
	return nil
}

func (r *Runner) Output(ctx context.Context, cmd executor.Command) ([]byte, error) {
	console.Debugf("[%s] $ %s", r.image, cmd)

	var stdout, stderr bytes.Buffer
	if err := r.exec(ctx, cmd, &stdout, &stderr); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", cmd.Name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", cmd.Name, err)
	}
	return stdout.Bytes(), nil
}

// exec creates a container for cmd, runs it to completion and streams
// its output. A non-zero exit comes back as an "exit status N" error,
// matching what the host runner reports.
func (r *Runner) exec(ctx context.Context, cmd executor.Command, stdout, stderr io.Writer) error {
	containerCfg := &container.Config{
		Image:        r.image,
		Cmd:          append([]string{cmd.Name}, cmd.Args...),
		Env:          containerEnv(cmd.Env),
		WorkingDir:   containerWorkdir(r.hostDir, cmd.Dir),
		AttachStdout: true,
		AttachStderr: true,
	}
	// Tools in the container cannot see the invoking terminal, so pass
	// its width along for their line wrapping.
	if width, err := console.GetWidth(); err == nil && width > 0 {
		containerCfg.Env = append(containerCfg.Env, fmt.Sprintf("COLUMNS=%d", width))
	}
	// Build outputs land on the host through the mount. They must be
	// owned by the invoking user, not the image's default root, or the
	// host cannot collect and clean them afterwards.
	if uid := os.Getuid(); uid >= 0 {
		containerCfg.User = fmt.Sprintf("%d:%d", uid, os.Getgid())
	}
	hostCfg := &container.HostConfig{
		Binds: []string{r.hostDir + ":" + workDir},
	}

	created, err := r.docker.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, "")
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}
	defer func() {
		removeCtx := context.WithoutCancel(ctx)
		if err := r.docker.ContainerRemove(removeCtx, created.ID, container.RemoveOptions{Force: true}); err != nil {
			console.Warnf("failed to remove container %s: %s", created.ID[:12], err)
		}
	}()

	stream, err := r.docker.ContainerAttach(ctx, created.ID, container.AttachOptions{
		Stream: true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return fmt.Errorf("failed to attach to container: %w", err)
	}
	defer stream.Close()

	// Drain the attached stream concurrently so a chatty build cannot
	// block on a full pipe.
	eg, _ := errgroup.WithContext(ctx)
	eg.Go(func() error {
		_, err := stdcopy.StdCopy(stdout, stderr, stream.Reader)
		return err
	})

	if err := r.docker.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}

	statusCh, errCh := r.docker.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return fmt.Errorf("error waiting for container: %w", err)
	case status := <-statusCh:
		if err := eg.Wait(); err != nil {
			console.Warnf("error copying container output: %s", err)
		}
		if status.StatusCode != 0 {
			return fmt.Errorf("exit status %d", status.StatusCode)
		}
	}
	return nil
}

// hostOnlyEnv names variables whose host values make no sense inside the
// container. The image supplies its own; passing the host's would shadow
// them and break the image's tool lookup.
var hostOnlyEnv = map[string]bool{
	"PATH":   true,
	"HOME":   true,
	"TMPDIR": true,
	"TERM":   true,
	"USER":   true,
	"SHELL":  true,
}

// containerEnv filters a host environment down to the variables that
// should cross into the container, keeping their relative order.
func containerEnv(env []string) []string {
	var kept []string
	for _, kv := range env {
		name, _, _ := strings.Cut(kv, "=")
		if hostOnlyEnv[name] {
			continue
		}
		kept = append(kept, kv)
	}
	return kept
}

// containerWorkdir maps a host working directory to its in-container
// path. Directories outside the mount fall back to the mount root.
func containerWorkdir(hostDir, cmdDir string) string {
	if cmdDir == "" || cmdDir == hostDir {
		return workDir
	}
	rel, err := filepath.Rel(hostDir, cmdDir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return workDir
	}
	return path.Join(workDir, filepath.ToSlash(rel))
}

// tailWriter forwards complete lines to the debug console and keeps the
// last limit bytes for error reporting.
type tailWriter struct {
	limit   int
	buf     []byte
	pending []byte
}

func (t *tailWriter) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.limit {
		t.buf = t.buf[len(t.buf)-t.limit:]
	}
	t.pending = append(t.pending, p...)
	for {
		i := bytes.IndexByte(t.pending, '\n')
		if i < 0 {
			break
		}
		console.Debug(string(bytes.TrimRight(t.pending[:i], "\r")))
		t.pending = t.pending[i+1:]
	}
	return len(p), nil
}

// Flush emits any trailing output that did not end in a newline.
func (t *tailWriter) Flush() {
	if len(t.pending) > 0 {
		console.Debug(string(t.pending))
		t.pending = nil
	}
}

func (t *tailWriter) Tail() string {
	return strings.TrimSpace(string(t.buf))
}
