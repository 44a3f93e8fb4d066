// Package executor runs the external commands the pipeline steps depend
// on, behind an interface so step tests can script subprocess behavior.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/slipway-ci/slipway/pkg/util/console"
)

// Command describes one subprocess invocation.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory; empty means the process's own.
	Dir string
	// Env is the complete environment; nil inherits the process's.
	Env []string
}

func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Runner executes commands.
type Runner interface {
	// Run executes cmd, streaming its output to the debug console.
	// A non-zero exit returns an error carrying the output tail.
	Run(ctx context.Context, cmd Command) error

	// Output executes cmd and returns its stdout. Stderr is attached to
	// the error on failure.
	Output(ctx context.Context, cmd Command) ([]byte, error)
}

// Local runs commands on the host.
type Local struct{}

// NewLocal returns a Runner backed by the host.
func NewLocal() *Local {
	return &Local{}
}

// tailLimit bounds how much subprocess output an error message carries.
const tailLimit = 8 * 1024

func (l *Local) Run(ctx context.Context, cmd Command) error {
	console.Debugf("$ %s", cmd)
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = cmd.Env

	tail := &tailBuffer{limit: tailLimit}
	out := &lineWriter{sink: tail}
	c.Stdout = out
	c.Stderr = out

	err := c.Run()
	out.Flush()
	if err != nil {
		if output := tail.String(); output != "" {
			return fmt.Errorf("%s: %w\n%s", cmd.Name, err, output)
		}
		return fmt.Errorf("%s: %w", cmd.Name, err)
	}
	return nil
}

func (l *Local) Output(ctx context.Context, cmd Command) ([]byte, error) {
	console.Debugf("$ %s", cmd)
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = cmd.Env

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	if err := c.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", cmd.Name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", cmd.Name, err)
	}
	return stdout.Bytes(), nil
}

// ScrubbedEnv returns a minimal environment for build commands: path,
// locale and temp variables survive; tokens and CI credentials do not.
func ScrubbedEnv() []string {
	keep := []string{"PATH", "HOME", "LANG", "LC_ALL", "TMPDIR", "TERM", "USER", "SHELL"}
	env := make([]string, 0, len(keep))
	for _, name := range keep {
		if value := os.Getenv(name); value != "" {
			env = append(env, name+"="+value)
		}
	}
	return env
}

// lineWriter forwards complete lines to the debug console and mirrors
// everything into sink for error reporting.
type lineWriter struct {
	sink    *tailBuffer
	pending []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.sink.Write(p)
	w.pending = append(w.pending, p...)
	for {
		i := bytes.IndexByte(w.pending, '\n')
		if i < 0 {
			break
		}
		console.Debug(string(bytes.TrimRight(w.pending[:i], "\r")))
		w.pending = w.pending[i+1:]
	}
	return len(p), nil
}

// Flush emits any trailing output that did not end in a newline.
func (w *lineWriter) Flush() {
	if len(w.pending) > 0 {
		console.Debug(string(w.pending))
		w.pending = nil
	}
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.limit {
		t.buf = t.buf[len(t.buf)-t.limit:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return strings.TrimSpace(string(t.buf))
}
