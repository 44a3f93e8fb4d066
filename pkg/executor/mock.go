package executor

import (
	"context"
	"sync"
)

// Mock implements Runner for tests. Responses are scripted per command
// through RunFunc/OutputFunc; every invocation is recorded.
type Mock struct {
	mu    sync.Mutex
	Calls []Command

	// RunFunc handles Run invocations. Nil means success.
	RunFunc func(cmd Command) error

	// OutputFunc handles Output invocations. Nil means empty output.
	OutputFunc func(cmd Command) ([]byte, error)
}

func (m *Mock) Run(_ context.Context, cmd Command) error {
	m.record(cmd)
	if m.RunFunc != nil {
		return m.RunFunc(cmd)
	}
	return nil
}

func (m *Mock) Output(_ context.Context, cmd Command) ([]byte, error) {
	m.record(cmd)
	if m.OutputFunc != nil {
		return m.OutputFunc(cmd)
	}
	return nil, nil
}

func (m *Mock) record(cmd Command) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, cmd)
}

// CommandLines returns every recorded invocation as a command line.
func (m *Mock) CommandLines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := make([]string, len(m.Calls))
	for i, cmd := range m.Calls {
		lines[i] = cmd.String()
	}
	return lines
}

// LastCall returns the most recent invocation, or nil when none happened.
func (m *Mock) LastCall() *Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return nil
	}
	return &m.Calls[len(m.Calls)-1]
}
