package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockTransport implements Transport for testing purposes. Responses are
// matched on the exact command line first, then on the longest registered
// fragment contained in it.
type MockTransport struct {
	mu           sync.Mutex
	Expectations map[string][]MockResponse
	Calls        []string
	FS           FileSystem
}

type MockResponse struct {
	Output string
	Error  error
}

func NewMockTransport() *MockTransport {
	return &MockTransport{
		Expectations: make(map[string][]MockResponse),
		Calls:        make([]string, 0),
		FS:           &RealFS{},
	}
}

func (m *MockTransport) Close() error {
	return nil
}

func (m *MockTransport) Execute(ctx context.Context, cmd string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, cmd)

	key, ok := m.match(cmd)
	if !ok {
		return "", &CommandError{Cmd: cmd, ExitCode: 127, Stderr: fmt.Sprintf("unexpected command: %s", cmd)}
	}
	queue := m.Expectations[key]
	resp := queue[0]
	// The last queued response sticks.
	if len(queue) > 1 {
		m.Expectations[key] = queue[1:]
	}
	if resp.Error != nil {
		if ce, ok := resp.Error.(*CommandError); ok && ce.Cmd == "" {
			cp := *ce
			cp.Cmd = cmd
			return resp.Output, &cp
		}
	}
	return resp.Output, resp.Error
}

func (m *MockTransport) match(cmd string) (string, bool) {
	if _, ok := m.Expectations[cmd]; ok {
		return cmd, true
	}
	best := ""
	for k := range m.Expectations {
		if strings.Contains(cmd, k) && len(k) > len(best) {
			best = k
		}
	}
	return best, best != ""
}

func (m *MockTransport) GetFileSystem() FileSystem {
	return m.FS
}

// Helpers for Test Setup

// OnExecute replaces any queued responses for cmd with a single one.
func (m *MockTransport) OnExecute(cmd string, output string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Expectations[cmd] = []MockResponse{{Output: output, Error: err}}
}

// OnExit registers a non-zero exit for cmd.
func (m *MockTransport) OnExit(cmd string, code int, stderr string) {
	m.OnExecute(cmd, "", &CommandError{ExitCode: code, Stderr: stderr})
}

// OnSequence queues responses returned one per call for cmd.
func (m *MockTransport) OnSequence(cmd string, responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Expectations[cmd] = responses
}

// Exit builds a MockResponse for a non-zero exit.
func Exit(code int, stderr string) MockResponse {
	return MockResponse{Error: &CommandError{ExitCode: code, Stderr: stderr}}
}

// Output builds a successful MockResponse.
func Output(out string) MockResponse {
	return MockResponse{Output: out}
}

func (m *MockTransport) AssertCalled(cmdFragment string) bool {
	return m.CallIndex(cmdFragment) >= 0
}

// CallIndex returns the position of the first call containing cmdFragment,
// or -1.
func (m *MockTransport) CallIndex(cmdFragment string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, call := range m.Calls {
		if strings.Contains(call, cmdFragment) {
			return i
		}
	}
	return -1
}

// CallsMatching returns every recorded call containing cmdFragment.
func (m *MockTransport) CallsMatching(cmdFragment string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, call := range m.Calls {
		if strings.Contains(call, cmdFragment) {
			out = append(out, call)
		}
	}
	return out
}

// Reset clears recorded calls, keeping expectations.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = m.Calls[:0]
}
