// Package qubes wraps the qvm-* command line tools of a Qubes OS admin
// domain. Every call goes through a core.Transport, so the same client runs
// locally in dom0 or over SSH.
package qubes

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/melih-ucgun/qvmstate/internal/core"
)

// DefaultBinDir is where the qvm-* tools live in dom0.
const DefaultBinDir = "/usr/bin"

// ErrDryRunMutation is returned when a mutating call is attempted on a
// dry-run client.
var ErrDryRunMutation = errors.New("refusing to run mutating command in test mode")

// Client builds qvm-* command lines and parses their output.
type Client struct {
	Transport core.Transport
	BinDir    string
	DryRun    bool
	Logger    core.Logger
	// Timeout bounds every single tool invocation (0 = none).
	Timeout time.Duration
}

// NewClient returns a client bound to the transport, dry-run mode, logger
// and tool settings of ctx.
func NewClient(ctx *core.SystemContext) *Client {
	c := &Client{
		Transport: ctx.Transport,
		BinDir:    DefaultBinDir,
		DryRun:    ctx.DryRun,
		Logger:    ctx.Logger,
		Timeout:   ctx.ToolTimeout,
	}
	if ctx.ToolBinDir != "" {
		c.BinDir = ctx.ToolBinDir
	}
	return c
}

// WithTimeout returns a copy of the client with a per-call timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	cp := *c
	cp.Timeout = d
	return &cp
}

func (c *Client) bin(tool string) string {
	if c.BinDir == "" {
		return tool
	}
	return path.Join(c.BinDir, tool)
}

// Command renders the shell command line for a tool invocation.
func (c *Client) Command(tool string, args ...string) string {
	return shellquote.Join(append([]string{c.bin(tool)}, args...)...)
}

func (c *Client) exec(ctx context.Context, cmd string) (string, error) {
	if c.Transport == nil {
		return "", errors.New("no transport configured")
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	if c.Logger != nil {
		c.Logger.Debug("exec", "cmd", cmd)
	}
	out, err := c.Transport.Execute(ctx, cmd)
	if err != nil && c.Logger != nil {
		c.Logger.Trace("exec failed", "cmd", cmd, "err", err)
	}
	return out, err
}

// query runs a read-only tool invocation; allowed in dry-run.
func (c *Client) query(ctx context.Context, tool string, args ...string) (string, error) {
	return c.exec(ctx, c.Command(tool, args...))
}

// mutate runs a tool invocation that changes VM state.
func (c *Client) mutate(ctx context.Context, tool string, args ...string) (string, error) {
	cmd := c.Command(tool, args...)
	if c.DryRun {
		return "", &core.CommandError{Cmd: cmd, ExitCode: -1, Err: ErrDryRunMutation}
	}
	return c.exec(ctx, cmd)
}

// vmError maps "no such domain" failures to NotFoundError.
func vmError(vm string, err error) error {
	if err == nil {
		return nil
	}
	var ce *core.CommandError
	if errors.As(err, &ce) && isNoSuchDomain(ce.Stderr) {
		return &NotFoundError{VM: vm, Err: err}
	}
	return err
}

func isNoSuchDomain(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "no such domain") || strings.Contains(s, "does not exist")
}
