package transport

import (
	"bytes"
	"context"
	"errors"
	"os/exec"

	"github.com/melih-ucgun/qvmstate/internal/core"
)

// LocalTransport runs command lines with `sh -c` on this machine (dom0).
type LocalTransport struct {
	fs core.FileSystem
}

func NewLocalTransport() *LocalTransport {
	return &LocalTransport{fs: &core.RealFS{}}
}

func (t *LocalTransport) Execute(ctx context.Context, cmd string) (string, error) {
	c := exec.CommandContext(ctx, "sh", "-c", cmd)
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	if err := c.Run(); err != nil {
		return stdout.String(), commandError(ctx, cmd, stderr.String(), err)
	}
	return stdout.String(), nil
}

func (t *LocalTransport) GetFileSystem() core.FileSystem {
	return t.fs
}

func (t *LocalTransport) Close() error {
	return nil
}

// exitStatus is implemented by *ssh.ExitError.
type exitStatus interface {
	ExitStatus() int
}

// commandError maps a failed run to *core.CommandError. Errors that did
// not come from the command itself (context, dial, session) keep exit -1.
func commandError(ctx context.Context, cmd, stderr string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &core.CommandError{Cmd: cmd, ExitCode: -1, Stderr: stderr, Err: ctxErr}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &core.CommandError{Cmd: cmd, ExitCode: exitErr.ExitCode(), Stderr: stderr, Err: err}
	}
	var st exitStatus
	if errors.As(err, &st) {
		return &core.CommandError{Cmd: cmd, ExitCode: st.ExitStatus(), Stderr: stderr, Err: err}
	}
	return &core.CommandError{Cmd: cmd, ExitCode: -1, Stderr: stderr, Err: err}
}
