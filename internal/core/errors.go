package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDeclaration marks malformed or conflicting configuration. Such errors
// are raised before any tool invocation.
var ErrDeclaration = errors.New("declaration error")

// DeclarationError wraps ErrDeclaration with a formatted message.
func DeclarationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrDeclaration, fmt.Sprintf(format, args...))
}

// IsDeclarationError reports whether err is a declaration error.
func IsDeclarationError(err error) bool {
	return errors.Is(err, ErrDeclaration)
}

// CommandError is returned by transports when a command exits non-zero.
type CommandError struct {
	Cmd      string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("command '%s' failed (exit %d): %s", e.Cmd, e.ExitCode, msg)
}

func (e *CommandError) Unwrap() error { return e.Err }

// ExitCode extracts the exit code from err. ok is false when err is not a
// CommandError (e.g. the transport itself failed).
func ExitCode(err error) (code int, ok bool) {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.ExitCode, true
	}
	return 0, false
}
