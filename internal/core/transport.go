package core

import "context"

// Transport executes shell command lines on the admin domain, locally or
// over SSH. Execute returns stdout; a non-zero exit surfaces as a
// *CommandError carrying the exit code and stderr.
type Transport interface {
	Execute(ctx context.Context, cmd string) (string, error)
	GetFileSystem() FileSystem
	Close() error
}
