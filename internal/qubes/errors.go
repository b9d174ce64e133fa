package qubes

import (
	"errors"
	"fmt"
)

// NotFoundError reports that a VM does not exist.
type NotFoundError struct {
	VM  string
	Err error
}

func (e *NotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("VM '%s' does not exist: %v", e.VM, e.Err)
	}
	return fmt.Sprintf("VM '%s' does not exist", e.VM)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
