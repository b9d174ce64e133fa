package qvm

import (
	"fmt"

	"github.com/melih-ucgun/qvmstate/internal/core"
)

// CheckResource reports whether a VM exists (qvm.exists) or is missing
// (qvm.missing). It never mutates; the boolean is returned in Data.
type CheckResource struct {
	base
	WantExists bool
}

func newExists(name string, params map[string]interface{}) (core.Resource, error) {
	flags, err := decode("exists", params, nil)
	if err != nil {
		return nil, err
	}
	return &CheckResource{base: newBase("exists", name, flags), WantExists: true}, nil
}

func newMissing(name string, params map[string]interface{}) (core.Resource, error) {
	flags, err := decode("missing", params, nil)
	if err != nil {
		return nil, err
	}
	return &CheckResource{base: newBase("missing", name, flags)}, nil
}

// Check returns true when the expectation does not hold.
func (r *CheckResource) Check(ctx *core.SystemContext) (bool, error) {
	exists, err := r.client(ctx).Exists(ctx, r.Name)
	if err != nil {
		return false, err
	}
	return exists != r.WantExists, nil
}

func (r *CheckResource) Apply(ctx *core.SystemContext) (core.Result, error) {
	exists, err := r.client(ctx).Exists(ctx, r.Name)
	if err != nil {
		return commandFailure("qvm-check failed", err)
	}

	state, want := "missing", "exist"
	if exists {
		state = "present"
	}
	if !r.WantExists {
		want = "be missing"
	}
	res := core.SuccessNoChange(fmt.Sprintf("VM '%s' is %s", r.Name, state))
	if exists != r.WantExists {
		res.Message += fmt.Sprintf(" (expected to %s)", want)
	}
	res.Data = exists == r.WantExists
	return res, nil
}
