package qvm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/melih-ucgun/qvmstate/internal/core"
)

// ActionOrder is the default order qvm.vm runs its operations in.
var ActionOrder = []string{
	"exists", "running", "missing", "halted", "absent", "present", "clone",
	"prefs", "devices", "service", "features", "firewall", "tags",
	"unpause", "pause", "shutdown", "kill", "start", "run",
}

// step is one operation of a composite declaration.
type step struct {
	Op       string
	Optional bool
	Resource core.Resource
}

// CompositeResource runs several operations against one VM in a fixed
// order (qvm.vm). After a failure the remaining steps are skipped unless
// the run is a dry run.
type CompositeResource struct {
	core.BaseResource
	Steps []step
}

// parseActions reads the optional `actions` ordering. Entries are
// operation names or `{op: pass}` maps marking the step non-fatal.
func parseActions(v interface{}) ([]string, map[string]bool, error) {
	optional := make(map[string]bool)
	if v == nil {
		return ActionOrder, optional, nil
	}
	items, ok := v.([]interface{})
	if !ok {
		items = []interface{}{v}
	}
	var order []string
	for _, item := range items {
		switch it := item.(type) {
		case string:
			order = append(order, it)
		case map[string]interface{}:
			for op, mode := range it {
				order = append(order, op)
				if strings.Contains(strings.ToLower(fmt.Sprint(mode)), "pass") {
					optional[op] = true
				}
			}
		default:
			return nil, nil, core.DeclarationError("qvm.vm: invalid actions entry %T", item)
		}
	}
	return order, optional, nil
}

func newComposite(name string, params map[string]interface{}, ctx *core.SystemContext) (core.Resource, error) {
	ops := make(map[string]interface{}, len(params))
	for k, v := range params {
		ops[core.NormalizeKey(k)] = v
	}
	delete(ops, "name")

	order, optional, err := parseActions(ops["actions"])
	if err != nil {
		return nil, err
	}
	delete(ops, "actions")

	known := make(map[string]bool, len(order))
	for _, op := range order {
		known[op] = true
	}
	unknown := make([]string, 0)
	for op := range ops {
		if !known[op] {
			unknown = append(unknown, op)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, core.DeclarationError("Unknown action keyword: %s", strings.Join(unknown, ", "))
	}

	r := &CompositeResource{BaseResource: core.BaseResource{Name: name, Type: Prefix + "vm"}}
	for _, op := range order {
		raw, ok := ops[op]
		if !ok {
			continue
		}
		sub, args, err := core.ParseOptionList(raw)
		if err != nil {
			return nil, fmt.Errorf("qvm.vm: %s: %w", op, err)
		}
		if len(args) > 0 {
			sub["args"] = args
		}
		res, err := core.CreateResource(Prefix+op, name, sub, ctx)
		if err != nil {
			return nil, err
		}
		r.Steps = append(r.Steps, step{Op: op, Optional: optional[op], Resource: res})
	}
	return r, nil
}

func (r *CompositeResource) Validate(ctx *core.SystemContext) error {
	for _, s := range r.Steps {
		if err := s.Resource.Validate(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.Op, err)
		}
	}
	return nil
}

func (r *CompositeResource) Check(ctx *core.SystemContext) (bool, error) {
	return core.CheckByDryRun(r, ctx)
}

func (r *CompositeResource) Apply(ctx *core.SystemContext) (core.Result, error) {
	res := core.SuccessNoChange("")
	var sections []string
	failed := false

	for _, s := range r.Steps {
		header := fmt.Sprintf("====== ['%s'] ======\n", s.Op)
		if failed && !ctx.DryRun {
			sections = append(sections, header+"[SKIP] Skipping due to previous failure!")
			continue
		}

		sub, err := s.Resource.Apply(ctx)
		if err != nil && !sub.Failed {
			sub = core.Failure(err, sub.Message)
		}
		sections = append(sections, header+sub.Message)

		if sub.Failed && !s.Optional {
			failed = true
			res.Failed = true
			if res.Error == nil && sub.Error != nil {
				res.Error = fmt.Errorf("%s: %w", s.Op, sub.Error)
			} else if res.Error == nil {
				res.Error = fmt.Errorf("%s failed", s.Op)
			}
		}
		if sub.Changed {
			res.Changed = true
		}
		for k, v := range sub.Changes {
			if res.Changes == nil {
				res.Changes = make(map[string]core.Change)
			}
			res.Changes[Prefix+s.Op+"."+k] = v
		}
		if sub.Data != nil {
			if res.Data == nil {
				res.Data = make(map[string]interface{})
			}
			res.Data.(map[string]interface{})[Prefix+s.Op] = sub.Data
		}
	}

	res.Message = strings.Join(sections, "\n\n")
	if res.Failed {
		return res, res.Error
	}
	return res, nil
}
