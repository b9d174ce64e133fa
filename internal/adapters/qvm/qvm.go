// Package qvm implements the qvm.* functions: one resource per operation,
// each comparing the current VM state with the declared one and issuing
// the minimal set of qvm-* calls through a qubes.Client.
package qvm

import (
	"github.com/melih-ucgun/qvmstate/internal/core"
	"github.com/melih-ucgun/qvmstate/internal/qubes"
	"github.com/melih-ucgun/qvmstate/internal/utils"
)

// Prefix is prepended to every operation name to form the function name.
const Prefix = "qvm."

type factory func(name string, params map[string]interface{}) (core.Resource, error)

var factories = map[string]factory{
	"exists":             newExists,
	"missing":            newMissing,
	"present":            newPresent,
	"absent":             newAbsent,
	"running":            newRunning("running"),
	"start":              newRunning("start"),
	"halted":             newHalted("halted"),
	"shutdown":           newHalted("shutdown"),
	"kill":               newKill,
	"pause":              newPause,
	"unpause":            newUnpause,
	"prefs":              newPrefs,
	"service":            newService,
	"features":           newFeatures,
	"tags":               newTags,
	"devices":            newDevices,
	"firewall":           newFirewall,
	"clone":              newClone,
	"run":                newRun,
	"template_installed": newTemplateInstalled,
}

func init() {
	for op, fn := range factories {
		fn := fn
		core.RegisterResource(Prefix+op, func(name string, params map[string]interface{}, _ *core.SystemContext) (core.Resource, error) {
			return fn(name, params)
		})
	}
	// vm dispatches to the other factories, so it is registered last.
	core.RegisterResource(Prefix+"vm", func(name string, params map[string]interface{}, ctx *core.SystemContext) (core.Resource, error) {
		return newComposite(name, params, ctx)
	})
}

// base holds what every operation carries: the VM name, the function
// name and the flag set.
type base struct {
	core.BaseResource
	Flags core.Flags
}

func newBase(op, name string, flags core.Flags) base {
	if flags == nil {
		flags = core.Flags{}
	}
	return base{BaseResource: core.BaseResource{Name: name, Type: Prefix + op}, Flags: flags}
}

func (b *base) Validate(ctx *core.SystemContext) error {
	return utils.ValidateVMName(b.Name)
}

func (b *base) client(ctx *core.SystemContext) *qubes.Client {
	return qubes.NewClient(ctx)
}

// commandFailure converts a tool error into a failed result whose comment
// carries the tool's stderr verbatim.
func commandFailure(msg string, err error) (core.Result, error) {
	return core.Failure(err, msg), err
}

// actionArgs rewrites the positional form `<action> a b c` into the
// keyword form `{action: [a, b, c]}` for the given actions.
func actionArgs(params map[string]interface{}, actions ...string) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[core.NormalizeKey(k)] = v
	}
	raw, ok := out["args"]
	if !ok {
		return out, nil
	}
	args, err := core.StringList(raw)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 || !utils.IsOneOf(args[0], actions...) {
		return out, nil
	}
	delete(out, "args")
	items := make([]interface{}, 0, len(args)-1)
	if prev, err := core.StringList(out[args[0]]); err == nil {
		for _, p := range prev {
			items = append(items, p)
		}
	}
	for _, a := range args[1:] {
		items = append(items, a)
	}
	out[args[0]] = items
	return out, nil
}

// overlap returns the entries present in more than one of the lists.
func overlap(lists ...[]string) []string {
	seen := make(map[string]int)
	var dup []string
	for i, l := range lists {
		for _, v := range l {
			if prev, ok := seen[v]; ok && prev != i {
				dup = append(dup, v)
				continue
			}
			seen[v] = i
		}
	}
	return dup
}
