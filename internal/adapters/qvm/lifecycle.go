package qvm

import (
	"fmt"
	"sort"

	"github.com/melih-ucgun/qvmstate/internal/core"
	"github.com/melih-ucgun/qvmstate/internal/qubes"
)

// PresentResource creates a VM when it is missing (qvm.present). On an
// existing VM only the declared properties that differ are updated.
type PresentResource struct {
	base
	Template     string  `mapstructure:"template"`
	Label        string  `mapstructure:"label"`
	Class        string  `mapstructure:"class"`
	Mem          string  `mapstructure:"mem"`
	Memory       string  `mapstructure:"memory"`
	MaxMem       string  `mapstructure:"maxmem"`
	VCPUs        string  `mapstructure:"vcpus"`
	NetVM        *string `mapstructure:"netvm"`
	Pool         string  `mapstructure:"pool"`
	Path         string  `mapstructure:"path"`
	RootMoveFrom string  `mapstructure:"root-move-from"`
	RootCopyFrom string  `mapstructure:"root-copy-from"`
}

func newPresent(name string, params map[string]interface{}) (core.Resource, error) {
	r := &PresentResource{}
	flags, err := decode("present", params, r)
	if err != nil {
		return nil, err
	}
	r.base = newBase("present", name, flags)
	if r.RootMoveFrom != "" && r.RootCopyFrom != "" {
		return nil, core.DeclarationError("qvm.present: root-move-from and root-copy-from are exclusive")
	}
	if r.Mem != "" && r.Memory != "" && r.Mem != r.Memory {
		return nil, core.DeclarationError("qvm.present: mem and memory disagree")
	}
	return r, nil
}

func (r *PresentResource) Check(ctx *core.SystemContext) (bool, error) {
	return core.CheckByDryRun(r, ctx)
}

// vmClass resolves the qvm-create class from flags and the class option.
func (r *PresentResource) vmClass() string {
	switch {
	case r.Flags.Has("hvm-template"):
		return "TemplateVM"
	case r.Flags.Has("standalone"):
		return "StandaloneVM"
	case r.Class != "":
		return r.Class
	}
	return "AppVM"
}

// properties returns the declared VM properties keyed by their qvm-prefs
// name.
func (r *PresentResource) properties() map[string]string {
	props := make(map[string]string)
	if r.Mem != "" {
		props["memory"] = r.Mem
	}
	if r.Memory != "" {
		props["memory"] = r.Memory
	}
	if r.MaxMem != "" {
		props["maxmem"] = r.MaxMem
	}
	if r.VCPUs != "" {
		props["vcpus"] = r.VCPUs
	}
	if r.Flags.Any("hvm", "hvm-template") {
		props["virt_mode"] = "hvm"
	}
	if r.Flags.Any("proxy", "net") {
		props["provides_network"] = "True"
	}
	if r.Flags.Has("net") {
		props["netvm"] = ""
	}
	if r.NetVM != nil {
		props["netvm"] = normalizePref("netvm", *r.NetVM)
	}
	if r.Flags.Has("internal") {
		props["internal"] = "True"
	}
	return props
}

func (r *PresentResource) pool() string {
	if r.Pool != "" {
		return r.Pool
	}
	return r.Path
}

func (r *PresentResource) Apply(ctx *core.SystemContext) (core.Result, error) {
	c := r.client(ctx)
	exists, err := c.Exists(ctx, r.Name)
	if err != nil {
		return commandFailure("qvm-check failed", err)
	}
	if exists {
		return r.update(ctx, c)
	}

	if ctx.DryRun {
		res := core.SuccessChange(fmt.Sprintf("VM '%s' is set to be created", r.Name))
		res.AddChange("vm", nil, r.Name)
		return res, nil
	}

	opts := qubes.CreateOptions{
		Class:        r.vmClass(),
		Template:     r.Template,
		Label:        r.Label,
		Pool:         r.pool(),
		RootMoveFrom: r.RootMoveFrom,
		RootCopyFrom: r.RootCopyFrom,
		Properties:   r.properties(),
		Quiet:        r.Flags.Has("quiet"),
	}
	if err := c.Create(ctx, r.Name, opts); err != nil {
		return commandFailure("Failed to create VM", err)
	}

	exists, err = c.Exists(ctx, r.Name)
	if err != nil {
		return commandFailure("qvm-check failed", err)
	}
	if !exists {
		err := fmt.Errorf("VM '%s' is missing after qvm-create", r.Name)
		return core.Failure(err, "VM was not created"), err
	}
	res := core.SuccessChange(fmt.Sprintf("VM '%s' created", r.Name))
	res.AddChange("vm", nil, r.Name)
	return res, nil
}

// update brings the declared properties of an existing VM in line. The VM
// is never recreated; its class cannot change.
func (r *PresentResource) update(ctx *core.SystemContext, c *qubes.Client) (core.Result, error) {
	want := r.properties()
	if r.Label != "" {
		want["label"] = r.Label
	}
	if r.Template != "" {
		want["template"] = r.Template
	}
	if len(want) == 0 {
		return core.Skip("A VM with the name '%s' already exists.", r.Name), nil
	}

	current, err := c.ListPrefs(ctx, r.Name)
	if err != nil {
		return commandFailure("Failed to list properties", err)
	}

	keys := make([]string, 0, len(want))
	for k := range want {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	res := core.SuccessNoChange(fmt.Sprintf("A VM with the name '%s' already exists.", r.Name))
	for _, k := range keys {
		cur, ok := current[k]
		if !ok {
			ctx.Logger.Debug("property not listed, skipping", "vm", r.Name, "property", k)
			continue
		}
		if samePref(k, cur.Value, want[k]) {
			continue
		}
		if !ctx.DryRun {
			if err := c.SetPref(ctx, r.Name, k, want[k]); err != nil {
				return commandFailure(fmt.Sprintf("Failed to set %s", k), err)
			}
		}
		res.AddChange(k, cur.Value, want[k])
	}
	if !res.Changed {
		res.Message = "[SKIP] " + res.Message
	}
	return res, nil
}

// AbsentResource removes a VM when it exists (qvm.absent).
type AbsentResource struct {
	base
}

func newAbsent(name string, params map[string]interface{}) (core.Resource, error) {
	flags, err := decode("absent", params, nil)
	if err != nil {
		return nil, err
	}
	return &AbsentResource{base: newBase("absent", name, flags)}, nil
}

func (r *AbsentResource) Check(ctx *core.SystemContext) (bool, error) {
	return core.CheckByDryRun(r, ctx)
}

func (r *AbsentResource) Apply(ctx *core.SystemContext) (core.Result, error) {
	c := r.client(ctx)
	exists, err := c.Exists(ctx, r.Name)
	if err != nil {
		return commandFailure("qvm-check failed", err)
	}
	if !exists {
		return core.Skip("The VM with the name '%s' is already missing.", r.Name), nil
	}

	res := core.Result{}
	// Shut down first; force mode kills on a failed shutdown.
	halt, err := haltVM(ctx, c, r.Name, haltOptions{Wait: true, Force: true})
	if err != nil || halt.Failed {
		return halt, err
	}
	if halt.Changed {
		res.Merge("", halt)
	}

	if ctx.DryRun {
		res.Changed = true
		res.Note("VM '%s' is set to be removed", r.Name)
		res.AddChange("vm", r.Name, nil)
		return res, nil
	}

	if err := c.Remove(ctx, r.Name, r.Flags.Has("just-db")); err != nil {
		return commandFailure("Failed to remove VM", err)
	}
	exists, err = c.Exists(ctx, r.Name)
	if err != nil {
		return commandFailure("qvm-check failed", err)
	}
	if exists {
		err := fmt.Errorf("VM '%s' still exists after qvm-remove", r.Name)
		return core.Failure(err, "VM was not removed"), err
	}
	res.Note("VM '%s' removed", r.Name)
	res.AddChange("vm", r.Name, nil)
	return res, nil
}

// CloneResource clones Source into a new VM named after the resource
// (qvm.clone).
type CloneResource struct {
	base
	Source string `mapstructure:"source"`
	Pool   string `mapstructure:"pool"`
	Path   string `mapstructure:"path"`
}

func newClone(name string, params map[string]interface{}) (core.Resource, error) {
	r := &CloneResource{}
	flags, err := decode("clone", params, r)
	if err != nil {
		return nil, err
	}
	r.base = newBase("clone", name, flags)
	if r.Source == r.Name {
		return nil, core.DeclarationError("qvm.clone: source and clone name are both '%s'", r.Name)
	}
	return r, nil
}

func (r *CloneResource) Check(ctx *core.SystemContext) (bool, error) {
	return core.CheckByDryRun(r, ctx)
}

func (r *CloneResource) Apply(ctx *core.SystemContext) (core.Result, error) {
	c := r.client(ctx)
	exists, err := c.Exists(ctx, r.Name)
	if err != nil {
		return commandFailure("qvm-check failed", err)
	}
	if exists {
		return core.Skip("A VM with the name '%s' already exists.", r.Name), nil
	}

	srcExists, err := c.Exists(ctx, r.Source)
	if err != nil {
		return commandFailure("qvm-check failed", err)
	}
	if !srcExists {
		err := &qubes.NotFoundError{VM: r.Source}
		return core.Failure(err, "Cannot clone"), err
	}

	res := core.Result{}
	st, err := c.PowerState(ctx, r.Source)
	if err != nil {
		return commandFailure("Failed to query power state", err)
	}
	if !st.IsHalted() {
		if !r.Flags.Has("shutdown") {
			err := fmt.Errorf("source VM '%s' is %s", r.Source, st)
			return core.Failure(err, "Source VM must be halted to clone it; set the shutdown flag"), err
		}
		halt, err := haltVM(ctx, c, r.Source, haltOptions{Wait: true, Force: true})
		if err != nil || halt.Failed {
			return halt, err
		}
		res.Merge(r.Source, halt)
	}

	if ctx.DryRun {
		res.Changed = true
		res.Note("VM is set to be cloned")
		res.AddChange("vm", nil, r.Name)
		return res, nil
	}

	pool := r.Pool
	if pool == "" {
		pool = r.Path
	}
	if err := c.Clone(ctx, r.Source, r.Name, pool, r.Flags.Has("quiet")); err != nil {
		return commandFailure("Failed to clone VM", err)
	}
	exists, err = c.Exists(ctx, r.Name)
	if err != nil {
		return commandFailure("qvm-check failed", err)
	}
	if !exists {
		err := fmt.Errorf("VM '%s' is missing after qvm-clone", r.Name)
		return core.Failure(err, "VM was not cloned"), err
	}
	res.Note("VM '%s' cloned from '%s'", r.Name, r.Source)
	res.AddChange("vm", nil, r.Name)
	return res, nil
}
