package qvm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/melih-ucgun/qvmstate/internal/core"
	"github.com/melih-ucgun/qvmstate/internal/qubes"
)

// RunningResource ensures a VM is running (qvm.running, qvm.start).
type RunningResource struct {
	base
	Drive        string `mapstructure:"drive"`
	HDDisk       string `mapstructure:"hddisk"`
	CDROM        string `mapstructure:"cdrom"`
	CustomConfig string `mapstructure:"custom-config"`
}

func newRunning(op string) factory {
	return func(name string, params map[string]interface{}) (core.Resource, error) {
		r := &RunningResource{}
		flags, err := decode(op, params, r)
		if err != nil {
			return nil, err
		}
		// qvm-start is always run quietly.
		flags.Add("quiet")
		r.base = newBase(op, name, flags)
		return r, nil
	}
}

func (r *RunningResource) Check(ctx *core.SystemContext) (bool, error) {
	return core.CheckByDryRun(r, ctx)
}

func (r *RunningResource) Apply(ctx *core.SystemContext) (core.Result, error) {
	if r.CustomConfig != "" {
		ctx.Logger.Warn("custom-config is not supported by qvm-start, ignoring", "vm", r.Name)
	}
	return startVM(ctx, r.client(ctx), r.Name, qubes.StartOptions{
		Drive:  r.Drive,
		HDDisk: r.HDDisk,
		CDROM:  r.CDROM,
		Quiet:  r.Flags.Has("quiet"),
		Debug:  r.Flags.Has("debug"),
	})
}

// startVM brings vm to the running state: resume when paused, leave
// transient VMs alone, otherwise qvm-start and confirm.
func startVM(ctx *core.SystemContext, c *qubes.Client, vm string, opts qubes.StartOptions) (core.Result, error) {
	st, err := c.PowerState(ctx, vm)
	if err != nil {
		return commandFailure("Failed to query power state", err)
	}

	switch st {
	case core.PowerRunning:
		return core.Skip("'%s' is already running.", vm), nil
	case core.PowerTransient:
		ctx.Logger.Warn("VM is in a transient state, leaving it unchanged", "vm", vm)
		return core.SuccessNoChange(fmt.Sprintf("'%s' is in a transient state; not starting it", vm)), nil
	case core.PowerPaused:
		if ctx.DryRun {
			res := core.SuccessChange("VM is set to be resumed")
			res.AddChange("state", st.String(), core.PowerRunning.String())
			return res, nil
		}
		if err := c.Unpause(ctx, vm); err != nil {
			return commandFailure("VM failed to resume from pause!", err)
		}
	default:
		if ctx.DryRun {
			res := core.SuccessChange("VM is set to be started")
			res.AddChange("state", st.String(), core.PowerRunning.String())
			return res, nil
		}
		if err := c.Start(ctx, vm, opts); err != nil {
			return commandFailure("Failed to start VM", err)
		}
	}

	now, err := c.PowerState(ctx, vm)
	if err != nil {
		return commandFailure("Failed to query power state", err)
	}
	if now == core.PowerTransient {
		ctx.Logger.Warn("VM is still transient after start", "vm", vm)
	} else if now != core.PowerRunning {
		err := fmt.Errorf("VM '%s' is %s after start", vm, now)
		return core.Failure(err, "VM failed to start"), err
	}
	res := core.SuccessChange(fmt.Sprintf("'%s' started", vm))
	res.AddChange("state", st.String(), now.String())
	return res, nil
}

// HaltedResource ensures a VM is halted (qvm.halted, qvm.shutdown). With
// the all flag it shuts down every running VM except dom0 and Exclude.
type HaltedResource struct {
	base
	Exclude []string `mapstructure:"exclude"`
	Timeout int      `mapstructure:"timeout"`
}

func newHalted(op string) factory {
	return func(name string, params map[string]interface{}) (core.Resource, error) {
		r := &HaltedResource{}
		flags, err := decode(op, params, r)
		if err != nil {
			return nil, err
		}
		flags.Add("wait")
		r.base = newBase(op, name, flags)
		return r, nil
	}
}

func (r *HaltedResource) Check(ctx *core.SystemContext) (bool, error) {
	return core.CheckByDryRun(r, ctx)
}

func (r *HaltedResource) options() haltOptions {
	return haltOptions{
		Wait:    r.Flags.Has("wait"),
		Force:   r.Flags.Has("force"),
		Kill:    r.Flags.Has("kill"),
		Quiet:   r.Flags.Has("quiet"),
		Timeout: r.Timeout,
	}
}

func (r *HaltedResource) Apply(ctx *core.SystemContext) (core.Result, error) {
	c := r.client(ctx)
	if r.Flags.Has("all") {
		return r.applyAll(ctx, c)
	}
	return haltVM(ctx, c, r.Name, r.options())
}

func (r *HaltedResource) applyAll(ctx *core.SystemContext, c *qubes.Client) (core.Result, error) {
	running, err := c.ListRunning(ctx)
	if err != nil {
		return commandFailure("Failed to list VMs", err)
	}
	excluded := make(map[string]bool, len(r.Exclude))
	for _, ex := range r.Exclude {
		excluded[ex] = true
	}
	var targets []string
	for _, vm := range running {
		if !excluded[vm] {
			targets = append(targets, vm)
		}
	}
	if len(targets) == 0 {
		return core.Skip("No running VMs to shut down"), nil
	}

	res := core.SuccessChange(fmt.Sprintf("Shutting down: %s", strings.Join(targets, ", ")))
	if ctx.DryRun {
		res.Message = fmt.Sprintf("VMs are set for shutdown: %s", strings.Join(targets, ", "))
		res.AddChange("halted", nil, targets)
		return res, nil
	}
	o := r.options()
	exclude := append([]string{}, r.Exclude...)
	sort.Strings(exclude)
	if err := c.ShutdownAll(ctx, qubes.ShutdownOptions{
		Wait: o.Wait, Force: o.Force, Timeout: o.Timeout, Quiet: o.Quiet, Exclude: exclude,
	}); err != nil {
		return commandFailure("Failed to shut down VMs", err)
	}
	res.AddChange("halted", nil, targets)
	return res, nil
}

type haltOptions struct {
	Wait    bool
	Force   bool
	Kill    bool
	Quiet   bool
	Timeout int
}

// haltVM brings vm to the halted state. A halted VM is left untouched. A
// paused one is resumed first. A transient one is only killed when force
// or kill is set.
func haltVM(ctx *core.SystemContext, c *qubes.Client, vm string, o haltOptions) (core.Result, error) {
	st, err := c.PowerState(ctx, vm)
	if err != nil {
		if qubes.IsNotFound(err) {
			return core.Skip("%s", err.Error()), nil
		}
		return commandFailure("Failed to query power state", err)
	}
	if st.IsHalted() {
		return core.Skip("'%s' is already halted.", vm), nil
	}

	if st == core.PowerTransient {
		if !o.Force && !o.Kill {
			err := fmt.Errorf("VM '%s' is transient", vm)
			return core.Failure(err, "VM is 'transient'. 'kill' or 'force' mode not enabled!"), err
		}
		if ctx.DryRun {
			res := core.SuccessChange("VM will be killed in 'transient' state")
			res.AddChange("state", st.String(), core.PowerHalted.String())
			return res, nil
		}
		if err := c.Kill(ctx, vm); err != nil {
			return commandFailure("Failed to kill VM", err)
		}
		return confirmHalted(ctx, c, vm, st, nil)
	}

	if ctx.DryRun {
		msg := "VM is set for shutdown"
		if o.Kill {
			msg = "VM is set to be killed"
		}
		res := core.SuccessChange(msg)
		res.AddChange("state", st.String(), core.PowerHalted.String())
		return res, nil
	}

	if st == core.PowerPaused {
		if err := c.Unpause(ctx, vm); err != nil {
			return commandFailure("VM failed to resume from pause!", err)
		}
	}

	var haltErr error
	if o.Kill {
		haltErr = c.Kill(ctx, vm)
	} else {
		haltErr = c.Shutdown(ctx, vm, qubes.ShutdownOptions{Wait: o.Wait, Force: o.Force, Timeout: o.Timeout, Quiet: o.Quiet})
	}
	if haltErr != nil && !o.Force {
		if o.Kill {
			return commandFailure("Failed to kill VM", haltErr)
		}
		return commandFailure("Failed to shut down VM", haltErr)
	}

	// Kill if still not halted, only in force mode.
	if o.Force && !o.Kill {
		now, qerr := c.PowerState(ctx, vm)
		if qerr != nil {
			return commandFailure("Failed to query power state", qerr)
		}
		if !now.IsHalted() {
			ctx.Logger.Warn("VM did not halt, killing it", "vm", vm)
			if err := c.Kill(ctx, vm); err != nil {
				if haltErr != nil {
					err = fmt.Errorf("%w (after: %v)", err, haltErr)
				}
				return commandFailure("Failed to kill VM", err)
			}
		}
	}
	return confirmHalted(ctx, c, vm, st, haltErr)
}

// confirmHalted re-queries vm. cause is the tool error seen on the way, if
// any; it ends up in the failure when the VM is still up.
func confirmHalted(ctx *core.SystemContext, c *qubes.Client, vm string, from core.PowerState, cause error) (core.Result, error) {
	now, err := c.PowerState(ctx, vm)
	if err != nil {
		return commandFailure("Failed to query power state", err)
	}
	if !now.IsHalted() {
		err := fmt.Errorf("VM '%s' is %s", vm, now)
		if cause != nil {
			err = fmt.Errorf("%w (after: %v)", cause, err)
		}
		return commandFailure("VM failed to halt", err)
	}
	res := core.SuccessChange(fmt.Sprintf("'%s' halted", vm))
	res.AddChange("state", from.String(), now.String())
	return res, nil
}

// KillResource kills a VM unless it is already halted (qvm.kill).
type KillResource struct {
	base
}

func newKill(name string, params map[string]interface{}) (core.Resource, error) {
	flags, err := decode("kill", params, nil)
	if err != nil {
		return nil, err
	}
	return &KillResource{base: newBase("kill", name, flags)}, nil
}

func (r *KillResource) Check(ctx *core.SystemContext) (bool, error) {
	return core.CheckByDryRun(r, ctx)
}

func (r *KillResource) Apply(ctx *core.SystemContext) (core.Result, error) {
	return haltVM(ctx, r.client(ctx), r.Name, haltOptions{Kill: true, Quiet: r.Flags.Has("quiet")})
}

// PauseResource pauses (qvm.pause) or resumes (qvm.unpause) a VM.
type PauseResource struct {
	base
	Pause bool
}

func newPause(name string, params map[string]interface{}) (core.Resource, error) {
	flags, err := decode("pause", params, nil)
	if err != nil {
		return nil, err
	}
	return &PauseResource{base: newBase("pause", name, flags), Pause: true}, nil
}

func newUnpause(name string, params map[string]interface{}) (core.Resource, error) {
	flags, err := decode("unpause", params, nil)
	if err != nil {
		return nil, err
	}
	return &PauseResource{base: newBase("unpause", name, flags)}, nil
}

func (r *PauseResource) Check(ctx *core.SystemContext) (bool, error) {
	return core.CheckByDryRun(r, ctx)
}

func (r *PauseResource) Apply(ctx *core.SystemContext) (core.Result, error) {
	c := r.client(ctx)
	st, err := c.PowerState(ctx, r.Name)
	if err != nil {
		return commandFailure("Failed to query power state", err)
	}

	from, to := core.PowerRunning, core.PowerPaused
	if !r.Pause {
		from, to = core.PowerPaused, core.PowerRunning
	}
	if st != from {
		if r.Pause {
			return core.SuccessNoChange("VM is not running"), nil
		}
		return core.SuccessNoChange("VM is not paused"), nil
	}

	if ctx.DryRun {
		msg := "VM is set to be paused"
		if !r.Pause {
			msg = "VM set to be resumed"
		}
		res := core.SuccessChange(msg)
		res.AddChange("state", from.String(), to.String())
		return res, nil
	}

	if r.Pause {
		err = c.Pause(ctx, r.Name)
	} else {
		err = c.Unpause(ctx, r.Name)
	}
	if err != nil {
		return commandFailure(fmt.Sprintf("Failed to %s VM", strings.TrimPrefix(r.Type, Prefix)), err)
	}

	now, err := c.PowerState(ctx, r.Name)
	if err != nil {
		return commandFailure("Failed to query power state", err)
	}
	if now != to {
		err := fmt.Errorf("VM '%s' is %s", r.Name, now)
		if r.Pause {
			return core.Failure(err, "VM failed to pause"), err
		}
		return core.Failure(err, "VM failed to resume from pause!"), err
	}
	res := core.SuccessChange(fmt.Sprintf("'%s' is %s", r.Name, strings.ToLower(now.String())))
	res.AddChange("state", from.String(), to.String())
	return res, nil
}
