package qvm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/melih-ucgun/qvmstate/internal/core"
	"github.com/melih-ucgun/qvmstate/internal/qubes"
)

// RunResource runs a command inside a VM (qvm.run). Its stdout is
// returned in Data.
type RunResource struct {
	base
	Cmd         []string `mapstructure:"cmd"`
	User        string   `mapstructure:"user"`
	Localcmd    string   `mapstructure:"localcmd"`
	ColorOutput string   `mapstructure:"color-output"`
	Exclude     []string `mapstructure:"exclude"`
	Timeout     int      `mapstructure:"timeout"`
	Unless      string   `mapstructure:"unless"`
}

func newRun(name string, params map[string]interface{}) (core.Resource, error) {
	r := &RunResource{}
	flags, err := decode("run", params, r)
	if err != nil {
		return nil, err
	}
	r.base = newBase("run", name, flags)
	if strings.TrimSpace(r.command()) == "" {
		return nil, core.DeclarationError("qvm.run: cmd is empty")
	}
	if r.Timeout < 0 {
		return nil, core.DeclarationError("qvm.run: timeout must not be negative")
	}
	// R3 only flags, accepted and ignored
	r.Flags = flags.Clone()
	for _, f := range []string{"tray", "pause", "unpause"} {
		delete(r.Flags, f)
	}
	return r, nil
}

func (r *RunResource) command() string {
	return strings.Join(r.Cmd, " ")
}

func (r *RunResource) options() qubes.RunOptions {
	return qubes.RunOptions{
		User:                r.User,
		Localcmd:            r.Localcmd,
		ColorOutput:         r.ColorOutput,
		PassIO:              r.Flags.Has("pass-io"),
		NoGUI:               r.Flags.Any("nogui", "no-gui"),
		All:                 r.Flags.Has("all"),
		Exclude:             r.Exclude,
		Quiet:               r.Flags.Has("quiet"),
		NoColorOutput:       r.Flags.Has("no-color-output"),
		FilterEscapeChars:   r.Flags.Has("filter-escape-chars"),
		NoFilterEscapeChars: r.Flags.Has("no-filter-escape-chars"),
		Dispvm:              r.Flags.Has("dispvm"),
	}
}

func (r *RunResource) Check(ctx *core.SystemContext) (bool, error) {
	return core.CheckByDryRun(r, ctx)
}

func (r *RunResource) Apply(ctx *core.SystemContext) (core.Result, error) {
	if r.Timeout > 0 {
		cctx, cancel := context.WithTimeout(ctx.Context, time.Duration(r.Timeout)*time.Second)
		defer cancel()
		ctx = ctx.WithContext(cctx)
	}
	c := r.client(ctx)
	res := core.Result{}

	if r.Flags.Has("auto") && !r.Flags.Has("all") {
		started, err := startVM(ctx, c, r.Name, qubes.StartOptions{Quiet: true})
		if err != nil || started.Failed {
			return started, err
		}
		res.Merge("", started)
	}

	if r.Unless != "" && !(ctx.DryRun && res.Changed) {
		ok, err := c.Test(ctx, r.Name, r.Unless, r.User)
		if err != nil {
			return commandFailure("unless guard failed", err)
		}
		if ok {
			res.Note("[SKIP] unless condition met: %s", r.Unless)
			return res, nil
		}
	}

	if ctx.DryRun {
		res.Changed = true
		res.Note("Command would run: %s", r.command())
		return res, nil
	}

	out, err := c.Run(ctx, r.Name, r.command(), r.options())
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %ds: %w", r.Timeout, err)
		}
		return commandFailure("Command failed", err)
	}
	res.Changed = true
	res.Note("%s", strings.TrimRight(out, "\n"))
	res.AddChange("cmd", nil, r.command())
	res.Data = out
	return res, nil
}
