package qubes

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/melih-ucgun/qvmstate/internal/core"
)

// VMState is one row of qvm-ls.
type VMState struct {
	Name  string
	State core.PowerState
}

// Exists runs qvm-check. Exit 0 means present, exit 1 missing; anything
// else is a tool error.
func (c *Client) Exists(ctx context.Context, vm string) (bool, error) {
	_, err := c.query(ctx, "qvm-check", "--quiet", vm)
	if err == nil {
		return true, nil
	}
	if code, ok := core.ExitCode(err); ok && code == 1 {
		return false, nil
	}
	return false, err
}

// PowerState returns the runtime state of vm.
func (c *Client) PowerState(ctx context.Context, vm string) (core.PowerState, error) {
	out, err := c.query(ctx, "qvm-ls", "--raw-data", "--fields", "NAME,STATE", vm)
	if err != nil {
		return core.PowerUnknown, vmError(vm, err)
	}
	for _, row := range parseRawRows(out) {
		if row.Name == vm {
			return row.State, nil
		}
	}
	return core.PowerUnknown, &NotFoundError{VM: vm}
}

// List returns the name and state of every domain.
func (c *Client) List(ctx context.Context) ([]VMState, error) {
	out, err := c.query(ctx, "qvm-ls", "--raw-data", "--fields", "NAME,STATE")
	if err != nil {
		return nil, err
	}
	return parseRawRows(out), nil
}

// ListRunning returns the names of running or paused domains other than
// dom0, sorted.
func (c *Client) ListRunning(ctx context.Context) ([]string, error) {
	rows, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, r := range rows {
		if r.Name == "dom0" {
			continue
		}
		if r.State == core.PowerRunning || r.State == core.PowerPaused || r.State == core.PowerTransient {
			names = append(names, r.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func parseRawRows(out string) []VMState {
	var rows []VMState
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "|", 2)
		if len(parts) != 2 || parts[0] == "NAME" {
			continue
		}
		rows = append(rows, VMState{Name: parts[0], State: core.ParsePowerState(parts[1])})
	}
	return rows
}

// CreateOptions are the qvm-create parameters.
type CreateOptions struct {
	Class        string
	Template     string
	Label        string
	Pool         string
	RootMoveFrom string
	RootCopyFrom string
	Properties   map[string]string
	Quiet        bool
}

// Args renders the qvm-create argument list.
func (o CreateOptions) Args(vm string) []string {
	var args []string
	if o.Quiet {
		args = append(args, "--quiet")
	}
	if o.Class != "" {
		args = append(args, "--class", o.Class)
	}
	if o.Template != "" {
		args = append(args, "--template", o.Template)
	}
	if o.Label != "" {
		args = append(args, "--label", o.Label)
	}
	if o.Pool != "" {
		args = append(args, "-P", o.Pool)
	}
	if o.RootMoveFrom != "" {
		args = append(args, "--root-move-from", o.RootMoveFrom)
	}
	if o.RootCopyFrom != "" {
		args = append(args, "--root-copy-from", o.RootCopyFrom)
	}
	keys := make([]string, 0, len(o.Properties))
	for k := range o.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--property", k+"="+o.Properties[k])
	}
	return append(args, vm)
}

func (c *Client) Create(ctx context.Context, vm string, opts CreateOptions) error {
	_, err := c.mutate(ctx, "qvm-create", opts.Args(vm)...)
	return err
}

// Remove deletes vm; justDB only drops it from the Qubes database.
func (c *Client) Remove(ctx context.Context, vm string, justDB bool) error {
	args := []string{"--force"}
	if justDB {
		args = append(args, "--just-db")
	}
	_, err := c.mutate(ctx, "qvm-remove", append(args, vm)...)
	return vmError(vm, err)
}

// Clone copies source into a new VM named target.
func (c *Client) Clone(ctx context.Context, source, target, pool string, quiet bool) error {
	var args []string
	if quiet {
		args = append(args, "--quiet")
	}
	if pool != "" {
		args = append(args, "-P", pool)
	}
	_, err := c.mutate(ctx, "qvm-clone", append(args, source, target)...)
	return vmError(source, err)
}

// StartOptions are the qvm-start parameters.
type StartOptions struct {
	Drive  string
	HDDisk string
	CDROM  string
	Quiet  bool
	Debug  bool
}

func (c *Client) Start(ctx context.Context, vm string, opts StartOptions) error {
	var args []string
	if opts.Quiet {
		args = append(args, "--quiet")
	}
	if opts.Debug {
		args = append(args, "--debug")
	}
	if opts.Drive != "" {
		args = append(args, "--drive", opts.Drive)
	}
	if opts.HDDisk != "" {
		args = append(args, "--hddisk", opts.HDDisk)
	}
	if opts.CDROM != "" {
		args = append(args, "--cdrom", opts.CDROM)
	}
	_, err := c.mutate(ctx, "qvm-start", append(args, vm)...)
	return vmError(vm, err)
}

// ShutdownOptions are the qvm-shutdown parameters.
type ShutdownOptions struct {
	Wait    bool
	Force   bool
	Timeout int
	Quiet   bool
	Exclude []string
}

func (o ShutdownOptions) args() []string {
	var args []string
	if o.Quiet {
		args = append(args, "--quiet")
	}
	if o.Wait {
		args = append(args, "--wait")
	}
	if o.Force {
		args = append(args, "--force")
	}
	if o.Timeout > 0 {
		args = append(args, "--timeout", strconv.Itoa(o.Timeout))
	}
	return args
}

func (c *Client) Shutdown(ctx context.Context, vm string, opts ShutdownOptions) error {
	_, err := c.mutate(ctx, "qvm-shutdown", append(opts.args(), vm)...)
	return vmError(vm, err)
}

// ShutdownAll shuts down every running VM except the excluded ones.
func (c *Client) ShutdownAll(ctx context.Context, opts ShutdownOptions) error {
	args := append(opts.args(), "--all")
	for _, ex := range opts.Exclude {
		args = append(args, "--exclude", ex)
	}
	_, err := c.mutate(ctx, "qvm-shutdown", args...)
	return err
}

func (c *Client) Kill(ctx context.Context, vm string) error {
	_, err := c.mutate(ctx, "qvm-kill", vm)
	return vmError(vm, err)
}

func (c *Client) Pause(ctx context.Context, vm string) error {
	_, err := c.mutate(ctx, "qvm-pause", vm)
	return vmError(vm, err)
}

func (c *Client) Unpause(ctx context.Context, vm string) error {
	_, err := c.mutate(ctx, "qvm-unpause", vm)
	return vmError(vm, err)
}

// RunOptions are the qvm-run parameters.
type RunOptions struct {
	User                string
	Localcmd            string
	ColorOutput         string
	PassIO              bool
	NoGUI               bool
	Auto                bool
	All                 bool
	Exclude             []string
	Quiet               bool
	NoColorOutput       bool
	FilterEscapeChars   bool
	NoFilterEscapeChars bool
	Dispvm              bool
}

// Args renders the qvm-run argument list.
func (o RunOptions) Args(vm, cmd string) []string {
	var args []string
	flags := []struct {
		on   bool
		flag string
	}{
		{o.Quiet, "--quiet"},
		{o.Auto, "--autostart"},
		{o.PassIO, "--pass-io"},
		{o.NoGUI, "--no-gui"},
		{o.NoColorOutput, "--no-color-output"},
		{o.FilterEscapeChars, "--filter-escape-chars"},
		{o.NoFilterEscapeChars, "--no-filter-escape-chars"},
		{o.Dispvm, "--dispvm"},
	}
	for _, f := range flags {
		if f.on {
			args = append(args, f.flag)
		}
	}
	if o.User != "" {
		args = append(args, "--user", o.User)
	}
	if o.Localcmd != "" {
		args = append(args, "--localcmd", o.Localcmd)
	}
	if o.ColorOutput != "" {
		args = append(args, "--color-output", o.ColorOutput)
	}
	if o.All {
		args = append(args, "--all")
		for _, ex := range o.Exclude {
			args = append(args, "--exclude", ex)
		}
		return append(args, cmd)
	}
	return append(args, vm, cmd)
}

// Run executes cmd inside vm and returns its stdout.
func (c *Client) Run(ctx context.Context, vm, cmd string, opts RunOptions) (string, error) {
	out, err := c.mutate(ctx, "qvm-run", opts.Args(vm, cmd)...)
	return out, vmError(vm, err)
}

// Test runs cmd inside vm with --pass-io and reports whether it exited 0.
// Used for `unless` guards. A VM that is not running is never started;
// qvm-run fails and the guard counts as unmet.
func (c *Client) Test(ctx context.Context, vm, cmd, user string) (bool, error) {
	args := []string{"--pass-io", "--no-gui", "--no-autostart"}
	if user != "" {
		args = append(args, "--user", user)
	}
	_, err := c.query(ctx, "qvm-run", append(args, vm, cmd)...)
	if err == nil {
		return true, nil
	}
	if _, ok := core.ExitCode(err); ok {
		return false, nil
	}
	return false, fmt.Errorf("unless guard: %w", err)
}
