package qvm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/melih-ucgun/qvmstate/internal/core"
	"github.com/melih-ucgun/qvmstate/internal/qubes"
)

// DeviceClasses are the classes listed when no attach/detach is given.
var DeviceClasses = []string{"pci", "usb", "block"}

// DevicesResource attaches and detaches persistent device assignments
// (qvm.devices).
type DevicesResource struct {
	base
	Attach []qubes.Device
	Detach []qubes.Device
	list   bool
}

type devicesConfig struct {
	Attach interface{} `mapstructure:"attach"`
	Detach interface{} `mapstructure:"detach"`
	List   interface{} `mapstructure:"list"`
}

func newDevices(name string, params map[string]interface{}) (core.Resource, error) {
	params, err := actionArgs(params, "attach", "detach")
	if err != nil {
		return nil, fmt.Errorf("qvm.devices: %w", err)
	}
	cfg := devicesConfig{}
	flags, err := decode("devices", params, &cfg)
	if err != nil {
		return nil, err
	}
	r := &DevicesResource{base: newBase("devices", name, flags)}
	if r.Attach, err = parseDevices(cfg.Attach); err != nil {
		return nil, core.DeclarationError("qvm.devices: attach: %v", err)
	}
	if r.Detach, err = parseDevices(cfg.Detach); err != nil {
		return nil, core.DeclarationError("qvm.devices: detach: %v", err)
	}

	var a, d []string
	for _, dev := range r.Attach {
		a = append(a, dev.String())
	}
	for _, dev := range r.Detach {
		d = append(d, dev.String())
	}
	if dup := overlap(a, d); len(dup) > 0 {
		return nil, core.DeclarationError("qvm.devices: %s both attached and detached", strings.Join(dup, ", "))
	}
	_, listed := params["list"]
	r.list = listed || flags.Has("list") || len(r.Attach)+len(r.Detach) == 0
	return r, nil
}

// parseDevices accepts "class:backend:ident" strings and
// `{class:backend:ident: [{opt: value}]}` maps.
func parseDevices(v interface{}) ([]qubes.Device, error) {
	var out []qubes.Device
	var items []interface{}
	switch val := v.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		items = val
	default:
		items = []interface{}{val}
	}

	for _, item := range items {
		switch it := item.(type) {
		case string:
			dev, err := qubes.ParseDevice(it)
			if err != nil {
				return nil, err
			}
			out = append(out, dev)
		case map[string]interface{}:
			keys := make([]string, 0, len(it))
			for k := range it {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				dev, err := qubes.ParseDevice(k)
				if err != nil {
					return nil, err
				}
				opts, _, err := core.ParseOptionList(it[k])
				if err != nil {
					return nil, err
				}
				for ok, ov := range opts {
					if ok == "pci-strictreset" {
						if !truthy(ov) {
							dev.Options["no-strict-reset"] = "True"
						}
						continue
					}
					dev.Options[ok] = optionValue(ov)
				}
				out = append(out, dev)
			}
		default:
			return nil, fmt.Errorf("unsupported device entry %T", item)
		}
	}
	return out, nil
}

func optionValue(v interface{}) string {
	switch val := v.(type) {
	case bool:
		if val {
			return "True"
		}
		return "False"
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

func (r *DevicesResource) Check(ctx *core.SystemContext) (bool, error) {
	return core.CheckByDryRun(r, ctx)
}

func (r *DevicesResource) Apply(ctx *core.SystemContext) (core.Result, error) {
	c := r.client(ctx)
	if r.list {
		return r.applyList(ctx, c)
	}

	attached := make(map[string][]qubes.Device)
	current := func(class string) ([]qubes.Device, error) {
		if devs, ok := attached[class]; ok {
			return devs, nil
		}
		devs, err := c.Devices(ctx, class, r.Name)
		if err != nil {
			return nil, err
		}
		attached[class] = devs
		return devs, nil
	}

	res := core.SuccessNoChange("")
	for _, want := range r.Attach {
		devs, err := current(want.Class)
		if err != nil {
			return commandFailure("Failed to list devices", err)
		}
		var old interface{}
		var found *qubes.Device
		for i := range devs {
			if devs[i].Backend == want.Backend && devs[i].Ident == want.Ident {
				found = &devs[i]
				break
			}
		}
		if found != nil && found.SameOptions(want) {
			res.Note("[SKIP] Device already attached: %s %s", want, want.OptionString())
			continue
		}
		if !ctx.DryRun {
			if found != nil {
				// options differ: detach and attach again
				if err := c.DetachDevice(ctx, r.Name, *found); err != nil {
					return r.failDevice(res, err)
				}
			}
			if err := c.AttachDevice(ctx, r.Name, want); err != nil {
				return r.failDevice(res, err)
			}
		}
		if found != nil {
			old = "[ATTACHED] " + found.OptionString()
		}
		res.AddChange(want.String(), old, "[ATTACHED] "+want.OptionString())
	}

	for _, dev := range r.Detach {
		devs, err := current(dev.Class)
		if err != nil {
			return commandFailure("Failed to list devices", err)
		}
		present := false
		for _, d := range devs {
			if d.Backend == dev.Backend && d.Ident == dev.Ident {
				present = true
				break
			}
		}
		if !present {
			res.Note("[SKIP] Device not attached: %s", dev)
			continue
		}
		if !ctx.DryRun {
			if err := c.DetachDevice(ctx, r.Name, dev); err != nil {
				return r.failDevice(res, err)
			}
		}
		res.AddChange(dev.String(), "[ATTACHED]", "[DETACHED]")
	}
	return res, nil
}

func (r *DevicesResource) failDevice(res core.Result, err error) (core.Result, error) {
	res.Failed = true
	res.Error = err
	res.Note("%s", err.Error())
	return res, err
}

func (r *DevicesResource) applyList(ctx *core.SystemContext, c *qubes.Client) (core.Result, error) {
	lines := []string{"[ATTACHED]:"}
	var all []qubes.Device
	for _, class := range DeviceClasses {
		devs, err := c.Devices(ctx, class, r.Name)
		if err != nil {
			return commandFailure("Failed to list devices", err)
		}
		for _, d := range devs {
			lines = append(lines, "    "+d.String()+" "+d.OptionString())
		}
		all = append(all, devs...)
	}
	res := core.SuccessNoChange(strings.Join(lines, "\n"))
	res.Data = all
	return res, nil
}
