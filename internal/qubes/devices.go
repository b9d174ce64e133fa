package qubes

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Device is a device assignment, written class:backend:ident in
// declarations (e.g. pci:dom0:01_00.0).
type Device struct {
	Class   string            `json:"class" yaml:"class"`
	Backend string            `json:"backend" yaml:"backend"`
	Ident   string            `json:"ident" yaml:"ident"`
	Options map[string]string `json:"options,omitempty" yaml:"options,omitempty"`
}

// ParseDevice parses "class:backend:ident".
func ParseDevice(s string) (Device, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Device{}, fmt.Errorf("missing either class, backend or ident in '%s'", s)
	}
	return Device{Class: parts[0], Backend: parts[1], Ident: parts[2], Options: map[string]string{}}, nil
}

func (d Device) String() string {
	return d.Class + ":" + d.Backend + ":" + d.Ident
}

// Address is the backend:ident form qvm-device expects.
func (d Device) Address() string {
	return d.Backend + ":" + d.Ident
}

// OptionString renders options as "(k=v, k=v)".
func (d Device) OptionString() string {
	keys := make([]string, 0, len(d.Options))
	for k := range d.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+d.Options[k])
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// SameOptions compares option maps.
func (d Device) SameOptions(other Device) bool {
	if len(d.Options) != len(other.Options) {
		return false
	}
	for k, v := range d.Options {
		if ov, ok := other.Options[k]; !ok || !strings.EqualFold(ov, v) {
			return false
		}
	}
	return true
}

var optionsRe = regexp.MustCompile(`\(([^()]*)\)\s*$`)

// ParseDeviceList parses `qvm-device CLASS list VM` output. The first
// column is backend:ident; persistent options are listed in a trailing
// parenthesised group.
func ParseDeviceList(class, out string) []Device {
	var devs []Device
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 || strings.EqualFold(fields[0], "BACKEND:DEVID") {
			continue
		}
		addr := strings.SplitN(fields[0], ":", 2)
		if len(addr) != 2 {
			continue
		}
		d := Device{Class: class, Backend: addr[0], Ident: addr[1], Options: map[string]string{}}
		if m := optionsRe.FindStringSubmatch(line); m != nil {
			for _, kv := range strings.Split(m[1], ",") {
				k, v, ok := strings.Cut(strings.TrimSpace(kv), "=")
				if ok {
					d.Options[strings.TrimSpace(k)] = strings.TrimSpace(v)
				}
			}
		}
		devs = append(devs, d)
	}
	return devs
}

// Devices lists the devices of class attached to vm.
func (c *Client) Devices(ctx context.Context, class, vm string) ([]Device, error) {
	out, err := c.query(ctx, "qvm-device", class, "list", vm)
	if err != nil {
		return nil, vmError(vm, err)
	}
	return ParseDeviceList(class, out), nil
}

// AttachDevice persistently attaches dev to vm.
func (c *Client) AttachDevice(ctx context.Context, vm string, dev Device) error {
	args := []string{dev.Class, "attach", "--persistent"}
	keys := make([]string, 0, len(dev.Options))
	for k := range dev.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-o", k+"="+dev.Options[k])
	}
	_, err := c.mutate(ctx, "qvm-device", append(args, vm, dev.Address())...)
	return vmError(vm, err)
}

func (c *Client) DetachDevice(ctx context.Context, vm string, dev Device) error {
	_, err := c.mutate(ctx, "qvm-device", dev.Class, "detach", vm, dev.Address())
	return vmError(vm, err)
}
