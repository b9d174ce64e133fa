package qubes

import (
	"context"
	"sort"
	"strings"
)

// Pref is one VM property as listed by qvm-prefs.
type Pref struct {
	Name      string `json:"name" yaml:"name"`
	Value     string `json:"value" yaml:"value"`
	IsDefault bool   `json:"default" yaml:"default"`
}

// Prefs maps property name to its listing.
type Prefs map[string]Pref

// Names returns the property names sorted.
func (p Prefs) Names() []string {
	names := make([]string, 0, len(p))
	for n := range p {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Values returns name -> value, the shape used for diffs.
func (p Prefs) Values() map[string]string {
	out := make(map[string]string, len(p))
	for n, pr := range p {
		out[n] = pr.Value
	}
	return out
}

// ParsePrefs parses `qvm-prefs VM` output. Each line reads
// "name  D|-  value", where D marks a property at its default.
func ParsePrefs(out string) Prefs {
	prefs := make(Prefs)
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		p := Pref{Name: fields[0]}
		if len(fields) > 1 {
			p.IsDefault = fields[1] == "D"
			if fields[1] != "D" && fields[1] != "-" {
				// Listing without a default column.
				p.Value = strings.Join(fields[1:], " ")
				prefs[p.Name] = p
				continue
			}
		}
		if len(fields) > 2 {
			p.Value = strings.Join(fields[2:], " ")
		}
		prefs[p.Name] = p
	}
	return prefs
}

// ListPrefs returns every property of vm.
func (c *Client) ListPrefs(ctx context.Context, vm string) (Prefs, error) {
	out, err := c.query(ctx, "qvm-prefs", vm)
	if err != nil {
		return nil, vmError(vm, err)
	}
	return ParsePrefs(out), nil
}

// GetPref returns the value of a single property.
func (c *Client) GetPref(ctx context.Context, vm, name string) (string, error) {
	out, err := c.query(ctx, "qvm-prefs", vm, name)
	if err != nil {
		return "", vmError(vm, err)
	}
	return strings.TrimRight(out, "\r\n"), nil
}

// SetPref sets a property; an empty value clears VM-valued properties.
func (c *Client) SetPref(ctx context.Context, vm, name, value string) error {
	_, err := c.mutate(ctx, "qvm-prefs", vm, name, value)
	return vmError(vm, err)
}

// ResetPref resets a property to its default.
func (c *Client) ResetPref(ctx context.Context, vm, name string) error {
	_, err := c.mutate(ctx, "qvm-prefs", "--default", vm, name)
	return vmError(vm, err)
}
