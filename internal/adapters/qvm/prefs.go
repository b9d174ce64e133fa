package qvm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/melih-ucgun/qvmstate/internal/core"
	"github.com/melih-ucgun/qvmstate/internal/qubes"
)

// DefaultSentinel resets a property to its default.
const DefaultSentinel = "*default*"

// propertyMap maps declaration keys to the VM property they set.
var propertyMap = map[string]string{
	"last_backup":    "backup_timestamp",
	"dispvm_allowed": "template_for_dispvms",
}

// vmValued properties name another VM; "none" and "" both mean no VM.
var vmValued = map[string]bool{
	"netvm":             true,
	"guivm":             true,
	"audiovm":           true,
	"default_dispvm":    true,
	"management_dispvm": true,
}

var boolProps = map[string]bool{
	"autostart":            true,
	"debug":                true,
	"template_for_dispvms": true,
	"include_in_backups":   true,
	"installed_by_rpm":     true,
	"provides_network":     true,
	"updateable":           true,
	"internal":             true,
}

// prefDest returns the VM property a declaration key refers to.
func prefDest(key string) string {
	dest := strings.ReplaceAll(key, "-", "_")
	if mapped, ok := propertyMap[dest]; ok {
		return mapped
	}
	return dest
}

// normalizePref renders a declared value the way qvm-prefs prints it.
func normalizePref(dest string, v interface{}) string {
	var s string
	switch val := v.(type) {
	case nil:
		s = ""
	case bool:
		if val {
			s = "True"
		} else {
			s = "False"
		}
	case string:
		s = val
	default:
		s = fmt.Sprint(val)
	}
	if vmValued[dest] && strings.EqualFold(s, "none") {
		return ""
	}
	if boolProps[dest] {
		switch strings.ToLower(s) {
		case "true", "yes", "on", "1":
			return "True"
		case "false", "no", "off", "0":
			return "False"
		}
	}
	return s
}

func truthy(v interface{}) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		switch strings.ToLower(val) {
		case "true", "yes", "on", "1":
			return true
		}
	case int:
		return val != 0
	}
	return false
}

// samePref compares a listed value with a normalized declared one.
func samePref(dest, current, want string) bool {
	if boolProps[dest] || vmValued[dest] {
		return strings.EqualFold(normalizePref(dest, current), want)
	}
	return current == want
}

func prefLine(name, value string) string {
	return fmt.Sprintf("%-19s: %s", name, value)
}

type prefsMode int

const (
	prefsList prefsMode = iota
	prefsGet
	prefsSet
)

// PrefsResource lists, reads or sets VM properties (qvm.prefs).
type PrefsResource struct {
	base
	Mode prefsMode
	// Get holds the requested property names in get mode.
	Get []string
	// Want maps property name to its normalized desired value.
	Want map[string]string
	// PCIDevs and StrictReset are applied through PCI device assignments.
	PCIDevs     []string
	StrictReset *bool
}

type prefsConfig struct {
	Action string                 `mapstructure:"action"`
	Get    []string               `mapstructure:"get"`
	Props  map[string]interface{} `mapstructure:",remain"`
}

func newPrefs(name string, params map[string]interface{}) (core.Resource, error) {
	params, err := flattenPrefs(params)
	if err != nil {
		return nil, err
	}
	cfg := prefsConfig{}
	flags, err := decode("prefs", params, &cfg)
	if err != nil {
		return nil, err
	}

	r := &PrefsResource{base: newBase("prefs", name, flags), Want: map[string]string{}}
	switch {
	case flags.Has("list") || cfg.Action == "list" && len(cfg.Props) == 0:
		r.Mode = prefsList
	case cfg.Action == "get" || cfg.Action == "gry" || len(cfg.Get) > 0:
		r.Mode = prefsGet
		for _, g := range cfg.Get {
			r.Get = append(r.Get, prefDest(core.NormalizeKey(g)))
		}
	case len(cfg.Props) > 0:
		r.Mode = prefsSet
	default:
		r.Mode = prefsList
	}
	if r.Mode != prefsSet {
		return r, nil
	}

	for key, v := range cfg.Props {
		dest := prefDest(key)
		switch dest {
		case "pcidevs":
			devs, err := core.StringList(v)
			if err != nil {
				return nil, fmt.Errorf("qvm.prefs: pcidevs: %w", err)
			}
			r.PCIDevs = devs
			if r.PCIDevs == nil {
				r.PCIDevs = []string{}
			}
		case "pci_strictreset":
			b := truthy(v)
			r.StrictReset = &b
		default:
			r.Want[dest] = normalizePref(dest, v)
		}
	}
	if r.StrictReset != nil && r.PCIDevs == nil {
		return nil, core.DeclarationError("qvm.prefs: setting 'pci_strictreset' works only together with 'pcidevs'")
	}
	return r, nil
}

// flattenPrefs folds the `set: [{k: v}]` form and positional property
// names (a get request) into the top-level map.
func flattenPrefs(params map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[core.NormalizeKey(k)] = v
	}
	if set, ok := out["set"]; ok {
		delete(out, "set")
		entries, _, err := core.ParseOptionList(set)
		if err != nil {
			return nil, fmt.Errorf("qvm.prefs: set: %w", err)
		}
		for k, v := range entries {
			out[k] = v
		}
		if _, ok := out["action"]; !ok {
			out["action"] = "set"
		}
	}
	if args, ok := out["args"]; ok {
		names, err := core.StringList(args)
		if err != nil {
			return nil, fmt.Errorf("qvm.prefs: %w", err)
		}
		delete(out, "args")
		var get []interface{}
		for _, n := range names {
			if n == "list" {
				out["action"] = "list"
				continue
			}
			get = append(get, n)
		}
		if len(get) > 0 {
			if prev, ok := out["get"].([]interface{}); ok {
				get = append(prev, get...)
			}
			out["get"] = get
		}
	}
	return out, nil
}

func (r *PrefsResource) Check(ctx *core.SystemContext) (bool, error) {
	return core.CheckByDryRun(r, ctx)
}

func (r *PrefsResource) wantKeys() []string {
	keys := make([]string, 0, len(r.Want))
	for k := range r.Want {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Diff renders the declared properties against their current values.
func (r *PrefsResource) Diff(ctx *core.SystemContext) (string, error) {
	if r.Mode != prefsSet || len(r.Want) == 0 {
		return "", nil
	}
	current, err := r.client(ctx).ListPrefs(ctx, r.Name)
	if err != nil {
		return "", err
	}
	cur := make(map[string]string, len(r.Want))
	for k := range r.Want {
		if p, ok := current[k]; ok {
			cur[k] = p.Value
			if p.IsDefault {
				cur[k] = DefaultSentinel
			}
		}
	}
	return core.GenerateDiff(r.Name, core.RenderMap(cur), core.RenderMap(r.Want)), nil
}

func (r *PrefsResource) Apply(ctx *core.SystemContext) (core.Result, error) {
	c := r.client(ctx)
	current, err := c.ListPrefs(ctx, r.Name)
	if err != nil {
		return commandFailure("Failed to list properties", err)
	}

	switch r.Mode {
	case prefsList:
		res := core.SuccessNoChange("")
		for _, n := range current.Names() {
			res.Note("%s", prefLine(n, current[n].Value))
		}
		res.Data = current.Values()
		return res, nil
	case prefsGet:
		return r.applyGet(current), nil
	}

	res := core.SuccessNoChange("")
	for _, key := range r.wantKeys() {
		want := r.Want[key]
		cur, ok := current[key]
		if !ok {
			res.Failed = true
			res.Note("%s", prefLine(key, "Invalid key!"))
			continue
		}

		if want == DefaultSentinel {
			if cur.IsDefault {
				res.Note("[SKIP] %s", prefLine(key, DefaultSentinel))
				continue
			}
			if !ctx.DryRun {
				if err := c.ResetPref(ctx, r.Name, key); err != nil {
					return r.fail(res, key, err)
				}
			}
			res.AddChange(key, cur.Value, DefaultSentinel)
			res.Note("%s", prefLine(key, DefaultSentinel))
			continue
		}

		if samePref(key, cur.Value, want) {
			res.Note("[SKIP] %s", prefLine(key, cur.Value))
			continue
		}
		if !ctx.DryRun {
			ctx.Logger.Info("Setting property", "vm", r.Name, "property", key, "value", want)
			if err := c.SetPref(ctx, r.Name, key, want); err != nil {
				return r.fail(res, key, err)
			}
		}
		old := cur.Value
		if cur.IsDefault {
			old = DefaultSentinel
		}
		res.AddChange(key, old, want)
		res.Note("%s", prefLine(key, want))
	}

	if r.PCIDevs != nil {
		if err := r.applyPCI(ctx, c, &res); err != nil {
			return r.fail(res, "pcidevs", err)
		}
	}
	if res.Failed {
		res.Error = fmt.Errorf("one or more properties of '%s' are invalid", r.Name)
		return res, res.Error
	}
	return res, nil
}

func (r *PrefsResource) applyGet(current qubes.Prefs) core.Result {
	res := core.SuccessNoChange("")
	data := make(map[string]string, len(r.Get))
	for _, key := range r.Get {
		p, ok := current[key]
		if !ok {
			res.Failed = true
			res.Note("%s", prefLine(key, "Invalid key!"))
			continue
		}
		data[key] = p.Value
		res.Note("%s", prefLine(key, p.Value))
	}
	res.Data = data
	if res.Failed {
		res.Error = fmt.Errorf("invalid property requested for '%s'", r.Name)
	}
	return res
}

func (r *PrefsResource) fail(res core.Result, key string, err error) (core.Result, error) {
	res.Failed = true
	res.Error = err
	res.Note("%s", prefLine(key, err.Error()))
	return res, err
}

// applyPCI attaches the declared PCI devices to the VM. A device whose
// strict-reset option differs is detached and attached again.
func (r *PrefsResource) applyPCI(ctx *core.SystemContext, c *qubes.Client, res *core.Result) error {
	attached, err := c.Devices(ctx, "pci", r.Name)
	if err != nil {
		return err
	}
	var before []string
	byIdent := make(map[string]qubes.Device, len(attached))
	for _, d := range attached {
		before = append(before, strings.ReplaceAll(d.Ident, "_", ":"))
		byIdent[d.Ident] = d
	}
	after := append([]string{}, before...)

	changed := false
	for _, id := range r.PCIDevs {
		ident := strings.ReplaceAll(strings.TrimSpace(id), ":", "_")
		want := qubes.Device{Class: "pci", Backend: "dom0", Ident: ident, Options: map[string]string{}}
		if r.StrictReset != nil && !*r.StrictReset {
			want.Options["no-strict-reset"] = "True"
		}

		if cur, ok := byIdent[ident]; ok {
			if r.StrictReset == nil || cur.SameOptions(want) {
				res.Note("[SKIP] %s", prefLine("pcidevs", "Device already attached: "+id))
				continue
			}
			if !ctx.DryRun {
				if err := c.DetachDevice(ctx, r.Name, cur); err != nil {
					return err
				}
			}
		} else {
			after = append(after, id)
		}
		if !ctx.DryRun {
			if err := c.AttachDevice(ctx, r.Name, want); err != nil {
				return err
			}
		}
		changed = true
	}
	if changed {
		res.AddChange("pcidevs", before, after)
		res.Note("%s", prefLine("pcidevs", strings.Join(after, " ")))
	}
	return nil
}
