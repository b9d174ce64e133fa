package qvm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/melih-ucgun/qvmstate/internal/core"
	"github.com/melih-ucgun/qvmstate/internal/qubes"
)

// toggleConfig is shared by qvm.service and qvm.features.
type toggleConfig struct {
	Enable  []string    `mapstructure:"enable"`
	Disable []string    `mapstructure:"disable"`
	Default []string    `mapstructure:"default"`
	Set     interface{} `mapstructure:"set"`
	List    interface{} `mapstructure:"list"`
}

// toggle is one requested feature value. A nil Value means unset.
type toggle struct {
	Action string
	Name   string
	Value  *string
}

func strPtr(s string) *string { return &s }

func (c toggleConfig) toggles(kind string) ([]toggle, error) {
	if dup := overlap(c.Enable, c.Disable, c.Default); len(dup) > 0 {
		sort.Strings(dup)
		return nil, core.DeclarationError("qvm.%s: %s listed under more than one of enable/disable/default", kind, strings.Join(dup, ", "))
	}
	var out []toggle
	for _, n := range c.Enable {
		out = append(out, toggle{Action: "enable", Name: n, Value: strPtr("1")})
	}
	for _, n := range c.Disable {
		out = append(out, toggle{Action: "disable", Name: n, Value: strPtr("")})
	}
	for _, n := range c.Default {
		out = append(out, toggle{Action: "default", Name: n})
	}

	set, err := featureValues(c.Set)
	if err != nil {
		return nil, fmt.Errorf("qvm.%s: set: %w", kind, err)
	}
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	toggled := append(append(append([]string{}, c.Enable...), c.Disable...), c.Default...)
	if dup := overlap(toggled, names); len(dup) > 0 {
		return nil, core.DeclarationError("qvm.%s: %s is both toggled and set", kind, strings.Join(dup, ", "))
	}
	for _, n := range names {
		out = append(out, toggle{Action: "set", Name: n, Value: strPtr(set[n])})
	}
	return out, nil
}

// featureValues accepts `{name: value}` or a list of such maps. Feature
// names are used verbatim.
func featureValues(v interface{}) (map[string]string, error) {
	out := make(map[string]string)
	var add func(interface{}) error
	add = func(item interface{}) error {
		switch val := item.(type) {
		case nil:
			return nil
		case map[string]interface{}:
			for k, x := range val {
				out[k] = scalarString(x)
			}
		case map[interface{}]interface{}:
			for k, x := range val {
				out[fmt.Sprint(k)] = scalarString(x)
			}
		case []interface{}:
			for _, x := range val {
				if _, nested := x.([]interface{}); nested {
					return core.DeclarationError("nested lists are not supported")
				}
				if err := add(x); err != nil {
					return err
				}
			}
		default:
			return core.DeclarationError("expected name: value pairs, got %T", item)
		}
		return nil
	}
	if err := add(v); err != nil {
		return nil, err
	}
	return out, nil
}

func scalarString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case bool:
		if val {
			return "1"
		}
		return ""
	case string:
		return val
	}
	return fmt.Sprint(v)
}

// valueLabel renders a feature value: "1" Enabled, "" Disabled, unset
// Missing.
func valueLabel(v *string) string {
	switch {
	case v == nil:
		return "Missing"
	case *v == "1":
		return "Enabled"
	case *v == "":
		return "Disabled"
	}
	return *v
}

func lookup(m map[string]string, name string) *string {
	if v, ok := m[name]; ok {
		return &v
	}
	return nil
}

func sameValue(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ServiceResource manages qvm-service entries (qvm.service).
type ServiceResource struct {
	base
	Toggles []toggle
	list    bool
}

func newService(name string, params map[string]interface{}) (core.Resource, error) {
	params, err := actionArgs(params, "enable", "disable", "default")
	if err != nil {
		return nil, fmt.Errorf("qvm.service: %w", err)
	}
	cfg := toggleConfig{}
	flags, err := decode("service", params, &cfg)
	if err != nil {
		return nil, err
	}
	toggles, err := cfg.toggles("service")
	if err != nil {
		return nil, err
	}
	_, listed := params["list"]
	return &ServiceResource{
		base:    newBase("service", name, flags),
		Toggles: toggles,
		list:    listed || flags.Has("list") || len(toggles) == 0,
	}, nil
}

func (r *ServiceResource) Check(ctx *core.SystemContext) (bool, error) {
	return core.CheckByDryRun(r, ctx)
}

func (r *ServiceResource) Apply(ctx *core.SystemContext) (core.Result, error) {
	c := r.client(ctx)
	current, err := c.Services(ctx, r.Name)
	if err != nil {
		return commandFailure("Failed to list services", err)
	}
	if r.list {
		return listToggles(current, false), nil
	}

	res := core.SuccessNoChange("")
	for _, t := range r.Toggles {
		cur := lookup(current, t.Name)
		if sameValue(cur, t.Value) {
			res.Note("[SKIP] Service already in desired state: %s '%s' = %s", strings.ToUpper(t.Action), t.Name, valueLabel(cur))
			continue
		}
		if !ctx.DryRun {
			if err := setService(ctx, c, r.Name, t); err != nil {
				return commandFailure(fmt.Sprintf("Failed to %s service '%s'", t.Action, t.Name), err)
			}
		}
		res.AddChange(t.Name, valueLabel(cur), valueLabel(t.Value))
	}
	return res, nil
}

func setService(ctx *core.SystemContext, c *qubes.Client, vm string, t toggle) error {
	if t.Value == nil {
		return c.UnsetService(ctx, vm, t.Name)
	}
	return c.SetService(ctx, vm, t.Name, *t.Value == "1")
}

// FeaturesResource manages qvm-features entries (qvm.features).
type FeaturesResource struct {
	base
	Toggles []toggle
	list    bool
}

func newFeatures(name string, params map[string]interface{}) (core.Resource, error) {
	params, err := actionArgs(params, "enable", "disable", "default")
	if err != nil {
		return nil, fmt.Errorf("qvm.features: %w", err)
	}
	cfg := toggleConfig{}
	flags, err := decode("features", params, &cfg)
	if err != nil {
		return nil, err
	}
	toggles, err := cfg.toggles("features")
	if err != nil {
		return nil, err
	}
	_, listed := params["list"]
	return &FeaturesResource{
		base:    newBase("features", name, flags),
		Toggles: toggles,
		list:    listed || flags.Has("list") || len(toggles) == 0,
	}, nil
}

func (r *FeaturesResource) Check(ctx *core.SystemContext) (bool, error) {
	return core.CheckByDryRun(r, ctx)
}

func (r *FeaturesResource) Apply(ctx *core.SystemContext) (core.Result, error) {
	c := r.client(ctx)
	current, err := c.Features(ctx, r.Name)
	if err != nil {
		return commandFailure("Failed to list features", err)
	}
	if r.list {
		return listToggles(current, true), nil
	}

	res := core.SuccessNoChange("")
	for _, t := range r.Toggles {
		cur := lookup(current, t.Name)
		if sameValue(cur, t.Value) {
			res.Note("[SKIP] Feature already in desired state: %s '%s' = %s", strings.ToUpper(t.Action), t.Name, valueLabel(cur))
			continue
		}
		if !ctx.DryRun {
			var err error
			if t.Value == nil {
				err = c.UnsetFeature(ctx, r.Name, t.Name)
			} else {
				err = c.SetFeature(ctx, r.Name, t.Name, *t.Value)
			}
			if err != nil {
				return commandFailure(fmt.Sprintf("Failed to %s feature '%s'", t.Action, t.Name), err)
			}
		}
		// raw values, nil when missing
		var oldVal, newVal interface{}
		if cur != nil {
			oldVal = *cur
		}
		if t.Value != nil {
			newVal = *t.Value
		}
		res.AddChange(t.Name, oldVal, newVal)
	}
	return res, nil
}

// listToggles renders the list output of qvm.service and qvm.features.
func listToggles(current map[string]string, withValues bool) core.Result {
	names := make([]string, 0, len(current))
	for n := range current {
		names = append(names, n)
	}
	sort.Strings(names)

	res := core.SuccessNoChange("")
	for _, n := range names {
		v := current[n]
		switch {
		case v == "1":
			res.Note("[ENABLED]  %s", n)
		case v == "" || !withValues:
			res.Note("[DISABLED] %s", n)
		default:
			res.Note("[SET]      %s: %s", n, v)
		}
	}
	res.Data = current
	return res
}
