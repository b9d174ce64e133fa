package qvm

import (
	"fmt"
	"strings"

	"github.com/melih-ucgun/qvmstate/internal/core"
	"github.com/melih-ucgun/qvmstate/internal/qubes"
)

// FirewallResource replaces the firewall rule list of a VM (qvm.firewall).
// Rules are normalized on declaration so the comparison with the listed
// rules is exact.
type FirewallResource struct {
	base
	Rules []string
	list  bool
}

type firewallConfig struct {
	Set  []string    `mapstructure:"set"`
	List interface{} `mapstructure:"list"`
}

func newFirewall(name string, params map[string]interface{}) (core.Resource, error) {
	params, err := actionArgs(params, "set")
	if err != nil {
		return nil, fmt.Errorf("qvm.firewall: %w", err)
	}
	cfg := firewallConfig{}
	flags, err := decode("firewall", params, &cfg)
	if err != nil {
		return nil, err
	}
	r := &FirewallResource{base: newBase("firewall", name, flags)}
	for _, raw := range cfg.Set {
		rule, err := qubes.NormalizeRule(raw)
		if err != nil {
			return nil, core.DeclarationError("qvm.firewall: %v", err)
		}
		r.Rules = append(r.Rules, rule)
	}
	_, listed := params["list"]
	r.list = listed || flags.Has("list") || len(r.Rules) == 0
	return r, nil
}

func (r *FirewallResource) Check(ctx *core.SystemContext) (bool, error) {
	return core.CheckByDryRun(r, ctx)
}

// Diff renders current and declared rules, one per line.
func (r *FirewallResource) Diff(ctx *core.SystemContext) (string, error) {
	if r.list {
		return "", nil
	}
	current, err := r.client(ctx).FirewallRules(ctx, r.Name)
	if err != nil {
		return "", err
	}
	return core.GenerateDiff(r.Name, joinRules(current), joinRules(r.Rules)), nil
}

func joinRules(rules []string) string {
	if len(rules) == 0 {
		return ""
	}
	return strings.Join(rules, "\n") + "\n"
}

func sameRules(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (r *FirewallResource) Apply(ctx *core.SystemContext) (core.Result, error) {
	c := r.client(ctx)
	current, err := c.FirewallRules(ctx, r.Name)
	if err != nil {
		return commandFailure("Failed to list firewall rules", err)
	}
	if r.list {
		res := core.SuccessNoChange("")
		for _, rule := range current {
			res.Note("%s", rule)
		}
		res.Data = current
		return res, nil
	}

	if sameRules(current, r.Rules) {
		return core.Skip("All requested rules already set:\n%s", strings.Join(current, "\n")), nil
	}
	if !ctx.DryRun {
		ctx.Logger.Info("Replacing firewall rules", "vm", r.Name, "rules", len(r.Rules))
		if err := c.SetFirewallRules(ctx, r.Name, r.Rules); err != nil {
			return commandFailure("Failed to set firewall rules", err)
		}
	}
	res := core.SuccessNoChange("")
	res.AddChange("rules", strings.Join(current, "\n"), strings.Join(r.Rules, "\n"))
	return res, nil
}
