package qubes

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// ruleKeys is the canonical order qvm-firewall prints rule fields in.
var ruleKeys = []string{"action", "dsthost", "proto", "dstports", "icmptype", "specialtarget", "expire", "comment"}

// NormalizeRule parses "action=accept proto=tcp dstports=443" and returns
// it in the canonical form qvm-firewall --raw prints (fields in fixed
// order, single ports expanded to ranges).
func NormalizeRule(rule string) (string, error) {
	rule = strings.TrimSpace(rule)
	fields := make(map[string]string)

	// comment= swallows the rest of the line.
	if i := strings.Index(rule, "comment="); i >= 0 {
		fields["comment"] = strings.TrimSpace(rule[i+len("comment="):])
		rule = rule[:i]
	}
	for _, tok := range strings.Fields(rule) {
		k, v, ok := strings.Cut(tok, "=")
		if !ok || v == "" {
			return "", fmt.Errorf("invalid rule token '%s'", tok)
		}
		known := false
		for _, rk := range ruleKeys {
			if rk == k {
				known = true
				break
			}
		}
		if !known {
			return "", fmt.Errorf("unknown rule field '%s'", k)
		}
		if _, dup := fields[k]; dup {
			return "", fmt.Errorf("duplicate rule field '%s'", k)
		}
		fields[k] = v
	}

	action := fields["action"]
	if action != "accept" && action != "drop" {
		return "", fmt.Errorf("rule must have action=accept or action=drop")
	}
	if p, ok := fields["dstports"]; ok && !strings.Contains(p, "-") {
		if _, err := strconv.Atoi(p); err != nil {
			return "", fmt.Errorf("invalid dstports '%s'", p)
		}
		fields["dstports"] = p + "-" + p
	}

	parts := make([]string, 0, len(fields))
	for _, k := range ruleKeys {
		if v, ok := fields[k]; ok {
			parts = append(parts, k+"="+v)
		}
	}
	return strings.Join(parts, " "), nil
}

// FirewallRules returns the raw rules of vm, in order.
func (c *Client) FirewallRules(ctx context.Context, vm string) ([]string, error) {
	out, err := c.query(ctx, "qvm-firewall", "--raw", vm, "list")
	if err != nil {
		return nil, vmError(vm, err)
	}
	var rules []string
	for _, line := range strings.Split(out, "\n") {
		if r := strings.TrimSpace(line); r != "" {
			rules = append(rules, r)
		}
	}
	return rules, nil
}

// SetFirewallRules replaces the rule list of vm. qvm-firewall has no
// atomic set: the list is reset (leaving one accept rule), the new rules
// are inserted before it and the leftover rule is deleted.
func (c *Client) SetFirewallRules(ctx context.Context, vm string, rules []string) error {
	if _, err := c.mutate(ctx, "qvm-firewall", vm, "reset"); err != nil {
		return vmError(vm, err)
	}
	for i, r := range rules {
		args := []string{vm, "add", "--before", strconv.Itoa(i)}
		args = append(args, ruleArgs(r)...)
		if _, err := c.mutate(ctx, "qvm-firewall", args...); err != nil {
			return vmError(vm, err)
		}
	}
	_, err := c.mutate(ctx, "qvm-firewall", vm, "del", "--rule-no", strconv.Itoa(len(rules)))
	return vmError(vm, err)
}

// ruleArgs splits a rule into qvm-firewall arguments, keeping a trailing
// comment as one argument.
func ruleArgs(rule string) []string {
	var comment string
	if i := strings.Index(rule, "comment="); i >= 0 {
		comment = strings.TrimSpace(rule[i:])
		rule = rule[:i]
	}
	args := strings.Fields(rule)
	if comment != "" {
		args = append(args, comment)
	}
	return args
}
