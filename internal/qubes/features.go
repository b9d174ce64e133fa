package qubes

import (
	"context"
	"strings"
)

// ParseKeyValues parses "name  value" lines; the value may be empty or
// contain spaces.
func ParseKeyValues(out string) map[string]string {
	kv := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		name := fields[0]
		value := strings.TrimSpace(strings.TrimPrefix(line, name))
		kv[name] = value
	}
	return kv
}

// Features lists qvm-features of vm.
func (c *Client) Features(ctx context.Context, vm string) (map[string]string, error) {
	out, err := c.query(ctx, "qvm-features", vm)
	if err != nil {
		return nil, vmError(vm, err)
	}
	return ParseKeyValues(out), nil
}

// SetFeature sets a feature value; "" disables, "1" enables.
func (c *Client) SetFeature(ctx context.Context, vm, name, value string) error {
	_, err := c.mutate(ctx, "qvm-features", vm, name, value)
	return vmError(vm, err)
}

func (c *Client) UnsetFeature(ctx context.Context, vm, name string) error {
	_, err := c.mutate(ctx, "qvm-features", "--unset", vm, name)
	return vmError(vm, err)
}

// Services lists qvm-service of vm as feature values: "1" enabled, ""
// disabled.
func (c *Client) Services(ctx context.Context, vm string) (map[string]string, error) {
	out, err := c.query(ctx, "qvm-service", vm)
	if err != nil {
		return nil, vmError(vm, err)
	}
	services := make(map[string]string)
	for name, state := range ParseKeyValues(out) {
		switch strings.ToLower(state) {
		case "on", "1", "true", "enabled":
			services[name] = "1"
		default:
			services[name] = ""
		}
	}
	return services, nil
}

// SetService enables or disables a service.
func (c *Client) SetService(ctx context.Context, vm, name string, enable bool) error {
	flag := "--disable"
	if enable {
		flag = "--enable"
	}
	_, err := c.mutate(ctx, "qvm-service", flag, vm, name)
	return vmError(vm, err)
}

// UnsetService removes the service setting, restoring the VM default.
func (c *Client) UnsetService(ctx context.Context, vm, name string) error {
	_, err := c.mutate(ctx, "qvm-service", "--unset", vm, name)
	return vmError(vm, err)
}
