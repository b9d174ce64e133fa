package qubes

import (
	"context"
	"sort"
	"strings"
)

// Tags returns the tags of vm, sorted.
func (c *Client) Tags(ctx context.Context, vm string) ([]string, error) {
	out, err := c.query(ctx, "qvm-tags", vm, "list")
	if err != nil {
		return nil, vmError(vm, err)
	}
	var tags []string
	for _, line := range strings.Split(out, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			tags = append(tags, t)
		}
	}
	sort.Strings(tags)
	return tags, nil
}

func (c *Client) AddTags(ctx context.Context, vm string, tags ...string) error {
	if len(tags) == 0 {
		return nil
	}
	_, err := c.mutate(ctx, "qvm-tags", append([]string{vm, "add"}, tags...)...)
	return vmError(vm, err)
}

func (c *Client) DelTags(ctx context.Context, vm string, tags ...string) error {
	if len(tags) == 0 {
		return nil
	}
	_, err := c.mutate(ctx, "qvm-tags", append([]string{vm, "del"}, tags...)...)
	return vmError(vm, err)
}
