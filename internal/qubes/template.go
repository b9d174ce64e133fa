package qubes

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/melih-ucgun/qvmstate/internal/core"
)

// TemplateInfo describes an installed template.
type TemplateInfo struct {
	Name     string `json:"name" yaml:"name"`
	Version  string `json:"version" yaml:"version"`
	Release  string `json:"release,omitempty" yaml:"release,omitempty"`
	Epoch    string `json:"epoch,omitempty" yaml:"epoch,omitempty"`
	Reponame string `json:"reponame,omitempty" yaml:"reponame,omitempty"`
}

type templateInfoOutput struct {
	Installed []TemplateInfo `json:"installed"`
}

// TemplateInfo returns the installed template called name, or nil when it
// is not installed.
func (c *Client) TemplateInfo(ctx context.Context, name string) (*TemplateInfo, error) {
	out, err := c.query(ctx, "qvm-template", "info", "--installed", "--machine-readable-json", name)
	if err != nil {
		if _, ok := core.ExitCode(err); ok {
			return nil, nil
		}
		return nil, err
	}
	var parsed templateInfoOutput
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse qvm-template output: %w", err)
	}
	if len(parsed.Installed) == 0 {
		return nil, nil
	}
	return &parsed.Installed[0], nil
}

// InstallOptions are the qvm-template install parameters.
type InstallOptions struct {
	Version string
	Repo    string
	Pool    string
}

// InstallTemplate installs a template and returns the tool output.
func (c *Client) InstallTemplate(ctx context.Context, name string, opts InstallOptions) (string, error) {
	args := []string{"install", "--quiet"}
	if opts.Repo != "" {
		args = append(args, "--repoid="+opts.Repo)
	}
	if opts.Pool != "" {
		args = append(args, "--pool="+opts.Pool)
	}
	spec := name
	if opts.Version != "" {
		spec += "-" + opts.Version
	}
	out, err := c.mutate(ctx, "qvm-template", append(args, spec)...)
	if err != nil {
		return "", fmt.Errorf("failed to install template %s: %w", name, err)
	}
	return out, nil
}
