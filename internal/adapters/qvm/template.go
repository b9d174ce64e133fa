package qvm

import (
	"fmt"

	"github.com/melih-ucgun/qvmstate/internal/core"
	"github.com/melih-ucgun/qvmstate/internal/qubes"
)

// TemplateInstalledResource ensures a template is installed through
// qvm-template (qvm.template_installed). Installed templates are never
// upgraded or downgraded; a version mismatch is reported.
type TemplateInstalledResource struct {
	base
	Version  string `mapstructure:"version"`
	FromRepo string `mapstructure:"fromrepo"`
	Repo     string `mapstructure:"repo"`
	Pool     string `mapstructure:"pool"`
}

func newTemplateInstalled(name string, params map[string]interface{}) (core.Resource, error) {
	r := &TemplateInstalledResource{}
	flags, err := decode("template_installed", params, r)
	if err != nil {
		return nil, err
	}
	r.base = newBase("template_installed", name, flags)
	if r.FromRepo != "" && r.Repo != "" && r.FromRepo != r.Repo {
		return nil, core.DeclarationError("qvm.template_installed: fromrepo and repo disagree")
	}
	return r, nil
}

func (r *TemplateInstalledResource) repo() string {
	if r.FromRepo != "" {
		return r.FromRepo
	}
	return r.Repo
}

// matchesVersion accepts VERSION, VERSION-RELEASE and
// EPOCH:VERSION-RELEASE.
func matchesVersion(info *qubes.TemplateInfo, want string) bool {
	if want == "" {
		return true
	}
	full := info.Version
	if info.Release != "" {
		full += "-" + info.Release
	}
	candidates := []string{info.Version, full}
	if info.Epoch != "" {
		candidates = append(candidates, info.Epoch+":"+full)
	}
	for _, c := range candidates {
		if c == want {
			return true
		}
	}
	return false
}

func (r *TemplateInstalledResource) Check(ctx *core.SystemContext) (bool, error) {
	return core.CheckByDryRun(r, ctx)
}

func (r *TemplateInstalledResource) Apply(ctx *core.SystemContext) (core.Result, error) {
	c := r.client(ctx)
	info, err := c.TemplateInfo(ctx, r.Name)
	if err != nil {
		return commandFailure("Failed to query template", err)
	}
	if info != nil {
		if !matchesVersion(info, r.Version) {
			err := fmt.Errorf("template %s version %s installed, %s requested", r.Name, info.Version, r.Version)
			return core.Failure(err, "Template version mismatch"), err
		}
		res := core.SuccessNoChange(fmt.Sprintf("Template %s version %s already installed", r.Name, info.Version))
		res.Data = info
		return res, nil
	}

	if ctx.DryRun {
		res := core.SuccessChange(fmt.Sprintf("Template %s would be installed", r.Name))
		res.AddChange("new", nil, r.Name)
		return res, nil
	}

	ctx.Logger.Info("Installing template", "template", r.Name, "version", r.Version, "repo", r.repo())
	if _, err := c.InstallTemplate(ctx, r.Name, qubes.InstallOptions{Version: r.Version, Repo: r.repo(), Pool: r.Pool}); err != nil {
		return commandFailure("Template install failed", err)
	}
	info, err = c.TemplateInfo(ctx, r.Name)
	if err != nil {
		return commandFailure("Failed to query template", err)
	}
	if info == nil {
		err := fmt.Errorf("template %s missing after install", r.Name)
		return core.Failure(err, fmt.Sprintf("Template %s install completed, but the template is missing", r.Name)), err
	}
	res := core.SuccessChange(fmt.Sprintf("Template %s version %s installed", r.Name, info.Version))
	res.AddChange("new", nil, r.Name)
	res.Data = info
	return res, nil
}
