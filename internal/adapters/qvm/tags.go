package qvm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/melih-ucgun/qvmstate/internal/core"
)

// TagsResource adds and removes VM tags (qvm.tags).
type TagsResource struct {
	base
	Add  []string
	Del  []string
	list bool
}

type tagsConfig struct {
	Add     []string    `mapstructure:"add"`
	Present []string    `mapstructure:"present"`
	Remove  []string    `mapstructure:"remove"`
	Del     []string    `mapstructure:"del"`
	Absent  []string    `mapstructure:"absent"`
	List    interface{} `mapstructure:"list"`
}

func newTags(name string, params map[string]interface{}) (core.Resource, error) {
	params, err := actionArgs(params, "add", "present", "del", "remove", "absent")
	if err != nil {
		return nil, fmt.Errorf("qvm.tags: %w", err)
	}
	cfg := tagsConfig{}
	flags, err := decode("tags", params, &cfg)
	if err != nil {
		return nil, err
	}
	r := &TagsResource{
		base: newBase("tags", name, flags),
		Add:  uniq(append(cfg.Add, cfg.Present...)),
		Del:  uniq(append(append(cfg.Remove, cfg.Del...), cfg.Absent...)),
	}
	if dup := overlap(r.Add, r.Del); len(dup) > 0 {
		return nil, core.DeclarationError("qvm.tags: %s both added and removed", strings.Join(dup, ", "))
	}
	_, listed := params["list"]
	r.list = listed || flags.Has("list") || len(r.Add)+len(r.Del) == 0
	return r, nil
}

func uniq(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func (r *TagsResource) Check(ctx *core.SystemContext) (bool, error) {
	return core.CheckByDryRun(r, ctx)
}

func (r *TagsResource) Apply(ctx *core.SystemContext) (core.Result, error) {
	c := r.client(ctx)
	current, err := c.Tags(ctx, r.Name)
	if err != nil {
		return commandFailure("Failed to list tags", err)
	}
	if r.list {
		res := core.SuccessNoChange("")
		for _, t := range current {
			res.Note("%s", t)
		}
		res.Data = current
		return res, nil
	}

	have := make(map[string]bool, len(current))
	for _, t := range current {
		have[t] = true
	}
	var add, del []string
	for _, t := range r.Add {
		if !have[t] {
			add = append(add, t)
		}
	}
	for _, t := range r.Del {
		if have[t] {
			del = append(del, t)
		}
	}
	if len(add)+len(del) == 0 {
		return core.Skip("All requested tags already set: %s", strings.Join(current, ",")), nil
	}

	if !ctx.DryRun {
		if err := c.AddTags(ctx, r.Name, add...); err != nil {
			return commandFailure("Failed to add tags", err)
		}
		if err := c.DelTags(ctx, r.Name, del...); err != nil {
			return commandFailure("Failed to remove tags", err)
		}
	}

	for _, t := range add {
		have[t] = true
	}
	for _, t := range del {
		delete(have, t)
	}
	next := make([]string, 0, len(have))
	for t := range have {
		next = append(next, t)
	}
	sort.Strings(next)

	res := core.SuccessNoChange("")
	res.AddChange("tags", current, next)
	return res, nil
}
