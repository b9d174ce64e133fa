package core

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
)

// conditionEnv is the environment `when` expressions are evaluated against.
type conditionEnv struct {
	DryRun   bool              `expr:"DryRun"`
	Hostname string            `expr:"Hostname"`
	Release  string            `expr:"Release"`
	IsDom0   bool              `expr:"IsDom0"`
	Vars     map[string]string `expr:"Vars"`
}

// EvaluateCondition compiles and runs a boolean expression such as
// `IsDom0 && Vars.env == "prod"`.
func EvaluateCondition(condition string, ctx *SystemContext) (bool, error) {
	if strings.TrimSpace(condition) == "" {
		return true, nil
	}
	env := conditionEnv{
		DryRun:   ctx.DryRun,
		Hostname: ctx.Hostname,
		Release:  ctx.Release,
		IsDom0:   ctx.IsDom0,
		Vars:     ctx.Vars,
	}
	program, err := expr.Compile(condition, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, DeclarationError("invalid condition %q: %v", condition, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("condition %q: %w", condition, err)
	}
	return out.(bool), nil
}
