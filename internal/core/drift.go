package core

import (
	"fmt"
	"strings"
	"sync"
)

// DriftStatus represents the sync state of a declaration
type DriftStatus string

const (
	StatusSynced  DriftStatus = "Synced"
	StatusDrifted DriftStatus = "Drifted"
	StatusError   DriftStatus = "Error"
	StatusSkipped DriftStatus = "Skipped"
)

// DriftResult holds the result of a single declaration check
type DriftResult struct {
	ID       string      `json:"id" yaml:"id"`
	Function string      `json:"function" yaml:"function"`
	Name     string      `json:"name" yaml:"name"`
	Status   DriftStatus `json:"status" yaml:"status"`
	Detail   string      `json:"detail,omitempty" yaml:"detail,omitempty"`
	Diff     string      `json:"diff,omitempty" yaml:"diff,omitempty"`
}

// MaxDriftWorkers bounds the number of concurrent checks.
var MaxDriftWorkers = 8

// CheckDrift performs a live, read-only audit of the given declarations.
// Every check runs against a dry-run context, so no mutating tool call is
// ever issued; checks run in parallel, bounded by MaxDriftWorkers.
// Results keep declaration order.
func CheckDrift(items []ConfigItem, createFn ResourceCreator, ctx *SystemContext) []DriftResult {
	results := make([]DriftResult, len(items))
	var wg sync.WaitGroup

	dry := ctx.WithDryRun()
	sem := make(chan struct{}, MaxDriftWorkers)
	e := &Engine{Context: dry}

	for i, item := range items {
		wg.Add(1)
		go func(i int, it ConfigItem) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[i] = checkOne(e, it, createFn)
		}(i, item)
	}

	wg.Wait()
	return results
}

func checkOne(e *Engine, it ConfigItem, createFn ResourceCreator) DriftResult {
	ctx := e.Context
	out := DriftResult{ID: it.ID, Function: it.Type, Name: e.itemName(it)}

	fail := func(stage string, err error) DriftResult {
		out.Status = StatusError
		out.Detail = fmt.Sprintf("%s error: %v", stage, err)
		return out
	}

	if it.When != "" {
		ok, err := EvaluateCondition(it.When, ctx)
		if err != nil {
			return fail("Condition", err)
		}
		if !ok {
			out.Status = StatusSkipped
			out.Detail = "Condition not met"
			return out
		}
	}

	params := it.resourceParams()
	if err := RenderParams(params, ctx); err != nil {
		return fail("Template", err)
	}

	res, err := createFn(it.Type, out.Name, params, ctx)
	if err != nil {
		return fail("Creation", err)
	}
	if err := res.Validate(ctx); err != nil {
		return fail("Validation", err)
	}

	// Check returns true when the declaration would change the system.
	drifted, err := res.Check(ctx)
	if err != nil {
		out.Status = StatusError
		out.Detail = err.Error()
		return out
	}
	if !drifted {
		out.Status = StatusSynced
		return out
	}

	out.Status = StatusDrifted
	if differ, ok := res.(Differ); ok {
		if d, err := differ.Diff(ctx); err == nil && d != "" {
			out.Diff = d
			out.Detail = fmt.Sprintf("Changes detected (%s...)", strings.Split(d, "\n")[0])
		}
	}
	if out.Detail == "" {
		out.Detail = "VM state does not match declaration"
	}
	return out
}
