package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/melih-ucgun/qvmstate/internal/types"
)

// RequisiteFailedComment is the comment of items skipped because a
// requisite failed.
const RequisiteFailedComment = "One or more requisite failed"

// StateUpdater interface allows Engine to be independent of the state package.
type StateUpdater interface {
	UpdateResource(function, id, vm, status string) error
	AddTransaction(tx types.Transaction) error
}

// Observer receives per-item and per-run reports (metrics).
type Observer interface {
	ObserveItem(item ItemReport)
	ObserveRun(report *Report)
}

// ConfigItem is one declaration the engine will process: a function
// applied to a VM.
type ConfigItem struct {
	ID        string                 `yaml:"id"`
	Type      string                 `yaml:"function"`
	Name      string                 `yaml:"name"`
	Params    map[string]interface{} `yaml:"params"`
	Args      []interface{}          `yaml:"args,omitempty"`
	DependsOn []string               `yaml:"require,omitempty"`
	When      string                 `yaml:"when,omitempty"`
}

// Key identifies the declaration within a run.
func (c ConfigItem) Key() string {
	return c.Type + ":" + c.ID
}

// resourceParams returns a copy of Params with positional args folded in
// under "args".
func (c ConfigItem) resourceParams() map[string]interface{} {
	params := deepCopyMap(c.Params)
	if len(c.Args) > 0 {
		args := make([]interface{}, len(c.Args))
		copy(args, c.Args)
		params["args"] = args
	}
	return params
}

// ItemReport is the outcome of one declaration.
type ItemReport struct {
	ID       string            `json:"id" yaml:"id"`
	Function string            `json:"function" yaml:"function"`
	Name     string            `json:"name" yaml:"name"`
	Result   bool              `json:"result" yaml:"result"`
	Changed  bool              `json:"changed" yaml:"changed"`
	Comment  string            `json:"comment" yaml:"comment"`
	Changes  map[string]Change `json:"changes,omitempty" yaml:"changes,omitempty"`
	Data     interface{}       `json:"data,omitempty" yaml:"data,omitempty"`
	Diff     string            `json:"diff,omitempty" yaml:"diff,omitempty"`
	Skipped  bool              `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Duration float64           `json:"duration_ms" yaml:"duration_ms"`
}

// Report is the outcome of one run.
type Report struct {
	TxID     string       `json:"tx_id" yaml:"tx_id"`
	DryRun   bool         `json:"test" yaml:"test"`
	Started  time.Time    `json:"started" yaml:"started"`
	Duration float64      `json:"duration_ms" yaml:"duration_ms"`
	Items    []ItemReport `json:"items" yaml:"items"`
}

// Summary holds the counters printed after a run.
type Summary struct {
	Total     int `json:"total" yaml:"total"`
	Succeeded int `json:"succeeded" yaml:"succeeded"`
	Failed    int `json:"failed" yaml:"failed"`
	Changed   int `json:"changed" yaml:"changed"`
	Skipped   int `json:"skipped" yaml:"skipped"`
}

func (r *Report) Summary() Summary {
	s := Summary{Total: len(r.Items)}
	for _, it := range r.Items {
		if it.Result {
			s.Succeeded++
		} else {
			s.Failed++
		}
		if it.Changed {
			s.Changed++
		}
		if it.Skipped {
			s.Skipped++
		}
	}
	return s
}

// Engine is the main structure managing resources.
type Engine struct {
	Context      *SystemContext
	StateUpdater StateUpdater // Optional: State manager
	Observer     Observer     // Optional: metrics
}

// NewEngine creates a new engine instance.
func NewEngine(ctx *SystemContext, updater StateUpdater) *Engine {
	return &Engine{
		Context:      ctx,
		StateUpdater: updater,
	}
}

// ResourceCreator fonksiyon tipi
type ResourceCreator func(resType, name string, params map[string]interface{}, ctx *SystemContext) (Resource, error)

// Order returns items in execution order: file order, or requisite order
// when any item declares `require`.
func Order(items []ConfigItem) ([]ConfigItem, error) {
	hasDeps := false
	for _, item := range items {
		if len(item.DependsOn) > 0 {
			hasDeps = true
			break
		}
	}

	graph := NewGraph()
	if err := graph.BuildGraph(items); err != nil {
		return nil, fmt.Errorf("failed to build requisite graph: %w", err)
	}
	if !hasDeps {
		return items, nil
	}

	layers, err := graph.TopologicalSort()
	if err != nil {
		return nil, fmt.Errorf("requisite error: %w", err)
	}
	return Flatten(layers), nil
}

// Run processes the given declarations one at a time. A failing item does
// not stop independent items; items whose requisite failed are skipped.
// The returned error only summarises failures; the report is always set
// once ordering succeeded.
func (e *Engine) Run(items []ConfigItem, createFn ResourceCreator) (*Report, error) {
	ordered, err := Order(items)
	if err != nil {
		return nil, err
	}

	transaction := types.Transaction{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Status:    types.TxSuccess,
		Changes:   []types.TransactionChange{},
	}
	if e.Context.DryRun {
		transaction.Status = types.TxTest
	}
	e.Context.TxID = transaction.ID

	report := &Report{
		TxID:    transaction.ID,
		DryRun:  e.Context.DryRun,
		Started: transaction.Timestamp,
	}

	e.Context.Logger.Debug("Executing declarations", "count", len(ordered), "tx", transaction.ID)

	failed := make(map[string]bool)
	errCount := 0

	for _, item := range ordered {
		var rep ItemReport
		if requisiteFailed(item, failed) {
			rep = skippedReport(item, e.itemName(item))
			e.Context.Logger.Warn(fmt.Sprintf("[%s] %s: %s", item.Type, item.ID, RequisiteFailedComment))
		} else {
			var change *types.TransactionChange
			rep, change = e.runItem(item, createFn)
			if change != nil {
				transaction.Changes = append(transaction.Changes, *change)
			}
		}

		if !rep.Result {
			failed[item.ID] = true
			errCount++
		}
		report.Items = append(report.Items, rep)

		if e.Observer != nil {
			e.Observer.ObserveItem(rep)
		}

		if !e.Context.DryRun && e.StateUpdater != nil && !rep.Skipped {
			status := "success"
			if !rep.Result {
				status = "failed"
			}
			if saveErr := e.StateUpdater.UpdateResource(item.Type, item.ID, rep.Name, status); saveErr != nil {
				e.Context.Logger.Warn(fmt.Sprintf("Failed to save state for %s: %v", item.ID, saveErr))
			}
		}
	}

	report.Duration = msSince(report.Started)
	if errCount > 0 && !e.Context.DryRun {
		transaction.Status = types.TxFailed
	}

	if e.StateUpdater != nil {
		if err := e.StateUpdater.AddTransaction(transaction); err != nil {
			e.Context.Logger.Warn(fmt.Sprintf("Failed to save history: %v", err))
		}
	}
	if e.Observer != nil {
		e.Observer.ObserveRun(report)
	}

	if errCount > 0 {
		return report, fmt.Errorf("encountered %d errors during execution", errCount)
	}
	return report, nil
}

// runItem evaluates, renders, creates, validates and applies one item.
func (e *Engine) runItem(item ConfigItem, createFn ResourceCreator) (ItemReport, *types.TransactionChange) {
	start := time.Now()
	name := e.itemName(item)
	rep := ItemReport{ID: item.ID, Function: item.Type, Name: name}

	finish := func(res Result) (ItemReport, *types.TransactionChange) {
		rep.Result = !res.Failed
		rep.Changed = res.Changed
		rep.Comment = res.Message
		rep.Changes = res.Changes
		rep.Data = res.Data
		rep.Duration = msSince(start)
		return rep, nil
	}

	// 0. Check Condition (When)
	if item.When != "" {
		shouldRun, err := EvaluateCondition(item.When, e.Context)
		if err != nil {
			e.Context.Logger.Error(fmt.Sprintf("[%s] Condition Error: %v", item.ID, err))
			return finish(Failure(err, "Condition error"))
		}
		if !shouldRun {
			e.Context.Logger.Debug(fmt.Sprintf("[%s] Skipped (Condition not met: %s)", item.ID, item.When))
			rep.Skipped = true
			return finish(Skip("Condition not met: %s", item.When))
		}
	}

	// 0.5 Render Templates in Params
	params := item.resourceParams()
	if err := RenderParams(params, e.Context); err != nil {
		e.Context.Logger.Error(fmt.Sprintf("[%s] Template Error: %v", item.ID, err))
		return finish(Failure(err, "Template error"))
	}

	// 1. Create resource (schema validation + typed decode)
	res, err := createFn(item.Type, name, params, e.Context)
	if err != nil {
		e.Context.Logger.Error(fmt.Sprintf("[%s] Invalid declaration: %v", item.ID, err))
		return finish(Failure(err, "Invalid declaration"))
	}

	// 1.5 Validate resource configuration
	if err := res.Validate(e.Context); err != nil {
		e.Context.Logger.Error(fmt.Sprintf("[%s] Validation Failed: %v", item.ID, err))
		return finish(Failure(err, "Validation failed"))
	}

	// 2. Capture Diff (if supported) BEFORE Apply
	if differ, ok := res.(Differ); ok {
		if d, err := differ.Diff(e.Context); err == nil {
			rep.Diff = d
		}
	}

	// 3. Apply resource
	result, err := res.Apply(e.Context)
	if err != nil && !result.Failed {
		result = Failure(err, result.Message)
	}
	rep, _ = finish(result)

	switch {
	case result.Failed:
		e.Context.Logger.Error(fmt.Sprintf("[%s] %s: %s", item.Type, name, result.Message))
	case result.Changed:
		e.Context.Logger.Info(fmt.Sprintf("[%s] %s: %s", item.Type, name, result.Message))
	default:
		msg := "OK"
		if result.Message != "" {
			msg = result.Message
		}
		e.Context.Logger.Debug(fmt.Sprintf("[%s] %s: %s", item.Type, name, msg))
	}

	if !result.Changed || result.Failed {
		return rep, nil
	}

	// Record change for History
	change := &types.TransactionChange{
		ID:     item.ID,
		Type:   item.Type,
		Name:   name,
		Action: "applied",
		Diff:   rep.Diff,
	}
	if e.Context.DryRun {
		change.Action = "would-apply"
	}
	for _, k := range result.ChangeKeys() {
		c := result.Changes[k]
		change.Changes = append(change.Changes, types.AttributeChange{
			Key: k,
			Old: fmt.Sprint(valueOrEmpty(c.Old)),
			New: fmt.Sprint(valueOrEmpty(c.New)),
		})
	}
	return rep, change
}

// itemName resolves the VM name: the `name` param wins over the ID.
func (e *Engine) itemName(item ConfigItem) string {
	if item.Name != "" {
		return item.Name
	}
	if n, ok := item.Params["name"].(string); ok && n != "" {
		return n
	}
	return item.ID
}

func requisiteFailed(item ConfigItem, failed map[string]bool) bool {
	for _, dep := range item.DependsOn {
		if failed[dep] {
			return true
		}
	}
	return false
}

func skippedReport(item ConfigItem, name string) ItemReport {
	return ItemReport{
		ID:       item.ID,
		Function: item.Type,
		Name:     name,
		Result:   false,
		Comment:  RequisiteFailedComment,
		Skipped:  true,
	}
}

func valueOrEmpty(v interface{}) interface{} {
	if v == nil {
		return ""
	}
	return v
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}

// deepCopyMap creates a deep copy of a map so rendering never touches the
// caller's declarations.
func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(m))
	for k, v := range m {
		result[k] = deepCopyValue(v)
	}
	return result
}

func deepCopyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return deepCopyMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}
