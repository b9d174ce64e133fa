package core

import (
	"fmt"
	"sort"
	"strings"
)

// Change records the old and new value of a single attribute.
type Change struct {
	Old interface{} `json:"old" yaml:"old"`
	New interface{} `json:"new" yaml:"new"`
}

// Result is what Apply returns: the error if any, what changed and the
// comment shown to the user.
type Result struct {
	// Changed reports a change made, or in dry-run one that would be made.
	Changed bool

	// Failed marks the declaration as failed.
	Failed bool

	// Message is the human readable comment.
	Message string

	// Error is the underlying cause when Failed.
	Error error

	// Changes holds per-attribute old/new values.
	Changes map[string]Change

	// Data carries read-only payloads (exists boolean, listed prefs, ...).
	Data interface{}
}

// SuccessChange returns a successful result that changed something.
func SuccessChange(msg string) Result {
	return Result{
		Changed: true,
		Failed:  false,
		Message: msg,
	}
}

// SuccessNoChange returns a successful result with no change.
func SuccessNoChange(msg string) Result {
	return Result{
		Changed: false,
		Failed:  false,
		Message: msg,
	}
}

// Failure returns a failed result; the message gets ": <err>" appended.
func Failure(err error, msg string) Result {
	if err != nil && msg == "" {
		msg = err.Error()
	} else if err != nil {
		msg = msg + ": " + err.Error()
	}
	return Result{
		Changed: false,
		Failed:  true,
		Message: msg,
		Error:   err,
	}
}

// AddChange records an attribute change and marks the result changed.
func (r *Result) AddChange(key string, oldVal, newVal interface{}) {
	if r.Changes == nil {
		r.Changes = make(map[string]Change)
	}
	r.Changes[key] = Change{Old: oldVal, New: newVal}
	r.Changed = true
}

// Note appends a comment line to the message.
func (r *Result) Note(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	if r.Message == "" {
		r.Message = line
		return
	}
	r.Message += "\n" + line
}

// Merge folds a sub-result into r. Changes of the sub-result are stored
// under prefix when it is not empty.
func (r *Result) Merge(prefix string, sub Result) {
	if sub.Failed {
		r.Failed = true
		if r.Error == nil {
			r.Error = sub.Error
		}
	}
	if sub.Changed {
		r.Changed = true
	}
	for k, v := range sub.Changes {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if r.Changes == nil {
			r.Changes = make(map[string]Change)
		}
		r.Changes[key] = v
	}
	if strings.TrimSpace(sub.Message) != "" {
		r.Note("%s", sub.Message)
	}
}

// ChangeKeys returns the sorted keys of Changes.
func (r Result) ChangeKeys() []string {
	keys := make([]string, 0, len(r.Changes))
	for k := range r.Changes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Skip returns an unchanged result whose comment starts with "[SKIP]".
func Skip(format string, args ...interface{}) Result {
	return SuccessNoChange("[SKIP] " + fmt.Sprintf(format, args...))
}
