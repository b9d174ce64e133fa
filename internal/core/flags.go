package core

import (
	"fmt"
	"sort"
	"strings"
)

// Flags is an unordered set of valueless modifier tokens scoped to one
// operation (e.g. "force", "wait", "quiet").
type Flags map[string]struct{}

// NewFlags builds a set from the given tokens.
func NewFlags(tokens ...string) Flags {
	f := make(Flags, len(tokens))
	for _, t := range tokens {
		f.Add(t)
	}
	return f
}

// ParseFlags accepts a YAML value (list or single string) and returns the set.
func ParseFlags(v interface{}) (Flags, error) {
	switch val := v.(type) {
	case nil:
		return Flags{}, nil
	case Flags:
		return val, nil
	case string:
		return NewFlags(strings.Fields(strings.ReplaceAll(val, ",", " "))...), nil
	case []string:
		return NewFlags(val...), nil
	case []interface{}:
		f := make(Flags, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, DeclarationError("flag %v is not a string", item)
			}
			f.Add(s)
		}
		return f, nil
	default:
		return nil, DeclarationError("flags must be a list, got %T", v)
	}
}

// Add inserts a token, normalising underscores to dashes.
func (f Flags) Add(token string) {
	token = strings.TrimSpace(strings.ReplaceAll(token, "_", "-"))
	if token != "" {
		f[token] = struct{}{}
	}
}

// Has reports whether the token is present.
func (f Flags) Has(token string) bool {
	_, ok := f[token]
	return ok
}

// Any reports whether one of the tokens is present.
func (f Flags) Any(tokens ...string) bool {
	for _, t := range tokens {
		if f.Has(t) {
			return true
		}
	}
	return false
}

// List returns the tokens sorted.
func (f Flags) List() []string {
	out := make([]string, 0, len(f))
	for k := range f {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Clone copies the set.
func (f Flags) Clone() Flags {
	out := make(Flags, len(f))
	for k := range f {
		out[k] = struct{}{}
	}
	return out
}

// Only fails when the set contains tokens outside allowed.
func (f Flags) Only(allowed ...string) error {
	ok := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		ok[a] = true
	}
	var unknown []string
	for _, t := range f.List() {
		if !ok[t] {
			unknown = append(unknown, t)
		}
	}
	if len(unknown) > 0 {
		return DeclarationError("unknown flag(s) %s; allowed: %s", strings.Join(unknown, ", "), strings.Join(allowed, ", "))
	}
	return nil
}

func (f Flags) String() string {
	return fmt.Sprintf("[%s]", strings.Join(f.List(), ", "))
}
