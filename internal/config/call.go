package config

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/melih-ucgun/qvmstate/internal/core"
)

// NewItem builds a single engine item from a function name and an option
// list, the same way a state file entry is built. A missing "qvm."
// prefix is added.
func NewItem(id, fn string, options []interface{}) (core.ConfigItem, error) {
	if !strings.HasPrefix(fn, FunctionPrefix) {
		fn = FunctionPrefix + fn
	}
	return buildItem(id, fn, options)
}

// ParseCallArgs converts command line arguments into an option list:
// `key=value` becomes a single-key map (the value is read as YAML, so
// `memory=400` is a number and `flags=[proxy]` a list), anything else is
// a positional argument.
func ParseCallArgs(args []string) []interface{} {
	out := make([]interface{}, 0, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" || strings.ContainsAny(k, " \t") {
			out = append(out, a)
			continue
		}
		out = append(out, map[string]interface{}{k: yamlValue(v)})
	}
	return out
}

func yamlValue(s string) interface{} {
	if s == "" {
		return ""
	}
	var v interface{}
	if err := yaml.Unmarshal([]byte(s), &v); err != nil || v == nil {
		return s
	}
	// tek satırlık düz metin olarak kalsın
	if _, isMap := v.(map[string]interface{}); isMap {
		return s
	}
	return v
}
