package core

import (
	"fmt"
	"strings"
)

// keyAliases maps historical option names to their current spelling.
var keyAliases = map[string]string{
	"options": "flags",
}

// NormalizeKey folds underscores to dashes and resolves aliases, so
// include_in_backups and include-in-backups name the same option.
func NormalizeKey(k string) string {
	k = strings.ReplaceAll(strings.TrimSpace(k), "_", "-")
	if alias, ok := keyAliases[k]; ok {
		return alias
	}
	return k
}

// ParseOptionList turns the value under a function key into a parameter
// map and positional args. The value is usually a list of single-key maps
// mixed with scalars:
//
//   - template: fedora-21
//   - flags: [proxy]
//   - quiet
//
// A bare map is accepted too; nil and [] mean no options. Repeated list
// valued keys (e.g. two require entries) are concatenated; any other
// repeated key keeps the last value.
func ParseOptionList(v interface{}) (map[string]interface{}, []interface{}, error) {
	params := make(map[string]interface{})
	var args []interface{}

	switch val := v.(type) {
	case nil:
		return params, nil, nil
	case map[string]interface{}:
		for k, item := range val {
			mergeOption(params, NormalizeKey(k), item)
		}
		return params, nil, nil
	case []interface{}:
		for _, entry := range val {
			switch e := entry.(type) {
			case map[string]interface{}:
				for k, item := range e {
					mergeOption(params, NormalizeKey(k), item)
				}
			case nil:
			case []interface{}:
				return nil, nil, DeclarationError("nested list %v is not a valid option", e)
			default:
				args = append(args, e)
			}
		}
		return params, args, nil
	case string, int, bool, float64:
		return params, []interface{}{val}, nil
	default:
		return nil, nil, DeclarationError("options must be a list, got %T", v)
	}
}

func mergeOption(params map[string]interface{}, key string, value interface{}) {
	prev, exists := params[key]
	if !exists {
		params[key] = value
		return
	}
	pl, ok1 := prev.([]interface{})
	nl, ok2 := value.([]interface{})
	if ok1 && ok2 {
		merged := make([]interface{}, 0, len(pl)+len(nl))
		params[key] = append(append(merged, pl...), nl...)
		return
	}
	params[key] = value
}

// StringList converts a scalar or list value into strings.
func StringList(v interface{}) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		if val == "" {
			return nil, nil
		}
		return []string{val}, nil
	case []string:
		return val, nil
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			switch it := item.(type) {
			case string:
				out = append(out, it)
			case int, int64, float64, bool:
				out = append(out, fmt.Sprint(it))
			default:
				return nil, DeclarationError("expected a string, got %T", item)
			}
		}
		return out, nil
	default:
		return []string{fmt.Sprint(val)}, nil
	}
}
