package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/melih-ucgun/qvmstate/internal/core"
)

// FunctionPrefix marks the keys of a declaration that name a function.
const FunctionPrefix = "qvm."

// IncludeKey is the reserved top-level key listing other state files.
const IncludeKey = "include"

// loader tracks include recursion for one LoadStateFile call.
type loader struct {
	stack []string
	seen  map[string]bool
	ids   map[string]string // declaration ID -> file it came from
	items []core.ConfigItem
}

// LoadStateFile reads a YAML state file (and its includes) into engine
// items. Declaration order of the files is kept: included files come
// first, in the order they are listed.
func LoadStateFile(path string) ([]core.ConfigItem, error) {
	l := &loader{seen: make(map[string]bool), ids: make(map[string]string)}
	if err := l.load(path); err != nil {
		return nil, err
	}
	return l.items, nil
}

// ParseState parses a single state document without include support.
func ParseState(data []byte) ([]core.ConfigItem, error) {
	l := &loader{seen: make(map[string]bool), ids: make(map[string]string)}
	if err := l.parse("<input>", data, false); err != nil {
		return nil, err
	}
	return l.items, nil
}

func (l *loader) load(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	for _, p := range l.stack {
		if p == abs {
			return core.DeclarationError("include cycle: %s -> %s", strings.Join(l.stack, " -> "), abs)
		}
	}
	// Aynı dosya iki kez include edilirse bir kez yüklenir.
	if l.seen[abs] {
		return nil
	}
	l.seen[abs] = true

	data, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("state dosyası okunamadı: %w", err)
	}

	l.stack = append(l.stack, abs)
	defer func() { l.stack = l.stack[:len(l.stack)-1] }()

	return l.parse(abs, data, true)
}

func (l *loader) parse(file string, data []byte, includes bool) error {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("yaml parse hatası (%s): %w", file, err)
	}
	if len(doc.Content) == 0 {
		return nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return core.DeclarationError("%s: top level must be a mapping of declaration IDs", file)
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		id := root.Content[i].Value
		body := root.Content[i+1]

		if id == IncludeKey {
			if !includes {
				return core.DeclarationError("%s: include is not supported here", file)
			}
			var list []string
			if err := body.Decode(&list); err != nil {
				return core.DeclarationError("%s: include must be a list of files", file)
			}
			for _, inc := range list {
				if !filepath.IsAbs(inc) {
					inc = filepath.Join(filepath.Dir(file), inc)
				}
				if err := l.load(inc); err != nil {
					return err
				}
			}
			continue
		}

		if prev, dup := l.ids[id]; dup {
			return core.DeclarationError("duplicate declaration ID '%s' (%s, %s)", id, prev, file)
		}
		l.ids[id] = file

		items, err := parseDeclaration(id, body)
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		l.items = append(l.items, items...)
	}
	return nil
}

// parseDeclaration turns one `ID: {qvm.op: [...]}` block into items, one
// per function, in the order the functions are written.
func parseDeclaration(id string, body *yaml.Node) ([]core.ConfigItem, error) {
	if body.Kind != yaml.MappingNode {
		return nil, core.DeclarationError("'%s' must map functions to option lists", id)
	}

	var items []core.ConfigItem
	for i := 0; i+1 < len(body.Content); i += 2 {
		fn := body.Content[i].Value
		if !strings.HasPrefix(fn, FunctionPrefix) {
			return nil, core.DeclarationError("'%s': unknown function '%s'", id, fn)
		}

		var raw interface{}
		if err := body.Content[i+1].Decode(&raw); err != nil {
			return nil, core.DeclarationError("'%s': %v", id, err)
		}
		item, err := buildItem(id, fn, raw)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil, core.DeclarationError("'%s' declares no function", id)
	}
	return items, nil
}

func buildItem(id, fn string, raw interface{}) (core.ConfigItem, error) {
	params, args, err := core.ParseOptionList(raw)
	if err != nil {
		return core.ConfigItem{}, fmt.Errorf("'%s' %s: %w", id, fn, err)
	}

	item := core.ConfigItem{ID: id, Type: fn, Name: id, Args: args}

	if v, ok := params["name"]; ok {
		name, ok := v.(string)
		if !ok || name == "" {
			return item, core.DeclarationError("'%s': name must be a non-empty string", id)
		}
		item.Name = name
		delete(params, "name")
	}
	if v, ok := params["when"]; ok {
		when, ok := v.(string)
		if !ok {
			return item, core.DeclarationError("'%s': when must be a string expression", id)
		}
		item.When = when
		delete(params, "when")
	}
	if v, ok := params["require"]; ok {
		deps, err := requisites(v)
		if err != nil {
			return item, core.DeclarationError("'%s': %v", id, err)
		}
		item.DependsOn = deps
		delete(params, "require")
	}

	item.Params = params
	return item, nil
}

// requisites accepts `require: ID`, `require: [ID, ...]` and the
// `require: [{qvm: ID}]` form.
func requisites(v interface{}) ([]string, error) {
	var out []string
	add := func(x interface{}) error {
		switch val := x.(type) {
		case string:
			out = append(out, val)
		case map[string]interface{}:
			for mod, target := range val {
				s, ok := target.(string)
				if !ok {
					return fmt.Errorf("require %s: target must be a declaration ID", mod)
				}
				out = append(out, s)
			}
		default:
			return fmt.Errorf("invalid require entry %v", x)
		}
		return nil
	}

	if list, ok := v.([]interface{}); ok {
		for _, x := range list {
			if err := add(x); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	if err := add(v); err != nil {
		return nil, err
	}
	return out, nil
}
