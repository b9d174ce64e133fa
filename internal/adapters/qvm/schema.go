package qvm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/xeipuuv/gojsonschema"

	"github.com/melih-ucgun/qvmstate/internal/core"
)

// JSON schema fragments shared by the operation schemas.
var (
	tString   = map[string]interface{}{"type": "string"}
	tNullStr  = map[string]interface{}{"type": []string{"string", "null"}}
	tInt      = map[string]interface{}{"type": []string{"integer", "string"}}
	tBool     = map[string]interface{}{"type": []string{"boolean", "string"}}
	tScalar   = map[string]interface{}{"type": []string{"string", "integer", "number", "boolean", "null"}}
	tStrList  = map[string]interface{}{"type": []string{"array", "string", "null"}, "items": tScalar}
	tAnyList  = map[string]interface{}{"type": []string{"array", "object", "string", "null"}}
	tLabel    = map[string]interface{}{"type": "string", "enum": labels}
	tVirtMode = map[string]interface{}{"type": "string", "enum": []string{"hvm", "pv", "pvh", "*default*"}}
)

var labels = []string{"red", "yellow", "green", "blue", "purple", "orange", "gray", "black"}

// opSchema describes the options and flags one operation accepts.
type opSchema struct {
	props    map[string]interface{}
	required []string
	flags    []string
}

func (s opSchema) document() map[string]interface{} {
	doc := map[string]interface{}{
		"type":                 "object",
		"properties":           s.props,
		"additionalProperties": false,
	}
	if len(s.required) > 0 {
		doc["required"] = s.required
	}
	return doc
}

// prefProps are the VM properties qvm.prefs (and present) understand.
var prefProps = map[string]interface{}{
	"autostart":            tBool,
	"debug":                tBool,
	"default-user":         tString,
	"default-dispvm":       tNullStr,
	"management-dispvm":    tNullStr,
	"guivm":                tNullStr,
	"audiovm":              tNullStr,
	"template-for-dispvms": tBool,
	"dispvm-allowed":       tBool,
	"virt-mode":            tVirtMode,
	"label":                tLabel,
	"last-backup":          tNullStr,
	"include-in-backups":   tBool,
	"installed-by-rpm":     tBool,
	"ip":                   tNullStr,
	"kernel":               tNullStr,
	"kernelopts":           tNullStr,
	"mac":                  tNullStr,
	"maxmem":               tInt,
	"memory":               tInt,
	"netvm":                tNullStr,
	"pci-strictreset":      tBool,
	"pcidevs":              tStrList,
	"provides-network":     tBool,
	"template":             tString,
	"qrexec-timeout":       tInt,
	"updateable":           tBool,
	"vcpus":                tInt,
}

func withProps(base map[string]interface{}, extra map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

var schemas = map[string]opSchema{
	"exists":  {flags: []string{"quiet"}},
	"missing": {flags: []string{"quiet"}},
	"present": {
		props: map[string]interface{}{
			"template":       tString,
			"label":          tLabel,
			"class":          tString,
			"mem":            tInt,
			"memory":         tInt,
			"maxmem":         tInt,
			"vcpus":          tInt,
			"netvm":          tNullStr,
			"pool":           tString,
			"path":           tString,
			"root-move-from": tString,
			"root-copy-from": tString,
		},
		flags: []string{"quiet", "net", "proxy", "hvm", "hvm-template", "standalone", "internal", "force-root"},
	},
	"absent": {flags: []string{"just-db", "quiet", "force-root"}},
	"running": {
		props: map[string]interface{}{"drive": tString, "hddisk": tString, "cdrom": tString, "custom-config": tString},
		flags: []string{"quiet", "debug", "install-windows-tools", "no-guid"},
	},
	"halted": {
		props: map[string]interface{}{"exclude": tStrList, "timeout": tInt},
		flags: []string{"quiet", "force", "wait", "all", "kill"},
	},
	"kill":    {flags: []string{"quiet"}},
	"pause":   {},
	"unpause": {},
	"prefs": {
		props: withProps(prefProps, map[string]interface{}{
			"action": map[string]interface{}{"type": "string", "enum": []string{"list", "get", "gry", "set"}},
			"get":    tStrList,
			"set":    tAnyList,
		}),
		flags: []string{"list"},
	},
	"service": {
		props: map[string]interface{}{"enable": tStrList, "disable": tStrList, "default": tStrList, "list": tAnyList},
		flags: []string{"list"},
	},
	"features": {
		props: map[string]interface{}{"enable": tStrList, "disable": tStrList, "default": tStrList, "set": tAnyList, "list": tAnyList},
		flags: []string{"list"},
	},
	"tags": {
		props: map[string]interface{}{
			"add": tStrList, "present": tStrList,
			"remove": tStrList, "del": tStrList, "absent": tStrList,
			"list": tAnyList,
		},
		flags: []string{"list"},
	},
	"devices": {
		props: map[string]interface{}{"attach": tAnyList, "detach": tAnyList, "list": tAnyList},
		flags: []string{"list"},
	},
	"firewall": {
		props: map[string]interface{}{"set": tStrList, "list": tAnyList},
		flags: []string{"list"},
	},
	"clone": {
		props:    map[string]interface{}{"source": tString, "pool": tString, "path": tString},
		required: []string{"source"},
		flags:    []string{"shutdown", "quiet", "force-root"},
	},
	"run": {
		props: map[string]interface{}{
			"cmd":          tStrList,
			"user":         tString,
			"localcmd":     tString,
			"color-output": tInt,
			"exclude":      tStrList,
			"timeout":      tInt,
			"unless":       tString,
		},
		required: []string{"cmd"},
		flags: []string{
			"quiet", "auto", "tray", "all", "pause", "unpause", "pass-io", "nogui", "no-gui",
			"filter-escape-chars", "no-filter-escape-chars", "no-color-output", "dispvm",
		},
	},
	"template_installed": {
		props: map[string]interface{}{"version": tString, "fromrepo": tString, "repo": tString, "pool": tString},
	},
}

func init() {
	// shutdown/start/kill share the schema of their state counterparts.
	schemas["shutdown"] = schemas["halted"]
	schemas["start"] = schemas["running"]
}

// decode validates params against the schema of op and decodes them into
// out. Positional args and the flags option are returned as one set.
func decode(op string, params map[string]interface{}, out interface{}) (core.Flags, error) {
	schema, ok := schemas[op]
	if !ok {
		return nil, core.DeclarationError("no schema for qvm.%s", op)
	}

	rest := make(map[string]interface{}, len(params))
	for k, v := range params {
		rest[core.NormalizeKey(k)] = v
	}
	delete(rest, "name")

	flags, err := core.ParseFlags(rest["flags"])
	if err != nil {
		return nil, fmt.Errorf("qvm.%s: %w", op, err)
	}
	delete(rest, "flags")
	if args, ok := rest["args"]; ok {
		names, err := core.StringList(args)
		if err != nil {
			return nil, fmt.Errorf("qvm.%s: %w", op, err)
		}
		for _, a := range names {
			flags.Add(a)
		}
		delete(rest, "args")
	}
	if err := flags.Only(schema.flags...); err != nil {
		return nil, fmt.Errorf("qvm.%s: %w", op, err)
	}

	if err := validateSchema(op, schema, rest); err != nil {
		return nil, err
	}

	if out != nil {
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           out,
			WeaklyTypedInput: true,
			TagName:          "mapstructure",
		})
		if err != nil {
			return nil, err
		}
		if err := decoder.Decode(rest); err != nil {
			return nil, core.DeclarationError("qvm.%s: %v", op, err)
		}
	}
	return flags, nil
}

func validateSchema(op string, schema opSchema, params map[string]interface{}) error {
	if schema.props == nil {
		schema.props = map[string]interface{}{}
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema.document()),
		gojsonschema.NewGoLoader(params),
	)
	if err != nil {
		return core.DeclarationError("qvm.%s: %v", op, err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	sort.Strings(msgs)
	return core.DeclarationError("qvm.%s: %s", op, strings.Join(msgs, "; "))
}
