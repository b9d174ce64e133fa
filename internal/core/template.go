package core

import (
	"bytes"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// ExecuteTemplate, verilen içeriği (content) sağlanan veri (data) ile işler.
// data genellikle *core.SystemContext olacaktır.
func ExecuteTemplate(content string, data interface{}) (string, error) {
	if !bytes.Contains([]byte(content), []byte("{{")) {
		return content, nil
	}
	// missingkey=zero allows optional variables, which works with Sprig's 'default'.
	tmpl, err := template.New("qvmstate").Funcs(sprig.TxtFuncMap()).Option("missingkey=zero").Parse(content)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// RenderParams traverses the map and renders any string values as templates.
func RenderParams(params map[string]interface{}, ctx *SystemContext) error {
	for k, v := range params {
		rendered, err := renderValue(v, ctx)
		if err != nil {
			return DeclarationError("param '%s': %v", k, err)
		}
		params[k] = rendered
	}
	return nil
}

func renderValue(v interface{}, ctx *SystemContext) (interface{}, error) {
	switch val := v.(type) {
	case string:
		return ExecuteTemplate(val, ctx)
	case map[string]interface{}:
		if err := RenderParams(val, ctx); err != nil {
			return nil, err
		}
		return val, nil
	case []interface{}:
		for i, item := range val {
			r, err := renderValue(item, ctx)
			if err != nil {
				return nil, err
			}
			val[i] = r
		}
		return val, nil
	default:
		return v, nil
	}
}
