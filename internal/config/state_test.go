package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih-ucgun/qvmstate/internal/core"
)

const testvm6 = `
salt-testvm6:
  qvm.present:
    - template: fedora-21
    - label: red
    - mem: 3000
    - flags:
      - proxy

salt-testvm6-prefs:
  qvm.prefs:
    - name: salt-testvm6
    - memory: 400
    - maxmem: 4000
    - require:
      - salt-testvm6
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestParseStateKeepsOrder(t *testing.T) {
	items, err := ParseState([]byte(testvm6))
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "salt-testvm6", items[0].ID)
	assert.Equal(t, "qvm.present", items[0].Type)
	assert.Equal(t, "salt-testvm6", items[0].Name)
	assert.Equal(t, "fedora-21", items[0].Params["template"])
	assert.Equal(t, []interface{}{"proxy"}, items[0].Params["flags"])

	assert.Equal(t, "qvm.prefs", items[1].Type)
	assert.Equal(t, "salt-testvm6", items[1].Name)
	assert.Equal(t, []string{"salt-testvm6"}, items[1].DependsOn)
	assert.NotContains(t, items[1].Params, "name")
	assert.NotContains(t, items[1].Params, "require")
	assert.Equal(t, 4000, items[1].Params["maxmem"])
}

func TestParseStateArgsAndWhen(t *testing.T) {
	items, err := ParseState([]byte(`
work-tags:
  qvm.tags:
    - name: work
    - add
    - managed
    - when: "Release == '4.2'"
    - require:
      - qvm: work-present
work-present:
  qvm.exists: []
`))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, []interface{}{"add", "managed"}, items[0].Args)
	assert.Equal(t, "Release == '4.2'", items[0].When)
	assert.Equal(t, []string{"work-present"}, items[0].DependsOn)
	assert.Empty(t, items[1].Params)
}

func TestParseStateMultipleFunctions(t *testing.T) {
	items, err := ParseState([]byte(`
work:
  qvm.present:
    - label: red
  qvm.start: null
`))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "work", items[0].ID)
	assert.Equal(t, "qvm.present", items[0].Type)
	assert.Equal(t, "work", items[1].ID)
	assert.Equal(t, "qvm.start", items[1].Type)
	assert.Empty(t, items[1].Params)
}

func TestParseStateErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"not a mapping", "- a\n- b\n"},
		{"unknown function", "work:\n  file.managed: []\n"},
		{"no function", "work: {}\n"},
		{"nested list", "work:\n  qvm.tags:\n    - [a, b]\n"},
		{"bad name", "work:\n  qvm.start:\n    - name: [a]\n"},
		{"bad require", "work:\n  qvm.start:\n    - require:\n      - 3\n"},
		{"include in document", "include:\n  - a.yaml\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseState([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, core.IsDeclarationError(err), err.Error())
		})
	}
}

func TestLoadStateFileIncludes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "vms"), 0755))
	writeFile(t, filepath.Join(dir, "vms"), "base.yaml", "sys-net:\n  qvm.exists: []\n")
	top := writeFile(t, dir, "top.yaml", "include:\n  - vms/base.yaml\n"+testvm6)

	items, err := LoadStateFile(top)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "sys-net", items[0].ID)
	assert.Equal(t, "salt-testvm6", items[1].ID)
}

func TestLoadStateFileIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "include:\n  - b.yaml\n")
	writeFile(t, dir, "b.yaml", "include:\n  - a.yaml\n")

	_, err := LoadStateFile(filepath.Join(dir, "a.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "include cycle")
}

func TestLoadStateFileDuplicateID(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "other.yaml", "work:\n  qvm.exists: []\n")
	top := writeFile(t, dir, "top.yaml", "include:\n  - other.yaml\nwork:\n  qvm.start: []\n")

	_, err := LoadStateFile(top)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate declaration ID 'work'")
}

func TestLoadStateFileMissing(t *testing.T) {
	_, err := LoadStateFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
