package core

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func parseYAML(t *testing.T, src string) interface{} {
	t.Helper()
	var v interface{}
	require.NoError(t, yaml.Unmarshal([]byte(src), &v))
	return v
}

func TestParseOptionList(t *testing.T) {
	v := parseYAML(t, `
- template: fedora-21
- include_in_backups: false
- options:
  - proxy
- require:
  - a
- require:
  - b
- quiet
`)
	params, args, err := ParseOptionList(v)
	require.NoError(t, err)
	assert.Equal(t, "fedora-21", params["template"])
	assert.Equal(t, false, params["include-in-backups"])
	assert.Equal(t, []interface{}{"proxy"}, params["flags"])
	assert.Equal(t, []interface{}{"a", "b"}, params["require"])
	assert.Equal(t, []interface{}{"quiet"}, args)
}

func TestParseOptionListEmpty(t *testing.T) {
	for _, src := range []string{"[]", "null", "~"} {
		params, args, err := ParseOptionList(parseYAML(t, src))
		require.NoError(t, err, src)
		assert.Empty(t, params)
		assert.Empty(t, args)
	}
}

func TestParseOptionListRejectsNestedList(t *testing.T) {
	_, _, err := ParseOptionList(parseYAML(t, "- [a, b]"))
	assert.True(t, IsDeclarationError(err))
}

func TestFlags(t *testing.T) {
	f, err := ParseFlags([]interface{}{"just_db", "force"})
	require.NoError(t, err)
	assert.True(t, f.Has("just-db"))
	assert.Equal(t, []string{"force", "just-db"}, f.List())
	assert.NoError(t, f.Only("force", "just-db", "wait"))

	err = f.Only("force")
	require.Error(t, err)
	assert.True(t, IsDeclarationError(err))

	f, err = ParseFlags("wait, force")
	require.NoError(t, err)
	assert.True(t, f.Any("kill", "wait"))

	_, err = ParseFlags(42)
	assert.True(t, IsDeclarationError(err))
}

func TestEvaluateCondition(t *testing.T) {
	ctx := NewSystemContext(true, nil, NewDefaultLogger(io.Discard, LevelError))
	ctx.Hostname = "dom0"
	ctx.Release = "4.2"
	ctx.Vars["env"] = "prod"

	cases := []struct {
		cond string
		want bool
	}{
		{"", true},
		{`Vars.env == "prod"`, true},
		{`Release == "4.1"`, false},
		{`DryRun && Hostname == "dom0"`, true},
	}
	for _, tc := range cases {
		got, err := EvaluateCondition(tc.cond, ctx)
		require.NoError(t, err, tc.cond)
		assert.Equal(t, tc.want, got, tc.cond)
	}

	_, err := EvaluateCondition("Vars.env +", ctx)
	assert.Error(t, err)
}
