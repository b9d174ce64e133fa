package qvm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih-ucgun/qvmstate/internal/core"
)

func TestCompositeSkipsAfterFailure(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnExit("/usr/bin/qvm-check --quiet work", 1, "")
	mock.OnExit("/usr/bin/qvm-create", 1, "qvm-create: error: no such template")

	r := newResource(t, ctx, "vm", "work", map[string]interface{}{
		"prefs":   []interface{}{map[string]interface{}{"memory": 400}},
		"present": []interface{}{map[string]interface{}{"template": "nope"}, map[string]interface{}{"label": "red"}},
	})
	res, err := r.Apply(ctx)
	require.Error(t, err)
	assert.True(t, res.Failed)
	assert.Contains(t, res.Message, "====== ['present'] ======\nFailed to create VM")
	assert.Contains(t, res.Message, "\n\n====== ['prefs'] ======\n[SKIP] Skipping due to previous failure!")
	assert.Empty(t, mock.CallsMatching("qvm-prefs"))
}

func TestCompositePassMakesStepNonFatal(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnExit("/usr/bin/qvm-check --quiet work", 1, "")
	mock.OnExit("/usr/bin/qvm-create", 1, "boom")
	mock.OnExecute("/usr/bin/qvm-prefs work", "memory  -  400\n", nil)

	r := newResource(t, ctx, "vm", "work", map[string]interface{}{
		"actions": []interface{}{map[string]interface{}{"present": "pass"}, "prefs"},
		"present": []interface{}{map[string]interface{}{"label": "red"}},
		"prefs":   []interface{}{map[string]interface{}{"memory": 400}},
	})
	res, err := r.Apply(ctx)
	require.NoError(t, err)
	assert.False(t, res.Failed)
	assert.Contains(t, res.Message, "[SKIP] memory")
}

func TestCompositeRunsInFixedOrder(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnSequence("/usr/bin/qvm-check --quiet work", core.Exit(1, ""), core.Output(""))
	mock.OnExecute("/usr/bin/qvm-create", "", nil)
	mock.OnSequence("/usr/bin/qvm-ls --raw-data --fields NAME,STATE work", core.Output("work|Halted\n"), core.Output("work|Running\n"))
	mock.OnExecute("/usr/bin/qvm-start", "", nil)
	mock.OnExecute("/usr/bin/qvm-tags work list", "", nil)
	mock.OnExecute("/usr/bin/qvm-tags work add", "", nil)

	r := newResource(t, ctx, "vm", "work", map[string]interface{}{
		"start":   []interface{}{},
		"tags":    []interface{}{map[string]interface{}{"add": []interface{}{"managed"}}},
		"present": []interface{}{map[string]interface{}{"label": "green"}},
	})
	res, err := r.Apply(ctx)
	require.NoError(t, err)
	assert.True(t, res.Changed)

	create := mock.CallIndex("qvm-create")
	tags := mock.CallIndex("qvm-tags work add")
	start := mock.CallIndex("qvm-start")
	assert.Less(t, create, tags)
	assert.Less(t, tags, start)
	assert.Contains(t, res.Changes, "qvm.present.vm")
	assert.Contains(t, res.Changes, "qvm.tags.tags")
}

func TestCompositeUnknownKeyword(t *testing.T) {
	ctx, _ := newTestContext(false)
	_, err := core.CreateResource("qvm.vm", "work", map[string]interface{}{"bogus": []interface{}{}}, ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unknown action keyword: bogus")
}

func TestRunUnlessSkips(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnExecute("/usr/bin/qvm-run --pass-io --no-gui --no-autostart work 'test -f /tmp/x'", "", nil)

	r := newResource(t, ctx, "run", "work", map[string]interface{}{
		"cmd":    "touch /tmp/x",
		"unless": "test -f /tmp/x",
	})
	res, err := r.Apply(ctx)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Empty(t, mock.CallsMatching("touch"))
}

func TestRunUnlessNeverStartsHaltedVM(t *testing.T) {
	ctx, mock := newTestContext(true)
	mock.OnExit("/usr/bin/qvm-run --pass-io --no-gui --no-autostart work 'test -f /x'", 1, "Domain work is not running")

	r := newResource(t, ctx, "run", "work", map[string]interface{}{
		"cmd":    "touch /x",
		"unless": "test -f /x",
	})
	res, err := r.Apply(ctx)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Contains(t, res.Message, "Command would run")

	calls := mock.CallsMatching("qvm-run")
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0], "--no-autostart")
	assert.Empty(t, mock.CallsMatching("qvm-start"))
}

func TestRunExecutes(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnExecute("/usr/bin/qvm-run work 'echo hi'", "hi\n", nil)

	r := newResource(t, ctx, "run", "work", map[string]interface{}{"cmd": []interface{}{"echo", "hi"}})
	res, err := r.Apply(ctx)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "hi\n", res.Data)
}

func TestRunDryRun(t *testing.T) {
	ctx, mock := newTestContext(true)

	r := newResource(t, ctx, "run", "work", map[string]interface{}{"cmd": "echo hi"})
	res, err := r.Apply(ctx)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Empty(t, mock.Calls)
}

func TestRunAutoStartsFirst(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnSequence("/usr/bin/qvm-ls --raw-data --fields NAME,STATE work", core.Output("work|Halted\n"), core.Output("work|Running\n"))
	mock.OnExecute("/usr/bin/qvm-start", "", nil)
	mock.OnExecute("/usr/bin/qvm-run", "", nil)

	r := newResource(t, ctx, "run", "work", map[string]interface{}{
		"cmd":   "true",
		"flags": []interface{}{"auto"},
	})
	_, err := r.Apply(ctx)
	require.NoError(t, err)
	assert.Less(t, mock.CallIndex("qvm-start"), mock.CallIndex("qvm-run"))
}

func TestRunRequiresCmd(t *testing.T) {
	ctx, _ := newTestContext(false)
	_, err := core.CreateResource("qvm.run", "work", map[string]interface{}{"user": "root"}, ctx)
	require.Error(t, err)
	assert.True(t, core.IsDeclarationError(err))
}

const templateJSON = `{"installed":[{"name":"fedora-39-xfce","version":"4.2.0","release":"202401010000","reponame":"@commandline"}]}`

func TestTemplateAlreadyInstalled(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnExecute("/usr/bin/qvm-template info --installed --machine-readable-json fedora-39-xfce", templateJSON, nil)

	res, err := newResource(t, ctx, "template_installed", "fedora-39-xfce", nil).Apply(ctx)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, "Template fedora-39-xfce version 4.2.0 already installed", res.Message)
	assert.Empty(t, mock.CallsMatching("install --quiet"))
}

func TestTemplateInstall(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnSequence("/usr/bin/qvm-template info --installed --machine-readable-json fedora-39-xfce",
		core.Exit(1, ""), core.Output(templateJSON))
	mock.OnExecute("/usr/bin/qvm-template install", "", nil)

	r := newResource(t, ctx, "template_installed", "fedora-39-xfce", map[string]interface{}{"fromrepo": "qubes-templates-itl"})
	res, err := r.Apply(ctx)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "Template fedora-39-xfce version 4.2.0 installed", res.Message)
	assert.True(t, mock.AssertCalled("/usr/bin/qvm-template install --quiet --repoid=qubes-templates-itl fedora-39-xfce"))
}

func TestTemplateInstallDryRun(t *testing.T) {
	ctx, mock := newTestContext(true)
	mock.OnExit("/usr/bin/qvm-template info --installed --machine-readable-json debian-12", 1, "")

	res, err := newResource(t, ctx, "template_installed", "debian-12", nil).Apply(ctx)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "Template debian-12 would be installed", res.Message)
}

func TestTemplateVersionMismatch(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnExecute("/usr/bin/qvm-template info --installed --machine-readable-json fedora-39-xfce", templateJSON, nil)

	r := newResource(t, ctx, "template_installed", "fedora-39-xfce", map[string]interface{}{"version": "4.1.0"})
	res, err := r.Apply(ctx)
	require.Error(t, err)
	assert.True(t, res.Failed)

	r = newResource(t, ctx, "template_installed", "fedora-39-xfce", map[string]interface{}{"version": "4.2.0-202401010000"})
	res, err = r.Apply(ctx)
	require.NoError(t, err)
	assert.False(t, res.Failed)
}
