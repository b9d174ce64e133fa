package qvm

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih-ucgun/qvmstate/internal/core"
)

func newTestContext(dryRun bool) (*core.SystemContext, *core.MockTransport) {
	mock := core.NewMockTransport()
	ctx := core.NewSystemContext(dryRun, mock, core.NewDefaultLogger(io.Discard, core.LevelError))
	return ctx, mock
}

func newResource(t *testing.T, ctx *core.SystemContext, op, name string, params map[string]interface{}) core.Resource {
	t.Helper()
	if params == nil {
		params = map[string]interface{}{}
	}
	res, err := core.CreateResource(Prefix+op, name, params, ctx)
	require.NoError(t, err)
	require.NoError(t, res.Validate(ctx))
	return res
}

func TestRegisteredFunctions(t *testing.T) {
	for op := range factories {
		assert.True(t, core.IsRegistered(Prefix+op), op)
	}
	assert.True(t, core.IsRegistered("qvm.vm"))
}

func TestSchemaRejectsUnknownOption(t *testing.T) {
	ctx, _ := newTestContext(false)
	_, err := core.CreateResource("qvm.present", "work", map[string]interface{}{"colour": "red"}, ctx)
	require.Error(t, err)
	assert.True(t, core.IsDeclarationError(err))
	assert.Contains(t, err.Error(), "colour")

	_, err = core.CreateResource("qvm.present", "work", map[string]interface{}{"label": "pink"}, ctx)
	require.Error(t, err)
	assert.True(t, core.IsDeclarationError(err))
}

func TestSchemaRejectsUnknownFlag(t *testing.T) {
	ctx, _ := newTestContext(false)
	_, err := core.CreateResource("qvm.halted", "work", map[string]interface{}{"flags": []interface{}{"gently"}}, ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gently")
}

func TestCloneRequiresSource(t *testing.T) {
	ctx, _ := newTestContext(false)
	_, err := core.CreateResource("qvm.clone", "copy", map[string]interface{}{}, ctx)
	require.Error(t, err)
	assert.True(t, core.IsDeclarationError(err))
}

func TestInvalidVMName(t *testing.T) {
	ctx, _ := newTestContext(false)
	res, err := core.CreateResource("qvm.exists", "1bad name", nil, ctx)
	require.NoError(t, err)
	assert.Error(t, res.Validate(ctx))
}

func TestExistsAndMissing(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnExecute("/usr/bin/qvm-check --quiet work", "", nil)

	exists := newResource(t, ctx, "exists", "work", nil)
	res, err := exists.Apply(ctx)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, true, res.Data)
	assert.Equal(t, "VM 'work' is present", res.Message)

	missing := newResource(t, ctx, "missing", "work", nil)
	res, err = missing.Apply(ctx)
	require.NoError(t, err)
	assert.False(t, res.Failed)
	assert.Equal(t, false, res.Data)
	assert.Contains(t, res.Message, "expected to be missing")

	drift, err := missing.Check(ctx)
	require.NoError(t, err)
	assert.True(t, drift)
}

func TestPresentCreatesVM(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnSequence("/usr/bin/qvm-check --quiet salt-testvm6", core.Exit(1, ""), core.Output(""))
	mock.OnExecute("/usr/bin/qvm-create", "", nil)

	r := newResource(t, ctx, "present", "salt-testvm6", map[string]interface{}{
		"template": "fedora-21",
		"label":    "red",
		"mem":      3000,
		"flags":    []interface{}{"proxy"},
	})
	res, err := r.Apply(ctx)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, []string{
		"/usr/bin/qvm-create --class AppVM --template fedora-21 --label red --property memory=3000 --property provides_network=True salt-testvm6",
	}, mock.CallsMatching("qvm-create"))
	assert.Equal(t, core.Change{Old: nil, New: "salt-testvm6"}, res.Changes["vm"])
}

func TestPresentDryRunDoesNotMutate(t *testing.T) {
	ctx, mock := newTestContext(true)
	mock.OnExit("/usr/bin/qvm-check --quiet salt-testvm6", 1, "")

	r := newResource(t, ctx, "present", "salt-testvm6", map[string]interface{}{"template": "fedora-21", "label": "red"})
	res, err := r.Apply(ctx)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "VM 'salt-testvm6' is set to be created", res.Message)
	assert.Empty(t, mock.CallsMatching("qvm-create"))
}

func TestPresentUpdatesOnlyDifferingProperties(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnExecute("/usr/bin/qvm-check --quiet work", "", nil)
	mock.OnExecute("/usr/bin/qvm-prefs work", "label  -  red\nmemory  -  400\nmaxmem  D  4000\ntemplate  -  fedora-39\n", nil)
	mock.OnExecute("/usr/bin/qvm-prefs work maxmem", "", nil)

	r := newResource(t, ctx, "present", "work", map[string]interface{}{
		"label":  "red",
		"memory": "400",
		"maxmem": 8000,
	})
	res, err := r.Apply(ctx)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, []string{"/usr/bin/qvm-prefs work maxmem 8000"}, mock.CallsMatching("qvm-prefs work maxmem"))
	assert.Empty(t, mock.CallsMatching("qvm-create"))
	assert.Equal(t, []string{"maxmem"}, res.ChangeKeys())
}

func TestPresentExistingUnchanged(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnExecute("/usr/bin/qvm-check --quiet work", "", nil)

	r := newResource(t, ctx, "present", "work", nil)
	res, err := r.Apply(ctx)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, "[SKIP] A VM with the name 'work' already exists.", res.Message)
}

func TestPresentRootMoveAndCopyExclusive(t *testing.T) {
	ctx, _ := newTestContext(false)
	_, err := core.CreateResource("qvm.present", "work", map[string]interface{}{
		"root-move-from": "/a.img",
		"root_copy_from": "/b.img",
	}, ctx)
	require.Error(t, err)
	assert.True(t, core.IsDeclarationError(err))
}

func TestAbsentMissingVM(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnExit("/usr/bin/qvm-check --quiet gone", 1, "")

	res, err := newResource(t, ctx, "absent", "gone", nil).Apply(ctx)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, "[SKIP] The VM with the name 'gone' is already missing.", res.Message)
}

func TestAbsentRemovesHaltedVM(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnSequence("/usr/bin/qvm-check --quiet old", core.Output(""), core.Exit(1, ""))
	mock.OnExecute("/usr/bin/qvm-ls --raw-data --fields NAME,STATE old", "old|Halted\n", nil)
	mock.OnExecute("/usr/bin/qvm-remove", "", nil)

	res, err := newResource(t, ctx, "absent", "old", nil).Apply(ctx)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, []string{"/usr/bin/qvm-remove --force old"}, mock.CallsMatching("qvm-remove"))
	assert.Empty(t, mock.CallsMatching("qvm-shutdown"))
}

func TestShutdownHaltedVMIsNoop(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnExecute("/usr/bin/qvm-ls --raw-data --fields NAME,STATE work", "work|Halted\n", nil)

	r := newResource(t, ctx, "shutdown", "work", map[string]interface{}{"flags": []interface{}{"force", "wait"}})
	res, err := r.Apply(ctx)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, "[SKIP] 'work' is already halted.", res.Message)
	assert.Empty(t, mock.CallsMatching("qvm-shutdown"))
	assert.Empty(t, mock.CallsMatching("qvm-kill"))
}

func TestShutdownRunningVM(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnSequence("/usr/bin/qvm-ls --raw-data --fields NAME,STATE work", core.Output("work|Running\n"), core.Output("work|Halted\n"))
	mock.OnExecute("/usr/bin/qvm-shutdown", "", nil)

	res, err := newResource(t, ctx, "shutdown", "work", nil).Apply(ctx)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, []string{"/usr/bin/qvm-shutdown --wait work"}, mock.CallsMatching("qvm-shutdown"))
	assert.Equal(t, core.Change{Old: "Running", New: "Halted"}, res.Changes["state"])
}

func TestShutdownTransientNeedsForce(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnExecute("/usr/bin/qvm-ls --raw-data --fields NAME,STATE work", "work|Transient\n", nil)

	res, err := newResource(t, ctx, "halted", "work", nil).Apply(ctx)
	require.Error(t, err)
	assert.True(t, res.Failed)
	assert.Contains(t, res.Message, "'kill' or 'force' mode not enabled!")
	assert.Empty(t, mock.CallsMatching("qvm-kill"))
}

func TestStartAlreadyRunning(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnExecute("/usr/bin/qvm-ls --raw-data --fields NAME,STATE work", "work|Running\n", nil)

	res, err := newResource(t, ctx, "start", "work", nil).Apply(ctx)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Empty(t, mock.CallsMatching("qvm-start"))
}

func TestStartHaltedVM(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnSequence("/usr/bin/qvm-ls --raw-data --fields NAME,STATE work", core.Output("work|Halted\n"), core.Output("work|Running\n"))
	mock.OnExecute("/usr/bin/qvm-start", "", nil)

	res, err := newResource(t, ctx, "running", "work", nil).Apply(ctx)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, []string{"/usr/bin/qvm-start --quiet work"}, mock.CallsMatching("qvm-start"))
}

func TestPauseRequiresRunning(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnExecute("/usr/bin/qvm-ls --raw-data --fields NAME,STATE work", "work|Halted\n", nil)

	res, _ := newResource(t, ctx, "pause", "work", nil).Apply(ctx)
	assert.False(t, res.Changed)
	assert.Empty(t, mock.CallsMatching("qvm-pause"))
}

func TestCloneShutsDownSourceFirst(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnSequence("/usr/bin/qvm-check --quiet copy", core.Exit(1, ""), core.Output(""))
	mock.OnExecute("/usr/bin/qvm-check --quiet base", "", nil)
	mock.OnSequence("/usr/bin/qvm-ls --raw-data --fields NAME,STATE base",
		core.Output("base|Running\n"), core.Output("base|Running\n"), core.Output("base|Halted\n"))
	mock.OnExecute("/usr/bin/qvm-shutdown", "", nil)
	mock.OnExecute("/usr/bin/qvm-clone", "", nil)

	r := newResource(t, ctx, "clone", "copy", map[string]interface{}{
		"source": "base",
		"flags":  []interface{}{"shutdown"},
	})
	res, err := r.Apply(ctx)
	require.NoError(t, err)
	assert.True(t, res.Changed)

	shutdown := mock.CallIndex("qvm-shutdown")
	clone := mock.CallIndex("/usr/bin/qvm-clone base copy")
	require.GreaterOrEqual(t, shutdown, 0)
	require.GreaterOrEqual(t, clone, 0)
	assert.Less(t, shutdown, clone)
}

func TestCloneRunningSourceWithoutShutdownFails(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnExit("/usr/bin/qvm-check --quiet copy", 1, "")
	mock.OnExecute("/usr/bin/qvm-check --quiet base", "", nil)
	mock.OnExecute("/usr/bin/qvm-ls --raw-data --fields NAME,STATE base", "base|Running\n", nil)

	r := newResource(t, ctx, "clone", "copy", map[string]interface{}{"source": "base"})
	res, err := r.Apply(ctx)
	require.Error(t, err)
	assert.True(t, res.Failed)
	assert.Empty(t, mock.CallsMatching("qvm-clone"))
	assert.Empty(t, mock.CallsMatching("qvm-shutdown"))
}

func TestCloneExistingTargetSkips(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnExecute("/usr/bin/qvm-check --quiet copy", "", nil)

	res, err := newResource(t, ctx, "clone", "copy", map[string]interface{}{"source": "base"}).Apply(ctx)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, "[SKIP] A VM with the name 'copy' already exists.", res.Message)
}

func TestKillRunningVM(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnSequence("/usr/bin/qvm-ls --raw-data --fields NAME,STATE work", core.Output("work|Running\n"), core.Output("work|Halted\n"))
	mock.OnExecute("/usr/bin/qvm-kill work", "", nil)

	res, err := newResource(t, ctx, "kill", "work", nil).Apply(ctx)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Empty(t, mock.CallsMatching("qvm-shutdown"))
	assert.True(t, mock.AssertCalled("/usr/bin/qvm-kill work"))
}

func TestUnpausePausedVM(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnSequence("/usr/bin/qvm-ls --raw-data --fields NAME,STATE work", core.Output("work|Paused\n"), core.Output("work|Running\n"))
	mock.OnExecute("/usr/bin/qvm-unpause work", "", nil)

	res, err := newResource(t, ctx, "unpause", "work", nil).Apply(ctx)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, core.Change{Old: "Paused", New: "Running"}, res.Changes["state"])
}

func TestShutdownAllExcludes(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnExecute("/usr/bin/qvm-ls --raw-data --fields NAME,STATE",
		"dom0|Running\nsys-net|Running\nwork|Paused\nvault|Halted\n", nil)
	mock.OnExecute("/usr/bin/qvm-shutdown", "", nil)

	r := newResource(t, ctx, "shutdown", "work", map[string]interface{}{
		"flags":   []interface{}{"all"},
		"exclude": []interface{}{"sys-net"},
	})
	res, err := r.Apply(ctx)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, []string{"/usr/bin/qvm-shutdown --wait --all --exclude sys-net"}, mock.CallsMatching("qvm-shutdown"))
}

func TestShutdownAllNothingRunning(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnExecute("/usr/bin/qvm-ls --raw-data --fields NAME,STATE", "dom0|Running\nsys-net|Running\n", nil)

	r := newResource(t, ctx, "halted", "work", map[string]interface{}{
		"flags":   []interface{}{"all"},
		"exclude": []interface{}{"sys-net"},
	})
	res, err := r.Apply(ctx)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Empty(t, mock.CallsMatching("qvm-shutdown"))
}

func TestShutdownKillForceKeepsToolError(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnExecute("/usr/bin/qvm-ls --raw-data --fields NAME,STATE work", "work|Running\n", nil)
	mock.OnExit("/usr/bin/qvm-kill work", 2, "libvirt: domain is locked by another operation")

	r := newResource(t, ctx, "shutdown", "work", map[string]interface{}{"flags": []interface{}{"kill", "force"}})
	res, err := r.Apply(ctx)
	require.Error(t, err)
	assert.True(t, res.Failed)
	assert.Contains(t, res.Message, "VM failed to halt")
	assert.Contains(t, res.Message, "domain is locked by another operation")
	assert.Contains(t, err.Error(), "VM 'work' is Running")
}

func TestStartPassesDebug(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnSequence("/usr/bin/qvm-ls --raw-data --fields NAME,STATE work", core.Output("work|Halted\n"), core.Output("work|Running\n"))
	mock.OnExecute("/usr/bin/qvm-start", "", nil)

	res, err := newResource(t, ctx, "start", "work", map[string]interface{}{"flags": []interface{}{"debug"}}).Apply(ctx)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, []string{"/usr/bin/qvm-start --quiet --debug work"}, mock.CallsMatching("qvm-start"))
}
