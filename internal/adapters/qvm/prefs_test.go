package qvm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih-ucgun/qvmstate/internal/core"
)

const workPrefs = "label  -  red\nmemory  -  400\nmaxmem  -  8000\nnetvm  D  sys-firewall\nautostart  D  False\n"

func TestPrefsSetsOnlyDifferingValues(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnExecute("/usr/bin/qvm-prefs work", workPrefs, nil)
	mock.OnExecute("/usr/bin/qvm-prefs work maxmem", "", nil)

	r := newResource(t, ctx, "prefs", "work", map[string]interface{}{
		"set": []interface{}{
			map[string]interface{}{"memory": 400},
			map[string]interface{}{"maxmem": 4000},
		},
	})
	res, err := r.Apply(ctx)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, []string{"/usr/bin/qvm-prefs work maxmem 4000"}, mock.CallsMatching("qvm-prefs work maxmem"))
	assert.Empty(t, mock.CallsMatching("qvm-prefs work memory"))
	assert.Contains(t, res.Message, "[SKIP] memory             : 400")
	assert.Contains(t, res.Message, "maxmem             : 4000")
	assert.Equal(t, core.Change{Old: "8000", New: "4000"}, res.Changes["maxmem"])
}

func TestPrefsDryRunDoesNotMutate(t *testing.T) {
	ctx, mock := newTestContext(true)
	mock.OnExecute("/usr/bin/qvm-prefs work", workPrefs, nil)

	r := newResource(t, ctx, "prefs", "work", map[string]interface{}{"maxmem": 4000, "autostart": true})
	res, err := r.Apply(ctx)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, []string{"/usr/bin/qvm-prefs work"}, mock.Calls)
	assert.Equal(t, []string{"autostart", "maxmem"}, res.ChangeKeys())
}

func TestPrefsBooleanAndNoneComparison(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnExecute("/usr/bin/qvm-prefs work", "autostart  -  True\nnetvm  -\n", nil)

	r := newResource(t, ctx, "prefs", "work", map[string]interface{}{"autostart": "yes", "netvm": "none"})
	res, err := r.Apply(ctx)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Len(t, mock.Calls, 1)
}

func TestPrefsResetToDefault(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnExecute("/usr/bin/qvm-prefs work", "netvm  -  sys-whonix\n", nil)
	mock.OnExecute("/usr/bin/qvm-prefs --default work netvm", "", nil)

	r := newResource(t, ctx, "prefs", "work", map[string]interface{}{"netvm": DefaultSentinel})
	res, err := r.Apply(ctx)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.True(t, mock.AssertCalled("/usr/bin/qvm-prefs --default work netvm"))
	assert.Equal(t, core.Change{Old: "sys-whonix", New: DefaultSentinel}, res.Changes["netvm"])
}

func TestPrefsPropertyMap(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnExecute("/usr/bin/qvm-prefs work", "template_for_dispvms  D  False\n", nil)
	mock.OnExecute("/usr/bin/qvm-prefs work template_for_dispvms", "", nil)

	r := newResource(t, ctx, "prefs", "work", map[string]interface{}{"dispvm_allowed": true})
	_, err := r.Apply(ctx)
	require.NoError(t, err)
	assert.True(t, mock.AssertCalled("/usr/bin/qvm-prefs work template_for_dispvms True"))
}

func TestPrefsGet(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnExecute("/usr/bin/qvm-prefs work", workPrefs, nil)

	r := newResource(t, ctx, "prefs", "work", map[string]interface{}{"args": []interface{}{"memory"}})
	res, err := r.Apply(ctx)
	require.NoError(t, err)
	assert.False(t, res.Failed)
	assert.Equal(t, map[string]string{"memory": "400"}, res.Data)

	r = newResource(t, ctx, "prefs", "work", map[string]interface{}{"action": "get", "get": []interface{}{"nosuch"}})
	res, _ = r.Apply(ctx)
	assert.True(t, res.Failed)
	assert.Contains(t, res.Message, "nosuch             : Invalid key!")
}

func TestPrefsList(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnExecute("/usr/bin/qvm-prefs work", workPrefs, nil)

	res, err := newResource(t, ctx, "prefs", "work", nil).Apply(ctx)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	data, ok := res.Data.(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "sys-firewall", data["netvm"])
	assert.Contains(t, res.Message, "label              : red")
}

func TestPrefsStrictResetNeedsPCIDevs(t *testing.T) {
	ctx, _ := newTestContext(false)
	_, err := core.CreateResource("qvm.prefs", "sys-net", map[string]interface{}{"pci_strictreset": false}, ctx)
	require.Error(t, err)
	assert.True(t, core.IsDeclarationError(err))
	assert.Contains(t, err.Error(), "works only together with 'pcidevs'")
}

func TestPrefsPCIDevs(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnExecute("/usr/bin/qvm-prefs sys-net", "label  -  red\n", nil)
	mock.OnExecute("/usr/bin/qvm-device pci list sys-net", "", nil)
	mock.OnExecute("/usr/bin/qvm-device pci attach", "", nil)

	r := newResource(t, ctx, "prefs", "sys-net", map[string]interface{}{
		"pcidevs":         []interface{}{"00:19.0"},
		"pci_strictreset": false,
	})
	res, err := r.Apply(ctx)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t,
		[]string{"/usr/bin/qvm-device pci attach --persistent -o no-strict-reset=True sys-net dom0:00_19.0"},
		mock.CallsMatching("qvm-device pci attach"))
}

func TestPrefsUnknownKeyRejected(t *testing.T) {
	ctx, _ := newTestContext(false)
	_, err := core.CreateResource("qvm.prefs", "work", map[string]interface{}{"colour": "red"}, ctx)
	require.Error(t, err)
	assert.True(t, core.IsDeclarationError(err))
}

func TestPrefsDiff(t *testing.T) {
	ctx, mock := newTestContext(false)
	mock.OnExecute("/usr/bin/qvm-prefs work", workPrefs, nil)

	r := newResource(t, ctx, "prefs", "work", map[string]interface{}{"maxmem": 4000})
	differ, ok := r.(core.Differ)
	require.True(t, ok)
	d, err := differ.Diff(ctx)
	require.NoError(t, err)
	assert.True(t, core.HasChanges(d))
	assert.Contains(t, d, "4000")
}
