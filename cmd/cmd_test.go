package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih-ucgun/qvmstate/internal/core"
	"github.com/melih-ucgun/qvmstate/internal/types"
)

func init() {
	pterm.DisableStyling()
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "qvmstate dev")
}

func TestCallUnknownFunction(t *testing.T) {
	_, err := execute(t, "call", "qvm.nosuch", "work")
	require.Error(t, err)
	assert.True(t, core.IsDeclarationError(err))
}

func TestCallNeedsVM(t *testing.T) {
	_, err := execute(t, "call", "qvm.start")
	assert.Error(t, err)
}

func TestApplyBadStateFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "top.yaml")
	require.NoError(t, os.WriteFile(p, []byte("work:\n  file.managed: []\n"), 0644))

	_, err := execute(t, "apply", p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown function 'file.managed'")
}

func TestLoadItemsConcatenates(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")
	require.NoError(t, os.WriteFile(a, []byte("sys-net:\n  qvm.exists: []\n"), 0644))
	require.NoError(t, os.WriteFile(b, []byte("work:\n  qvm.start: []\n"), 0644))

	items, err := loadItems([]string{a, b})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "sys-net", items[0].ID)
	assert.Equal(t, "work", items[1].ID)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	_, err = loadItems([]string{empty})
	assert.Error(t, err)
}

func TestStatusAndLogRows(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := statusRows([]types.ResourceEntry{
		{Function: "qvm.prefs", Declaration: "work-prefs", VM: "work", Status: types.TxFailed, LastApplied: at},
	})
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"qvm.prefs", "work-prefs", "work", "failed", "2026-01-02 03:04:05"}, rows[1])

	logs := logRows([]types.Transaction{{ID: "tx1", Timestamp: at, Status: types.TxTest, Changes: make([]types.TransactionChange, 3)}})
	assert.Equal(t, []string{"tx1", "2026-01-02 03:04:05", "test", "3"}, logs[1])
}
