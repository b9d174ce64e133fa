package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const settingsTOML = `
[tool]
bin_dir = "/opt/qubes/bin"
run_timeout = "90s"

[state]
path = "/tmp/qvmstate/history.json"

[ssh]
host = "dom0.lan"
port = 2222
known_hosts = "/root/.ssh/known_hosts"

[metrics]
textfile = "/var/lib/node_exporter/qvmstate.prom"

[vars]
netvm = "sys-firewall"
`

func TestLoadSettingsFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "qvmstate.toml", settingsTOML)

	s, err := LoadSettings(path, "")
	require.NoError(t, err)
	assert.Equal(t, path, s.Source)
	assert.Equal(t, "/opt/qubes/bin", s.Tool.BinDir)
	assert.Equal(t, 90*time.Second, s.Tool.RunTimeout.Duration)
	assert.Equal(t, "dom0.lan", s.SSH.Host)
	assert.Equal(t, 2222, s.SSH.Port)
	assert.Equal(t, "root", s.SSH.User)
	assert.Equal(t, "sys-firewall", s.Vars["netvm"])
}

func TestLoadSettingsIntegerTimeout(t *testing.T) {
	path := writeFile(t, t.TempDir(), "qvmstate.toml", "[tool]\nrun_timeout = 30\n")

	s, err := LoadSettings(path, "")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, s.Tool.RunTimeout.Duration)
}

func TestLoadSettingsExplicitMissing(t *testing.T) {
	_, err := LoadSettings(filepath.Join(t.TempDir(), "missing.toml"), "")
	assert.Error(t, err)
}

func TestLoadSettingsInvalid(t *testing.T) {
	path := writeFile(t, t.TempDir(), "qvmstate.toml", "[tool\n")
	_, err := LoadSettings(path, "")
	assert.Error(t, err)
}

func TestLoadSettingsEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "qvmstate.toml", settingsTOML)
	env := writeFile(t, dir, ".env", "QVMSTATE_SSH_HOST=admin.lan\nQVMSTATE_TOOL_RUN_TIMEOUT=5\ntemplate=debian-12\n")

	s, err := LoadSettings(path, env)
	require.NoError(t, err)
	assert.Equal(t, "admin.lan", s.SSH.Host)
	assert.Equal(t, 5*time.Second, s.Tool.RunTimeout.Duration)
	assert.Equal(t, "debian-12", s.Vars["template"])
	assert.NotContains(t, s.Vars, "QVMSTATE_SSH_HOST")
}

func TestLoadSettingsProcessEnvWins(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "qvmstate.toml", settingsTOML)
	env := writeFile(t, dir, ".env", "QVMSTATE_SSH_HOST=admin.lan\n")
	t.Setenv("QVMSTATE_SSH_HOST", "")
	t.Setenv("QVMSTATE_STATE_PATH", "/srv/history.json")
	t.Setenv("QVMSTATE_VAR_NETVM", "sys-whonix")

	s, err := LoadSettings(path, env)
	require.NoError(t, err)
	assert.Equal(t, "", s.SSH.Host)
	assert.Equal(t, "/srv/history.json", s.State.Path)
	assert.Equal(t, "sys-whonix", s.Vars["netvm"])
}

func TestLoadSettingsBadPort(t *testing.T) {
	t.Setenv("QVMSTATE_SSH_PORT", "twenty")
	_, err := LoadSettings(writeFile(t, t.TempDir(), "q.toml", ""), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QVMSTATE_SSH_PORT")
}

func TestMissingEnvFile(t *testing.T) {
	_, err := LoadSettings(writeFile(t, t.TempDir(), "q.toml", ""), "/nonexistent/.env")
	assert.Error(t, err)
}
