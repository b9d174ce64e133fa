package consts

import "path/filepath"

// Constants for configuration paths and defaults
const (
	ConfigDir        = "/etc/qvmstate"
	SettingsFileName = "qvmstate.toml"
	StateDir         = "/var/lib/qvmstate"
	HistoryFileName  = "history.json"
	TopFileName      = "top.yaml"

	// QubesReleaseFile identifies a Qubes admin domain.
	QubesReleaseFile = "/etc/qubes-release"
)

var (
	DefaultSettingsPath = filepath.Join(ConfigDir, SettingsFileName)
	DefaultHistoryPath  = filepath.Join(StateDir, HistoryFileName)
	DefaultTopFile      = filepath.Join(ConfigDir, TopFileName)
)
