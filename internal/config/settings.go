package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/melih-ucgun/qvmstate/internal/consts"
)

// EnvPrefix marks environment variables that override settings.
const EnvPrefix = "QVMSTATE_"

type ToolSettings struct {
	BinDir     string   `toml:"bin_dir"`
	RunTimeout Duration `toml:"run_timeout"`
}

type StateSettings struct {
	Path string `toml:"path"`
}

// SSHSettings selects the remote admin transport. Empty Host means the
// qvm-* tools run locally.
type SSHSettings struct {
	Host       string `toml:"host"`
	User       string `toml:"user"`
	Port       int    `toml:"port"`
	KeyPath    string `toml:"key_path"`
	KnownHosts string `toml:"known_hosts"`
}

type MetricsSettings struct {
	Textfile string `toml:"textfile"`
}

type LogSettings struct {
	File string `toml:"file"`
}

// Settings is the tool configuration (not the desired state).
type Settings struct {
	Tool    ToolSettings      `toml:"tool"`
	State   StateSettings     `toml:"state"`
	SSH     SSHSettings       `toml:"ssh"`
	Metrics MetricsSettings   `toml:"metrics"`
	Log     LogSettings       `toml:"log"`
	Vars    map[string]string `toml:"vars"`

	// Source is the settings file actually read ("" if none).
	Source string `toml:"-"`
}

// Duration accepts "90s" style strings or plain seconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := parseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d *Duration) UnmarshalTOML(v interface{}) error {
	switch val := v.(type) {
	case int64:
		d.Duration = time.Duration(val) * time.Second
		return nil
	case float64:
		d.Duration = time.Duration(val * float64(time.Second))
		return nil
	case string:
		return d.UnmarshalText([]byte(val))
	}
	return fmt.Errorf("invalid duration %v", v)
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() *Settings {
	return &Settings{
		State: StateSettings{Path: consts.DefaultHistoryPath},
		SSH:   SSHSettings{Port: 22, User: "root"},
		Vars:  make(map[string]string),
	}
}

// LoadSettings reads the settings file, then the optional env file, then
// QVMSTATE_* process environment. Later sources win.
//
// path == "" uses the default location, which may be missing.
// An explicitly named file (settings or env) must exist.
func LoadSettings(path, envFile string) (*Settings, error) {
	s := DefaultSettings()

	explicit := path != ""
	if !explicit {
		path = consts.DefaultSettingsPath
	}

	// varsayılan dosya yoksa sorun değil
	if _, err := toml.DecodeFile(path, s); err == nil {
		s.Source = path
	} else if explicit || !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("settings dosyası okunamadı: %w", err)
	}
	if s.Vars == nil {
		s.Vars = make(map[string]string)
	}

	if envFile != "" {
		env, err := godotenv.Read(envFile)
		if err != nil {
			return nil, fmt.Errorf("env dosyası okunamadı: %w", err)
		}
		if err := s.applyEnv(env, true); err != nil {
			return nil, fmt.Errorf("%s: %w", envFile, err)
		}
	}

	if err := s.applyEnv(osEnv(), false); err != nil {
		return nil, err
	}
	return s, nil
}

func osEnv() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(k, EnvPrefix) {
			out[k] = v
		}
	}
	return out
}

// applyEnv applies QVMSTATE_* overrides. With vars set, other keys become
// template variables (env file only).
func (s *Settings) applyEnv(env map[string]string, vars bool) error {
	for k, v := range env {
		if !strings.HasPrefix(k, EnvPrefix) {
			if vars {
				s.Vars[k] = v
			}
			continue
		}
		if err := s.set(strings.TrimPrefix(k, EnvPrefix), v); err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
	}
	return nil
}

func (s *Settings) set(key, v string) error {
	switch key {
	case "TOOL_BIN_DIR":
		s.Tool.BinDir = v
	case "TOOL_RUN_TIMEOUT":
		d, err := parseDuration(v)
		if err != nil {
			return err
		}
		s.Tool.RunTimeout = Duration{d}
	case "STATE_PATH":
		s.State.Path = v
	case "SSH_HOST":
		s.SSH.Host = v
	case "SSH_USER":
		s.SSH.User = v
	case "SSH_PORT":
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid port %q", v)
		}
		s.SSH.Port = port
	case "SSH_KEY_PATH":
		s.SSH.KeyPath = v
	case "SSH_KNOWN_HOSTS":
		s.SSH.KnownHosts = v
	case "METRICS_TEXTFILE":
		s.Metrics.Textfile = v
	case "LOG_FILE":
		s.Log.File = v
	default:
		if name, ok := strings.CutPrefix(key, "VAR_"); ok {
			s.Vars[strings.ToLower(name)] = v
		}
		// bilinmeyen anahtarlar yok sayılır
	}
	return nil
}
