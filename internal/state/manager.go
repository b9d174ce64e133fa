package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/melih-ucgun/qvmstate/internal/types"
)

// DefaultMaxHistory is the number of transactions kept in the state file.
const DefaultMaxHistory = 200

// FileSystem defines minimum operations required for storage.
// This interface matches core.FileSystem methods used here, so the state
// file can live on the remote admin host through SFTP.
type FileSystem interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm os.FileMode) error
	MkdirAll(path string, perm os.FileMode) error
	Rename(oldpath, newpath string) error
	Remove(name string) error
}

// Manager manages reading/writing the state file.
// It uses a Mutex for thread-safety.
type Manager struct {
	FilePath   string
	Current    *types.State
	FS         FileSystem
	MaxHistory int
	mu         sync.RWMutex
}

// NewManager creates a new state manager and loads the existing file. A
// missing file is not an error; a corrupt one is.
func NewManager(path string, fsys FileSystem) (*Manager, error) {
	mgr := &Manager{
		FilePath:   path,
		Current:    types.NewState(),
		FS:         fsys,
		MaxHistory: DefaultMaxHistory,
	}

	if err := mgr.Load(); err != nil {
		if isNotExist(err) {
			return mgr, nil
		}
		return nil, fmt.Errorf("failed to load state file %s: %w", path, err)
	}

	return mgr, nil
}

// isNotExist also accepts SFTP status errors, which do not wrap fs.ErrNotExist.
func isNotExist(err error) bool {
	if errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "file does not exist") || strings.Contains(msg, "no such file")
}

// Load reads state file from abstract FS.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := m.FS.ReadFile(m.FilePath)
	if err != nil {
		return err
	}

	st := types.NewState()
	if err := json.Unmarshal(data, st); err != nil {
		return err
	}
	if st.Resources == nil {
		st.Resources = make(map[string]types.ResourceEntry)
	}
	m.Current = st
	return nil
}

// Save writes current state to abstract FS.
func (m *Manager) Save() error {
	m.mu.Lock()
	m.Current.LastRun = time.Now()
	data, err := json.MarshalIndent(m.Current, "", "  ")
	m.mu.Unlock()
	if err != nil {
		return err
	}

	// Ensure directory exists
	dir := filepath.Dir(m.FilePath)
	if err := m.FS.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// Önce geçici dosyaya yaz, sonra yerine taşı.
	tmp := m.FilePath + ".tmp"
	if err := m.FS.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := m.FS.Rename(tmp, m.FilePath); err != nil {
		_ = m.FS.Remove(tmp)
		return fmt.Errorf("state dosyası yazılamadı: %w", err)
	}
	return nil
}

// UpdateResource records the last outcome of a declaration and saves.
func (m *Manager) UpdateResource(function, id, vm, status string) error {
	m.mu.Lock()
	key := fmt.Sprintf("%s:%s", function, id)

	m.Current.Resources[key] = types.ResourceEntry{
		ID:          key,
		Function:    function,
		Declaration: id,
		VM:          vm,
		Status:      status,
		LastApplied: time.Now(),
	}
	m.mu.Unlock()

	return m.Save()
}

// Resources returns the recorded declarations sorted by key.
func (m *Manager) Resources() []types.ResourceEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.ResourceEntry, 0, len(m.Current.Resources))
	for _, r := range m.Current.Resources {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
