package tokenstore

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// Names of the persisted slots. They are always written and cleared together.
const (
	SlotAccessToken  = "access_token"
	SlotRefreshToken = "refresh_token"
	SlotIdentity     = "identity"
)

var allSlots = []string{SlotAccessToken, SlotRefreshToken, SlotIdentity}

// Slots is the durable backend a Store mirrors its state into.
type Slots interface {
	// Load returns false when the slot has never been written or was deleted.
	Load(name string) (string, bool, error)
	Save(name, value string) error
	Delete(name string) error
}

// MemorySlots keeps slots in process memory. Useful for tests and for clients that
// do not want a session to survive a restart.
type MemorySlots struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemorySlots() *MemorySlots {
	return &MemorySlots{values: make(map[string]string)}
}

func (m *MemorySlots) Load(name string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[name]
	return v, ok, nil
}

func (m *MemorySlots) Save(name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = value
	return nil
}

func (m *MemorySlots) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, name)
	return nil
}

// FileSlots stores one file per slot inside dir. Writes go to a temp file that is
// renamed over the slot so a crash never leaves a half written token behind.
type FileSlots struct {
	dir string
}

// NewFileSlots creates dir (0700) when it does not exist yet.
func NewFileSlots(dir string) (*FileSlots, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "create slot directory")
	}
	return &FileSlots{dir: dir}, nil
}

func (f *FileSlots) path(name string) string {
	return filepath.Join(f.dir, name)
}

func (f *FileSlots) Load(name string) (string, bool, error) {
	b, err := os.ReadFile(f.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "read slot %s", name)
	}
	return string(b), true, nil
}

func (f *FileSlots) Save(name, value string) error {
	tmp, err := os.CreateTemp(f.dir, "."+name+"-*")
	if err != nil {
		return errors.Wrapf(err, "create temp file for slot %s", name)
	}
	defer os.Remove(tmp.Name()) // no-op once renamed

	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "write slot %s", name)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close slot %s", name)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return errors.Wrapf(err, "chmod slot %s", name)
	}
	return errors.Wrapf(os.Rename(tmp.Name(), f.path(name)), "rename slot %s", name)
}

func (f *FileSlots) Delete(name string) error {
	err := os.Remove(f.path(name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "delete slot %s", name)
	}
	return nil
}
