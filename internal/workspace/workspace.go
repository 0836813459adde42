package workspace

import (
	"log/slog"
	"os"

	ferrors "git.home.luguber.info/inful/previewer/internal/foundation/errors"
	"git.home.luguber.info/inful/previewer/internal/logfields"
)

// Manager owns one workspace directory.
type Manager struct {
	baseDir string
	name    string
	dir     string
}

// NewManager returns a manager for a workspace named after name below
// baseDir. An empty baseDir means the system temp directory.
func NewManager(baseDir, name string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	if name == "" {
		name = "previewer"
	}
	return &Manager{baseDir: baseDir, name: name}
}

// Create makes a fresh, uniquely suffixed directory.
func (m *Manager) Create() error {
	if err := os.MkdirAll(m.baseDir, 0o750); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryProvisioning, "failed to create workspace root").
			WithContext("path", m.baseDir).Build()
	}
	dir, err := os.MkdirTemp(m.baseDir, m.name+"-")
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryProvisioning, "failed to create workspace directory").
			WithContext("path", m.baseDir).Build()
	}
	m.dir = dir
	slog.Debug("Created workspace", logfields.Path(dir))
	return nil
}

// GetPath returns the workspace directory, or "" before Create.
func (m *Manager) GetPath() string {
	return m.dir
}

// Cleanup removes the workspace. Calling it again is a no-op.
func (m *Manager) Cleanup() error {
	if m.dir == "" {
		return nil
	}
	if err := os.RemoveAll(m.dir); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to clean up workspace").
			WithContext("path", m.dir).Build()
	}
	slog.Debug("Cleaned up workspace", logfields.Path(m.dir))
	m.dir = ""
	return nil
}
