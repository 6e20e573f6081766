// Package filesystem provides FileSystem adapters for the plugin loader.
package filesystem

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dentdelion-dev/dentdelion/domain/ports"
)

// osConfig holds configuration for the OS filesystem.
type osConfig struct {
	base string // Directory relative paths resolve against
}

// OSOption configures an OSFileSystem.
type OSOption func(*osConfig)

// WithBase resolves relative paths against dir instead of the working
// directory.
func WithBase(dir string) OSOption {
	return func(c *osConfig) {
		c.base = dir
	}
}

// OSFileSystem reads from the host operating system.
type OSFileSystem struct {
	config osConfig
}

// NewOSFileSystem creates an OS-backed FileSystem.
func NewOSFileSystem(opts ...OSOption) ports.FileSystem {
	var cfg osConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return &OSFileSystem{config: cfg}
}

func (f *OSFileSystem) resolve(name string) string {
	if f.config.base == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(f.config.base, name)
}

// ReadFile implements ports.FileSystem.
func (f *OSFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(f.resolve(name))
}

// ReadDir implements ports.FileSystem. Entries are sorted by name.
func (f *OSFileSystem) ReadDir(name string) ([]fs.DirEntry, error) {
	return os.ReadDir(f.resolve(name))
}

// Stat implements ports.FileSystem.
func (f *OSFileSystem) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(f.resolve(name))
}

// FSAdapter exposes an io/fs.FS, such as an embed.FS or fstest.MapFS, as a
// FileSystem. Names are cleaned to the slash-separated form io/fs expects.
type FSAdapter struct {
	fsys fs.FS
}

// NewFromFS wraps fsys.
func NewFromFS(fsys fs.FS) ports.FileSystem {
	return &FSAdapter{fsys: fsys}
}

func fsName(name string) string {
	name = path.Clean(filepath.ToSlash(name))
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return "."
	}
	return name
}

// ReadFile implements ports.FileSystem.
func (a *FSAdapter) ReadFile(name string) ([]byte, error) {
	return fs.ReadFile(a.fsys, fsName(name))
}

// ReadDir implements ports.FileSystem.
func (a *FSAdapter) ReadDir(name string) ([]fs.DirEntry, error) {
	return fs.ReadDir(a.fsys, fsName(name))
}

// Stat implements ports.FileSystem.
func (a *FSAdapter) Stat(name string) (fs.FileInfo, error) {
	return fs.Stat(a.fsys, fsName(name))
}
