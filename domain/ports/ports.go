// Package ports defines the contracts between the plugin host and its
// collaborators.
package ports

import (
	"io/fs"

	"github.com/dentdelion-dev/dentdelion/domain/entities"
)

// FileSystem reads plugin binaries and manifests.
// Infrastructure adapters implement this over the OS or an in-memory tree.
type FileSystem interface {
	ReadFile(name string) ([]byte, error)
	ReadDir(name string) ([]fs.DirEntry, error)
	Stat(name string) (fs.FileInfo, error)
}

// ManifestParser turns manifest bytes into plugin configuration.
type ManifestParser interface {
	// Parse returns a *errors.ManifestParseError for malformed documents and
	// a *errors.ConfigError for values of the wrong type or range.
	Parse(data []byte) (*entities.WasmPluginConfig, error)
}

// ConfigValidator checks struct-level constraints on configuration values.
type ConfigValidator interface {
	Validate(v any) error
}

// CapabilityRegistry records which plugins currently provide which
// capabilities. Instances publish after a successful on_enable and withdraw
// after on_disable or on_unload.
type CapabilityRegistry interface {
	Publish(plugin string, caps []entities.Capability) error
	Withdraw(plugin string)
	Providers(c entities.Capability) []string
}
