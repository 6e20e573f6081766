package entities

// DiscoveredPlugin describes a plugin binary found on disk.
type DiscoveredPlugin struct {
	// Config is nil when no usable manifest was found.
	Config *WasmPluginConfig `json:"config,omitempty"`

	Name         string `json:"name"`
	WasmPath     string `json:"wasm_path"`
	ManifestPath string `json:"manifest_path,omitempty"`
}

// HasManifest reports whether a manifest file was located.
func (d DiscoveredPlugin) HasManifest() bool {
	return d.ManifestPath != ""
}

// EffectiveConfig returns the parsed manifest or the defaults.
func (d DiscoveredPlugin) EffectiveConfig() WasmPluginConfig {
	if d.Config == nil {
		return DefaultWasmPluginConfig()
	}
	return d.Config.Clone()
}

// Manifest is the document layout of a plugin manifest. Only the preferred
// [wasm] table is described; [plugin] and the bare root are accepted as
// fallbacks by the parser.
type Manifest struct {
	Wasm WasmPluginConfig `json:"wasm" toml:"wasm"`
}
