// Package host provides the runtime environment for dentdelion WASM plugins.
//
// It abstracts the underlying WASM engine (wazero) behind a Runtime that
// compiles plugin binaries into shared Components and runs each guest call
// in a fresh, bounded ExecutionContext. A Loader discovers binaries and
// manifests on disk and turns them into Instances, whose lifecycle
// (on_load, on_enable, on_disable, on_unload) is a guarded state machine.
// A Manager drives many instances together and keeps them in sync with the
// plugin directory.
package host
