// Package hostfuncs implements the host functions a guest plugin may import.
// Handlers work on raw CBOR bytes and have no dependency on the WASM engine;
// infrastructure/wazero binds a HandlerRegistry into a runtime.
//
// Per-call data (plugin name, configuration snapshot, declared capabilities)
// reaches handlers through a CallState stored in the context.
package hostfuncs
