package host

import (
	"fmt"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// Component is a compiled and ABI-checked plugin binary. It is immutable and
// shared by every call of the instances created from it.
type Component struct {
	compiled wazero.CompiledModule
	engine   *engine
	digest   string
	exports  []string
	imports  []string
	size     int
}

// Digest is the hex SHA-256 of the binary.
func (c *Component) Digest() string {
	return c.digest
}

// Size is the binary size in bytes.
func (c *Component) Size() int {
	return c.size
}

// MemoryLimitPages is the memory cap of the engine the component runs in.
func (c *Component) MemoryLimitPages() uint32 {
	return c.engine.pages
}

// Exports lists the exported function names, sorted.
func (c *Component) Exports() []string {
	return append([]string(nil), c.exports...)
}

// Imports lists the imported functions as "module.name", sorted.
func (c *Component) Imports() []string {
	return append([]string(nil), c.imports...)
}

type signature struct {
	params  []api.ValueType
	results []api.ValueType
}

var i32, i64 = api.ValueTypeI32, api.ValueTypeI64

// guestABI lists the exports every plugin must provide.
var guestABI = map[string]signature{
	"allocate":   {params: []api.ValueType{i32}, results: []api.ValueType{i32}},
	"on_load":    {params: []api.ValueType{i32, i32}, results: []api.ValueType{i64}},
	"on_enable":  {results: []api.ValueType{i64}},
	"on_disable": {results: []api.ValueType{i64}},
	"on_unload":  {results: []api.ValueType{i64}},
}

// validateABI checks the compiled module against the lifecycle ABI.
func validateABI(compiled wazero.CompiledModule) error {
	if _, ok := compiled.ExportedMemories()["memory"]; !ok {
		return fmt.Errorf("module does not export memory")
	}

	exports := compiled.ExportedFunctions()
	names := make([]string, 0, len(guestABI))
	for name := range guestABI {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		want := guestABI[name]
		def, ok := exports[name]
		if !ok {
			return fmt.Errorf("module does not export %s", name)
		}
		if !sameTypes(def.ParamTypes(), want.params) || !sameTypes(def.ResultTypes(), want.results) {
			return fmt.Errorf("export %s has signature %s, want %s",
				name, formatSignature(def.ParamTypes(), def.ResultTypes()), formatSignature(want.params, want.results))
		}
	}
	return nil
}

func sameTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func formatSignature(params, results []api.ValueType) string {
	return fmt.Sprintf("(%s) -> (%s)", typeNames(params), typeNames(results))
}

func typeNames(types []api.ValueType) string {
	s := ""
	for i, t := range types {
		if i > 0 {
			s += ", "
		}
		s += api.ValueTypeName(t)
	}
	return s
}

func describeModule(compiled wazero.CompiledModule) (exports, imports []string) {
	for name := range compiled.ExportedFunctions() {
		exports = append(exports, name)
	}
	sort.Strings(exports)
	for _, def := range compiled.ImportedFunctions() {
		mod, name, _ := def.Import()
		imports = append(imports, mod+"."+name)
	}
	sort.Strings(imports)
	return exports, imports
}
