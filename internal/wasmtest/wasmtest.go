// Package wasmtest assembles small guest modules implementing the plugin
// lifecycle ABI, so host tests can run real binaries without a toolchain.
package wasmtest

import (
	"github.com/dentdelion-dev/dentdelion/wireformat"
)

// Behavior selects what a generated lifecycle export does.
type Behavior int

const (
	// Succeed returns 0.
	Succeed Behavior = iota
	// Fail returns the packed location of a {code, message} record.
	Fail
	// Trap executes unreachable.
	Trap
	// Spin loops forever.
	Spin
	// GrowMemory grows linear memory by Guest.GrowPages and traps if the
	// engine refuses.
	GrowMemory
	// Log calls the log_message import with Guest.LogLevel/LogMessage.
	Log
	// EchoPayload passes the on_load argument to log_message unchanged.
	// Other exports treat it as Succeed.
	EchoPayload
)

// AllocateOffset is the fixed address allocate returns.
const AllocateOffset = 8192

const (
	errorOffset = 2048
	logOffset   = 4096

	valI32 = 0x7f
	valI64 = 0x7e
)

// Magic is the wasm preamble followed by the core module version.
var Magic = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// ComponentHeader is the preamble of a component-model binary.
var ComponentHeader = []byte{0x00, 0x61, 0x73, 0x6d, 0x0d, 0x00, 0x01, 0x00}

// Guest describes a module to generate. The zero value is a module whose
// four lifecycle exports all succeed.
type Guest struct {
	ErrorCode    string
	ErrorMessage string
	LogLevel     string
	LogMessage   string

	// Omit names an export to leave out.
	Omit string

	OnLoad    Behavior
	OnEnable  Behavior
	OnDisable Behavior
	OnUnload  Behavior

	MinPages  uint32
	GrowPages uint32

	// EnableTakesArgs declares on_enable as (i32, i32) -> i64.
	EnableTakesArgs bool
}

// Build returns the binary module.
func (g Guest) Build() []byte {
	behaviors := []Behavior{g.OnLoad, g.OnEnable, g.OnDisable, g.OnUnload}
	imports := false
	for _, b := range behaviors {
		if b == Log || b == EchoPayload {
			imports = true
		}
	}

	// Types: 0 allocate, 1 (i32,i32)->i64, 2 ()->i64, 3 log_message.
	types := [][]byte{
		funcType([]byte{valI32}, []byte{valI32}),
		funcType([]byte{valI32, valI32}, []byte{valI64}),
		funcType(nil, []byte{valI64}),
		funcType([]byte{valI64}, nil),
	}

	var importEntries [][]byte
	var base uint32
	if imports {
		e := appendName(nil, "dentdelion_host")
		e = appendName(e, "log_message")
		e = append(e, 0x00)
		e = appendUleb(e, 3)
		importEntries = append(importEntries, e)
		base = 1
	}

	enableType := uint32(2)
	if g.EnableTakesArgs {
		enableType = 1
	}
	funcTypes := []uint32{0, 1, enableType, 2, 2}
	names := []string{"allocate", "on_load", "on_enable", "on_disable", "on_unload"}

	var errRecord, logRecord []byte
	for _, b := range behaviors {
		if b == Fail && errRecord == nil {
			errRecord, _ = wireformat.EncodeGuestError(g.ErrorCode, g.ErrorMessage)
		}
		if b == Log && logRecord == nil {
			logRecord, _ = wireformat.Marshal(wireformat.LogRecord{Level: g.LogLevel, Message: g.LogMessage})
		}
	}

	bodies := [][]byte{body(appendSleb([]byte{0x41}, AllocateOffset))}
	for i, b := range behaviors {
		bodies = append(bodies, body(g.code(b, i == 0, uint32(len(errRecord)), uint32(len(logRecord)))))
	}

	minPages := g.MinPages
	if minPages == 0 {
		minPages = 1
	}

	out := append([]byte{}, Magic...)
	out = appendSection(out, 1, vec(types))
	if imports {
		out = appendSection(out, 2, vec(importEntries))
	}
	fs := appendUleb(nil, uint32(len(funcTypes)))
	for _, t := range funcTypes {
		fs = appendUleb(fs, t)
	}
	out = appendSection(out, 3, fs)
	out = appendSection(out, 5, appendUleb([]byte{0x01, 0x00}, minPages))

	exports := [][]byte{append(appendName(nil, "memory"), 0x02, 0x00)}
	for i, name := range names {
		if name == g.Omit {
			continue
		}
		exports = append(exports, appendUleb(append(appendName(nil, name), 0x00), base+uint32(i)))
	}
	out = appendSection(out, 7, vec(exports))
	out = appendSection(out, 10, vec(bodies))

	var segments [][]byte
	if errRecord != nil {
		segments = append(segments, dataSegment(errorOffset, errRecord))
	}
	if logRecord != nil {
		segments = append(segments, dataSegment(logOffset, logRecord))
	}
	if len(segments) > 0 {
		out = appendSection(out, 11, vec(segments))
	}
	return out
}

func (g Guest) code(b Behavior, onLoad bool, errLen, logLen uint32) []byte {
	switch b {
	case Fail:
		return appendSleb([]byte{0x42}, packed(errorOffset, errLen))
	case Trap:
		return []byte{0x00}
	case Spin:
		// loop br 0 end; i64.const 0
		return []byte{0x03, 0x40, 0x0c, 0x00, 0x0b, 0x42, 0x00}
	case GrowMemory:
		c := appendSleb([]byte{0x41}, int64(g.GrowPages))
		// memory.grow; i32.const -1; i32.eq; if unreachable end; i64.const 0
		return append(c, 0x40, 0x00, 0x41, 0x7f, 0x46, 0x04, 0x40, 0x00, 0x0b, 0x42, 0x00)
	case Log:
		c := appendSleb([]byte{0x42}, packed(logOffset, logLen))
		return append(c, 0x10, 0x00, 0x42, 0x00)
	case EchoPayload:
		if !onLoad {
			return []byte{0x42, 0x00}
		}
		// (ptr << 32) | len, call log_message, i64.const 0
		return []byte{
			0x20, 0x00, 0xad, 0x42, 0x20, 0x86,
			0x20, 0x01, 0xad, 0x84,
			0x10, 0x00,
			0x42, 0x00,
		}
	default:
		return []byte{0x42, 0x00}
	}
}

func packed(ptr, length uint32) int64 {
	return int64(uint64(ptr)<<32 | uint64(length))
}

func funcType(params, results []byte) []byte {
	t := []byte{0x60}
	t = appendUleb(t, uint32(len(params)))
	t = append(t, params...)
	t = appendUleb(t, uint32(len(results)))
	return append(t, results...)
}

func body(code []byte) []byte {
	inner := append([]byte{0x00}, code...)
	inner = append(inner, 0x0b)
	return append(appendUleb(nil, uint32(len(inner))), inner...)
}

func dataSegment(offset int64, data []byte) []byte {
	s := appendSleb([]byte{0x00, 0x41}, offset)
	s = append(s, 0x0b)
	s = appendUleb(s, uint32(len(data)))
	return append(s, data...)
}

func vec(items [][]byte) []byte {
	out := appendUleb(nil, uint32(len(items)))
	for _, item := range items {
		out = append(out, item...)
	}
	return out
}

func appendSection(out []byte, id byte, content []byte) []byte {
	out = append(out, id)
	out = appendUleb(out, uint32(len(content)))
	return append(out, content...)
}

func appendName(out []byte, name string) []byte {
	out = appendUleb(out, uint32(len(name)))
	return append(out, name...)
}

func appendUleb(out []byte, v uint32) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		out = append(out, c)
		if v == 0 {
			return out
		}
	}
}

func appendSleb(out []byte, v int64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			return append(out, c)
		}
		out = append(out, c|0x80)
	}
}
