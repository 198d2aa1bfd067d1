// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package sandboxtest assembles small WebAssembly binaries for tests and
// demos without an external toolchain.
package sandboxtest

const (
	I32 byte = 0x7f
	I64 byte = 0x7e

	FuncKind   byte = 0x00
	MemoryKind byte = 0x02
)

const (
	sectionType     byte = 1
	sectionImport   byte = 2
	sectionFunction byte = 3
	sectionMemory   byte = 5
	sectionExport   byte = 7
	sectionStart    byte = 8
	sectionCode     byte = 10
	sectionData     byte = 11

	funcTypeTag byte = 0x60
	opEnd       byte = 0x0b
)

var header = []byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00}

// FuncType is a function signature.
type FuncType struct {
	Params  []byte
	Results []byte
}

// Import is a function import.
type Import struct {
	Module string
	Name   string
	Type   uint32
}

// Func is a module-defined function. Body holds its instructions without
// the trailing end opcode.
type Func struct {
	Type uint32
	Body []byte
}

type Export struct {
	Name  string
	Kind  byte
	Index uint32
}

// Data is an active data segment for memory 0.
type Data struct {
	Offset int32
	Bytes  []byte
}

// Module describes a WebAssembly module in binary-format terms. Function
// indices count imports first.
type Module struct {
	Types   []FuncType
	Imports []Import
	Funcs   []Func
	// Memory declares memory 0 with MemoryPages initial pages.
	Memory      bool
	MemoryPages uint32
	Exports     []Export
	// Start, if set, is the index of the function run during
	// instantiation.
	Start *uint32
	Data  []Data
}

// Bytes encodes the module in the WebAssembly binary format.
func (m *Module) Bytes() []byte {
	out := append([]byte{}, header...)

	if len(m.Types) > 0 {
		var payload []byte
		for _, t := range m.Types {
			payload = append(payload, funcTypeTag)
			payload = append(payload, vec(t.Params)...)
			payload = append(payload, vec(t.Results)...)
		}
		out = append(out, section(sectionType, len(m.Types), payload)...)
	}
	if len(m.Imports) > 0 {
		var payload []byte
		for _, imp := range m.Imports {
			payload = append(payload, name(imp.Module)...)
			payload = append(payload, name(imp.Name)...)
			payload = append(payload, FuncKind)
			payload = append(payload, uleb(uint64(imp.Type))...)
		}
		out = append(out, section(sectionImport, len(m.Imports), payload)...)
	}
	if len(m.Funcs) > 0 {
		var payload []byte
		for _, f := range m.Funcs {
			payload = append(payload, uleb(uint64(f.Type))...)
		}
		out = append(out, section(sectionFunction, len(m.Funcs), payload)...)
	}
	if m.Memory {
		payload := append([]byte{0x00}, uleb(uint64(m.MemoryPages))...)
		out = append(out, section(sectionMemory, 1, payload)...)
	}
	if len(m.Exports) > 0 {
		var payload []byte
		for _, e := range m.Exports {
			payload = append(payload, name(e.Name)...)
			payload = append(payload, e.Kind)
			payload = append(payload, uleb(uint64(e.Index))...)
		}
		out = append(out, section(sectionExport, len(m.Exports), payload)...)
	}
	if m.Start != nil {
		// The start section holds a bare index rather than a vector.
		content := uleb(uint64(*m.Start))
		out = append(out, sectionStart)
		out = append(out, uleb(uint64(len(content)))...)
		out = append(out, content...)
	}
	if len(m.Funcs) > 0 {
		var payload []byte
		for _, f := range m.Funcs {
			// No local declarations.
			body := append([]byte{0x00}, f.Body...)
			body = append(body, opEnd)
			payload = append(payload, uleb(uint64(len(body)))...)
			payload = append(payload, body...)
		}
		out = append(out, section(sectionCode, len(m.Funcs), payload)...)
	}
	if len(m.Data) > 0 {
		var payload []byte
		for _, d := range m.Data {
			payload = append(payload, 0x00)
			payload = append(payload, I32Const(d.Offset)...)
			payload = append(payload, opEnd)
			payload = append(payload, vec(d.Bytes)...)
		}
		out = append(out, section(sectionData, len(m.Data), payload)...)
	}
	return out
}

// Code concatenates instructions.
func Code(instrs ...[]byte) []byte {
	var out []byte
	for _, instr := range instrs {
		out = append(out, instr...)
	}
	return out
}

func I32Const(v int32) []byte { return append([]byte{0x41}, sleb(int64(v))...) }

// I32Store stores with natural alignment at static [offset].
func I32Store(offset uint32) []byte { return append([]byte{0x36, 0x02}, uleb(uint64(offset))...) }

// I32Load loads with natural alignment at static [offset].
func I32Load(offset uint32) []byte { return append([]byte{0x28, 0x02}, uleb(uint64(offset))...) }

func Call(funcIdx uint32) []byte { return append([]byte{0x10}, uleb(uint64(funcIdx))...) }

func Drop() []byte        { return []byte{0x1a} }
func Unreachable() []byte { return []byte{0x00} }

// Spin is an empty loop that branches to itself forever.
func Spin() []byte { return []byte{0x03, 0x40, 0x0c, 0x00, opEnd} }

func section(id byte, count int, payload []byte) []byte {
	content := append(uleb(uint64(count)), payload...)
	out := append([]byte{id}, uleb(uint64(len(content)))...)
	return append(out, content...)
}

func vec(b []byte) []byte {
	return append(uleb(uint64(len(b))), b...)
}

func name(s string) []byte {
	return append(uleb(uint64(len(s))), s...)
}

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}
