// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sandboxtest

import "github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

// HelloMessage is written to stdout by Hello.
const HelloMessage = "Hello, borker!\n"

var (
	nullary = FuncType{}
	fdWrite = FuncType{Params: []byte{I32, I32, I32, I32}, Results: []byte{I32}}
	unary   = FuncType{Params: []byte{I32}}
)

// Hello writes HelloMessage to file descriptor 1 through WASI fd_write.
func Hello() []byte {
	const (
		iovecAddr    = 0
		messageAddr  = 8
		nwrittenAddr = 24
	)
	m := &Module{
		Types: []FuncType{fdWrite, nullary},
		Imports: []Import{
			{Module: wasi_snapshot_preview1.ModuleName, Name: "fd_write", Type: 0},
		},
		Funcs: []Func{{
			Type: 1,
			Body: Code(
				I32Const(iovecAddr), I32Const(messageAddr), I32Store(0),
				I32Const(iovecAddr+4), I32Const(int32(len(HelloMessage))), I32Store(0),
				I32Const(1), I32Const(iovecAddr), I32Const(1), I32Const(nwrittenAddr),
				Call(0),
				Drop(),
			),
		}},
		Memory:      true,
		MemoryPages: 1,
		Exports: []Export{
			{Name: "memory", Kind: MemoryKind, Index: 0},
			{Name: "_start", Kind: FuncKind, Index: 1},
		},
		Data: []Data{{Offset: messageAddr, Bytes: []byte(HelloMessage)}},
	}
	return m.Bytes()
}

// Empty is the smallest valid module. It has no entry point.
func Empty() []byte {
	return (&Module{}).Bytes()
}

// DataOnly carries memory and data but no functions.
func DataOnly() []byte {
	m := &Module{
		Memory:      true,
		MemoryPages: 1,
		Exports:     []Export{{Name: "memory", Kind: MemoryKind, Index: 0}},
		Data:        []Data{{Offset: 0, Bytes: []byte("just data")}},
	}
	return m.Bytes()
}

// Start returns a module whose nullary _start runs [body].
func Start(body []byte) []byte {
	m := &Module{
		Types:       []FuncType{nullary},
		Funcs:       []Func{{Type: 0, Body: body}},
		Memory:      true,
		MemoryPages: 1,
		Exports:     []Export{{Name: "_start", Kind: FuncKind, Index: 0}},
	}
	return m.Bytes()
}

// Noop has an entry point that returns immediately.
func Noop() []byte { return Start(nil) }

// Trap hits an unreachable instruction.
func Trap() []byte { return Start(Unreachable()) }

// OutOfBounds loads past the end of its single memory page.
func OutOfBounds() []byte {
	return Start(Code(I32Const(70000), I32Load(0), Drop()))
}

// Spinner never terminates.
func Spinner() []byte { return Start(Spin()) }

// Exit calls WASI proc_exit with [code].
func Exit(code int32) []byte {
	m := &Module{
		Types: []FuncType{unary, nullary},
		Imports: []Import{
			{Module: wasi_snapshot_preview1.ModuleName, Name: "proc_exit", Type: 0},
		},
		Funcs:       []Func{{Type: 1, Body: Code(I32Const(code), Call(0))}},
		Memory:      true,
		MemoryPages: 1,
		Exports:     []Export{{Name: "_start", Kind: FuncKind, Index: 1}},
	}
	return m.Bytes()
}

// StartSectionTrap hits an unreachable instruction in its start section,
// before _start can be called.
func StartSectionTrap() []byte {
	start := uint32(0)
	m := &Module{
		Types:   []FuncType{nullary},
		Funcs:   []Func{{Type: 0, Body: Unreachable()}, {Type: 0}},
		Exports: []Export{{Name: "_start", Kind: FuncKind, Index: 1}},
		Start:   &start,
	}
	return m.Bytes()
}

// StartSectionExit calls WASI proc_exit with [code] from its start
// section.
func StartSectionExit(code int32) []byte {
	start := uint32(1)
	m := &Module{
		Types: []FuncType{unary, nullary},
		Imports: []Import{
			{Module: wasi_snapshot_preview1.ModuleName, Name: "proc_exit", Type: 0},
		},
		Funcs:       []Func{{Type: 1, Body: Code(I32Const(code), Call(0))}, {Type: 1}},
		Memory:      true,
		MemoryPages: 1,
		Exports: []Export{
			{Name: "memory", Kind: MemoryKind, Index: 0},
			{Name: "_start", Kind: FuncKind, Index: 2},
		},
		Start: &start,
	}
	return m.Bytes()
}

// MismatchedImport imports WASI fd_write with the wrong signature.
func MismatchedImport() []byte {
	m := &Module{
		Types: []FuncType{nullary},
		Imports: []Import{
			{Module: wasi_snapshot_preview1.ModuleName, Name: "fd_write", Type: 0},
		},
		Funcs:   []Func{{Type: 0, Body: Call(0)}},
		Exports: []Export{{Name: "_start", Kind: FuncKind, Index: 1}},
	}
	return m.Bytes()
}

// UnresolvedImport imports a host function outside of WASI.
func UnresolvedImport() []byte {
	m := &Module{
		Types:   []FuncType{nullary},
		Imports: []Import{{Module: "env", Name: "open_socket", Type: 0}},
		Funcs:   []Func{{Type: 0, Body: Call(0)}},
		Exports: []Export{{Name: "_start", Kind: FuncKind, Index: 1}},
	}
	return m.Bytes()
}

// WrongEntrySignature exports a _start that takes an argument.
func WrongEntrySignature() []byte {
	m := &Module{
		Types:   []FuncType{unary},
		Funcs:   []Func{{Type: 0, Body: Unreachable()}},
		Exports: []Export{{Name: "_start", Kind: FuncKind, Index: 0}},
	}
	return m.Bytes()
}

// LargeMemory declares [pages] initial pages of memory.
func LargeMemory(pages uint32) []byte {
	m := &Module{
		Types:       []FuncType{nullary},
		Funcs:       []Func{{Type: 0}},
		Memory:      true,
		MemoryPages: pages,
		Exports:     []Export{{Name: "_start", Kind: FuncKind, Index: 0}},
	}
	return m.Bytes()
}
