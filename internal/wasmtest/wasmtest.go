// Package wasmtest encodes small core modules for tests.
package wasmtest

import (
	"bytes"

	"github.com/tetratelabs/wazero/api"
)

const (
	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionMemory   = 5
	sectionExport   = 7
	sectionCode     = 10

	kindFunc   = 0x00
	kindMemory = 0x02

	opLocalGet = 0x20
	opCall     = 0x10
	opEnd      = 0x0b
)

// Func is a function signature exported by the module under Name.
type Func struct {
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

// Forwarder describes a module whose exports forward to host imports of the
// same name. Each export is a real function body, so host functions see the
// forwarder as their calling module and can reach its memory.
type Forwarder struct {
	// ImportModule is the host module every function is imported from.
	ImportModule string
	Funcs        []Func
	// MemoryPages is the initial size of the exported "memory". Zero omits it.
	MemoryPages uint32
	// Extra imports that are declared but never forwarded.
	Imports []Import
}

// Import is an extra function import.
type Import struct {
	Module string
	Func
}

// Encode returns the binary module.
func (f *Forwarder) Encode() []byte {
	w := &writer{}
	w.bytes(0x00, 0x61, 0x73, 0x6d)
	w.bytes(0x01, 0x00, 0x00, 0x00)

	nImports := uint32(len(f.Funcs) + len(f.Imports))

	types := &writer{}
	types.u32(nImports)
	for _, fn := range f.Funcs {
		types.funcType(fn)
	}
	for _, imp := range f.Imports {
		types.funcType(imp.Func)
	}
	w.section(sectionType, types)

	imports := &writer{}
	imports.u32(nImports)
	for i, fn := range f.Funcs {
		imports.name(f.ImportModule)
		imports.name(fn.Name)
		imports.bytes(kindFunc)
		imports.u32(uint32(i))
	}
	for i, imp := range f.Imports {
		imports.name(imp.Module)
		imports.name(imp.Name)
		imports.bytes(kindFunc)
		imports.u32(uint32(len(f.Funcs) + i))
	}
	w.section(sectionImport, imports)

	funcs := &writer{}
	funcs.u32(uint32(len(f.Funcs)))
	for i := range f.Funcs {
		funcs.u32(uint32(i))
	}
	w.section(sectionFunction, funcs)

	if f.MemoryPages > 0 {
		mem := &writer{}
		mem.u32(1)
		mem.bytes(0x00)
		mem.u32(f.MemoryPages)
		w.section(sectionMemory, mem)
	}

	exports := &writer{}
	n := uint32(len(f.Funcs))
	if f.MemoryPages > 0 {
		n++
	}
	exports.u32(n)
	for i, fn := range f.Funcs {
		exports.name(fn.Name)
		exports.bytes(kindFunc)
		exports.u32(nImports + uint32(i))
	}
	if f.MemoryPages > 0 {
		exports.name("memory")
		exports.bytes(kindMemory)
		exports.u32(0)
	}
	w.section(sectionExport, exports)

	code := &writer{}
	code.u32(uint32(len(f.Funcs)))
	for i, fn := range f.Funcs {
		body := &writer{}
		body.u32(0) // no locals
		for p := range fn.Params {
			body.bytes(opLocalGet)
			body.u32(uint32(p))
		}
		body.bytes(opCall)
		body.u32(uint32(i))
		body.bytes(opEnd)

		code.u32(uint32(body.buf.Len()))
		code.buf.Write(body.buf.Bytes())
	}
	w.section(sectionCode, code)

	return w.buf.Bytes()
}

type writer struct {
	buf bytes.Buffer
}

func (w *writer) bytes(b ...byte) {
	w.buf.Write(b)
}

// u32 writes an unsigned LEB128 value.
func (w *writer) u32(v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.buf.WriteByte(b)
		if v == 0 {
			return
		}
	}
}

func (w *writer) name(s string) {
	w.u32(uint32(len(s)))
	w.buf.WriteString(s)
}

func (w *writer) funcType(fn Func) {
	w.bytes(0x60)
	w.u32(uint32(len(fn.Params)))
	w.bytes(fn.Params...)
	w.u32(uint32(len(fn.Results)))
	w.bytes(fn.Results...)
}

func (w *writer) section(id byte, content *writer) {
	w.buf.WriteByte(id)
	w.u32(uint32(content.buf.Len()))
	w.buf.Write(content.buf.Bytes())
}
