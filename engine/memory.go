package engine

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	librawwasm "github.com/wippyai/libraw-wasm"
	"github.com/wippyai/libraw-wasm/errors"
)

// WazeroMemory wraps wazero memory to implement librawwasm.Memory
type WazeroMemory struct {
	mem api.Memory
}

// NewWazeroMemory wraps mem.
func NewWazeroMemory(mem api.Memory) *WazeroMemory {
	return &WazeroMemory{mem: mem}
}

// Read returns a view of guest memory. The slice is invalidated by memory growth.
func (m *WazeroMemory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, m.outOfBounds(offset, length)
	}
	return data, nil
}

func (m *WazeroMemory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return m.outOfBounds(offset, uint32(len(data)))
	}
	return nil
}

func (m *WazeroMemory) ReadU16(offset uint32) (uint16, error) {
	v, ok := m.mem.ReadUint16Le(offset)
	if !ok {
		return 0, m.outOfBounds(offset, 2)
	}
	return v, nil
}

func (m *WazeroMemory) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, m.outOfBounds(offset, 4)
	}
	return v, nil
}

func (m *WazeroMemory) WriteU32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return m.outOfBounds(offset, 4)
	}
	return nil
}

func (m *WazeroMemory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}

func (m *WazeroMemory) outOfBounds(offset, length uint32) error {
	return errors.New(errors.PhaseRuntime, errors.KindOutOfBounds).
		Detail("memory access offset=%d length=%d size=%d", offset, length, m.Size()).
		Build()
}

// guestAllocator backs a StringStore with the guest's malloc and free.
type guestAllocator struct {
	inst *Instance
}

func (a guestAllocator) Alloc(ctx context.Context, size uint32) (uint32, error) {
	return a.inst.malloc(ctx, size)
}

func (a guestAllocator) Free(ctx context.Context, ptr uint32) error {
	return a.inst.free(ctx, ptr)
}

func (a guestAllocator) Write(ptr uint32, data []byte) error {
	return a.inst.mem.Write(ptr, data)
}

var _ librawwasm.Memory = (*WazeroMemory)(nil)
