// Package rawtest provides instrumented stand-ins for LibRaw.
//
// Guest implements the shim ABI as wazero host functions behind a forwarding
// core module, so the real WASM backend can be exercised without a LibRaw
// build. Fake implements engine.Engine directly in Go.
package rawtest

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/libraw-wasm/engine"
	"github.com/wippyai/libraw-wasm/internal/wasmtest"
)

// HostModuleName is the module the forwarding guest imports from.
const HostModuleName = "libraw_fake"

const heapBase = 1024

// Scenario controls what the fake processor reports.
type Scenario struct {
	State engine.State

	OpenStatus    engine.Status
	UnpackStatus  engine.Status
	ProcessStatus engine.Status

	// NoImage makes make_mem_image return null with ImageErrc.
	NoImage   bool
	ImageErrc engine.Status

	// DataSize overrides the reported data_size when non-zero.
	DataSize uint32

	Width  uint16
	Height uint16
	Colors uint16
	Bits   uint16

	// TrapOn names an export that panics when called.
	TrapOn string
	// RejectKey makes set_param_* fail for that option.
	RejectKey string
}

// DefaultScenario decodes a 4x3 RGB 8-bit image.
func DefaultScenario() Scenario {
	return Scenario{
		Width:  4,
		Height: 3,
		Colors: 3,
		Bits:   8,
		State: engine.State{
			Width: 4, Height: 3, RawWidth: 8, RawHeight: 6,
			TopMargin: 1, LeftMargin: 2,
			Make: "Canon", Model: "EOS R5",
			ISOSpeed: 400, Shutter: 0.004, Aperture: 2.8, FocalLen: 50,
			Timestamp: 1700000000, ShotOrder: 17,
			Desc: "test shot", Artist: "tester",
			ThumbWidth: 160, ThumbHeight: 120, ThumbFormat: 1,
		},
	}
}

type heap struct {
	next   uint32
	live   map[uint32]uint32
	images map[uint32]bool
}

type processor struct {
	input     []byte
	opened    bool
	unpacked  bool
	processed bool
}

// Guest is a shim implementation with allocation accounting.
type Guest struct {
	mu       sync.Mutex
	scenario Scenario
	heaps    map[api.Memory]*heap
	procs    map[uint32]*processor
	handle   uint32

	nums    map[string]map[int]float64
	strs    map[string]string
	opened  [][]byte
	calls   map[string]int
	allocs  int
	frees   int
	doubles int
	cleared int
	strBad  int
}

// NewGuest returns a guest running s.
func NewGuest(s Scenario) *Guest {
	return &Guest{
		scenario: s,
		heaps:    make(map[api.Memory]*heap),
		procs:    make(map[uint32]*processor),
		nums:     make(map[string]map[int]float64),
		strs:     make(map[string]string),
		calls:    make(map[string]int),
	}
}

// SetScenario replaces the scenario for subsequent calls.
func (g *Guest) SetScenario(s Scenario) {
	g.mu.Lock()
	g.scenario = s
	g.mu.Unlock()
}

// Binary returns the forwarding module exporting the full shim ABI.
func (g *Guest) Binary() []byte {
	return ForwardingBinary(engine.ExportNames()...)
}

// ForwardingBinary builds a guest exporting only the named shim functions.
func ForwardingBinary(names ...string) []byte {
	fw := &wasmtest.Forwarder{ImportModule: HostModuleName, MemoryPages: 16}
	for _, name := range names {
		params, results, _ := engine.ExportSignature(name)
		fw.Funcs = append(fw.Funcs, wasmtest.Func{Name: name, Params: params, Results: results})
	}
	return fw.Encode()
}

// HostModule installs the fake into an engine runtime.
func (g *Guest) HostModule() engine.HostModule {
	return func(ctx context.Context, r wazero.Runtime) error {
		b := r.NewHostModuleBuilder(HostModuleName)
		for name, fn := range g.functions() {
			params, results, _ := engine.ExportSignature(name)
			b = b.NewFunctionBuilder().
				WithGoModuleFunction(g.wrap(name, fn), params, results).
				Export(name)
		}
		_, err := b.Instantiate(ctx)
		return err
	}
}

type hostFunc func(mem api.Memory, h *heap, stack []uint64)

func (g *Guest) wrap(name string, fn hostFunc) api.GoModuleFunc {
	return func(_ context.Context, mod api.Module, stack []uint64) {
		g.mu.Lock()
		defer g.mu.Unlock()

		g.calls[name]++
		if g.scenario.TrapOn == name {
			panic(fmt.Sprintf("%s: trap requested", name))
		}
		mem := mod.Memory()
		h := g.heaps[mem]
		if h == nil {
			h = &heap{next: heapBase, live: make(map[uint32]uint32), images: make(map[uint32]bool)}
			g.heaps[mem] = h
		}
		fn(mem, h, stack)
	}
}

func (g *Guest) functions() map[string]hostFunc {
	return map[string]hostFunc{
		engine.ExportMalloc: func(mem api.Memory, h *heap, stack []uint64) {
			stack[0] = uint64(g.malloc(mem, h, uint32(stack[0])))
		},
		engine.ExportFree: func(_ api.Memory, h *heap, stack []uint64) {
			g.free(h, uint32(stack[0]))
		},
		engine.ExportInit: func(_ api.Memory, _ *heap, stack []uint64) {
			g.handle++
			g.procs[g.handle] = &processor{}
			stack[0] = uint64(g.handle)
		},
		engine.ExportClose: func(_ api.Memory, _ *heap, stack []uint64) {
			delete(g.procs, uint32(stack[0]))
		},
		engine.ExportOpenBuffer: func(mem api.Memory, _ *heap, stack []uint64) {
			p := g.procs[uint32(stack[0])]
			ptr, size := uint32(stack[1]), uint32(stack[2])
			if p == nil || size == 0 {
				stack[0] = status(engine.StatusIOError)
				return
			}
			data, _ := mem.Read(ptr, size)
			p.input = bytes.Clone(data)
			g.opened = append(g.opened, p.input)
			if g.scenario.OpenStatus != engine.StatusSuccess {
				stack[0] = status(g.scenario.OpenStatus)
				return
			}
			p.opened = true
			stack[0] = status(engine.StatusSuccess)
		},
		engine.ExportUnpack: func(_ api.Memory, _ *heap, stack []uint64) {
			p := g.procs[uint32(stack[0])]
			switch {
			case p == nil || !p.opened:
				stack[0] = status(engine.StatusOutOfOrderCall)
			case g.scenario.UnpackStatus != engine.StatusSuccess:
				stack[0] = status(g.scenario.UnpackStatus)
			default:
				p.unpacked = true
				stack[0] = status(engine.StatusSuccess)
			}
		},
		engine.ExportProcess: func(_ api.Memory, _ *heap, stack []uint64) {
			p := g.procs[uint32(stack[0])]
			switch {
			case p == nil || !p.unpacked:
				stack[0] = status(engine.StatusOutOfOrderCall)
			case g.scenario.ProcessStatus != engine.StatusSuccess:
				stack[0] = status(g.scenario.ProcessStatus)
			default:
				p.processed = true
				stack[0] = status(engine.StatusSuccess)
			}
		},
		engine.ExportMakeMemImage: func(mem api.Memory, h *heap, stack []uint64) {
			p := g.procs[uint32(stack[0])]
			errc := uint32(stack[1])
			switch {
			case p == nil || !p.processed:
				mem.WriteUint32Le(errc, uint32(status(engine.StatusOutOfOrderCall)))
				stack[0] = 0
			case g.scenario.NoImage:
				mem.WriteUint32Le(errc, uint32(status(g.scenario.ImageErrc)))
				stack[0] = 0
			default:
				stack[0] = uint64(g.makeImage(mem, h))
			}
		},
		engine.ExportClearMem: func(_ api.Memory, h *heap, stack []uint64) {
			ptr := uint32(stack[0])
			g.cleared++
			if !h.images[ptr] {
				g.doubles++
				return
			}
			delete(h.images, ptr)
			g.free(h, ptr)
		},
		engine.ExportSetParamI32: func(mem api.Memory, _ *heap, stack []uint64) {
			stack[0] = g.setNum(mem, stack, float64(api.DecodeI32(stack[4])))
		},
		engine.ExportSetParamF32: func(mem api.Memory, _ *heap, stack []uint64) {
			stack[0] = g.setNum(mem, stack, float64(api.DecodeF32(stack[4])))
		},
		engine.ExportSetParamF64: func(mem api.Memory, _ *heap, stack []uint64) {
			stack[0] = g.setNum(mem, stack, api.DecodeF64(stack[4]))
		},
		engine.ExportSetParamStr: func(mem api.Memory, h *heap, stack []uint64) {
			key := readKey(mem, stack)
			if key == g.scenario.RejectKey {
				stack[0] = 1
				return
			}
			ptr := uint32(stack[3])
			if ptr == 0 {
				g.strs[key] = ""
				stack[0] = 0
				return
			}
			size, ok := h.live[ptr]
			if !ok {
				g.strBad++
				stack[0] = 0
				return
			}
			raw, _ := mem.Read(ptr, size)
			if i := bytes.IndexByte(raw, 0); i >= 0 {
				raw = raw[:i]
			} else {
				g.strBad++
			}
			g.strs[key] = string(raw)
			stack[0] = 0
		},
		engine.ExportGetState: func(mem api.Memory, _ *heap, stack []uint64) {
			if g.procs[uint32(stack[0])] == nil {
				stack[0] = status(engine.StatusOutOfOrderCall)
				return
			}
			mem.Write(uint32(stack[1]), engine.EncodeState(&g.scenario.State))
			stack[0] = status(engine.StatusSuccess)
		},
	}
}

func status(s engine.Status) uint64 {
	return api.EncodeI32(int32(s))
}

func readKey(mem api.Memory, stack []uint64) string {
	b, _ := mem.Read(uint32(stack[1]), uint32(stack[2]))
	return string(b)
}

func (g *Guest) setNum(mem api.Memory, stack []uint64, v float64) uint64 {
	key := readKey(mem, stack)
	if key == g.scenario.RejectKey {
		return 1
	}
	if g.nums[key] == nil {
		g.nums[key] = make(map[int]float64)
	}
	g.nums[key][int(api.DecodeI32(stack[3]))] = v
	return 0
}

func (g *Guest) malloc(mem api.Memory, h *heap, size uint32) uint32 {
	ptr := (h.next + 7) &^ 7
	if size == 0 || uint64(ptr)+uint64(size) > uint64(mem.Size()) {
		return 0
	}
	h.next = ptr + size
	h.live[ptr] = size
	g.allocs++
	return ptr
}

func (g *Guest) free(h *heap, ptr uint32) {
	if ptr == 0 {
		return
	}
	if _, ok := h.live[ptr]; !ok {
		g.doubles++
		return
	}
	delete(h.live, ptr)
	g.frees++
}

func (g *Guest) makeImage(mem api.Memory, h *heap) uint32 {
	s := g.scenario
	count := uint32(s.Width) * uint32(s.Height) * uint32(s.Colors)
	size := count * uint32((s.Bits+7)/8)
	if s.DataSize != 0 {
		size = s.DataSize
	}

	ptr := g.malloc(mem, h, engine.ImageHeaderSize+size)
	if ptr == 0 {
		return 0
	}
	hdr := make([]byte, engine.ImageHeaderSize)
	le := binary.LittleEndian
	le.PutUint32(hdr[engine.ImageTypeOffset:], uint32(engine.ImageBitmap))
	le.PutUint16(hdr[engine.ImageHeightOffset:], s.Height)
	le.PutUint16(hdr[engine.ImageWidthOffset:], s.Width)
	le.PutUint16(hdr[engine.ImageColorsOffset:], s.Colors)
	le.PutUint16(hdr[engine.ImageBitsOffset:], s.Bits)
	le.PutUint32(hdr[engine.ImageDataSizeOffset:], size)
	mem.Write(ptr, hdr)
	mem.Write(ptr+engine.ImageHeaderSize, Pattern(s.Bits, int(size)))

	h.images[ptr] = true
	return ptr
}

// Pattern is the pixel payload the fakes produce: sample i holds i (8-bit)
// or i*257 (16-bit, little endian).
func Pattern(bits uint16, size int) []byte {
	out := make([]byte, size)
	if bits == 16 {
		for i := 0; i+1 < size; i += 2 {
			binary.LittleEndian.PutUint16(out[i:], uint16(i/2)*257)
		}
		return out
	}
	for i := range out {
		out[i] = byte(i)
	}
	return out
}

// Stats is a snapshot of guest accounting.
type Stats struct {
	Allocs      int
	Frees       int
	Live        int
	DoubleFrees int
	Cleared     int
	LiveImages  int
	Processors  int
	BadStrings  int
}

// Stats returns allocation and lifecycle counters.
func (g *Guest) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := Stats{
		Allocs:      g.allocs,
		Frees:       g.frees,
		DoubleFrees: g.doubles,
		Cleared:     g.cleared,
		Processors:  len(g.procs),
		BadStrings:  g.strBad,
	}
	for _, h := range g.heaps {
		s.Live += len(h.live)
		s.LiveImages += len(h.images)
	}
	return s
}

// Calls reports how often an export was invoked.
func (g *Guest) Calls(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[name]
}

// Param returns the last value pushed for key[index].
func (g *Guest) Param(key string, index int) (float64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.nums[key][index]
	return v, ok
}

// StringParam returns the last string pushed for key.
func (g *Guest) StringParam(key string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.strs[key]
	return v, ok
}

// Opened returns every buffer passed to libraw_open_buffer.
func (g *Guest) Opened() [][]byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([][]byte(nil), g.opened...)
}
