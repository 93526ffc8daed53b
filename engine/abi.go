package engine

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/libraw-wasm/errors"
)

// Guest exports of the LibRaw shim.
const (
	ExportMemory        = "memory"
	ExportMalloc        = "malloc"
	ExportFree          = "free"
	ExportInit          = "libraw_init"
	ExportClose         = "libraw_close"
	ExportOpenBuffer    = "libraw_open_buffer"
	ExportUnpack        = "libraw_unpack"
	ExportProcess       = "libraw_dcraw_process"
	ExportMakeMemImage  = "libraw_dcraw_make_mem_image"
	ExportClearMem      = "libraw_dcraw_clear_mem"
	ExportSetParamI32   = "libraw_set_param_i32"
	ExportSetParamF32   = "libraw_set_param_f32"
	ExportSetParamF64   = "libraw_set_param_f64"
	ExportSetParamStr   = "libraw_set_param_str"
	ExportGetState      = "libraw_get_state"
	wasiModuleName      = "wasi_snapshot_preview1"
	emscriptenEnvModule = "env"
)

var i32 = api.ValueTypeI32

// exportSignatures lists every function the shim must export.
var exportSignatures = map[string]struct{ params, results []api.ValueType }{
	ExportMalloc:       {[]api.ValueType{i32}, []api.ValueType{i32}},
	ExportFree:         {[]api.ValueType{i32}, nil},
	ExportInit:         {[]api.ValueType{i32}, []api.ValueType{i32}},
	ExportClose:        {[]api.ValueType{i32}, nil},
	ExportOpenBuffer:   {[]api.ValueType{i32, i32, i32}, []api.ValueType{i32}},
	ExportUnpack:       {[]api.ValueType{i32}, []api.ValueType{i32}},
	ExportProcess:      {[]api.ValueType{i32}, []api.ValueType{i32}},
	ExportMakeMemImage: {[]api.ValueType{i32, i32}, []api.ValueType{i32}},
	ExportClearMem:     {[]api.ValueType{i32}, nil},
	ExportSetParamI32:  {[]api.ValueType{i32, i32, i32, i32, i32}, []api.ValueType{i32}},
	ExportSetParamF32:  {[]api.ValueType{i32, i32, i32, i32, api.ValueTypeF32}, []api.ValueType{i32}},
	ExportSetParamF64:  {[]api.ValueType{i32, i32, i32, i32, api.ValueTypeF64}, []api.ValueType{i32}},
	ExportSetParamStr:  {[]api.ValueType{i32, i32, i32, i32}, []api.ValueType{i32}},
	ExportGetState:     {[]api.ValueType{i32, i32}, []api.ValueType{i32}},
}

// ExportSignature returns the expected parameter and result types of a shim export.
func ExportSignature(name string) (params, results []api.ValueType, ok bool) {
	sig, ok := exportSignatures[name]
	return sig.params, sig.results, ok
}

// ExportNames lists the function exports in a stable order.
func ExportNames() []string {
	return []string{
		ExportMalloc, ExportFree, ExportInit, ExportClose, ExportOpenBuffer,
		ExportUnpack, ExportProcess, ExportMakeMemImage, ExportClearMem,
		ExportSetParamI32, ExportSetParamF32, ExportSetParamF64, ExportSetParamStr,
		ExportGetState,
	}
}

// checkExports verifies the compiled module exposes the shim ABI.
func checkExports(compiled wazero.CompiledModule) error {
	var missing []string

	funcs := compiled.ExportedFunctions()
	for _, name := range ExportNames() {
		def, ok := funcs[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		sig := exportSignatures[name]
		if !sameTypes(def.ParamTypes(), sig.params) || !sameTypes(def.ResultTypes(), sig.results) {
			return errors.New(errors.PhaseLoad, errors.KindTypeMismatch).
				Path(name).
				Detail("export has signature %v -> %v", def.ParamTypes(), def.ResultTypes()).
				Build()
		}
	}
	if _, ok := compiled.ExportedMemories()[ExportMemory]; !ok {
		missing = append(missing, ExportMemory)
	}

	if len(missing) > 0 {
		return errors.NewMissingExportsError(missing)
	}
	return nil
}

func sameTypes(a, b []api.ValueType) bool {
	return bytes.Equal(a, b)
}

// libraw_processed_image_t on wasm32.
const (
	ImageTypeOffset     = 0
	ImageHeightOffset   = 4
	ImageWidthOffset    = 6
	ImageColorsOffset   = 8
	ImageBitsOffset     = 10
	ImageDataSizeOffset = 12
	ImageHeaderSize     = 16
)

// State record written by libraw_get_state.
const (
	StateRecordSize = 768

	stateISOOffset       = 24
	stateTimestampOffset = 40
	stateShotOrderOffset = 48
	stateThumbOffset     = 52
	stateMakeOffset      = 64
	stateModelOffset     = 128
	stateDescOffset      = 192
	stateArtistOffset    = 704

	stateMakeLen   = 64
	stateModelLen  = 64
	stateDescLen   = 512
	stateArtistLen = 64
)

// DecodeState parses a state record.
func DecodeState(b []byte) (*State, error) {
	if len(b) < StateRecordSize {
		return nil, errors.InvalidData(errors.PhaseState, []string{"state"}, "short state record")
	}
	le := binary.LittleEndian
	f32 := func(off int) float32 { return math.Float32frombits(le.Uint32(b[off:])) }

	return &State{
		Width:       le.Uint32(b[0:]),
		Height:      le.Uint32(b[4:]),
		RawWidth:    le.Uint32(b[8:]),
		RawHeight:   le.Uint32(b[12:]),
		TopMargin:   le.Uint32(b[16:]),
		LeftMargin:  le.Uint32(b[20:]),
		ISOSpeed:    f32(stateISOOffset),
		Shutter:     f32(stateISOOffset + 4),
		Aperture:    f32(stateISOOffset + 8),
		FocalLen:    f32(stateISOOffset + 12),
		Timestamp:   int64(le.Uint64(b[stateTimestampOffset:])),
		ShotOrder:   le.Uint32(b[stateShotOrderOffset:]),
		ThumbWidth:  le.Uint32(b[stateThumbOffset:]),
		ThumbHeight: le.Uint32(b[stateThumbOffset+4:]),
		ThumbFormat: int32(le.Uint32(b[stateThumbOffset+8:])),
		Make:        cString(b[stateMakeOffset : stateMakeOffset+stateMakeLen]),
		Model:       cString(b[stateModelOffset : stateModelOffset+stateModelLen]),
		Desc:        cString(b[stateDescOffset : stateDescOffset+stateDescLen]),
		Artist:      cString(b[stateArtistOffset : stateArtistOffset+stateArtistLen]),
	}, nil
}

// EncodeState writes s as a state record. Strings longer than their slot
// are truncated to leave room for the terminator.
func EncodeState(s *State) []byte {
	b := make([]byte, StateRecordSize)
	le := binary.LittleEndian

	le.PutUint32(b[0:], s.Width)
	le.PutUint32(b[4:], s.Height)
	le.PutUint32(b[8:], s.RawWidth)
	le.PutUint32(b[12:], s.RawHeight)
	le.PutUint32(b[16:], s.TopMargin)
	le.PutUint32(b[20:], s.LeftMargin)
	le.PutUint32(b[stateISOOffset:], math.Float32bits(s.ISOSpeed))
	le.PutUint32(b[stateISOOffset+4:], math.Float32bits(s.Shutter))
	le.PutUint32(b[stateISOOffset+8:], math.Float32bits(s.Aperture))
	le.PutUint32(b[stateISOOffset+12:], math.Float32bits(s.FocalLen))
	le.PutUint64(b[stateTimestampOffset:], uint64(s.Timestamp))
	le.PutUint32(b[stateShotOrderOffset:], s.ShotOrder)
	le.PutUint32(b[stateThumbOffset:], s.ThumbWidth)
	le.PutUint32(b[stateThumbOffset+4:], s.ThumbHeight)
	le.PutUint32(b[stateThumbOffset+8:], uint32(s.ThumbFormat))

	copy(b[stateMakeOffset:stateMakeOffset+stateMakeLen-1], s.Make)
	copy(b[stateModelOffset:stateModelOffset+stateModelLen-1], s.Model)
	copy(b[stateDescOffset:stateDescOffset+stateDescLen-1], s.Desc)
	copy(b[stateArtistOffset:stateArtistOffset+stateArtistLen-1], s.Artist)
	return b
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
