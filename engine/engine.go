package engine

import (
	"context"
	"encoding/binary"

	"github.com/wippyai/libraw-wasm/params"
)

// Engine is the LibRaw adapter a decoder drives. Implementations own one
// decoding processor; they are not safe for concurrent use.
//
// SetParams pushes only the options named in keys, taken from p; every
// other engine option keeps its current value.
//
// Status values report what LibRaw returned. A non-nil error means the call
// itself failed (trap, memory fault, closed instance) and the status is
// meaningless.
type Engine interface {
	SetParams(ctx context.Context, p *params.Params, keys []string) error
	OpenBuffer(ctx context.Context, data []byte) (Status, error)
	Unpack(ctx context.Context) (Status, error)
	Process(ctx context.Context) (Status, error)
	State(ctx context.Context) (*State, error)
	// MakeMemImage renders the processed image. A nil image with a nil error
	// means the engine produced nothing; the status carries its error code.
	MakeMemImage(ctx context.Context) (*ProcessedImage, Status, error)
	ClearMem(ctx context.Context, img *ProcessedImage) error
	Close(ctx context.Context) error
}

// State is a snapshot of the decoded-image fields exposed as metadata.
type State struct {
	Make   string
	Model  string
	Desc   string
	Artist string

	Timestamp int64

	Width      uint32
	Height     uint32
	RawWidth   uint32
	RawHeight  uint32
	TopMargin  uint32
	LeftMargin uint32

	ISOSpeed float32
	Shutter  float32
	Aperture float32
	FocalLen float32

	ShotOrder   uint32
	ThumbWidth  uint32
	ThumbHeight uint32
	ThumbFormat int32
}

// ProcessedImage describes a libraw_processed_image_t. Data aliases engine
// memory and is valid until ClearMem.
type ProcessedImage struct {
	// Order is the byte order of 16-bit samples in Data.
	Order binary.ByteOrder
	Data  []byte

	// Handle identifies the engine allocation for ClearMem.
	Handle uint64

	Type     int32
	DataSize uint32
	Height   uint16
	Width    uint16
	Colors   uint16
	Bits     uint16
}

// Image types reported in ProcessedImage.Type.
const (
	ImageJPEG   int32 = 1
	ImageBitmap int32 = 2
)
