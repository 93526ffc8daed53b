package decoder

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/libraw-wasm/engine"
)

// ThumbFormat is LibRaw's embedded thumbnail format code.
type ThumbFormat int32

const (
	ThumbUnknown  ThumbFormat = 0
	ThumbJPEG     ThumbFormat = 1
	ThumbBitmap   ThumbFormat = 2
	ThumbBitmap16 ThumbFormat = 3
	ThumbLayer    ThumbFormat = 4
	ThumbRollei   ThumbFormat = 5
	ThumbH265     ThumbFormat = 6
)

func (f ThumbFormat) String() string {
	switch f {
	case ThumbUnknown:
		return "unknown"
	case ThumbJPEG:
		return "jpeg"
	case ThumbBitmap:
		return "bitmap"
	case ThumbBitmap16:
		return "bitmap16"
	case ThumbLayer:
		return "layer"
	case ThumbRollei:
		return "rollei"
	case ThumbH265:
		return "h265"
	default:
		return "ThumbFormat(" + strconv.Itoa(int(f)) + ")"
	}
}

// Metadata is a snapshot of the decoded image's size, camera and exposure
// fields.
type Metadata struct {
	CameraMake  string      `json:"camera_make"`
	CameraModel string      `json:"camera_model"`
	Desc        string      `json:"desc"`
	Artist      string      `json:"artist"`
	Timestamp   int64       `json:"timestamp"`
	Width       uint32      `json:"width"`
	Height      uint32      `json:"height"`
	RawWidth    uint32      `json:"raw_width"`
	RawHeight   uint32      `json:"raw_height"`
	TopMargin   uint32      `json:"top_margin"`
	LeftMargin  uint32      `json:"left_margin"`
	ISOSpeed    float32     `json:"iso_speed"`
	Shutter     float32     `json:"shutter"`
	Aperture    float32     `json:"aperture"`
	FocalLen    float32     `json:"focal_len"`
	ShotOrder   uint32      `json:"shot_order"`
	ThumbWidth  uint32      `json:"thumb_width"`
	ThumbHeight uint32      `json:"thumb_height"`
	ThumbFormat ThumbFormat `json:"thumb_format"`
}

// Time returns Timestamp as a UTC time. A zero timestamp yields the zero Time.
func (m *Metadata) Time() time.Time {
	if m.Timestamp == 0 {
		return time.Time{}
	}
	return time.Unix(m.Timestamp, 0).UTC()
}

func metadataFrom(st *engine.State) *Metadata {
	return &Metadata{
		CameraMake:  st.Make,
		CameraModel: st.Model,
		Desc:        st.Desc,
		Artist:      st.Artist,
		Timestamp:   st.Timestamp,
		Width:       st.Width,
		Height:      st.Height,
		RawWidth:    st.RawWidth,
		RawHeight:   st.RawHeight,
		TopMargin:   st.TopMargin,
		LeftMargin:  st.LeftMargin,
		ISOSpeed:    st.ISOSpeed,
		Shutter:     st.Shutter,
		Aperture:    st.Aperture,
		FocalLen:    st.FocalLen,
		ShotOrder:   st.ShotOrder,
		ThumbWidth:  st.ThumbWidth,
		ThumbHeight: st.ThumbHeight,
		ThumbFormat: ThumbFormat(st.ThumbFormat),
	}
}

// Metadata reads the decoded-state fields. The decoder must be processed.
func (d *Decoder) Metadata(ctx context.Context) (*Metadata, error) {
	if err := d.ready("metadata"); err != nil {
		return nil, err
	}
	st, err := d.eng.State(ctx)
	if err != nil {
		return nil, err
	}
	m := metadataFrom(st)
	d.log.Debug("metadata",
		zap.String("make", m.CameraMake),
		zap.String("model", m.CameraModel),
		zap.Uint32("width", m.Width),
		zap.Uint32("height", m.Height))
	return m, nil
}
