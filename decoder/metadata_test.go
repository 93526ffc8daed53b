package decoder_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/libraw-wasm/decoder"
	"github.com/wippyai/libraw-wasm/internal/rawtest"
)

func TestMetadata_Projection(t *testing.T) {
	s := rawtest.DefaultScenario()
	s.State.Timestamp = 1 << 40
	d, _ := processed(t, s)

	m, err := d.Metadata(context.Background())
	require.NoError(t, err)

	st := s.State
	assert.Equal(t, decoder.Metadata{
		CameraMake:  st.Make,
		CameraModel: st.Model,
		Desc:        st.Desc,
		Artist:      st.Artist,
		Timestamp:   1 << 40,
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
		ThumbFormat: decoder.ThumbJPEG,
	}, *m)
}

func TestMetadata_JSON(t *testing.T) {
	d, _ := processed(t, rawtest.DefaultScenario())
	m, err := d.Metadata(context.Background())
	require.NoError(t, err)

	raw, err := json.Marshal(m)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, key := range []string{
		"width", "height", "raw_width", "raw_height", "top_margin", "left_margin",
		"camera_make", "camera_model", "iso_speed", "shutter", "aperture", "focal_len",
		"timestamp", "shot_order", "desc", "artist", "thumb_width", "thumb_height", "thumb_format",
	} {
		assert.Contains(t, fields, key)
	}
	assert.Len(t, fields, 19)
	assert.Equal(t, "EOS R5", fields["camera_model"])
	assert.EqualValues(t, 1, fields["thumb_format"])
}

func TestMetadata_Time(t *testing.T) {
	m := decoder.Metadata{Timestamp: 1700000000}
	assert.Equal(t, time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC), m.Time())
	assert.True(t, (&decoder.Metadata{}).Time().IsZero())
}

func TestThumbFormat_String(t *testing.T) {
	assert.Equal(t, "jpeg", decoder.ThumbJPEG.String())
	assert.Equal(t, "bitmap16", decoder.ThumbBitmap16.String())
	assert.Equal(t, "h265", decoder.ThumbH265.String())
	assert.Equal(t, "ThumbFormat(42)", decoder.ThumbFormat(42).String())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "created", decoder.StateCreated.String())
	assert.Equal(t, "processed", decoder.StateProcessed.String())
	assert.Equal(t, "closed", decoder.StateClosed.String())
}
