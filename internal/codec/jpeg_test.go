package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeJPEGTablesSplicesBeforeScanData(t *testing.T) {
	tables := []byte{0xFF, 0xD8, 0xAA, 0xBB, 0xFF, 0xD9}
	scan := []byte{0xFF, 0xD8, 0xCC, 0xDD, 0xFF, 0xD9}

	merged := mergeJPEGTables(tables, scan)
	expected := []byte{0xFF, 0xD8, 0xAA, 0xBB, 0xCC, 0xDD, 0xFF, 0xD9}
	assert.Equal(t, expected, merged)
}

func TestMergeJPEGTablesToleratesMissingMarkers(t *testing.T) {
	tables := []byte{0xAA}
	scan := []byte{0xBB}
	assert.Equal(t, []byte{0xAA, 0xBB}, mergeJPEGTables(tables, scan))
}

func TestJPEGGrayscaleRoundTripFlatImagePreservesValue(t *testing.T) {
	w, h := 8, 8
	raw := make([]byte, w*h)
	for i := range raw {
		raw[i] = 128
	}
	opts := Options{Width: w, Height: h, SamplesPerPixel: 1}

	enc, err := jpegCodec{}.Encode(raw, opts)
	require.NoError(t, err)

	dec, err := jpegCodec{}.Decode(enc, opts)
	require.NoError(t, err)
	require.Len(t, dec, w*h)
	// A uniform flat field survives quality-90 baseline JPEG essentially
	// losslessly; allow a couple of levels of quantization slack.
	for _, v := range dec {
		assert.InDelta(t, 128, v, 2)
	}
}

func TestJPEGRGBRoundTripDimensions(t *testing.T) {
	w, h := 8, 8
	raw := make([]byte, w*h*3)
	for i := 0; i < w*h; i++ {
		raw[i*3] = 200
		raw[i*3+1] = 100
		raw[i*3+2] = 50
	}
	opts := Options{Width: w, Height: h, SamplesPerPixel: 3}

	enc, err := jpegCodec{}.Encode(raw, opts)
	require.NoError(t, err)
	dec, err := jpegCodec{}.Decode(enc, opts)
	require.NoError(t, err)
	assert.Len(t, dec, w*h*3)
}
