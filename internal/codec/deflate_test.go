package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeflateRoundTrip(t *testing.T) {
	raw := make([]byte, 256)
	for i := range raw {
		raw[i] = byte(i)
	}
	opts := Options{Width: 16, SamplesPerPixel: 1, BitsPerSample: []int64{8}, Predictor: 1}

	enc, err := deflateCodec{}.Encode(raw, opts)
	require.NoError(t, err)
	dec, err := deflateCodec{}.Decode(enc, opts)
	require.NoError(t, err)
	assert.Equal(t, raw, dec)
}

func TestDeflateRoundTripWithPredictor(t *testing.T) {
	raw := []byte{1, 2, 4, 8, 16, 32, 64, 128}
	opts := Options{Width: 8, SamplesPerPixel: 1, BitsPerSample: []int64{8}, Predictor: 2}

	enc, err := deflateCodec{}.Encode(raw, opts)
	require.NoError(t, err)
	dec, err := deflateCodec{}.Decode(enc, opts)
	require.NoError(t, err)
	assert.Equal(t, raw, dec)
}

func TestDeflateDecodeRejectsGarbage(t *testing.T) {
	_, err := deflateCodec{}.Decode([]byte{0x00, 0x01, 0x02}, Options{})
	assert.Error(t, err)
}
