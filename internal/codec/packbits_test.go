package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackBitsRoundTripMixedRuns(t *testing.T) {
	raw := []byte{
		1, 1, 1, 1, 1, // repeat run
		2, 3, 4, 5, // literal run
		9, 9, 9, // repeat run
	}
	enc, err := packBitsCodec{}.Encode(raw, Options{})
	require.NoError(t, err)

	dec, err := packBitsCodec{}.Decode(enc, Options{})
	require.NoError(t, err)
	assert.Equal(t, raw, dec)
}

func TestPackBitsDecodeNoOpMarker(t *testing.T) {
	// -128 is the documented no-op byte: it consumes no further input.
	dec, err := packBitsCodec{}.Decode([]byte{0x80, 0x00, 0x05}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x05}, dec)
}

func TestPackBitsDecodeLiteralRun(t *testing.T) {
	// n=2 (literal run of 3 bytes)
	dec, err := packBitsCodec{}.Decode([]byte{2, 0xAA, 0xBB, 0xCC}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, dec)
}

func TestPackBitsDecodeRepeatRun(t *testing.T) {
	// n=-3 (repeat the following byte 4 times)
	dec, err := packBitsCodec{}.Decode([]byte{0xFD, 0x7F}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x7F, 0x7F, 0x7F, 0x7F}, dec)
}

func TestPackBitsEncodeProducesValidDecodeForSingleByte(t *testing.T) {
	enc, err := packBitsCodec{}.Encode([]byte{0x42}, Options{})
	require.NoError(t, err)
	dec, err := packBitsCodec{}.Decode(enc, Options{})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x42}, dec)
}
