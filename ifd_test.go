package tiffengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIFDPutGetOrder(t *testing.T) {
	ifd := NewIFD()
	ifd.Put(TagImageLength, Value{Type: TLong, Ints: []int64{256}})
	ifd.Put(TagImageWidth, Value{Type: TLong, Ints: []int64{512}})
	assert.Equal(t, []Tag{TagImageWidth, TagImageLength}, ifd.Tags())

	w, err := ifd.ImageWidth()
	assert.NoError(t, err)
	assert.Equal(t, int64(512), w)
}

func TestIFDMissingTagErrors(t *testing.T) {
	ifd := NewIFD()
	_, err := ifd.ImageWidth()
	assert.ErrorAs(t, err, &MalformedIfd{})
}

func TestIFDFreezeRejectsWrites(t *testing.T) {
	ifd := NewIFD()
	ifd.Put(TagImageWidth, Value{Type: TLong, Ints: []int64{100}})
	ifd.Freeze()
	assert.True(t, ifd.IsFrozen())

	ifd.Put(TagImageLength, Value{Type: TLong, Ints: []int64{200}})
	_, ok := ifd.Get(TagImageLength)
	assert.False(t, ok, "Put after Freeze must be a no-op")
}

func TestIFDClone(t *testing.T) {
	ifd := NewIFD()
	ifd.Put(TagImageWidth, Value{Type: TLong, Ints: []int64{100}})
	ifd.Freeze()

	clone := ifd.Clone()
	assert.False(t, clone.IsFrozen())
	clone.Put(TagImageLength, Value{Type: TLong, Ints: []int64{200}})

	_, ok := ifd.Get(TagImageLength)
	assert.False(t, ok, "mutating the clone must not affect the original")
	h, err := clone.ImageHeight()
	assert.NoError(t, err)
	assert.Equal(t, int64(200), h)
}

func TestTileGridDimensions(t *testing.T) {
	ifd := NewIFD()
	ifd.Put(TagImageWidth, Value{Type: TLong, Ints: []int64{1000}})
	ifd.Put(TagImageLength, Value{Type: TLong, Ints: []int64{1000}})
	ifd.Put(TagTileWidth, Value{Type: TShort, Ints: []int64{256}})
	ifd.Put(TagTileLength, Value{Type: TShort, Ints: []int64{256}})

	gw, err := ifd.TileGridWidth()
	assert.NoError(t, err)
	assert.Equal(t, int64(4), gw) // ceil(1000/256) == 4

	gh, err := ifd.TileGridHeight()
	assert.NoError(t, err)
	assert.Equal(t, int64(4), gh)

	assert.True(t, ifd.IsTiled())
}

func TestValidateRequiresExactlyOneLayout(t *testing.T) {
	ifd := NewIFD()
	ifd.Put(TagImageWidth, Value{Type: TLong, Ints: []int64{16}})
	ifd.Put(TagImageLength, Value{Type: TLong, Ints: []int64{16}})
	err := ifd.Validate()
	assert.Error(t, err, "neither strip nor tile metadata present")

	ifd.Put(TagStripOffsets, Value{Type: TLong, Ints: []int64{8}})
	ifd.Put(TagStripByteCounts, Value{Type: TLong, Ints: []int64{32}})
	ifd.Put(TagRowsPerStrip, Value{Type: TShort, Ints: []int64{16}})
	assert.NoError(t, ifd.Validate())

	ifd.Put(TagTileOffsets, Value{Type: TLong, Ints: []int64{8}})
	assert.Error(t, ifd.Validate(), "both strip and tile metadata present")
}

func TestPhotometricUnknownFallback(t *testing.T) {
	ifd := NewIFD()
	assert.Equal(t, PhotometricUnknown, ifd.PhotometricInterpretationOf())

	ifd.Put(TagPhotometricInterpretation, Value{Type: TShort, Ints: []int64{99999}})
	assert.Equal(t, PhotometricUnknown, ifd.PhotometricInterpretationOf())

	ifd2 := NewIFD()
	ifd2.Put(TagPhotometricInterpretation, Value{Type: TShort, Ints: []int64{int64(PhotometricRGB)}})
	assert.Equal(t, PhotometricRGB, ifd2.PhotometricInterpretationOf())
}
