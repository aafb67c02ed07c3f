package tiffengine

import (
	"context"
	"encoding/binary"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geocore/tiffengine/internal/codec"
)

// writeGridFile builds an 8x8, 4x4-tiled classic TIFF (a 2x2 tile grid) with
// distinct fill bytes per tile, so ReadRect's multi-tile fan-out can be
// checked for correct per-tile stitching.
func writeGridFile(t *testing.T) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "tiffengine-grid-*.tif")
	require.NoError(t, err)
	defer f.Close()

	order := binary.LittleEndian
	_, err = WriteHeader(f, order, false)
	require.NoError(t, err)

	ifd := NewIFD()
	ifd.Put(TagImageWidth, Value{Type: TLong, Ints: []int64{8}})
	ifd.Put(TagImageLength, Value{Type: TLong, Ints: []int64{8}})
	ifd.Put(TagTileWidth, Value{Type: TShort, Ints: []int64{4}})
	ifd.Put(TagTileLength, Value{Type: TShort, Ints: []int64{4}})
	ifd.Put(TagBitsPerSample, Value{Type: TShort, Ints: []int64{8}})
	ifd.Put(TagSamplesPerPixel, Value{Type: TShort, Ints: []int64{1}})
	ifd.Put(TagCompression, Value{Type: TShort, Ints: []int64{int64(CompressionNone)}})
	ifd.Put(TagPhotometricInterpretation, Value{Type: TShort, Ints: []int64{int64(PhotometricBlackIsZero)}})

	e := &FileEngine{}
	st, err := e.WriteForward(f, order, false, ifd, 4)
	require.NoError(t, err)

	registry := codec.NewRegistry()
	for linear := 0; linear < 4; linear++ {
		tile := NewTile(TileIndex{}, 4, 4, 4, 4, 1, []int64{8}, SampleTypeUint8)
		fill := byte(linear * 10)
		for i := range tile.Decoded {
			tile.Decoded[i] = fill
		}
		require.NoError(t, e.WriteTile(f, st, linear, tile, registry, true))
	}
	require.NoError(t, e.CompleteWriting(f, st, 0))
	return f.Name()
}

func TestReadMapGridGeometry(t *testing.T) {
	path := writeGridFile(t)
	e := openEngine(t, path)
	cache := NewTileCache(nil, 1<<20)
	rm, err := newReadMap(e, cache, 0, e.Images()[0])
	require.NoError(t, err)

	assert.Equal(t, 2, rm.GridWidth())
	assert.Equal(t, 2, rm.GridHeight())
	assert.Equal(t, 4, rm.NumberOfTiles())
}

func TestReadMapReadTileOutOfBounds(t *testing.T) {
	path := writeGridFile(t)
	e := openEngine(t, path)
	rm, err := newReadMap(e, nil, 0, e.Images()[0])
	require.NoError(t, err)

	_, err = rm.ReadTile(context.Background(), TileIndex{X: 5, Y: 0})
	assert.ErrorAs(t, err, &BadRectangle{})
}

func TestReadMapReadRectSpansMultipleTiles(t *testing.T) {
	path := writeGridFile(t)
	e := openEngine(t, path)
	rm, err := newReadMap(e, nil, 0, e.Images()[0])
	require.NoError(t, err)

	rect, err := rm.ReadRect(context.Background(), 0, 0, 8, 8)
	require.NoError(t, err)
	require.Len(t, rect, 64)

	// Each tile fills its 4x4 quadrant with linearIndex*10; check one pixel
	// from each quadrant lands at the right place in the interleaved output.
	assert.Equal(t, byte(0), rect[0*8+0], "top-left quadrant (tile 0,0)")
	assert.Equal(t, byte(10), rect[0*8+7], "top-right quadrant (tile 1,0)")
	assert.Equal(t, byte(20), rect[7*8+0], "bottom-left quadrant (tile 0,1)")
	assert.Equal(t, byte(30), rect[7*8+7], "bottom-right quadrant (tile 1,1)")
}

func TestReadMapReadRectClipsSubGridRectangle(t *testing.T) {
	path := writeGridFile(t)
	e := openEngine(t, path)
	rm, err := newReadMap(e, nil, 0, e.Images()[0])
	require.NoError(t, err)

	// Straddles all four tiles: columns/rows 2-5 cross both the vertical
	// and horizontal tile boundary at 4.
	rect, err := rm.ReadRect(context.Background(), 2, 2, 4, 4)
	require.NoError(t, err)
	require.Len(t, rect, 16)

	rowBytes := 4
	assert.Equal(t, byte(0), rect[0*rowBytes+0], "top-left of rect, still tile (0,0)")
	assert.Equal(t, byte(10), rect[0*rowBytes+2], "top-right of rect, tile (1,0)")
	assert.Equal(t, byte(20), rect[2*rowBytes+0], "bottom-left of rect, tile (0,1)")
	assert.Equal(t, byte(30), rect[2*rowBytes+2], "bottom-right of rect, tile (1,1)")
}

func TestReadMapReadRectRejectsOutOfExtentRectangle(t *testing.T) {
	path := writeGridFile(t)
	e := openEngine(t, path)
	rm, err := newReadMap(e, nil, 0, e.Images()[0])
	require.NoError(t, err)

	_, err = rm.ReadRect(context.Background(), 0, 0, 100, 100)
	assert.ErrorAs(t, err, &BadRectangle{})
}

func TestReadMapReadRectRejectsNonPositiveSize(t *testing.T) {
	path := writeGridFile(t)
	e := openEngine(t, path)
	rm, err := newReadMap(e, nil, 0, e.Images()[0])
	require.NoError(t, err)

	_, err = rm.ReadRect(context.Background(), 0, 0, 0, 4)
	assert.ErrorAs(t, err, &BadRectangle{})
}
