package tiffengine

import "fmt"

// TileIndex identifies one tile within one image: its x/y grid position and,
// for planar-configuration=2 images, the channel-plane it belongs to.
// TileIndex values are pure identity — they do not own pixel data (spec.md
// 3).
type TileIndex struct {
	ImageIndex int
	X, Y       int
	Plane      int // 0 for planar configuration 1 (interleaved)
}

// String renders the index as "image:x,y" or "image:x,y/plane" when Plane
// is non-zero, for error messages and logging.
func (idx TileIndex) String() string {
	if idx.Plane == 0 {
		return fmt.Sprintf("%d:%d,%d", idx.ImageIndex, idx.X, idx.Y)
	}
	return fmt.Sprintf("%d:%d,%d/%d", idx.ImageIndex, idx.X, idx.Y, idx.Plane)
}

// Equal reports whether two indices name the same tile.
func (idx TileIndex) Equal(other TileIndex) bool {
	return idx == other
}

// linearIndex returns this tile's position in the row-major,
// plane-outermost enumeration of a grid gridW x gridH with nPlanes planes —
// the same layout TIFF's TileOffsets/TileByteCounts vectors use.
func (idx TileIndex) linearIndex(gridW, gridH int) int {
	return idx.Plane*gridW*gridH + idx.Y*gridW + idx.X
}
