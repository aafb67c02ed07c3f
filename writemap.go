package tiffengine

import (
	"sync"
)

// WriteMap is the write-side view of one output image directory: it accepts
// tiles and hands completed rows to a FileEngine for on-disk placement
// (spec.md 4.4). Tiles are normally committed in raster order (plane-outer,
// row-major), but committing out of order is permitted — it is simply
// buffered until its row becomes committable — since spec.md 4.4 only
// warns that out-of-order commits may defeat streaming optimisations, not
// that they are rejected. A tile committed twice is still an error.
type WriteMap struct {
	mu sync.Mutex

	ifd    *IFD
	gridW  int
	gridH  int
	planes int

	samplesPerPixel int
	bitsPerSample   []int64
	sampleType      SampleType

	// written tracks which (plane, y, x) cells have been committed, to
	// reject duplicates.
	written map[TileIndex]bool
	// pending holds committed tiles still waiting for their row's turn,
	// keyed by grid position, for out-of-order commits.
	pending map[TileIndex]*Tile
	// nextX/nextY/nextPlane is the raster-order cursor: the next position
	// drain will try to pull from pending.
	nextX, nextY, nextPlane int

	onRowComplete func(plane, y int, tiles []*Tile) error

	rowBuf   []*Tile
	complete bool
}

// NewWriteMap builds an empty WriteMap over an IFD whose geometry tags
// (width/height/tile or strip dims/samples per pixel/bits per sample) are
// already set. onRowComplete is invoked once every tile in a row has been
// committed, and is expected to hand the row off to the FileEngine for
// encoding and placement.
func NewWriteMap(ifd *IFD, onRowComplete func(plane, y int, tiles []*Tile) error) (*WriteMap, error) {
	gw, err := ifd.TileGridWidth()
	if err != nil {
		return nil, err
	}
	gh, err := ifd.TileGridHeight()
	if err != nil {
		return nil, err
	}
	planes := 1
	if ifd.PlanarConfigurationOf() == PlanarConfigurationSeparate {
		planes = int(ifd.SamplesPerPixel())
	}
	bps := ifd.BitsPerSample()
	st, _ := SampleTypeOf(int(bps[0]), SampleFormat(ifd.GetInt(TagSampleFormat, int64(SampleFormatUInt))))
	return &WriteMap{
		ifd:             ifd,
		gridW:           int(gw),
		gridH:           int(gh),
		planes:          planes,
		samplesPerPixel: int(ifd.SamplesPerPixel()),
		bitsPerSample:   bps,
		sampleType:      st,
		written:         make(map[TileIndex]bool),
		pending:         make(map[TileIndex]*Tile),
		onRowComplete:   onRowComplete,
	}, nil
}

// NewTile allocates a fresh Tile for grid position (x, y, plane), sized to
// this WriteMap's geometry, accounting for right/bottom-edge clipping of the
// logical extent.
func (wm *WriteMap) NewTile(x, y, plane int) (*Tile, error) {
	tw, err := wm.ifd.TileWidth()
	if err != nil {
		return nil, err
	}
	th, err := wm.ifd.TileHeight()
	if err != nil {
		return nil, err
	}
	imgW, err := wm.ifd.ImageWidth()
	if err != nil {
		return nil, err
	}
	imgH, err := wm.ifd.ImageHeight()
	if err != nil {
		return nil, err
	}
	logicalW := int(tw)
	if right := int(tw) * (x + 1); right > int(imgW) {
		logicalW = int(imgW) - int(tw)*x
	}
	logicalH := int(th)
	if bottom := int(th) * (y + 1); bottom > int(imgH) {
		logicalH = int(imgH) - int(th)*y
	}
	idx := TileIndex{X: x, Y: y, Plane: plane}
	return NewTile(idx, logicalW, logicalH, int(tw), int(th), wm.samplesPerPixel, wm.bitsPerSample, wm.sampleType), nil
}

// Put commits tile at its own Index. Out-of-order commits are buffered in
// wm.pending and released once the raster-order cursor reaches them, so
// onRowComplete still fires rows in correct order regardless of the order
// tiles actually arrive in. A tile committed twice returns DuplicateTile.
func (wm *WriteMap) Put(tile *Tile) error {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	if wm.complete {
		return Unimplemented{Operation: "put after completeWriting"}
	}
	idx := tile.Index
	if idx.X < 0 || idx.X >= wm.gridW || idx.Y < 0 || idx.Y >= wm.gridH || idx.Plane < 0 || idx.Plane >= wm.planes {
		return BadRectangle{FromX: idx.X, FromY: idx.Y, Reason: "tile index out of grid bounds"}
	}
	if wm.written[idx] {
		return DuplicateTile{Index: idx}
	}

	wm.written[idx] = true
	wm.pending[idx] = tile
	return wm.drain()
}

// drain releases pending tiles starting at the raster-order cursor for as
// long as consecutive cells are available, firing onRowComplete for each
// row it completes along the way. Caller must hold wm.mu.
func (wm *WriteMap) drain() error {
	for {
		idx := TileIndex{X: wm.nextX, Y: wm.nextY, Plane: wm.nextPlane}
		tile, ok := wm.pending[idx]
		if !ok {
			return nil
		}
		delete(wm.pending, idx)
		wm.rowBuf = append(wm.rowBuf, tile)

		wm.nextX++
		if wm.nextX >= wm.gridW {
			wm.nextX = 0
			if err := wm.finishRow(wm.nextPlane, wm.nextY); err != nil {
				return err
			}
			wm.nextY++
			if wm.nextY >= wm.gridH {
				wm.nextY = 0
				wm.nextPlane++
			}
		}
	}
}

// finishRow hands the accumulated row buffer to onRowComplete and resets it.
// Caller must hold wm.mu.
func (wm *WriteMap) finishRow(plane, y int) error {
	row := wm.rowBuf
	wm.rowBuf = nil
	if wm.onRowComplete == nil {
		return nil
	}
	return wm.onRowComplete(plane, y, row)
}

// CompleteWriting marks the WriteMap closed; it fails if any tile in the
// grid was never committed.
func (wm *WriteMap) CompleteWriting() error {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	if len(wm.written) != wm.gridW*wm.gridH*wm.planes {
		return MalformedIfd{Reason: "writemap closed with missing tiles"}
	}
	wm.complete = true
	return nil
}
