package tiffengine

import "sort"

// Value holds one IFD entry's typed payload. Exactly one of the scalar/slice
// fields is meaningful, selected by Type.
type Value struct {
	Type ElementType
	// Ints holds BYTE/SHORT/LONG/LONG8/SBYTE/SSHORT/SLONG/SLONG8/IFD8 values
	// (sign-extended where the type is signed).
	Ints []int64
	// Floats holds FLOAT/DOUBLE values.
	Floats []float64
	// Rationals holds RATIONAL/SRATIONAL values as (numerator, denominator) pairs.
	Rationals [][2]int64
	// Bytes holds ASCII/UNDEFINED raw bytes.
	Bytes []byte
}

// Count returns the element count this value was encoded with.
func (v Value) Count() int {
	switch v.Type {
	case TAscii, TUndefined, TByte, TSByte:
		if len(v.Bytes) > 0 {
			return len(v.Bytes)
		}
		return len(v.Ints)
	case TRational, TSRational:
		return len(v.Rationals)
	case TFloat, TDouble:
		return len(v.Floats)
	default:
		return len(v.Ints)
	}
}

// AsInt returns the value's first element as an int64, for scalar-typed
// reads of integer tags.
func (v Value) AsInt() (int64, bool) {
	if len(v.Ints) > 0 {
		return v.Ints[0], true
	}
	if len(v.Bytes) > 0 {
		return int64(v.Bytes[0]), true
	}
	return 0, false
}

// AsIntArray returns every element as an int64 slice, regardless of the
// entry's concrete storage width.
func (v Value) AsIntArray() []int64 {
	if len(v.Ints) > 0 {
		return v.Ints
	}
	if len(v.Bytes) > 0 {
		out := make([]int64, len(v.Bytes))
		for i, b := range v.Bytes {
			out[i] = int64(b)
		}
		return out
	}
	return nil
}

// AsString returns an ASCII value with its trailing NUL stripped.
func (v Value) AsString() string {
	b := v.Bytes
	if n := len(b); n > 0 && b[n-1] == 0 {
		b = b[:n-1]
	}
	return string(b)
}

// IFD is an ordered mapping from tag to typed value, describing one image
// (or a non-image directory, e.g. an EXIF sub-IFD the engine does not
// otherwise interpret). spec.md 3.
type IFD struct {
	order   []Tag
	entries map[Tag]Value

	// LoadTile, when set, supplies raw encoded bytes for a tile index
	// computed by this IFD's own geometry. OpenFileEngine sets it on each
	// IFD it reads, and direct-mode copy fetches source tile bytes through
	// it; Clone does not carry it over.
	LoadTile func(tileIdx int, dst []byte) error

	frozen bool
}

// NewIFD returns an empty, mutable IFD.
func NewIFD() *IFD {
	return &IFD{entries: make(map[Tag]Value)}
}

// Get returns the entry for tag, if present.
func (ifd *IFD) Get(tag Tag) (Value, bool) {
	v, ok := ifd.entries[tag]
	return v, ok
}

// Put sets tag's value, appending it to the ordered tag list if new. Fails
// silently (a no-op) on a frozen (committed) IFD, matching spec.md 3's
// "immutable once committed" lifecycle; callers that need to detect this
// should check IsFrozen first.
func (ifd *IFD) Put(tag Tag, v Value) {
	if ifd.frozen {
		return
	}
	if ifd.entries == nil {
		ifd.entries = make(map[Tag]Value)
	}
	if _, exists := ifd.entries[tag]; !exists {
		ifd.order = append(ifd.order, tag)
	}
	ifd.entries[tag] = v
}

// Tags returns every tag present, in ascending numeric order (TIFF 6.0
// requires entries to be written sorted by tag).
func (ifd *IFD) Tags() []Tag {
	tags := make([]Tag, 0, len(ifd.entries))
	for t := range ifd.entries {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// Freeze marks the IFD as committed; subsequent Put calls are no-ops.
func (ifd *IFD) Freeze() { ifd.frozen = true }

// IsFrozen reports whether the IFD has been committed.
func (ifd *IFD) IsFrozen() bool { return ifd.frozen }

// Clone deep-copies the IFD, including its entries but not its frozen flag
// or LoadTile hook (a clone is presumed to get a new tile source once its
// geometry is edited). Used by Copier's transcoding path so the source IFD
// is never mutated (spec.md 4.7), and is exposed standalone per SPEC_FULL
// 12 since any derived-image workflow needs the same operation.
func (ifd *IFD) Clone() *IFD {
	c := NewIFD()
	c.order = append([]Tag(nil), ifd.order...)
	for t, v := range ifd.entries {
		c.entries[t] = v
	}
	return c
}

// GetInt returns tag's first integer element, or def if the tag is absent.
func (ifd *IFD) GetInt(tag Tag, def int64) int64 {
	v, ok := ifd.Get(tag)
	if !ok {
		return def
	}
	i, ok := v.AsInt()
	if !ok {
		return def
	}
	return i
}

// GetLong is an alias of GetInt kept for parity with spec.md's named
// accessor (getLong); IFD entries are held as int64 internally regardless
// of their encoded width.
func (ifd *IFD) GetLong(tag Tag, def int64) int64 {
	return ifd.GetInt(tag, def)
}

// GetIntArray returns every integer element of tag, or nil if absent.
func (ifd *IFD) GetIntArray(tag Tag) []int64 {
	v, ok := ifd.Get(tag)
	if !ok {
		return nil
	}
	return v.AsIntArray()
}

// ImageWidth returns tag 256, failing MalformedIfd if absent.
func (ifd *IFD) ImageWidth() (int64, error) {
	if v, ok := ifd.Get(TagImageWidth); ok {
		if i, ok := v.AsInt(); ok {
			return i, nil
		}
	}
	return 0, MalformedIfd{Tag: TagImageWidth, Reason: "missing image width"}
}

// ImageHeight returns tag 257, failing MalformedIfd if absent.
func (ifd *IFD) ImageHeight() (int64, error) {
	if v, ok := ifd.Get(TagImageLength); ok {
		if i, ok := v.AsInt(); ok {
			return i, nil
		}
	}
	return 0, MalformedIfd{Tag: TagImageLength, Reason: "missing image length"}
}

// IsTiled reports whether this IFD describes tile metadata rather than
// strip metadata.
func (ifd *IFD) IsTiled() bool {
	_, ok := ifd.Get(TagTileWidth)
	return ok
}

// TileWidth returns the tile (or, for a stripped image, full image) width.
func (ifd *IFD) TileWidth() (int64, error) {
	if ifd.IsTiled() {
		if v, ok := ifd.Get(TagTileWidth); ok {
			if i, ok := v.AsInt(); ok {
				return i, nil
			}
		}
		return 0, MalformedIfd{Tag: TagTileWidth, Reason: "missing tile width"}
	}
	return ifd.ImageWidth()
}

// TileHeight returns the tile height (tile case) or RowsPerStrip (strip
// case).
func (ifd *IFD) TileHeight() (int64, error) {
	if ifd.IsTiled() {
		if v, ok := ifd.Get(TagTileLength); ok {
			if i, ok := v.AsInt(); ok {
				return i, nil
			}
		}
		return 0, MalformedIfd{Tag: TagTileLength, Reason: "missing tile length"}
	}
	if v, ok := ifd.Get(TagRowsPerStrip); ok {
		if i, ok := v.AsInt(); ok {
			return i, nil
		}
	}
	return 0, MalformedIfd{Tag: TagRowsPerStrip, Reason: "missing rows per strip"}
}

// TileGridWidth returns ceil(imageWidth / tileWidth), spec.md 4.2.
func (ifd *IFD) TileGridWidth() (int64, error) {
	w, err := ifd.ImageWidth()
	if err != nil {
		return 0, err
	}
	tw, err := ifd.TileWidth()
	if err != nil {
		return 0, err
	}
	if tw <= 0 {
		return 0, MalformedIfd{Tag: TagTileWidth, Reason: "non-positive tile width"}
	}
	return (w + tw - 1) / tw, nil
}

// TileGridHeight returns ceil(imageHeight / tileHeight), spec.md 4.2.
func (ifd *IFD) TileGridHeight() (int64, error) {
	h, err := ifd.ImageHeight()
	if err != nil {
		return 0, err
	}
	th, err := ifd.TileHeight()
	if err != nil {
		return 0, err
	}
	if th <= 0 {
		return 0, MalformedIfd{Tag: TagTileLength, Reason: "non-positive tile/strip height"}
	}
	return (h + th - 1) / th, nil
}

// BitsPerSample returns tag 258, or the single-element slice {1} if absent
// (the TIFF 6.0 default of 1 bit).
func (ifd *IFD) BitsPerSample() []int64 {
	if bps := ifd.GetIntArray(TagBitsPerSample); bps != nil {
		return bps
	}
	return []int64{1}
}

// SamplesPerPixel returns tag 277, defaulting to 1.
func (ifd *IFD) SamplesPerPixel() int64 {
	return ifd.GetInt(TagSamplesPerPixel, 1)
}

// CompressionCode returns tag 259, defaulting to CompressionNone.
func (ifd *IFD) CompressionCode() uint16 {
	return uint16(ifd.GetInt(TagCompression, int64(CompressionNone)))
}

// PhotometricInterpretationOf returns tag 262, or PhotometricUnknown if the
// value is absent or out of the enumerated range (spec.md 4.2: "an
// out-of-range enum value yields an Unknown variant rather than failing").
func (ifd *IFD) PhotometricInterpretationOf() PhotometricInterpretation {
	v, ok := ifd.Get(TagPhotometricInterpretation)
	if !ok {
		return PhotometricUnknown
	}
	i, ok := v.AsInt()
	if !ok {
		return PhotometricUnknown
	}
	switch PhotometricInterpretation(i) {
	case PhotometricWhiteIsZero, PhotometricBlackIsZero, PhotometricRGB, PhotometricPalette,
		PhotometricTransparencyMask, PhotometricCMYK, PhotometricYCbCr, PhotometricCIELab,
		PhotometricICCLab, PhotometricITULab, PhotometricCFAArray:
		return PhotometricInterpretation(i)
	default:
		return PhotometricUnknown
	}
}

// PlanarConfigurationOf returns tag 284, defaulting to Contig.
func (ifd *IFD) PlanarConfigurationOf() PlanarConfiguration {
	return PlanarConfiguration(ifd.GetInt(TagPlanarConfiguration, int64(PlanarConfigurationContig)))
}

// SizeOfMetadata reports the byte size of the IFD's tag table itself
// (entry count field + entries + next-IFD pointer), not counting any
// values stored out-of-line or the tile/strip payload bytes.
func (ifd *IFD) SizeOfMetadata(bigTiff bool) int64 {
	tagSize := int64(12)
	header := int64(6) // 2-byte count + 4-byte next offset
	if bigTiff {
		tagSize = 20
		header = 16 // 8-byte count + 8-byte next offset
	}
	return header + tagSize*int64(len(ifd.entries))
}

// SizeOfData reports the byte size of this IFD's out-of-line value storage
// (overflow area) plus its tile/strip byte payload, for reporting purposes.
func (ifd *IFD) SizeOfData(bigTiff bool) int64 {
	var total int64
	for tag, v := range ifd.entries {
		total += overflowSize(tag, v, bigTiff)
	}
	if counts := ifd.GetIntArray(tileByteCountsTag(ifd)); counts != nil {
		for _, c := range counts {
			total += c
		}
	}
	return total
}

func tileByteCountsTag(ifd *IFD) Tag {
	if ifd.IsTiled() {
		return TagTileByteCounts
	}
	return TagStripByteCounts
}

// Validate checks the cross-tag invariants of an IFD that describes image
// data: image width and height, exactly one of strip/tile metadata, its
// tile or strip dimensions, and equal offset and byte-count vector lengths.
// Sample layout, compression and photometric interpretation are not checked.
func (ifd *IFD) Validate() error {
	if _, err := ifd.ImageWidth(); err != nil {
		return err
	}
	if _, err := ifd.ImageHeight(); err != nil {
		return err
	}
	_, hasStrips := ifd.Get(TagStripOffsets)
	_, hasTiles := ifd.Get(TagTileOffsets)
	if hasStrips == hasTiles {
		return MalformedIfd{Reason: "ifd must carry exactly one of strip or tile metadata"}
	}
	if hasTiles {
		if _, err := ifd.TileWidth(); err != nil {
			return err
		}
		if _, err := ifd.TileHeight(); err != nil {
			return err
		}
		offs := ifd.GetIntArray(TagTileOffsets)
		counts := ifd.GetIntArray(TagTileByteCounts)
		if len(offs) != len(counts) {
			return MalformedIfd{Tag: TagTileOffsets, Reason: "tile offset/bytecount length mismatch"}
		}
	} else {
		if _, err := ifd.TileHeight(); err != nil {
			return err
		}
		offs := ifd.GetIntArray(TagStripOffsets)
		counts := ifd.GetIntArray(TagStripByteCounts)
		if len(offs) != len(counts) {
			return MalformedIfd{Tag: TagStripOffsets, Reason: "strip offset/bytecount length mismatch"}
		}
	}
	return nil
}
