// Package codec adapts TIFF compression codes to concrete decode/encode
// implementations. It mirrors the teacher's pattern of keeping transcoding
// concerns (cogger's Rewrite/WriteImage paths) behind a small dispatch
// surface, generalized here from a single hard-coded codec (the teacher
// only ever emits uncompressed or pass-through imagery) to a registry
// addressed by the numeric TIFF compression tag.
package codec

import "fmt"

// Options carries the per-tile parameters a codec may need beyond the raw
// bytes themselves: sample geometry for codecs that must know it (e.g.
// JPEG channel count), and any codec-private table data (e.g. shared JPEG
// tables stored in tag 347).
type Options struct {
	Width, Height   int
	SamplesPerPixel int
	BitsPerSample   []int64
	Predictor       int64
	JPEGTables      []byte
}

// Codec decodes and encodes the tile payload for one compression scheme.
// Every adapter implements both methods; one that cannot encode returns an
// error from Encode.
type Codec interface {
	Decode(encoded []byte, opts Options) ([]byte, error)
	Encode(raw []byte, opts Options) ([]byte, error)
}

// Entry pairs a Codec with registry metadata.
type Entry struct {
	Codec Codec
	// NeedsExternalContext marks codecs (e.g. JPEG2000) that require
	// capability injected by the caller (a licensed SDK handle, a
	// subprocess helper) rather than being self-contained; FileEngine
	// surfaces UnsupportedCompression for these on both decode and encode
	// until the entry is replaced via Register with one that does not set
	// the flag.
	NeedsExternalContext bool
}

// Registry maps a TIFF Compression tag value to its codec Entry.
type Registry struct {
	entries map[uint16]Entry
}

// NewRegistry returns a registry pre-populated with every codec this engine
// ships with (spec.md 4.6 / SPEC_FULL 11).
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[uint16]Entry)}
	r.Register(1, Entry{Codec: noneCodec{}})
	r.Register(32773, Entry{Codec: packBitsCodec{}})
	r.Register(5, Entry{Codec: lzwCodec{}})
	r.Register(8, Entry{Codec: deflateCodec{}})
	r.Register(32946, Entry{Codec: deflateCodec{}})
	r.Register(7, Entry{Codec: jpegCodec{}})
	r.Register(33003, Entry{Codec: jpeg2000Codec{}, NeedsExternalContext: true})
	r.Register(33004, Entry{Codec: jpeg2000Codec{}, NeedsExternalContext: true})
	r.Register(33005, Entry{Codec: jpeg2000Codec{}, NeedsExternalContext: true})
	return r
}

// Register installs or replaces the entry for a compression code.
func (r *Registry) Register(code uint16, e Entry) {
	r.entries[code] = e
}

// Lookup returns the entry for code, or (Entry{}, false) if no codec
// handles it (e.g. 65535/LuraWave, deliberately left unbound).
func (r *Registry) Lookup(code uint16) (Entry, bool) {
	e, ok := r.entries[code]
	return e, ok
}

// ErrNoExternalContext is returned by a gated codec's Encode/Decode when
// invoked without the external capability it needs having been supplied.
var ErrNoExternalContext = fmt.Errorf("codec requires an external context that was not supplied")
