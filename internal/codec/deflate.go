package codec

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"
)

// deflateCodec implements Compression=8 (Adobe Deflate) and 32946
// (proprietary/old-style Deflate, which uses the identical zlib stream —
// the distinction is historical, not a wire-format difference). Grounded
// on klauspost/compress, which the rest of the example pack
// (brawer-wikidata-qrank) pulls in for its faster drop-in zlib/gzip
// implementations; used here in place of stdlib compress/zlib for the same
// reason the pack reaches for it.
type deflateCodec struct{}

func (deflateCodec) Decode(encoded []byte, opts Options) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return applyPredictorDecode(raw, opts), nil
}

func (deflateCodec) Encode(raw []byte, opts Options) ([]byte, error) {
	raw = applyPredictorEncode(raw, opts)
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
