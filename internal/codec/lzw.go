package codec

import (
	"bytes"
	"compress/lzw"
	"io"
)

// lzwCodec implements Compression=5. TIFF's LZW variant is MSB-first with
// an explicit early-change code-width bump, which matches stdlib
// compress/lzw's lzw.MSB order; no codec in the corpus ships a
// TIFF-flavored LZW, so the standard library is the only suitable
// implementation and is used directly rather than hand-rolled.
type lzwCodec struct{}

func (lzwCodec) Decode(encoded []byte, opts Options) ([]byte, error) {
	r := lzw.NewReader(bytes.NewReader(encoded), lzw.MSB, 8)
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return applyPredictorDecode(raw, opts), nil
}

func (lzwCodec) Encode(raw []byte, opts Options) ([]byte, error) {
	raw = applyPredictorEncode(raw, opts)
	var buf bytes.Buffer
	w := lzw.NewWriter(&buf, lzw.MSB, 8)
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// applyPredictorDecode reverses horizontal differencing (Predictor=2) when
// the IFD calls for it. Predictor=1 (none) and any other value pass
// through unmodified.
func applyPredictorDecode(raw []byte, opts Options) []byte {
	if opts.Predictor != 2 || opts.Width <= 0 || opts.SamplesPerPixel <= 0 {
		return raw
	}
	bytesPerSample := 1
	if len(opts.BitsPerSample) > 0 {
		bytesPerSample = int((opts.BitsPerSample[0] + 7) / 8)
	}
	stride := opts.SamplesPerPixel * bytesPerSample
	rowBytes := opts.Width * stride
	for row := 0; row+rowBytes <= len(raw); row += rowBytes {
		for i := stride; i < rowBytes; i++ {
			raw[row+i] += raw[row+i-stride]
		}
	}
	return raw
}

func applyPredictorEncode(raw []byte, opts Options) []byte {
	if opts.Predictor != 2 || opts.Width <= 0 || opts.SamplesPerPixel <= 0 {
		return raw
	}
	bytesPerSample := 1
	if len(opts.BitsPerSample) > 0 {
		bytesPerSample = int((opts.BitsPerSample[0] + 7) / 8)
	}
	stride := opts.SamplesPerPixel * bytesPerSample
	rowBytes := opts.Width * stride
	out := append([]byte(nil), raw...)
	for row := 0; row+rowBytes <= len(out); row += rowBytes {
		for i := rowBytes - 1; i >= stride; i-- {
			out[row+i] -= out[row+i-stride]
		}
	}
	return out
}
