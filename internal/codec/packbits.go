package codec

import "fmt"

// packBitsCodec implements Compression=32773 (Macintosh PackBits RLE). No
// library in the corpus carries a PackBits implementation, so this is a
// direct port of the well-known byte-oriented algorithm (TIFF 6.0 section
// 9): it has no external dependency surface to wire, being a handful of
// lines of bit-twiddling rather than a concern an ecosystem library
// exists for.
type packBitsCodec struct{}

func (packBitsCodec) Decode(encoded []byte, _ Options) ([]byte, error) {
	out := make([]byte, 0, len(encoded)*2)
	i := 0
	for i < len(encoded) {
		n := int8(encoded[i])
		i++
		switch {
		case n >= 0:
			count := int(n) + 1
			if i+count > len(encoded) {
				return nil, fmt.Errorf("packbits: literal run overruns buffer")
			}
			out = append(out, encoded[i:i+count]...)
			i += count
		case n != -128:
			count := int(-n) + 1
			if i >= len(encoded) {
				return nil, fmt.Errorf("packbits: repeat run missing byte")
			}
			b := encoded[i]
			i++
			for j := 0; j < count; j++ {
				out = append(out, b)
			}
		default:
			// n == -128: no-op marker.
		}
	}
	return out, nil
}

func (packBitsCodec) Encode(raw []byte, _ Options) ([]byte, error) {
	out := make([]byte, 0, len(raw))
	i := 0
	for i < len(raw) {
		runLen := 1
		for i+runLen < len(raw) && raw[i+runLen] == raw[i] && runLen < 128 {
			runLen++
		}
		if runLen >= 2 {
			out = append(out, byte(int8(-(runLen - 1))), raw[i])
			i += runLen
			continue
		}
		// Accumulate a literal run until a repeat of length >= 2 appears.
		litStart := i
		i++
		for i < len(raw) {
			if i+1 < len(raw) && raw[i+1] == raw[i] {
				break
			}
			if i-litStart >= 127 {
				break
			}
			i++
		}
		litLen := i - litStart
		out = append(out, byte(int8(litLen-1)))
		out = append(out, raw[litStart:litStart+litLen]...)
	}
	return out, nil
}
