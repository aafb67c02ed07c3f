package codec

import (
	"bytes"
	goimage "image"
	"image/color"
	"image/jpeg"
)

// jpegCodec implements Compression=7 (baseline/extended JPEG). No codec in
// the corpus carries a standalone baseline-JPEG encoder/decoder beyond
// what GDAL wraps internally (out of scope per SPEC_FULL 11, since this
// engine does not shell out to GDAL for pixel codecs), so this adapter
// uses the standard library's image/jpeg, reinterleaving samples as gray
// (one sample per pixel) or RGB (otherwise), through image.Gray or
// image.RGBA on encode.
// JPEGTables (tag 347), when present, are prepended to the tile's own
// scan data so stdlib jpeg.Decode sees one self-contained stream, matching
// how the TIFF 6.0 extension defines shared-tables JPEG.
type jpegCodec struct{}

func (jpegCodec) Decode(encoded []byte, opts Options) ([]byte, error) {
	stream := encoded
	if len(opts.JPEGTables) > 0 {
		stream = mergeJPEGTables(opts.JPEGTables, encoded)
	}
	img, err := jpeg.Decode(bytes.NewReader(stream))
	if err != nil {
		return nil, err
	}
	return interleaveImage(img, opts), nil
}

func (jpegCodec) Encode(raw []byte, opts Options) ([]byte, error) {
	img := deinterleaveImage(raw, opts)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// mergeJPEGTables splices a shared JPEGTables stream (everything up to its
// EOI marker) in front of the tile's own scan stream (everything after its
// SOI marker), per the TIFF 6.0 JPEGTables convention.
func mergeJPEGTables(tables, scan []byte) []byte {
	tEnd := len(tables)
	if tEnd >= 2 && tables[tEnd-2] == 0xFF && tables[tEnd-1] == 0xD9 {
		tEnd -= 2
	}
	sStart := 0
	if len(scan) >= 2 && scan[0] == 0xFF && scan[1] == 0xD8 {
		sStart = 2
	}
	out := make([]byte, 0, tEnd+len(scan)-sStart)
	out = append(out, tables[:tEnd]...)
	out = append(out, scan[sStart:]...)
	return out
}

func interleaveImage(img goimage.Image, opts Options) []byte {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	spp := opts.SamplesPerPixel
	if spp <= 0 {
		spp = 3
	}
	out := make([]byte, w*h*spp)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			switch spp {
			case 1:
				g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
				out[i] = g.Y
				i++
			default:
				r, g, bl, _ := img.At(x, y).RGBA()
				out[i] = byte(r >> 8)
				out[i+1] = byte(g >> 8)
				out[i+2] = byte(bl >> 8)
				i += 3
				if spp > 3 {
					i += spp - 3
				}
			}
		}
	}
	return out
}

func deinterleaveImage(raw []byte, opts Options) goimage.Image {
	spp := opts.SamplesPerPixel
	if spp <= 0 {
		spp = 3
	}
	if spp == 1 {
		img := goimage.NewGray(goimage.Rect(0, 0, opts.Width, opts.Height))
		copy(img.Pix, raw)
		return img
	}
	img := goimage.NewRGBA(goimage.Rect(0, 0, opts.Width, opts.Height))
	i := 0
	for y := 0; y < opts.Height; y++ {
		for x := 0; x < opts.Width; x++ {
			if i+2 >= len(raw) {
				break
			}
			img.Set(x, y, color.RGBA{R: raw[i], G: raw[i+1], B: raw[i+2], A: 0xFF})
			i += spp
		}
	}
	return img
}
