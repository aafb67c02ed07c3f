package tiffengine

import (
	"encoding/binary"
	"io"
	"math"
)

// entrySize returns the on-disk size of one directory entry: 12 bytes
// classic, 20 bytes BigTIFF (spec.md 6). Adapted from the teacher's
// cogger.writeField/writeArray, which hard-coded this distinction per call
// site; here it is centralized since both the reader and the writer need
// it.
func entrySize(bigTiff bool) int64 {
	if bigTiff {
		return 20
	}
	return 12
}

// inlineValueBytes returns how many bytes of the value/offset field are
// available for an inline (non-spilled) value: 8 bytes BigTIFF, 4 bytes
// classic.
func inlineValueBytes(bigTiff bool) int {
	if bigTiff {
		return 8
	}
	return 4
}

// overflowSize returns the number of bytes this value needs in the
// out-of-line "pointer area" if it does not fit inline, or 0 if it fits
// inline next to the entry itself. Generalizes the teacher's
// arrayFieldSize, which computed the same thing per Go-typed slice; here it
// operates on the type-erased Value model.
func overflowSize(tag Tag, v Value, bigTiff bool) int64 {
	elemSize := elementSize(v.Type)
	if v.Type == TRational || v.Type == TSRational {
		elemSize = 8
	}
	count := int64(v.Count())
	var total int64
	switch v.Type {
	case TAscii, TUndefined, TByte, TSByte:
		total = int64(len(v.Bytes))
		if total == 0 {
			total = count
		}
	default:
		total = count * int64(elemSize)
	}
	if total <= int64(inlineValueBytes(bigTiff)) {
		return 0
	}
	return total
}

// encodeValueBytes serializes v's raw payload (without any directory-entry
// framing) in the given byte order. Used both to fill the inline
// value/offset field when the value fits, and to write the out-of-line
// overflow area when it doesn't.
func encodeValueBytes(order binary.ByteOrder, v Value) []byte {
	switch v.Type {
	case TAscii, TUndefined:
		return v.Bytes
	case TByte, TSByte:
		if len(v.Bytes) > 0 {
			return v.Bytes
		}
		out := make([]byte, len(v.Ints))
		for i, n := range v.Ints {
			out[i] = byte(n)
		}
		return out
	case TShort, TSShort:
		out := make([]byte, 2*len(v.Ints))
		for i, n := range v.Ints {
			order.PutUint16(out[i*2:], uint16(n))
		}
		return out
	case TLong, TSLong:
		out := make([]byte, 4*len(v.Ints))
		for i, n := range v.Ints {
			order.PutUint32(out[i*4:], uint32(n))
		}
		return out
	case TLong8, TSLong8, TIFD8:
		out := make([]byte, 8*len(v.Ints))
		for i, n := range v.Ints {
			order.PutUint64(out[i*8:], uint64(n))
		}
		return out
	case TFloat:
		out := make([]byte, 4*len(v.Floats))
		for i, f := range v.Floats {
			order.PutUint32(out[i*4:], math.Float32bits(float32(f)))
		}
		return out
	case TDouble:
		out := make([]byte, 8*len(v.Floats))
		for i, f := range v.Floats {
			order.PutUint64(out[i*8:], math.Float64bits(f))
		}
		return out
	case TRational, TSRational:
		out := make([]byte, 8*len(v.Rationals))
		for i, r := range v.Rationals {
			order.PutUint32(out[i*8:], uint32(r[0]))
			order.PutUint32(out[i*8+4:], uint32(r[1]))
		}
		return out
	default:
		return nil
	}
}

// decodeValueBytes parses raw bytes (already known to hold `count` elements
// of `typ`) into a Value.
func decodeValueBytes(order binary.ByteOrder, typ ElementType, count int, raw []byte) Value {
	v := Value{Type: typ}
	switch typ {
	case TAscii, TUndefined:
		v.Bytes = append([]byte(nil), raw...)
	case TByte, TSByte:
		v.Bytes = append([]byte(nil), raw...)
		v.Ints = make([]int64, count)
		for i := 0; i < count && i < len(raw); i++ {
			if typ == TSByte {
				v.Ints[i] = int64(int8(raw[i]))
			} else {
				v.Ints[i] = int64(raw[i])
			}
		}
	case TShort, TSShort:
		v.Ints = make([]int64, count)
		for i := 0; i < count; i++ {
			u := order.Uint16(raw[i*2:])
			if typ == TSShort {
				v.Ints[i] = int64(int16(u))
			} else {
				v.Ints[i] = int64(u)
			}
		}
	case TLong, TSLong:
		v.Ints = make([]int64, count)
		for i := 0; i < count; i++ {
			u := order.Uint32(raw[i*4:])
			if typ == TSLong {
				v.Ints[i] = int64(int32(u))
			} else {
				v.Ints[i] = int64(u)
			}
		}
	case TLong8, TSLong8, TIFD8:
		v.Ints = make([]int64, count)
		for i := 0; i < count; i++ {
			u := order.Uint64(raw[i*8:])
			v.Ints[i] = int64(u)
		}
	case TFloat:
		v.Floats = make([]float64, count)
		for i := 0; i < count; i++ {
			v.Floats[i] = float64(math.Float32frombits(order.Uint32(raw[i*4:])))
		}
	case TDouble:
		v.Floats = make([]float64, count)
		for i := 0; i < count; i++ {
			v.Floats[i] = math.Float64frombits(order.Uint64(raw[i*8:]))
		}
	case TRational, TSRational:
		v.Rationals = make([][2]int64, count)
		for i := 0; i < count; i++ {
			n := order.Uint32(raw[i*8:])
			d := order.Uint32(raw[i*8+4:])
			if typ == TSRational {
				v.Rationals[i] = [2]int64{int64(int32(n)), int64(int32(d))}
			} else {
				v.Rationals[i] = [2]int64{int64(n), int64(d)}
			}
		}
	}
	return v
}

// overflowWriter accumulates out-of-line entry values (the "pointer area"
// immediately following an IFD's entry table) while entries are being
// written, the same role TagData plays in the teacher's field.go.
type overflowWriter struct {
	buf    []byte
	offset int64 // file offset of buf[0]
}

func (o *overflowWriter) nextOffset() int64 { return o.offset + int64(len(o.buf)) }

func (o *overflowWriter) write(b []byte) int64 {
	off := o.nextOffset()
	o.buf = append(o.buf, b...)
	return off
}

// encodeEntry writes one 12/20-byte directory entry for tag/v to w, in
// order byte order, spilling the value into overflow when it does not fit
// inline. Adapted from the teacher's writeArray/writeField (cogger/field.go
// cogger/cog.go), generalized from per-Go-type switches to the type-erased
// Value model and from a fixed classic/bigtiff pair of code paths to one
// shared path driven by bigTiff.
func encodeEntry(w io.Writer, order binary.ByteOrder, bigTiff bool, tag Tag, v Value, overflow *overflowWriter) error {
	raw := encodeValueBytes(order, v)
	count := int64(v.Count())
	if v.Type == TAscii || v.Type == TUndefined {
		count = int64(len(raw))
	}
	buf := make([]byte, entrySize(bigTiff))
	order.PutUint16(buf[0:2], uint16(tag))
	order.PutUint16(buf[2:4], uint16(v.Type))
	inlineBytes := inlineValueBytes(bigTiff)
	if bigTiff {
		order.PutUint64(buf[4:12], uint64(count))
	} else {
		order.PutUint32(buf[4:8], uint32(count))
	}
	valueField := buf[len(buf)-inlineBytes:]
	if len(raw) <= inlineBytes {
		copy(valueField, raw)
	} else {
		off := overflow.write(raw)
		if bigTiff {
			order.PutUint64(valueField, uint64(off))
		} else {
			order.PutUint32(valueField, uint32(off))
		}
	}
	_, err := w.Write(buf)
	return err
}

// decodeEntry reads one directory entry from buf (exactly entrySize(bigTiff)
// bytes) and, if the value overflowed inline storage, fetches it from r at
// the recorded offset.
func decodeEntry(r io.ReaderAt, order binary.ByteOrder, bigTiff bool, buf []byte) (Tag, Value, error) {
	tag := Tag(order.Uint16(buf[0:2]))
	typ := ElementType(order.Uint16(buf[2:4]))
	var count int64
	var valueField []byte
	if bigTiff {
		count = int64(order.Uint64(buf[4:12]))
		valueField = buf[12:20]
	} else {
		count = int64(order.Uint32(buf[4:8]))
		valueField = buf[8:12]
	}
	elemSize := elementSize(typ)
	if typ == TRational || typ == TSRational {
		elemSize = 8
	}
	var total int64
	switch typ {
	case TAscii, TUndefined, TByte, TSByte:
		total = count
	default:
		total = count * int64(elemSize)
	}
	inlineBytes := inlineValueBytes(bigTiff)
	if total <= int64(inlineBytes) {
		return tag, decodeValueBytes(order, typ, int(count), valueField[:total]), nil
	}
	var offset int64
	if bigTiff {
		offset = int64(order.Uint64(valueField))
	} else {
		offset = int64(order.Uint32(valueField))
	}
	raw := make([]byte, total)
	if _, err := r.ReadAt(raw, offset); err != nil {
		return tag, Value{}, IoError{Op: "read ifd entry overflow", Inner: err}
	}
	return tag, decodeValueBytes(order, typ, int(count), raw), nil
}
