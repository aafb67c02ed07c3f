package tiffengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitUnpackerFullByte(t *testing.T) {
	u := NewBitUnpacker([]byte{0xAB, 0xCD})
	assert.Equal(t, int64(0xAB), u.GetBits(8))
	assert.Equal(t, int64(0xCD), u.GetBits(8))
}

func TestBitUnpackerSubByte(t *testing.T) {
	// 0b10110100 split into 2-bit groups: 10, 11, 01, 00
	u := NewBitUnpacker([]byte{0b10110100})
	assert.Equal(t, int64(0b10), u.GetBits(2))
	assert.Equal(t, int64(0b11), u.GetBits(2))
	assert.Equal(t, int64(0b01), u.GetBits(2))
	assert.Equal(t, int64(0b00), u.GetBits(2))
}

func TestBitUnpackerFourBit(t *testing.T) {
	u := NewBitUnpacker([]byte{0xF0, 0x0F})
	assert.Equal(t, int64(0xF), u.GetBits(4))
	assert.Equal(t, int64(0x0), u.GetBits(4))
	assert.Equal(t, int64(0x0), u.GetBits(4))
	assert.Equal(t, int64(0xF), u.GetBits(4))
}

func TestBitUnpackerOneBit(t *testing.T) {
	u := NewBitUnpacker([]byte{0b10100000})
	var bits []int64
	for i := 0; i < 8; i++ {
		bits = append(bits, u.GetBits(1))
	}
	assert.Equal(t, []int64{1, 0, 1, 0, 0, 0, 0, 0}, bits)
}

func TestBitUnpackerExhausted(t *testing.T) {
	u := NewBitUnpacker([]byte{0xFF})
	assert.Equal(t, int64(0xFF), u.GetBits(8))
	assert.Equal(t, int64(-1), u.GetBits(8))
}
