package tiffengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyImageKindBaseIsAlwaysIndexZero(t *testing.T) {
	ifd := NewIFD()
	ifd.Put(TagImageDescription, Value{Type: TAscii, Bytes: []byte("macro image")})
	assert.Equal(t, ImageKindBase, ClassifyImageKind(0, ifd))
}

func TestClassifyImageKindLabelAndMacro(t *testing.T) {
	label := NewIFD()
	label.Put(TagImageDescription, Value{Type: TAscii, Bytes: []byte("Slide Label")})
	assert.Equal(t, ImageKindLabel, ClassifyImageKind(1, label))

	macro := NewIFD()
	macro.Put(TagImageDescription, Value{Type: TAscii, Bytes: []byte("macro overview")})
	assert.Equal(t, ImageKindMacro, ClassifyImageKind(1, macro))
}

func TestClassifyImageKindOrdinaryWhenNoMatch(t *testing.T) {
	ifd := NewIFD()
	ifd.Put(TagImageDescription, Value{Type: TAscii, Bytes: []byte("thumbnail preview")})
	assert.Equal(t, ImageKindOrdinary, ClassifyImageKind(1, ifd))

	ifdNoDesc := NewIFD()
	assert.Equal(t, ImageKindOrdinary, ClassifyImageKind(1, ifdNoDesc))
}

func TestClassifyImageKindWholeWordOnly(t *testing.T) {
	// "labeled" must not match the \blabel\b whole-word pattern.
	ifd := NewIFD()
	ifd.Put(TagImageDescription, Value{Type: TAscii, Bytes: []byte("labeled specimen scan")})
	assert.Equal(t, ImageKindOrdinary, ClassifyImageKind(1, ifd))
}

func TestClassifyChain(t *testing.T) {
	base := NewIFD()
	label := NewIFD()
	label.Put(TagImageDescription, Value{Type: TAscii, Bytes: []byte("label")})
	macro := NewIFD()
	macro.Put(TagImageDescription, Value{Type: TAscii, Bytes: []byte("macro")})

	e := &FileEngine{images: []*IFD{base, label, macro}}
	kinds := ClassifyChain(e)
	assert.Equal(t, []ImageKind{ImageKindBase, ImageKindLabel, ImageKindMacro}, kinds)
}
