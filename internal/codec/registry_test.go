package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRegistryHasEveryDocumentedCode(t *testing.T) {
	r := NewRegistry()
	for _, code := range []uint16{1, 32773, 5, 8, 32946, 7, 33003, 33004, 33005} {
		_, ok := r.Lookup(code)
		assert.True(t, ok, "code %d must be registered", code)
	}
}

func TestRegistryLookupMissingCode(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Lookup(65535) // LuraWave, deliberately unbound
	assert.False(t, ok)
}

func TestJPEG2000NeedsExternalContext(t *testing.T) {
	r := NewRegistry()
	for _, code := range []uint16{33003, 33004, 33005} {
		e, ok := r.Lookup(code)
		assert.True(t, ok)
		assert.True(t, e.NeedsExternalContext)
	}
}

func TestRegisterOverridesExistingEntry(t *testing.T) {
	r := NewRegistry()
	r.Register(1, Entry{Codec: noneCodec{}, NeedsExternalContext: true})
	e, ok := r.Lookup(1)
	assert.True(t, ok)
	assert.True(t, e.NeedsExternalContext)
}
