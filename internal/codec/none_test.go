package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoneCodecIsPassthrough(t *testing.T) {
	raw := []byte{1, 2, 3, 4, 5}
	encoded, err := noneCodec{}.Encode(raw, Options{})
	assert.NoError(t, err)
	assert.Equal(t, raw, encoded)

	decoded, err := noneCodec{}.Decode(encoded, Options{})
	assert.NoError(t, err)
	assert.Equal(t, raw, decoded)
}
