package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJPEG2000RequiresExternalContext(t *testing.T) {
	c := jpeg2000Codec{}
	_, err := c.Decode([]byte{0, 1, 2}, Options{})
	assert.ErrorIs(t, err, ErrNoExternalContext)

	_, err = c.Encode([]byte{0, 1, 2}, Options{})
	assert.ErrorIs(t, err, ErrNoExternalContext)
}
