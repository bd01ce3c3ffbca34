package video

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeadlessSinkIsANoOp(t *testing.T) {
	h := NewHeadless()
	assert.False(t, h.WindowClosed())
	assert.NoError(t, h.Present([]byte{1, 2, 3}))
	assert.NoError(t, h.Close())
	assert.True(t, h.WindowClosed())
}

func TestConfigByteSize(t *testing.T) {
	cfg := Config{Mode: ModeRGBA32, Width: 4, Height: 2}
	assert.Equal(t, uint64(4*2*4), cfg.ByteSize())

	cfg.Mode = ModeIndexed8
	assert.Equal(t, uint64(4*2), cfg.ByteSize())
}
