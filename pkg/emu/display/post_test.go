package display

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func solidFrame(width, height int, value byte) Frame {
	pix := make([]byte, width*height*4)
	for i := range pix {
		pix[i] = value
	}
	return Frame{Width: width, Height: height, Pix: pix}
}

func TestGammaCorrect(t *testing.T) {
	frame := solidFrame(8, 8, 100)
	GammaCorrect(frame)

	// Color channels scaled, alpha untouched
	assert.Equal(t, byte(180), frame.Pix[0])
	assert.Equal(t, byte(180), frame.Pix[1])
	assert.Equal(t, byte(180), frame.Pix[2])
	assert.Equal(t, byte(100), frame.Pix[3])
}

func TestGammaCorrectClamps(t *testing.T) {
	frame := solidFrame(4, 4, 200)
	GammaCorrect(frame)

	assert.Equal(t, byte(255), frame.Pix[0])
}

func TestGammaCorrectCoversWholeFrame(t *testing.T) {
	frame := solidFrame(16, 16, 10)
	GammaCorrect(frame)

	for i := 0; i+3 < len(frame.Pix); i += 4 {
		assert.Equal(t, byte(18), frame.Pix[i], "pixel %d", i/4)
	}
}

func TestDitherLeavesQuantizedValuesAlone(t *testing.T) {
	// All channels already on a quantization level: no error to spread
	frame := solidFrame(8, 8, 224)
	expected := solidFrame(8, 8, 224)

	Dither(frame)
	assert.Equal(t, expected.Pix, frame.Pix)
}

func TestDitherQuantizesInterior(t *testing.T) {
	frame := solidFrame(8, 8, 100)
	Dither(frame)

	// The first processed pixel has no incoming error: it quantizes down to
	// the nearest level
	idx := (0*8 + 1) * 4
	assert.Equal(t, byte(96), frame.Pix[idx])

	// Alpha channel is never touched
	for i := 3; i < len(frame.Pix); i += 4 {
		assert.Equal(t, byte(100), frame.Pix[i])
	}
}
