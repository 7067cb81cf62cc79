package display

import (
	"sync"

	"github.com/nacholabs/nacho/pkg/utils"
)

// GammaCorrect is a Stage applying fast gamma correction in place, split
// into parallel chunks.
func GammaCorrect(frame Frame) {
	data := frame.Pix
	chunks := 4
	chunkSize := (len(data)/4 + chunks - 1) / chunks * 4

	var wg sync.WaitGroup
	for c := 0; c < chunks; c++ {
		start := c * chunkSize
		if start >= len(data) {
			break
		}
		end := min(start+chunkSize, len(data))

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i+3 < end; i += 4 {
				data[i] = gamma(data[i])
				data[i+1] = gamma(data[i+1])
				data[i+2] = gamma(data[i+2])
				// Alpha unchanged
			}
		}(start, end)
	}
	wg.Wait()
}

// gamma approximates 2.2 gamma with a linear ramp
func gamma(v byte) byte {
	val := float64(v) * 1.8
	if val > 255 {
		return 255
	}
	return byte(val)
}

// Dither is a Stage applying Floyd-Steinberg dithering in place,
// quantizing each channel to eight levels and distributing the error to
// neighboring pixels.
func Dither(frame Frame) {
	data := frame.Pix
	width, height := frame.Width, frame.Height

	spread := func(index, err, num int) {
		if index >= 0 && index < len(data) {
			data[index] = byte(utils.Clamp(int(data[index])+err*num/16, 0, 255))
		}
	}

	for y := 0; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			idx := (y*width + x) * 4
			if idx+3 >= len(data) {
				continue
			}

			for channel := 0; channel < 3; channel++ {
				old := int(data[idx+channel])
				quantized := (old / 32) * 32
				data[idx+channel] = byte(quantized)
				err := old - quantized

				spread(idx+4+channel, err, 7)
				spread(idx+(width-1)*4+channel, err, 3)
				spread(idx+width*4+channel, err, 5)
				spread(idx+(width+1)*4+channel, err, 1)
			}
		}
	}
}
