// Package improc converts raw camera buffers into Go images
package improc

import (
	"encoding/binary"
	"fmt"
	"image"
)

// ErrUnsupportedFormat is generated for pixel formats with no conversion
type ErrUnsupportedFormat struct {
	PixelFormat string
}

func (e ErrUnsupportedFormat) Error() string {
	return fmt.Sprintf("pixel format %s is not supported", e.PixelFormat)
}

// BytesPerPixel returns the size of one pixel of a pixel format, 0 if the
// format is not supported
func BytesPerPixel(pixelFormat string) int {
	switch pixelFormat {
	case "Mono8", "BayerRG8", "BayerGB8", "BayerGR8", "BayerBG8":
		return 1
	case "Mono16", "BayerRG16", "BayerGB16", "BayerGR16", "BayerBG16":
		return 2
	}
	return 0
}

func bayer(pixelFormat string) bool {
	return len(pixelFormat) > 5 && pixelFormat[:5] == "Bayer"
}

// widen returns the buffer as 16-bit samples.  8-bit samples keep their
// value.
func widen(data []byte, width, height int, pixelFormat string) ([]uint16, error) {
	bpp := BytesPerPixel(pixelFormat)
	if bpp == 0 {
		return nil, ErrUnsupportedFormat{pixelFormat}
	}
	n := width * height
	if len(data) < n*bpp {
		return nil, fmt.Errorf("buffer of %d bytes too small for %dx%d %s", len(data), width, height, pixelFormat)
	}
	out := make([]uint16, n)
	if bpp == 1 {
		for i := 0; i < n; i++ {
			out[i] = uint16(data[i])
		}
	} else {
		for i := 0; i < n; i++ {
			out[i] = binary.LittleEndian.Uint16(data[2*i:])
		}
	}
	if bayer(pixelFormat) {
		out = debayer(out, width, height)
	}
	return out, nil
}

// debayer reduces a color filter array to luminance by averaging the 2x2
// cell each pixel belongs to
func debayer(cfa []uint16, width, height int) []uint16 {
	out := make([]uint16, len(cfa))
	for y := 0; y < height; y++ {
		y0 := y &^ 1
		y1 := y0 + 1
		if y1 >= height {
			y1 = y0
		}
		for x := 0; x < width; x++ {
			x0 := x &^ 1
			x1 := x0 + 1
			if x1 >= width {
				x1 = x0
			}
			sum := uint32(cfa[y0*width+x0]) + uint32(cfa[y0*width+x1]) +
				uint32(cfa[y1*width+x0]) + uint32(cfa[y1*width+x1])
			out[y*width+x] = uint16(sum / 4)
		}
	}
	return out
}

// Mono8 converts a raw buffer to an 8-bit single channel image.  16-bit
// formats are scaled down by 256.
func Mono8(data []byte, width, height int, pixelFormat string) (*image.Gray, error) {
	wide, err := widen(data, width, height, pixelFormat)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, len(wide))
	if BytesPerPixel(pixelFormat) == 1 {
		for idx := 0; idx < len(wide); idx++ {
			buf[idx] = byte(wide[idx])
		}
	} else {
		for idx := 0; idx < len(wide); idx++ {
			buf[idx] = byte(wide[idx] / 256) // scale 16 to 8 bits
		}
	}
	return &image.Gray{Pix: buf, Stride: width, Rect: image.Rect(0, 0, width, height)}, nil
}

// Mono16 converts a raw buffer to a 16-bit single channel image at its
// native depth; 8-bit formats keep their values
func Mono16(data []byte, width, height int, pixelFormat string) (*image.Gray16, error) {
	wide, err := widen(data, width, height, pixelFormat)
	if err != nil {
		return nil, err
	}
	im := image.NewGray16(image.Rect(0, 0, width, height))
	for idx, v := range wide {
		// image.Gray16 is big endian
		im.Pix[2*idx] = byte(v >> 8)
		im.Pix[2*idx+1] = byte(v)
	}
	return im, nil
}
