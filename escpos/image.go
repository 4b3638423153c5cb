// This file is inspired by what is done in the python-escpos and escpos-php libraries.
package escpos

import (
	"fmt"
	"image"
	"image/color"

	"github.com/kovidgoyal/imaging"
)

// Image processing method constants
const (
	// ImageProcessDither applies Floyd-Steinberg dithering
	ImageProcessDither uint8 = 0
	// ImageProcessThreshold applies simple threshold-based conversion
	ImageProcessThreshold uint8 = 1
)

// FragmentHeight is the maximum number of rows sent in a single raster command.
// Some printers drop taller raster images.
const FragmentHeight = 960

// Image prints img dithered at high density, optionally centered.
func (e *Escpos) Image(img image.Image, center bool) (int, error) {
	var written int
	err := e.withJustify(center, func() error {
		n, err := e.PrintImageWithProcessing(img, ImageProcessDither, true, true)
		written = n
		return err
	})
	return written, err
}

// PrintImageWithProcessing prints an image to the printer using the specified processing method
//   - img: the image to print
//   - processMethod: the image processing method to use (ImageProcessDither or ImageProcessThreshold)
//   - highDensityVertical, highDensityHorizontal: raster density
//
// Images taller than FragmentHeight are sent as several raster commands.
// Returns the number of bytes written and any error encountered
func (e *Escpos) PrintImageWithProcessing(img image.Image, processMethod uint8, highDensityVertical bool, highDensityHorizontal bool) (int, error) {
	var bw *image.NRGBA
	switch processMethod {
	case ImageProcessDither:
		bw = transformImage(img, applyFloydSteinbergDithering)
	case ImageProcessThreshold:
		bw = transformImage(img, applyThreshold)
	default:
		return 0, fmt.Errorf("unknown image processing method: %d", processMethod)
	}

	written := 0
	width, height := bw.Bounds().Dx(), bw.Bounds().Dy()
	for top := 0; top < height; top += FragmentHeight {
		bottom := min(top+FragmentHeight, height)
		fragment := imaging.Crop(bw, image.Rect(0, top, width, bottom))

		data, err := rasterCommand(fragment, highDensityVertical, highDensityHorizontal)
		if err != nil {
			return written, fmt.Errorf("failed to rasterize image: %w", err)
		}
		n, err := e.WriteRaw(data)
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// rasterCommand builds a GS v 0 command (header included) for a black and white image.
func rasterCommand(im *image.NRGBA, highDensityVertical bool, highDensityHorizontal bool) ([]byte, error) {
	densityByte := byte(0)
	if !highDensityHorizontal {
		densityByte += 1
	}
	if !highDensityVertical {
		densityByte += 2
	}

	width, height := im.Bounds().Dx(), im.Bounds().Dy()
	widthBytes := (width + 7) / 8

	header := append([]byte{gs}, []byte("v0")...)
	header = append(header, densityByte)

	res, err := intLowHigh(widthBytes, 2)
	if err != nil {
		return nil, err
	}
	header = append(header, res...)

	res, err = intLowHigh(height, 2)
	if err != nil {
		return nil, err
	}
	header = append(header, res...)

	return append(header, rasterizeImage(im)...), nil
}

// transformImage flattens the image on white, converts it to inverted grayscale
// and reduces it to pure black and white with the given method.
func transformImage(img image.Image, binarize func(image.Image) *image.NRGBA) *image.NRGBA {
	// convert to rgba
	rgba := imaging.Clone(img)

	bounds := rgba.Bounds()
	white := imaging.New(bounds.Max.X, bounds.Max.Y, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	// Composite the image over the white background using alpha
	result := imaging.OverlayCenter(white, rgba, 1.0)

	gray := imaging.Grayscale(result)
	result = imaging.Invert(gray)

	return binarize(result)
}

// applyThreshold converts an inverted grayscale image to black and white:
// every pixel brighter than mid-gray (a dark pixel in the source) becomes black.
func applyThreshold(img image.Image) *image.NRGBA {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	binary := imaging.New(width, height, color.White)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, _, _, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			if r>>8 >= 128 {
				binary.Set(x, y, color.Black)
			}
		}
	}
	return binary
}

// applyFloydSteinbergDithering applies Floyd-Steinberg dithering to an inverted grayscale image.
// It also converts the image to a binary format (black and white)
// and reverses the colors back (black becomes white and vice versa).
func applyFloydSteinbergDithering(img image.Image) *image.NRGBA {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	binary := imaging.New(width, height, color.White)
	errors := make([][]float64, height)
	for i := range errors {
		errors[i] = make([]float64, width)
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, _, _, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			oldPixel := float64(r>>8) + errors[y][x]
			newPixel := 0.0
			if oldPixel >= 128 {
				newPixel = 255.0
			}
			if newPixel != 0 {
				binary.Set(x, y, color.Black)
			}

			// Distribute the error
			quantError := oldPixel - newPixel
			if x+1 < width {
				errors[y][x+1] += quantError * 7.0 / 16.0
			}
			if y+1 < height {
				if x-1 >= 0 {
					errors[y+1][x-1] += quantError * 3.0 / 16.0
				}
				errors[y+1][x] += quantError * 5.0 / 16.0
				if x+1 < width {
					errors[y+1][x+1] += quantError * 1.0 / 16.0
				}
			}
		}
	}

	return binary
}

// rasterizeImage packs a black and white image into 1 bit per pixel rows, MSB first
func rasterizeImage(img *image.NRGBA) []byte {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	bytesPerRow := (width + 7) / 8
	data := make([]byte, bytesPerRow*height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, _, _, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()

			// A set bit prints a black dot
			if r == 0 {
				bytePos := y*bytesPerRow + x/8
				bitPos := uint(7 - (x % 8))

				data[bytePos] |= 1 << bitPos
			}
		}
	}

	return data
}

// intLowHigh generates multiple bytes for a number: In lower and higher parts, or more parts as needed.
func intLowHigh(inpNumber int, outBytes int) ([]byte, error) {
	if outBytes < 1 || outBytes > 4 {
		return nil, fmt.Errorf("can only output 1-4 bytes")
	}

	maxInput := 1<<(outBytes*8) - 1
	if inpNumber < 0 || inpNumber > maxInput {
		return nil, fmt.Errorf("number too large. Can only output up to %d in %d bytes", maxInput, outBytes)
	}

	out := make([]byte, outBytes)
	for i := 0; i < outBytes; i++ {
		out[i] = byte(inpNumber % 256)
		inpNumber /= 256
	}

	return out, nil
}
