// Package thumbnail derives fixed-size cover-fit JPEG thumbnails from
// arbitrary image bytes. The output always fills the full 200x300 target,
// cropping excess rather than letterboxing.
package thumbnail

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	Width       = 200
	Height      = 300
	JPEGQuality = 85
)

// ErrDecodeFailed marks unreadable or unsupported input. Callers treat it as
// a per-file failure, never as fatal to a batch.
var ErrDecodeFailed = errors.New("failed to decode image")

// Generate decodes data, flattens any transparency onto a white background,
// scales with Lanczos resampling so the image covers the target rectangle,
// center-crops to exactly Width x Height and encodes the result as JPEG.
func Generate(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}

	flat := flatten(img)

	bounds := flat.Bounds()
	originalWidth := bounds.Dx()
	originalHeight := bounds.Dy()
	if originalWidth == 0 || originalHeight == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrDecodeFailed)
	}

	aspectRatio := float64(originalWidth) / float64(originalHeight)
	targetRatio := float64(Width) / float64(Height)

	var newWidth, newHeight int
	if aspectRatio > targetRatio {
		// Image is wider - scale to fit height, then crop width
		newHeight = Height
		newWidth = int(float64(Height) * aspectRatio)
	} else {
		// Image is taller - scale to fit width, then crop height
		newWidth = Width
		newHeight = int(float64(Width) / aspectRatio)
	}
	if newWidth < Width {
		newWidth = Width
	}
	if newHeight < Height {
		newHeight = Height
	}

	resized := imaging.Resize(flat, newWidth, newHeight, imaging.Lanczos)

	left := (newWidth - Width) / 2
	top := (newHeight - Height) / 2
	cropped := imaging.Crop(resized, image.Rect(left, top, left+Width, top+Height))

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, cropped, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}

	return buf.Bytes(), nil
}

// flatten composites images that may carry transparency onto an opaque white
// background of the same dimensions.
func flatten(img image.Image) image.Image {
	switch img.(type) {
	case *image.NRGBA, *image.NRGBA64, *image.RGBA, *image.RGBA64, *image.Paletted:
		background := imaging.New(img.Bounds().Dx(), img.Bounds().Dy(), color.White)
		return imaging.OverlayCenter(background, img, 1.0)
	default:
		return img
	}
}
