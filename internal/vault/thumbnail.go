package vault

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register PNG decoding alongside JPEG

	"golang.org/x/image/draw"
)

// MaxThumbnailDimension is the longest-side cap for generated thumbnails.
const MaxThumbnailDimension = 512

// ThumbnailJPEGQuality trades a visually lossless re-encode against
// thumbnail size on disk.
const ThumbnailJPEGQuality = 85

// makeThumbnail decodes src as an image and returns a JPEG-encoded
// Catmull-Rom scaled copy whose longest side is at most
// MaxThumbnailDimension pixels. Images already within bounds are
// re-encoded as-is rather than upscaled.
func makeThumbnail(src []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	scaled := img
	if width > MaxThumbnailDimension || height > MaxThumbnailDimension {
		newW, newH := scaledDimensions(width, height, MaxThumbnailDimension)

		dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		scaled = dst
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, scaled, &jpeg.Options{Quality: ThumbnailJPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding thumbnail: %w", err)
	}

	return out.Bytes(), nil
}

// scaledDimensions returns the largest width/height pair with the same
// aspect ratio as (width, height) whose longest side equals maxSide.
func scaledDimensions(width, height, maxSide int) (int, int) {
	if width >= height {
		newW := maxSide
		newH := int(float64(height) * float64(maxSide) / float64(width))

		if newH < 1 {
			newH = 1
		}

		return newW, newH
	}

	newH := maxSide
	newW := int(float64(width) * float64(maxSide) / float64(height))

	if newW < 1 {
		newW = 1
	}

	return newW, newH
}
