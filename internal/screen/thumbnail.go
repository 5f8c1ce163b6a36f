package screen

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Thumbnail downscales PNG data to at most maxWidth pixels wide,
// preserving aspect ratio. Images already narrower are returned as-is.
func Thumbnail(data []byte, maxWidth int) ([]byte, error) {
	if maxWidth <= 0 {
		return data, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if img.Bounds().Dx() <= maxWidth {
		return data, nil
	}
	small := imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	return EncodePNG(small)
}
