// Package imagehash computes difference hashes (dHash) for screenshot
// deduplication. A frame is downscaled to 9×8 grayscale and each pixel is
// compared with its right neighbor, packing 64 bits row-major.
package imagehash

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"math/bits"

	"golang.org/x/image/draw"
)

const (
	hashWidth  = 9
	hashHeight = 8
)

// DHash computes the 64-bit difference hash of img.
func DHash(img image.Image) uint64 {
	gray := image.NewGray(image.Rect(0, 0, hashWidth, hashHeight))
	draw.ApproxBiLinear.Scale(gray, gray.Bounds(), img, img.Bounds(), draw.Src, nil)

	var hash uint64
	for y := 0; y < hashHeight; y++ {
		for x := 0; x < hashWidth-1; x++ {
			hash <<= 1
			left := gray.GrayAt(x, y).Y
			right := gray.GrayAt(x+1, y).Y
			if left > right {
				hash |= 1
			}
		}
	}
	return hash
}

// DHashBytes decodes an encoded image (PNG or JPEG) and hashes it.
func DHashBytes(data []byte) (uint64, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("decode image: %w", err)
	}
	return DHash(img), nil
}

// Distance returns the Hamming distance between two hashes (0..64).
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Hex formats a hash for logging.
func Hex(h uint64) string {
	return fmt.Sprintf("%016x", h)
}
