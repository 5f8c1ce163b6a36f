package imagehash

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

// horizontalGradient produces an image whose brightness strictly increases
// left to right, so every left>right comparison is false.
func horizontalGradient(w, h int, ascending bool) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(x * 255 / (w - 1))
			if !ascending {
				v = 255 - v
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func TestDHashGradients(t *testing.T) {
	asc := DHash(horizontalGradient(90, 80, true))
	if asc != 0 {
		t.Errorf("ascending gradient should hash to 0, got %s", Hex(asc))
	}

	desc := DHash(horizontalGradient(90, 80, false))
	if desc != ^uint64(0) {
		t.Errorf("descending gradient should hash to all ones, got %s", Hex(desc))
	}
}

func TestDHashStable(t *testing.T) {
	img := horizontalGradient(400, 300, false)
	h1 := DHash(img)
	h2 := DHash(img)
	if h1 != h2 {
		t.Errorf("hash not deterministic: %s vs %s", Hex(h1), Hex(h2))
	}

	// Scaling the same scene should not change the hash materially.
	small := DHash(horizontalGradient(90, 80, false))
	if Distance(h1, small) > 4 {
		t.Errorf("resized gradient too far: %d bits", Distance(h1, small))
	}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		a, b uint64
		want int
	}{
		{0, 0, 0},
		{0, 1, 1},
		{0, ^uint64(0), 64},
		{0xF0, 0x0F, 8},
	}
	for _, tt := range tests {
		if got := Distance(tt.a, tt.b); got != tt.want {
			t.Errorf("Distance(%x, %x) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestDHashBytes(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, horizontalGradient(90, 80, true)); err != nil {
		t.Fatalf("encode: %v", err)
	}

	h, err := DHashBytes(buf.Bytes())
	if err != nil {
		t.Fatalf("DHashBytes: %v", err)
	}
	if h != 0 {
		t.Errorf("expected 0 hash for ascending gradient, got %s", Hex(h))
	}

	if _, err := DHashBytes([]byte("not an image")); err == nil {
		t.Error("expected error for junk bytes")
	}
}
