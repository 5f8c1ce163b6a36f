package tools

import (
	"fmt"
	"image"
	"math"

	"github.com/lavishq/lavis/internal/screen"
)

// CoordMax is the upper bound of the normalized coordinate space the
// model works in. Both axes run 0..CoordMax regardless of the real
// display resolution.
const CoordMax = 1000

// BoundsFunc resolves the display rectangle used for coordinate
// mapping. Injectable so tests do not need a live display.
type BoundsFunc func() (image.Rectangle, error)

func displayBounds(display int) BoundsFunc {
	return func() (image.Rectangle, error) {
		return screen.PrimaryBounds(display)
	}
}

func validNormalized(x, y int) error {
	if x < 0 || x > CoordMax || y < 0 || y > CoordMax {
		return fmt.Errorf("coordinates (%d, %d) outside 0..%d", x, y, CoordMax)
	}
	return nil
}

// toPixels maps a normalized point onto bounds.
func toPixels(x, y int, bounds image.Rectangle) (int, int) {
	px := bounds.Min.X + x*(bounds.Dx()-1)/CoordMax
	py := bounds.Min.Y + y*(bounds.Dy()-1)/CoordMax
	return px, py
}

// toNormalized maps a pixel back into the model's coordinate space.
func toNormalized(px, py int, bounds image.Rectangle) (int, int) {
	nx, ny := 0, 0
	if bounds.Dx() > 1 {
		nx = (px - bounds.Min.X) * CoordMax / (bounds.Dx() - 1)
	}
	if bounds.Dy() > 1 {
		ny = (py - bounds.Min.Y) * CoordMax / (bounds.Dy() - 1)
	}
	clamp := func(v int) int {
		if v < 0 {
			return 0
		}
		if v > CoordMax {
			return CoordMax
		}
		return v
	}
	return clamp(nx), clamp(ny)
}

// intArg reads a required integer argument. JSON numbers decode as
// float64; fractional values are rejected rather than truncated.
func intArg(args map[string]any, key string) (int, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("missing argument %q", key)
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("argument %q must be a number", key)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("argument %q must be an integer", key)
	}
	return int(f), nil
}

func intArgDefault(args map[string]any, key string, def int) (int, error) {
	if _, ok := args[key]; !ok {
		return def, nil
	}
	return intArg(args, key)
}

func floatArgDefault(args map[string]any, key string, def float64) (float64, error) {
	v, ok := args[key]
	if !ok {
		return def, nil
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("argument %q must be a number", key)
	}
	return f, nil
}

func strArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	return s, nil
}

func strArgDefault(args map[string]any, key, def string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}

// normalizedPoint reads the x/y arguments, validates the range, and
// maps them to pixels. Out-of-range input fails before any bounds
// lookup so malformed coordinates never reach the actuator.
func normalizedPoint(args map[string]any, xKey, yKey string, bounds BoundsFunc) (px, py int, err error) {
	x, err := intArg(args, xKey)
	if err != nil {
		return 0, 0, err
	}
	y, err := intArg(args, yKey)
	if err != nil {
		return 0, 0, err
	}
	if err := validNormalized(x, y); err != nil {
		return 0, 0, err
	}
	b, err := bounds()
	if err != nil {
		return 0, 0, fmt.Errorf("resolve display bounds: %w", err)
	}
	px, py = toPixels(x, y, b)
	return px, py, nil
}
