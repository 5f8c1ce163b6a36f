package actuator

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ErrUnsupported is returned when an operation has no backend on the
// current platform (e.g. AppleScript outside macOS).
var ErrUnsupported = errors.New("operation not supported on this platform")

// Actuator performs OS-level input and launch operations. Coordinates
// are raw screen pixels; callers are responsible for mapping any
// normalized coordinate space onto pixels first.
type Actuator interface {
	Click(ctx context.Context, x, y int) error
	DoubleClick(ctx context.Context, x, y int) error
	RightClick(ctx context.Context, x, y int) error
	MoveMouse(ctx context.Context, x, y int) error
	Drag(ctx context.Context, fromX, fromY, toX, toY int) error
	Scroll(ctx context.Context, direction string, amount int) error

	TypeText(ctx context.Context, text string) error
	PressKey(ctx context.Context, combo string) error

	OpenApp(ctx context.Context, name string) error
	OpenURL(ctx context.Context, url string) error
	OpenFile(ctx context.Context, path string) error
	QuitApp(ctx context.Context, name string) error
	ListApps(ctx context.Context) (string, error)
	Notify(ctx context.Context, title, message string) error

	MousePosition(ctx context.Context) (x, y int, err error)

	RunShell(ctx context.Context, command string) (string, error)
	RunAppleScript(ctx context.Context, script string) (string, error)
}

func run(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("%s: %v: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %v", name, err)
	}
	return nil
}

func runOut(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%s: %v", name, err)
	}
	return string(out), nil
}

// parsePoint reads an "x,y" pair as printed by pointer-query tools.
func parsePoint(s string) (int, int, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed point %q", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("malformed point %q", s)
	}
	y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("malformed point %q", s)
	}
	return x, y, nil
}
