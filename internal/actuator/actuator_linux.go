//go:build linux

package actuator

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// sysActuator drives Linux input via xdotool (X11) or ydotool (Wayland).
type sysActuator struct {
	backend string
}

// New returns the Linux actuator. The backend is detected once at
// startup; an empty backend fails every input operation with install
// instructions.
func New() Actuator {
	a := &sysActuator{}
	if _, err := exec.LookPath("xdotool"); err == nil {
		a.backend = "xdotool"
	} else if _, err := exec.LookPath("ydotool"); err == nil {
		a.backend = "ydotool"
	}
	return a
}

func (a *sysActuator) requireBackend() error {
	if a.backend == "" {
		return fmt.Errorf("no input backend available: install xdotool (X11) or ydotool (Wayland)")
	}
	return nil
}

func (a *sysActuator) Click(ctx context.Context, x, y int) error {
	return a.click(ctx, x, y, 1, false)
}

func (a *sysActuator) DoubleClick(ctx context.Context, x, y int) error {
	return a.click(ctx, x, y, 2, false)
}

func (a *sysActuator) RightClick(ctx context.Context, x, y int) error {
	return a.click(ctx, x, y, 1, true)
}

func (a *sysActuator) click(ctx context.Context, x, y, count int, right bool) error {
	if err := a.requireBackend(); err != nil {
		return err
	}
	if a.backend == "xdotool" {
		button := "1"
		if right {
			button = "3"
		}
		return run(ctx, "xdotool",
			"mousemove", strconv.Itoa(x), strconv.Itoa(y),
			"click", "--repeat", strconv.Itoa(count), button)
	}

	if err := run(ctx, "ydotool", "mousemove", "--absolute", "-x", strconv.Itoa(x), "-y", strconv.Itoa(y)); err != nil {
		return err
	}
	code := "0xC0"
	if right {
		code = "0xC1"
	}
	for i := 0; i < count; i++ {
		if err := run(ctx, "ydotool", "click", code); err != nil {
			return err
		}
	}
	return nil
}

func (a *sysActuator) MoveMouse(ctx context.Context, x, y int) error {
	if err := a.requireBackend(); err != nil {
		return err
	}
	if a.backend == "xdotool" {
		return run(ctx, "xdotool", "mousemove", strconv.Itoa(x), strconv.Itoa(y))
	}
	return run(ctx, "ydotool", "mousemove", "--absolute", "-x", strconv.Itoa(x), "-y", strconv.Itoa(y))
}

func (a *sysActuator) Drag(ctx context.Context, fromX, fromY, toX, toY int) error {
	if err := a.requireBackend(); err != nil {
		return err
	}
	if a.backend != "xdotool" {
		return fmt.Errorf("drag requires xdotool (not supported by ydotool)")
	}
	return run(ctx, "xdotool",
		"mousemove", strconv.Itoa(fromX), strconv.Itoa(fromY),
		"mousedown", "1",
		"mousemove", strconv.Itoa(toX), strconv.Itoa(toY),
		"mouseup", "1")
}

func (a *sysActuator) Scroll(ctx context.Context, direction string, amount int) error {
	if err := a.requireBackend(); err != nil {
		return err
	}
	if amount <= 0 {
		amount = 3
	}
	if a.backend == "xdotool" {
		var button string
		switch direction {
		case "up":
			button = "4"
		case "down":
			button = "5"
		case "left":
			button = "6"
		case "right":
			button = "7"
		default:
			return fmt.Errorf("invalid scroll direction: %s", direction)
		}
		return run(ctx, "xdotool", "click", "--repeat", strconv.Itoa(amount), button)
	}

	dx, dy := 0, 0
	switch direction {
	case "up":
		dy = -amount
	case "down":
		dy = amount
	case "left":
		dx = -amount
	case "right":
		dx = amount
	default:
		return fmt.Errorf("invalid scroll direction: %s", direction)
	}
	return run(ctx, "ydotool", "mousemove", "-w", "-x", strconv.Itoa(dx), "-y", strconv.Itoa(dy))
}

func (a *sysActuator) TypeText(ctx context.Context, text string) error {
	if err := a.requireBackend(); err != nil {
		return err
	}
	if a.backend == "xdotool" {
		return run(ctx, "xdotool", "type", "--delay", "12", text)
	}
	return run(ctx, "ydotool", "type", text)
}

func (a *sysActuator) PressKey(ctx context.Context, combo string) error {
	if err := a.requireBackend(); err != nil {
		return err
	}
	// Normalize macOS-flavored names to X key syms.
	combo = strings.ReplaceAll(combo, "cmd", "super")
	combo = strings.ReplaceAll(combo, "option", "alt")
	if a.backend == "xdotool" {
		return run(ctx, "xdotool", "key", combo)
	}
	return run(ctx, "ydotool", "key", combo)
}

func (a *sysActuator) OpenApp(ctx context.Context, name string) error {
	if _, err := exec.LookPath(name); err == nil {
		cmd := exec.CommandContext(ctx, name)
		if err := cmd.Start(); err == nil {
			go cmd.Wait()
			return nil
		}
	}
	// Fall back to the desktop entry name.
	entry := strings.ToLower(strings.ReplaceAll(name, " ", "-"))
	return run(ctx, "gtk-launch", entry)
}

func (a *sysActuator) OpenURL(ctx context.Context, url string) error {
	return run(ctx, "xdg-open", url)
}

func (a *sysActuator) OpenFile(ctx context.Context, path string) error {
	return run(ctx, "xdg-open", path)
}

func (a *sysActuator) QuitApp(ctx context.Context, name string) error {
	return run(ctx, "pkill", "-i", "-f", name)
}

func (a *sysActuator) ListApps(ctx context.Context) (string, error) {
	// wmctrl lists managed windows; good enough for "what is open".
	out, err := runOut(ctx, "wmctrl", "-l")
	if err != nil {
		return "", fmt.Errorf("listing apps requires wmctrl: %w", err)
	}
	var names []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		fields := strings.SplitN(line, " ", 4)
		if len(fields) == 4 {
			names = append(names, strings.TrimSpace(fields[3]))
		}
	}
	return strings.Join(names, "\n"), nil
}

func (a *sysActuator) Notify(ctx context.Context, title, message string) error {
	return run(ctx, "notify-send", title, message)
}

func (a *sysActuator) MousePosition(ctx context.Context) (int, int, error) {
	if a.backend != "xdotool" {
		return 0, 0, fmt.Errorf("mouse position requires xdotool")
	}
	out, err := runOut(ctx, "xdotool", "getmouselocation")
	if err != nil {
		return 0, 0, err
	}
	// Output: "x:123 y:456 screen:0 window:..."
	x, y := -1, -1
	for _, field := range strings.Fields(out) {
		if v, ok := strings.CutPrefix(field, "x:"); ok {
			x, _ = strconv.Atoi(v)
		} else if v, ok := strings.CutPrefix(field, "y:"); ok {
			y, _ = strconv.Atoi(v)
		}
	}
	if x < 0 || y < 0 {
		return 0, 0, fmt.Errorf("malformed getmouselocation output %q", strings.TrimSpace(out))
	}
	return x, y, nil
}

func (a *sysActuator) RunShell(ctx context.Context, command string) (string, error) {
	return runOut(ctx, "sh", "-c", command)
}

func (a *sysActuator) RunAppleScript(ctx context.Context, script string) (string, error) {
	return "", ErrUnsupported
}
