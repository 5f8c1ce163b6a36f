//go:build darwin && !ios

package actuator

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// sysActuator drives macOS input. Prefers cliclick (brew install
// cliclick) and falls back to AppleScript where possible.
type sysActuator struct {
	useCliclick bool
}

// New returns the macOS actuator.
func New() Actuator {
	_, err := exec.LookPath("cliclick")
	return &sysActuator{useCliclick: err == nil}
}

func (a *sysActuator) Click(ctx context.Context, x, y int) error {
	return a.click(ctx, x, y, "c")
}

func (a *sysActuator) DoubleClick(ctx context.Context, x, y int) error {
	return a.click(ctx, x, y, "dc")
}

func (a *sysActuator) RightClick(ctx context.Context, x, y int) error {
	return a.click(ctx, x, y, "rc")
}

func (a *sysActuator) click(ctx context.Context, x, y int, op string) error {
	if a.useCliclick {
		return run(ctx, "cliclick", fmt.Sprintf("%s:%d,%d", op, x, y))
	}
	if op != "c" {
		return fmt.Errorf("%s click requires cliclick (brew install cliclick)", op)
	}
	script := fmt.Sprintf(`tell application "System Events" to click at {%d, %d}`, x, y)
	return run(ctx, "osascript", "-e", script)
}

func (a *sysActuator) MoveMouse(ctx context.Context, x, y int) error {
	if !a.useCliclick {
		return fmt.Errorf("mouse move requires cliclick (brew install cliclick)")
	}
	return run(ctx, "cliclick", fmt.Sprintf("m:%d,%d", x, y))
}

func (a *sysActuator) Drag(ctx context.Context, fromX, fromY, toX, toY int) error {
	if !a.useCliclick {
		return fmt.Errorf("drag requires cliclick (brew install cliclick)")
	}
	return run(ctx, "cliclick",
		fmt.Sprintf("dd:%d,%d", fromX, fromY),
		fmt.Sprintf("du:%d,%d", toX, toY))
}

func (a *sysActuator) Scroll(ctx context.Context, direction string, amount int) error {
	if !a.useCliclick {
		return fmt.Errorf("scroll requires cliclick (brew install cliclick)")
	}
	var dx, dy int
	switch direction {
	case "up":
		dy = amount
	case "down":
		dy = -amount
	case "left":
		dx = amount
	case "right":
		dx = -amount
	default:
		return fmt.Errorf("invalid scroll direction: %s", direction)
	}
	return run(ctx, "cliclick", fmt.Sprintf("scroll:%d,%d", dx, dy))
}

func (a *sysActuator) TypeText(ctx context.Context, text string) error {
	if a.useCliclick {
		return run(ctx, "cliclick", "t:"+text)
	}
	escaped := strings.ReplaceAll(text, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	script := fmt.Sprintf(`tell application "System Events" to keystroke "%s"`, escaped)
	return run(ctx, "osascript", "-e", script)
}

func (a *sysActuator) PressKey(ctx context.Context, combo string) error {
	parts := strings.Split(strings.ToLower(combo), "+")
	var modifiers []string
	var key string
	for _, p := range parts {
		switch p {
		case "cmd", "command":
			modifiers = append(modifiers, "command down")
		case "ctrl", "control":
			modifiers = append(modifiers, "control down")
		case "alt", "option":
			modifiers = append(modifiers, "option down")
		case "shift":
			modifiers = append(modifiers, "shift down")
		default:
			key = p
		}
	}

	var script string
	if code, ok := darwinKeyCodes[key]; ok {
		if len(modifiers) > 0 {
			script = fmt.Sprintf(`tell application "System Events" to key code %d using {%s}`, code, strings.Join(modifiers, ", "))
		} else {
			script = fmt.Sprintf(`tell application "System Events" to key code %d`, code)
		}
	} else if len(modifiers) > 0 {
		script = fmt.Sprintf(`tell application "System Events" to keystroke "%s" using {%s}`, key, strings.Join(modifiers, ", "))
	} else {
		script = fmt.Sprintf(`tell application "System Events" to keystroke "%s"`, key)
	}
	return run(ctx, "osascript", "-e", script)
}

// Named keys that AppleScript cannot express via keystroke.
var darwinKeyCodes = map[string]int{
	"return": 36, "enter": 36, "tab": 48, "space": 49, "delete": 51,
	"backspace": 51, "escape": 53, "esc": 53, "left": 123, "right": 124,
	"down": 125, "up": 126, "home": 115, "end": 119, "pageup": 116,
	"pagedown": 121, "f1": 122, "f2": 120, "f3": 99, "f4": 118, "f5": 96,
}

func (a *sysActuator) OpenApp(ctx context.Context, name string) error {
	return run(ctx, "open", "-a", name)
}

func (a *sysActuator) OpenURL(ctx context.Context, url string) error {
	return run(ctx, "open", url)
}

func (a *sysActuator) OpenFile(ctx context.Context, path string) error {
	return run(ctx, "open", path)
}

func (a *sysActuator) QuitApp(ctx context.Context, name string) error {
	escaped := strings.ReplaceAll(name, `"`, `\"`)
	return run(ctx, "osascript", "-e", fmt.Sprintf(`quit app "%s"`, escaped))
}

func (a *sysActuator) ListApps(ctx context.Context) (string, error) {
	out, err := runOut(ctx, "osascript", "-e",
		`tell application "System Events" to get name of (processes where background only is false)`)
	if err != nil {
		return "", err
	}
	apps := strings.Split(strings.TrimSpace(out), ", ")
	return strings.Join(apps, "\n"), nil
}

func (a *sysActuator) Notify(ctx context.Context, title, message string) error {
	esc := func(s string) string {
		s = strings.ReplaceAll(s, `\`, `\\`)
		return strings.ReplaceAll(s, `"`, `\"`)
	}
	script := fmt.Sprintf(`display notification "%s" with title "%s"`, esc(message), esc(title))
	return run(ctx, "osascript", "-e", script)
}

func (a *sysActuator) MousePosition(ctx context.Context) (int, int, error) {
	if !a.useCliclick {
		return 0, 0, fmt.Errorf("mouse position requires cliclick (brew install cliclick)")
	}
	out, err := runOut(ctx, "cliclick", "p")
	if err != nil {
		return 0, 0, err
	}
	return parsePoint(strings.TrimSpace(out))
}

func (a *sysActuator) RunShell(ctx context.Context, command string) (string, error) {
	return runOut(ctx, "sh", "-c", command)
}

func (a *sysActuator) RunAppleScript(ctx context.Context, script string) (string, error) {
	return runOut(ctx, "osascript", "-e", script)
}
