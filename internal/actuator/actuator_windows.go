//go:build windows

package actuator

import (
	"context"
	"fmt"
	"strings"
)

// sysActuator drives Windows input through PowerShell and the user32
// mouse_event / SendKeys APIs.
type sysActuator struct{}

// New returns the Windows actuator.
func New() Actuator {
	return &sysActuator{}
}

const mouseOpsType = `
Add-Type -TypeDefinition @"
using System;
using System.Runtime.InteropServices;
public class MouseOps {
    [DllImport("user32.dll")]
    public static extern bool SetCursorPos(int X, int Y);
    [DllImport("user32.dll")]
    public static extern void mouse_event(uint dwFlags, int dx, int dy, uint dwData, int dwExtraInfo);
    public const uint MOUSEEVENTF_LEFTDOWN = 0x02;
    public const uint MOUSEEVENTF_LEFTUP = 0x04;
    public const uint MOUSEEVENTF_RIGHTDOWN = 0x08;
    public const uint MOUSEEVENTF_RIGHTUP = 0x10;
    public const uint MOUSEEVENTF_WHEEL = 0x0800;
    public const uint MOUSEEVENTF_HWHEEL = 0x01000;
}
"@
`

func (a *sysActuator) powershell(ctx context.Context, script string) error {
	return run(ctx, "powershell", "-NoProfile", "-Command", script)
}

func (a *sysActuator) Click(ctx context.Context, x, y int) error {
	script := mouseOpsType + fmt.Sprintf(`
[MouseOps]::SetCursorPos(%d, %d)
Start-Sleep -Milliseconds 50
[MouseOps]::mouse_event([MouseOps]::MOUSEEVENTF_LEFTDOWN, 0, 0, 0, 0)
[MouseOps]::mouse_event([MouseOps]::MOUSEEVENTF_LEFTUP, 0, 0, 0, 0)
`, x, y)
	return a.powershell(ctx, script)
}

func (a *sysActuator) DoubleClick(ctx context.Context, x, y int) error {
	script := mouseOpsType + fmt.Sprintf(`
[MouseOps]::SetCursorPos(%d, %d)
Start-Sleep -Milliseconds 50
[MouseOps]::mouse_event([MouseOps]::MOUSEEVENTF_LEFTDOWN, 0, 0, 0, 0)
[MouseOps]::mouse_event([MouseOps]::MOUSEEVENTF_LEFTUP, 0, 0, 0, 0)
Start-Sleep -Milliseconds 100
[MouseOps]::mouse_event([MouseOps]::MOUSEEVENTF_LEFTDOWN, 0, 0, 0, 0)
[MouseOps]::mouse_event([MouseOps]::MOUSEEVENTF_LEFTUP, 0, 0, 0, 0)
`, x, y)
	return a.powershell(ctx, script)
}

func (a *sysActuator) RightClick(ctx context.Context, x, y int) error {
	script := mouseOpsType + fmt.Sprintf(`
[MouseOps]::SetCursorPos(%d, %d)
Start-Sleep -Milliseconds 50
[MouseOps]::mouse_event([MouseOps]::MOUSEEVENTF_RIGHTDOWN, 0, 0, 0, 0)
[MouseOps]::mouse_event([MouseOps]::MOUSEEVENTF_RIGHTUP, 0, 0, 0, 0)
`, x, y)
	return a.powershell(ctx, script)
}

func (a *sysActuator) MoveMouse(ctx context.Context, x, y int) error {
	script := mouseOpsType + fmt.Sprintf(`[MouseOps]::SetCursorPos(%d, %d)`, x, y)
	return a.powershell(ctx, script)
}

func (a *sysActuator) Drag(ctx context.Context, fromX, fromY, toX, toY int) error {
	script := mouseOpsType + fmt.Sprintf(`
[MouseOps]::SetCursorPos(%d, %d)
Start-Sleep -Milliseconds 50
[MouseOps]::mouse_event([MouseOps]::MOUSEEVENTF_LEFTDOWN, 0, 0, 0, 0)
Start-Sleep -Milliseconds 100
[MouseOps]::SetCursorPos(%d, %d)
Start-Sleep -Milliseconds 100
[MouseOps]::mouse_event([MouseOps]::MOUSEEVENTF_LEFTUP, 0, 0, 0, 0)
`, fromX, fromY, toX, toY)
	return a.powershell(ctx, script)
}

func (a *sysActuator) Scroll(ctx context.Context, direction string, amount int) error {
	if amount <= 0 {
		amount = 3
	}
	flag := "MOUSEEVENTF_WHEEL"
	delta := 120 * amount
	switch direction {
	case "up":
	case "down":
		delta = -delta
	case "left":
		flag = "MOUSEEVENTF_HWHEEL"
		delta = -delta
	case "right":
		flag = "MOUSEEVENTF_HWHEEL"
	default:
		return fmt.Errorf("invalid scroll direction: %s", direction)
	}
	script := mouseOpsType + fmt.Sprintf(`[MouseOps]::mouse_event([MouseOps]::%s, 0, 0, %d, 0)`, flag, uint32(int32(delta)))
	return a.powershell(ctx, script)
}

func (a *sysActuator) TypeText(ctx context.Context, text string) error {
	script := fmt.Sprintf(`
Add-Type -AssemblyName System.Windows.Forms
[System.Windows.Forms.SendKeys]::SendWait('%s')
`, escapeSendKeys(text))
	return a.powershell(ctx, script)
}

func (a *sysActuator) PressKey(ctx context.Context, combo string) error {
	script := fmt.Sprintf(`
Add-Type -AssemblyName System.Windows.Forms
[System.Windows.Forms.SendKeys]::SendWait('%s')
`, comboToSendKeys(combo))
	return a.powershell(ctx, script)
}

// escapeSendKeys quotes SendKeys metacharacters and single quotes for
// embedding in a single-quoted PowerShell string.
func escapeSendKeys(text string) string {
	var sb strings.Builder
	for _, r := range text {
		switch r {
		case '+', '^', '%', '~', '(', ')', '{', '}', '[', ']':
			sb.WriteRune('{')
			sb.WriteRune(r)
			sb.WriteRune('}')
		case '\'':
			sb.WriteString("''")
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

var sendKeyNames = map[string]string{
	"enter": "{ENTER}", "return": "{ENTER}", "tab": "{TAB}", "esc": "{ESC}",
	"escape": "{ESC}", "space": " ", "backspace": "{BACKSPACE}",
	"delete": "{DELETE}", "up": "{UP}", "down": "{DOWN}", "left": "{LEFT}",
	"right": "{RIGHT}", "home": "{HOME}", "end": "{END}", "pageup": "{PGUP}",
	"pagedown": "{PGDN}", "f1": "{F1}", "f2": "{F2}", "f3": "{F3}",
	"f4": "{F4}", "f5": "{F5}", "f6": "{F6}", "f7": "{F7}", "f8": "{F8}",
	"f9": "{F9}", "f10": "{F10}", "f11": "{F11}", "f12": "{F12}",
}

func comboToSendKeys(combo string) string {
	var prefix, key string
	for _, part := range strings.Split(strings.ToLower(combo), "+") {
		switch part {
		case "ctrl", "control", "cmd", "command":
			prefix += "^"
		case "alt", "option":
			prefix += "%"
		case "shift":
			prefix += "+"
		default:
			if named, ok := sendKeyNames[part]; ok {
				key = named
			} else {
				key = part
			}
		}
	}
	return prefix + key
}

func (a *sysActuator) OpenApp(ctx context.Context, name string) error {
	return run(ctx, "cmd", "/c", "start", "", name)
}

func (a *sysActuator) OpenURL(ctx context.Context, url string) error {
	return run(ctx, "rundll32", "url.dll,FileProtocolHandler", url)
}

func (a *sysActuator) OpenFile(ctx context.Context, path string) error {
	return run(ctx, "cmd", "/c", "start", "", path)
}

func (a *sysActuator) QuitApp(ctx context.Context, name string) error {
	image := name
	if !strings.HasSuffix(strings.ToLower(image), ".exe") {
		image += ".exe"
	}
	return run(ctx, "taskkill", "/F", "/IM", image)
}

func (a *sysActuator) ListApps(ctx context.Context) (string, error) {
	out, err := runOut(ctx, "powershell", "-NoProfile", "-Command",
		`Get-Process | Where-Object { $_.MainWindowTitle } | Select-Object -ExpandProperty ProcessName`)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (a *sysActuator) Notify(ctx context.Context, title, message string) error {
	esc := func(s string) string { return strings.ReplaceAll(s, "'", "''") }
	script := fmt.Sprintf(`
Add-Type -AssemblyName System.Windows.Forms
$icon = New-Object System.Windows.Forms.NotifyIcon
$icon.Icon = [System.Drawing.SystemIcons]::Information
$icon.Visible = $true
$icon.ShowBalloonTip(5000, '%s', '%s', [System.Windows.Forms.ToolTipIcon]::Info)
`, esc(title), esc(message))
	return a.powershell(ctx, script)
}

func (a *sysActuator) MousePosition(ctx context.Context) (int, int, error) {
	out, err := runOut(ctx, "powershell", "-NoProfile", "-Command", `
Add-Type -AssemblyName System.Windows.Forms
$p = [System.Windows.Forms.Cursor]::Position
Write-Output "$($p.X),$($p.Y)"
`)
	if err != nil {
		return 0, 0, err
	}
	return parsePoint(strings.TrimSpace(out))
}

func (a *sysActuator) RunShell(ctx context.Context, command string) (string, error) {
	return runOut(ctx, "powershell", "-NoProfile", "-Command", command)
}

func (a *sysActuator) RunAppleScript(ctx context.Context, script string) (string, error) {
	return "", ErrUnsupported
}
