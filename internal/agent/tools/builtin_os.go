package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"time"
)

const defaultBrowserURL = "https://www.google.com"

func osTools(d Deps) []*Tool {
	nameSchema := func(desc string) json.RawMessage {
		return json.RawMessage(fmt.Sprintf(`{
			"type": "object",
			"properties": {
				"name": {"type": "string", "description": %q}
			},
			"required": ["name"]
		}`, desc))
	}

	tools := []*Tool{
		{
			Name:         "open_app",
			Description:  "Launch an application by name, or bring it to the front if already running.",
			Schema:       nameSchema("Application name, e.g. \"Safari\" or \"firefox\""),
			VisualImpact: true,
			Wait:         2000 * time.Millisecond,
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				name, err := strArg(args, "name")
				if err != nil {
					return "", err
				}
				if err := d.Actuator.OpenApp(ctx, name); err != nil {
					return "", err
				}
				return fmt.Sprintf("Opened %s", name), nil
			},
		},
		{
			Name:        "open_url",
			Description: "Open a URL in the default browser.",
			Schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"url": {"type": "string", "description": "The URL to open, including scheme"}
				},
				"required": ["url"]
			}`),
			VisualImpact: true,
			Wait:         2000 * time.Millisecond,
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				url, err := strArg(args, "url")
				if err != nil {
					return "", err
				}
				if !strings.Contains(url, "://") {
					url = "https://" + url
				}
				if err := d.Actuator.OpenURL(ctx, url); err != nil {
					return "", err
				}
				return fmt.Sprintf("Opened %s", url), nil
			},
		},
		{
			Name:        "open_browser",
			Description: "Open the default web browser, optionally at a URL.",
			Schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"url": {"type": "string", "description": "Optional URL to open; omit for the browser start page"}
				}
			}`),
			VisualImpact: true,
			Wait:         2000 * time.Millisecond,
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				url := strArgDefault(args, "url", defaultBrowserURL)
				if !strings.Contains(url, "://") {
					url = "https://" + url
				}
				if err := d.Actuator.OpenURL(ctx, url); err != nil {
					return "", err
				}
				return fmt.Sprintf("Opened browser at %s", url), nil
			},
		},
		{
			Name:        "open_file",
			Description: "Open a file or folder with its default application.",
			Schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"path": {"type": "string", "description": "Absolute path to the file or folder"}
				},
				"required": ["path"]
			}`),
			VisualImpact: true,
			Wait:         1500 * time.Millisecond,
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				path, err := strArg(args, "path")
				if err != nil {
					return "", err
				}
				if err := d.Actuator.OpenFile(ctx, path); err != nil {
					return "", err
				}
				return fmt.Sprintf("Opened %s", path), nil
			},
		},
		{
			Name:         "quit_app",
			Description:  "Quit a running application by name.",
			Schema:       nameSchema("Application name to quit"),
			VisualImpact: true,
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				name, err := strArg(args, "name")
				if err != nil {
					return "", err
				}
				if err := d.Actuator.QuitApp(ctx, name); err != nil {
					return "", err
				}
				return fmt.Sprintf("Quit %s", name), nil
			},
		},
		{
			Name:        "list_apps",
			Description: "List currently running applications with visible windows.",
			Schema:      json.RawMessage(emptySchema),
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				apps, err := d.Actuator.ListApps(ctx)
				if err != nil {
					return "", err
				}
				if strings.TrimSpace(apps) == "" {
					return "No applications with visible windows", nil
				}
				return "Running applications:\n" + apps, nil
			},
		},
		{
			Name:        "show_notification",
			Description: "Show a desktop notification to the user.",
			Schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"title": {"type": "string"},
					"message": {"type": "string"}
				},
				"required": ["message"]
			}`),
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				message, err := strArg(args, "message")
				if err != nil {
					return "", err
				}
				title := strArgDefault(args, "title", "Lavis")
				if err := d.Actuator.Notify(ctx, title, message); err != nil {
					return "", err
				}
				return "Notification shown", nil
			},
		},
		{
			Name:        "execute_shell",
			Description: "Run a shell command and return its output. Use for file operations, system queries, and anything a terminal does better than clicking.",
			Schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"command": {"type": "string", "description": "The command line to run"}
				},
				"required": ["command"]
			}`),
			VisualImpact: true,
			Wait:         1200 * time.Millisecond,
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				command, err := strArg(args, "command")
				if err != nil {
					return "", err
				}
				out, err := d.Actuator.RunShell(ctx, command)
				if err != nil {
					return "", fmt.Errorf("%v\n%s", err, strings.TrimSpace(out))
				}
				out = strings.TrimSpace(out)
				if out == "" {
					return "Command completed with no output", nil
				}
				return truncateOutput(out, 4000), nil
			},
		},
	}

	if runtime.GOOS == "darwin" {
		tools = append(tools, &Tool{
			Name:        "execute_applescript",
			Description: "Run an AppleScript snippet and return its output. macOS only.",
			Schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"script": {"type": "string", "description": "The AppleScript source"}
				},
				"required": ["script"]
			}`),
			VisualImpact: true,
			Wait:         1200 * time.Millisecond,
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				script, err := strArg(args, "script")
				if err != nil {
					return "", err
				}
				out, err := d.Actuator.RunAppleScript(ctx, script)
				if err != nil {
					return "", fmt.Errorf("%v\n%s", err, strings.TrimSpace(out))
				}
				out = strings.TrimSpace(out)
				if out == "" {
					return "Script completed with no output", nil
				}
				return truncateOutput(out, 4000), nil
			},
		})
	}

	return tools
}

// truncateOutput keeps tool results from flooding the context window.
func truncateOutput(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + fmt.Sprintf("\n... (%d more bytes truncated)", len(s)-max)
}
