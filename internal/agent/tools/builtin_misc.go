package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

func utilityTools(d Deps) []*Tool {
	return []*Tool{
		{
			Name:         "capture_screen",
			Description:  "Take a fresh screenshot. Use when you need to see the current screen state before deciding the next action.",
			Schema:       json.RawMessage(emptySchema),
			VisualImpact: true,
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				// The reasoning loop attaches the actual capture to the
				// next observation; doing it here would screenshot twice.
				return "Screenshot requested; the next observation will include a fresh capture.", nil
			},
		},
		{
			Name:        "wait",
			Description: "Pause before the next action, e.g. while a page loads or an animation finishes.",
			Schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"seconds": {"type": "number", "description": "How long to wait, 0.1 to 30 seconds", "minimum": 0.1, "maximum": 30}
				}
			}`),
			VisualImpact: true,
			Wait:         300 * time.Millisecond,
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				seconds, err := floatArgDefault(args, "seconds", 1)
				if err != nil {
					return "", err
				}
				if seconds < 0.1 {
					seconds = 0.1
				}
				if seconds > 30 {
					seconds = 30
				}
				select {
				case <-ctx.Done():
					return "", ctx.Err()
				case <-time.After(time.Duration(seconds * float64(time.Second))):
				}
				return fmt.Sprintf("Waited %.1f seconds", seconds), nil
			},
		},
		{
			Name:        "get_mouse_info",
			Description: "Report the current mouse position in both pixels and the 0-1000 coordinate space.",
			Schema:      json.RawMessage(emptySchema),
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				px, py, err := d.Actuator.MousePosition(ctx)
				if err != nil {
					return "", err
				}
				bounds, err := d.Bounds()
				if err != nil {
					return "", err
				}
				nx, ny := toNormalized(px, py, bounds)
				return fmt.Sprintf("Mouse at pixel (%d, %d), normalized (%d, %d) on a %dx%d display",
					px, py, nx, ny, bounds.Dx(), bounds.Dy()), nil
			},
		},
		{
			Name:        "verify_coordinate",
			Description: "Check where a 0-1000 coordinate pair lands on the real screen without clicking it.",
			Schema:      json.RawMessage(pointSchema),
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				x, err := intArg(args, "x")
				if err != nil {
					return "", err
				}
				y, err := intArg(args, "y")
				if err != nil {
					return "", err
				}
				if err := validNormalized(x, y); err != nil {
					return "", err
				}
				bounds, err := d.Bounds()
				if err != nil {
					return "", err
				}
				px, py := toPixels(x, y, bounds)
				return fmt.Sprintf("Normalized (%d, %d) maps to pixel (%d, %d) on a %dx%d display",
					x, y, px, py, bounds.Dx(), bounds.Dy()), nil
			},
		},
		{
			Name:        TerminatorName,
			Description: "Signal that the task is finished. Call this exactly once, when the goal is met or cannot be met.",
			Schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"summary": {"type": "string", "description": "One or two sentences on what was accomplished"}
				}
			}`),
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				return strArgDefault(args, "summary", "Task complete."), nil
			},
		},
	}
}
