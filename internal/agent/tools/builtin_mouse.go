package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// pointSchema is shared by every tool addressed by one screen point.
const pointSchema = `{
	"type": "object",
	"properties": {
		"x": {"type": "integer", "minimum": 0, "maximum": 1000, "description": "Horizontal position, 0 (left) to 1000 (right)"},
		"y": {"type": "integer", "minimum": 0, "maximum": 1000, "description": "Vertical position, 0 (top) to 1000 (bottom)"}
	},
	"required": ["x", "y"]
}`

func mouseTools(d Deps) []*Tool {
	pointHandler := func(verb string, act func(ctx context.Context, px, py int) error) HandlerFunc {
		return func(ctx context.Context, args map[string]any) (string, error) {
			px, py, err := normalizedPoint(args, "x", "y", d.Bounds)
			if err != nil {
				return "", err
			}
			if err := act(ctx, px, py); err != nil {
				return "", err
			}
			return fmt.Sprintf("%s at (%d, %d)", verb, px, py), nil
		}
	}

	return []*Tool{
		{
			Name:        "mouse_move",
			Description: "Move the mouse pointer to a position without clicking. Coordinates are normalized: 0-1000 on both axes.",
			Schema:      json.RawMessage(pointSchema),
			Handler:     pointHandler("Moved pointer", d.Actuator.MoveMouse),
		},
		{
			Name:         "click",
			Description:  "Left-click at a position. Coordinates are normalized: 0-1000 on both axes.",
			Schema:       json.RawMessage(pointSchema),
			VisualImpact: true,
			Wait:         800 * time.Millisecond,
			Handler:      pointHandler("Clicked", d.Actuator.Click),
		},
		{
			Name:         "double_click",
			Description:  "Double-click at a position, e.g. to open a file or select a word. Coordinates are normalized: 0-1000.",
			Schema:       json.RawMessage(pointSchema),
			VisualImpact: true,
			Wait:         800 * time.Millisecond,
			Handler:      pointHandler("Double-clicked", d.Actuator.DoubleClick),
		},
		{
			Name:         "right_click",
			Description:  "Right-click at a position to open a context menu. Coordinates are normalized: 0-1000.",
			Schema:       json.RawMessage(pointSchema),
			VisualImpact: true,
			Wait:         800 * time.Millisecond,
			Handler:      pointHandler("Right-clicked", d.Actuator.RightClick),
		},
		{
			Name:        "drag",
			Description: "Press at the starting position, drag to the ending position, release. Coordinates are normalized: 0-1000.",
			Schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"from_x": {"type": "integer", "minimum": 0, "maximum": 1000},
					"from_y": {"type": "integer", "minimum": 0, "maximum": 1000},
					"to_x": {"type": "integer", "minimum": 0, "maximum": 1000},
					"to_y": {"type": "integer", "minimum": 0, "maximum": 1000}
				},
				"required": ["from_x", "from_y", "to_x", "to_y"]
			}`),
			VisualImpact: true,
			Wait:         1000 * time.Millisecond,
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				fromX, fromY, err := normalizedPoint(args, "from_x", "from_y", d.Bounds)
				if err != nil {
					return "", err
				}
				toX, toY, err := normalizedPoint(args, "to_x", "to_y", d.Bounds)
				if err != nil {
					return "", err
				}
				if err := d.Actuator.Drag(ctx, fromX, fromY, toX, toY); err != nil {
					return "", err
				}
				return fmt.Sprintf("Dragged from (%d, %d) to (%d, %d)", fromX, fromY, toX, toY), nil
			},
		},
		{
			Name:        "scroll",
			Description: "Scroll the view under the pointer. amount is the number of wheel notches (default 3).",
			Schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"direction": {"type": "string", "enum": ["up", "down", "left", "right"]},
					"amount": {"type": "integer", "minimum": 1, "maximum": 50}
				},
				"required": ["direction"]
			}`),
			VisualImpact: true,
			Wait:         600 * time.Millisecond,
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				direction, err := strArg(args, "direction")
				if err != nil {
					return "", err
				}
				amount, err := intArgDefault(args, "amount", 3)
				if err != nil {
					return "", err
				}
				if err := d.Actuator.Scroll(ctx, direction, amount); err != nil {
					return "", err
				}
				return fmt.Sprintf("Scrolled %s by %d", direction, amount), nil
			},
		},
	}
}
