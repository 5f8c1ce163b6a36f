package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const emptySchema = `{"type": "object", "properties": {}}`

func keyboardTools(d Deps) []*Tool {
	// Convenience keys wrap PressKey with a fixed combo so the model
	// does not have to know platform modifier conventions.
	keyTool := func(name, description, combo string) *Tool {
		return &Tool{
			Name:         name,
			Description:  description,
			Schema:       json.RawMessage(emptySchema),
			VisualImpact: true,
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				if err := d.Actuator.PressKey(ctx, combo); err != nil {
					return "", err
				}
				return fmt.Sprintf("Pressed %s", combo), nil
			},
		}
	}

	mod := primaryModifier()

	return []*Tool{
		{
			Name:        "type_text",
			Description: "Type text at the current focus, as if entered on the keyboard. Click the target field first.",
			Schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"text": {"type": "string", "description": "The text to type"}
				},
				"required": ["text"]
			}`),
			VisualImpact: true,
			Wait:         1500 * time.Millisecond,
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				text, err := strArg(args, "text")
				if err != nil {
					return "", err
				}
				if err := d.Actuator.TypeText(ctx, text); err != nil {
					return "", err
				}
				return fmt.Sprintf("Typed %d characters", len([]rune(text))), nil
			},
		},
		{
			Name:        "press_key",
			Description: "Press a key or key combination, e.g. \"enter\", \"tab\", \"ctrl+shift+t\".",
			Schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"keys": {"type": "string", "description": "Key name or combo joined with +"}
				},
				"required": ["keys"]
			}`),
			VisualImpact: true,
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				keys, err := strArg(args, "keys")
				if err != nil {
					return "", err
				}
				if err := d.Actuator.PressKey(ctx, keys); err != nil {
					return "", err
				}
				return fmt.Sprintf("Pressed %s", keys), nil
			},
		},
		keyTool("press_enter", "Press the Enter key.", "enter"),
		keyTool("press_escape", "Press the Escape key.", "escape"),
		keyTool("press_tab", "Press the Tab key.", "tab"),
		keyTool("press_backspace", "Press the Backspace key.", "backspace"),
		keyTool("copy", "Copy the current selection to the clipboard.", mod+"+c"),
		keyTool("paste", "Paste the clipboard at the current focus.", mod+"+v"),
		keyTool("select_all", "Select all content in the focused view.", mod+"+a"),
		keyTool("save", "Save the current document.", mod+"+s"),
		keyTool("undo", "Undo the last action.", mod+"+z"),
	}
}
