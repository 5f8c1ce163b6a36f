package tools

import (
	"runtime"

	"github.com/lavishq/lavis/internal/actuator"
)

// Deps carries what the built-in tools need to act on the machine.
type Deps struct {
	Actuator actuator.Actuator
	// Display selects which display normalized coordinates map onto.
	Display int
	// Bounds overrides display-bounds resolution; tests inject a fixed
	// rectangle here. Nil uses the live display.
	Bounds BoundsFunc
}

// RegisterBuiltins installs the built-in tool set: mouse, keyboard,
// OS operations, perception, and utilities. AppleScript execution is
// only registered on macOS.
func RegisterBuiltins(r *Registry, d Deps) error {
	if d.Bounds == nil {
		d.Bounds = displayBounds(d.Display)
	}

	groups := [][]*Tool{
		mouseTools(d),
		keyboardTools(d),
		osTools(d),
		utilityTools(d),
	}
	for _, group := range groups {
		for _, t := range group {
			if err := r.Register(t); err != nil {
				return err
			}
		}
	}
	return nil
}

// primaryModifier is the platform's shortcut modifier key.
func primaryModifier() string {
	if runtime.GOOS == "darwin" {
		return "cmd"
	}
	return "ctrl"
}
