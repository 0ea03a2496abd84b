package scene

import (
	"fmt"
	"strings"
)

// Mode selects how much is said about a scene.
type Mode string

const (
	// ModeNavigation favours short, command-like phrases.
	ModeNavigation Mode = "navigation"
	// ModeDescription favours richer context with locations.
	ModeDescription Mode = "description"
)

// ParseMode parses a mode name, case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeNavigation:
		return ModeNavigation, nil
	case ModeDescription, "descriptive":
		return ModeDescription, nil
	default:
		return "", fmt.Errorf("scene: unknown mode %q", s)
	}
}

func (m Mode) String() string {
	return string(m)
}
