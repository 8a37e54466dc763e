package schema

import "strings"

// ValidateConsoleID ensures a console id matches [a-z0-9._-] with no
// normalization.
func ValidateConsoleID(id ConsoleID) error {
	raw := string(id)
	if raw == "" {
		return ErrInvalidConsole
	}
	if strings.TrimSpace(raw) != raw {
		return ErrInvalidConsole
	}
	for _, r := range raw {
		if r >= 'a' && r <= 'z' {
			continue
		}
		if r >= '0' && r <= '9' {
			continue
		}
		if r == '.' || r == '_' || r == '-' {
			continue
		}
		return ErrInvalidConsole
	}
	return nil
}
