package schema

import "errors"

var (
	// ErrConsoleDisposed indicates the console has been disposed.
	ErrConsoleDisposed = errors.New("console disposed")
	// ErrInvalidConsole indicates an invalid console identifier.
	ErrInvalidConsole = errors.New("invalid console")
	// ErrNoProcess indicates no process is attached to receive input.
	ErrNoProcess = errors.New("no process attached")
	// ErrEmptyCommand indicates an attach request without a command.
	ErrEmptyCommand = errors.New("empty command")
	// ErrInvalidRules indicates a malformed fold rules document.
	ErrInvalidRules = errors.New("invalid fold rules")
)
