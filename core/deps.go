package core

import (
	"pkt.systems/conspool/classify"
	"pkt.systems/pslog"
)

// ProcessInput is the process collaborator receiving submitted input
// lines. Send failures are logged and dropped by the console; retry
// policy belongs to the implementation.
type ProcessInput interface {
	SendInput(text string) error
}

// ConsoleDeps captures optional collaborators for a console. Nil fields
// fall back to no-op behavior.
type ConsoleDeps struct {
	Registry *classify.Registry
	Input    ProcessInput
	Sink     EventSink
	Logger   pslog.Logger
}
