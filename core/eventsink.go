package core

import "pkt.systems/conspool/schema"

// EventSink receives console activity. Callbacks run on the render
// goroutine in document order, except the disposed notification, which
// arrives from Dispose after the render goroutine has stopped.
// Implementations must return quickly and never call back into the
// console synchronously.
type EventSink interface {
	OnText(event schema.TextEvent)
	OnContent(event schema.ContentEvent)
	OnState(event schema.StateEvent)
}
