package conspool

import (
	"pkt.systems/conspool/core"
	"pkt.systems/conspool/schema"
)

type eventFanout struct {
	sinks []core.EventSink
}

func (f eventFanout) OnText(event schema.TextEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnText(event)
	}
}

func (f eventFanout) OnContent(event schema.ContentEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnContent(event)
	}
}

func (f eventFanout) OnState(event schema.StateEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnState(event)
	}
}
