package main

import (
	"context"

	"gregoryjjb/blinker/blink"
	"gregoryjjb/blinker/circularbuffer"
)

const historySize = 64

// History keeps the most recent controller events.
type History struct {
	buffer *circularbuffer.CircularBuffer[blink.Event]
}

func NewHistory(size int) *History {
	return &History{
		buffer: circularbuffer.New[blink.Event](size),
	}
}

func (h *History) Record(e blink.Event) {
	h.buffer.Push(e)
}

// Events returns the recorded events, oldest first.
func (h *History) Events() []blink.Event {
	return h.buffer.Snapshot()
}

// watchEvents subscribes to controller events right away and returns a
// runner that passes each one to fn until ctx is done or the controller is
// closed.
func watchEvents(controller *blink.Controller, fn func(blink.Event)) func(ctx context.Context) error {
	unsubscribe, events := controller.Subscribe()

	return func(ctx context.Context) error {
		defer unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				fn(e)
			}
		}
	}
}
