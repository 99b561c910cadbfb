// internal/events/handler.go
package events

import (
	"context"
)

// Handler processes delivered events. Handlers run on the dispatcher
// goroutine and should return quickly.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Filter forwards only the events keep accepts.
func Filter(keep func(Event) bool, next Handler) Handler {
	return HandlerFunc(func(ctx context.Context, e Event) error {
		if !keep(e) {
			return nil
		}
		return next.Handle(ctx, e)
	})
}

// OfTypes builds a Filter predicate accepting the listed types.
func OfTypes(types ...EventType) func(Event) bool {
	set := make(map[EventType]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return func(e Event) bool {
		_, ok := set[e.Type()]
		return ok
	}
}

// Subscription represents a subscription to events.
type Subscription interface {
	Unsubscribe()
}

type subscription struct {
	id       string
	eventBus *Bus
	typ      EventType
}

func (s *subscription) Unsubscribe() {
	s.eventBus.unsubscribe(s.id, s.typ)
}
