// internal/events/journal.go
package events

import (
	"context"
	"sync"
)

// Journal is a handler that keeps every event it sees, in order.
type Journal struct {
	mu     sync.Mutex
	events []Event
}

func NewJournal() *Journal {
	return &Journal{}
}

func (j *Journal) Handle(_ context.Context, e Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, e)
	return nil
}

// Events returns a copy of the journal.
func (j *Journal) Events() []Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Event(nil), j.events...)
}

// OfType filters the journal by type.
func (j *Journal) OfType(t EventType) []Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []Event
	for _, e := range j.events {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}

// PublishBatch appends events synchronously, so a Journal can stand in for
// the bus as a Publisher.
func (j *Journal) PublishBatch(events []Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, events...)
	return nil
}
