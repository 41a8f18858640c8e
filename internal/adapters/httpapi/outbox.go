package httpapi

import (
	"context"
	"sync"
	"time"

	"tunegrab/internal/core/domain"
)

const defaultOutboxSize = 100

// Message is a reply waiting to be collected by its owner.
type Message struct {
	Text    string          `json:"text"`
	Buttons []domain.Button `json:"buttons,omitempty"`
	At      time.Time       `json:"at"`
}

// Outbox implements ports.Messenger by queueing replies per owner. It also
// remembers each owner's latest job event.
type Outbox struct {
	mu    sync.Mutex
	size  int
	queue map[domain.OwnerID][]Message
	jobs  map[domain.OwnerID]domain.JobEvent
	now   func() time.Time
}

// NewOutbox creates an Outbox holding at most size messages per owner;
// the oldest are dropped first.
func NewOutbox(size int) *Outbox {
	if size <= 0 {
		size = defaultOutboxSize
	}
	return &Outbox{
		size:  size,
		queue: make(map[domain.OwnerID][]Message),
		jobs:  make(map[domain.OwnerID]domain.JobEvent),
		now:   time.Now,
	}
}

// SendText queues a reply for owner.
func (o *Outbox) SendText(_ context.Context, owner domain.OwnerID, text string, buttons ...domain.Button) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	q := append(o.queue[owner], Message{Text: text, Buttons: buttons, At: o.now()})
	if over := len(q) - o.size; over > 0 {
		q = q[over:]
	}
	o.queue[owner] = q
	return nil
}

// Drain returns and clears the queued replies for owner.
func (o *Outbox) Drain(owner domain.OwnerID) []Message {
	o.mu.Lock()
	defer o.mu.Unlock()

	msgs := o.queue[owner]
	delete(o.queue, owner)
	if msgs == nil {
		return []Message{}
	}
	return msgs
}

// RecordJob stores evt as its owner's latest job event.
func (o *Outbox) RecordJob(evt domain.JobEvent) {
	o.mu.Lock()
	o.jobs[evt.OwnerID] = evt
	o.mu.Unlock()
}

// LastJob returns the latest job event seen for owner.
func (o *Outbox) LastJob(owner domain.OwnerID) (domain.JobEvent, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	evt, ok := o.jobs[owner]
	return evt, ok
}
