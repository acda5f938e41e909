package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Name identifies an event kind on the queue.
type Name string

const (
	NameTicketCreated Name = "ticket/created"
	NameUserSignup    Name = "user/signup"
)

// ErrQueueClosed is returned when publishing to a closed queue.
var ErrQueueClosed = errors.New("event queue closed")

// Event is the envelope carried on every queue.
type Event struct {
	ID        string          `json:"id"`
	Name      Name            `json:"name"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"ts"`
}

// TicketCreated is the payload of ticket/created.
type TicketCreated struct {
	TicketID string `json:"ticketId"`
}

// UserSignup is the payload of user/signup.
type UserSignup struct {
	Email string `json:"email"`
}

// NewEvent wraps payload in an envelope with a fresh id.
func NewEvent(name Name, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", name, err)
	}
	return Event{
		ID:        uuid.NewString(),
		Name:      name,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Decode unmarshals the event data into out.
func (e Event) Decode(out any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s has no data", e.ID)
	}
	if err := json.Unmarshal(e.Data, out); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Name, err)
	}
	return nil
}

// Handler processes one consumed event.
type Handler func(ctx context.Context, event Event) error

// Publisher is the producing side of a queue.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Queue carries events from the API to the workflow runner.
// Consume blocks until ctx is cancelled or the queue is closed.
type Queue interface {
	Publisher
	Consume(ctx context.Context, handler Handler) error
	Close() error
}
