// Package events carries form and response lifecycle events over watermill,
// in process or through Kafka.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Type identifies an event.
type Type string

const (
	TypeResponseSubmitted Type = "response.submitted"
	TypeFormCreated       Type = "form.created"
	TypeFormUpdated       Type = "form.updated"
	TypeFormDeleted       Type = "form.deleted"
)

// metadataType is the message metadata key holding the event type.
const metadataType = "event_type"

// Event is the payload of every message on the events topic.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	FormID     string    `json:"formId"`
	ResponseID string    `json:"responseId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

func newEvent(t Type, formID, responseID string, at time.Time) Event {
	return Event{
		ID:         newID(),
		Type:       t,
		FormID:     formID,
		ResponseID: responseID,
		OccurredAt: at.UTC(),
	}
}

// ResponseSubmitted is published after a response has been stored.
func ResponseSubmitted(formID, responseID string, submittedAt time.Time) Event {
	return newEvent(TypeResponseSubmitted, formID, responseID, submittedAt)
}

// FormCreated is published after a form has been stored.
func FormCreated(formID string) Event { return newEvent(TypeFormCreated, formID, "", time.Now()) }

// FormUpdated is published after a form has been overwritten.
func FormUpdated(formID string) Event { return newEvent(TypeFormUpdated, formID, "", time.Now()) }

// FormDeleted is published after a form has been removed.
func FormDeleted(formID string) Event { return newEvent(TypeFormDeleted, formID, "", time.Now()) }

func toMessage(e Event) (*message.Message, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", e.Type, err)
	}
	msg := message.NewMessage(e.ID, payload)
	msg.Metadata.Set(metadataType, string(e.Type))
	return msg, nil
}

// Decode reads the event carried by msg.
func Decode(msg *message.Message) (Event, error) {
	var e Event
	if err := json.Unmarshal(msg.Payload, &e); err != nil {
		return Event{}, fmt.Errorf("decode event %s: %w", msg.UUID, err)
	}
	return e, nil
}
