package docstore

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/atee-topup/internal/kafka"
)

const (
	TopicDocumentsChanged = "atee.docs.changed"
	EventDocumentChanged  = "DocumentChanged"
	eventVersion          = 1
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // collection/id
	Payload       json.RawMessage `json:"payload"`
}

type Op string

const (
	OpUpsert Op = "upsert"
	OpMerge  Op = "merge"
)

// DocumentChangedPayload carries the document as stored after the change.
type DocumentChangedPayload struct {
	Collection string          `json:"collection"`
	ID         string          `json:"id"`
	Op         Op              `json:"op"`
	Doc        json.RawMessage `json:"doc,omitempty"`
}

// PartitionKey keeps every change of one collection on one partition, in order.
func PartitionKey(collection string) []byte { return []byte(collection) }

func newChangeEvent(producer string, at time.Time, p DocumentChangedPayload) Envelope {
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventDocumentChanged,
		EventVersion:  eventVersion,
		OccurredAt:    at.UTC(),
		Producer:      producer,
		CorrelationID: p.Collection + "/" + p.ID,
		Payload:       kafkax.MustMarshal(p),
	}
}

func eventHeaders() []kafkago.Header {
	return []kafkago.Header{
		{Key: "x-event-type", Value: []byte(EventDocumentChanged)},
		{Key: "x-event-version", Value: []byte("1")},
	}
}

// DecodeChange returns the change carried by m. ok is false for other event types.
func DecodeChange(m kafkago.Message) (Envelope, DocumentChangedPayload, bool, error) {
	if t := kafkax.HeaderValue(m.Headers, "x-event-type"); t != "" && t != EventDocumentChanged {
		return Envelope{}, DocumentChangedPayload{}, false, nil
	}
	var env Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return Envelope{}, DocumentChangedPayload{}, false, err
	}
	if env.EventType != EventDocumentChanged {
		return env, DocumentChangedPayload{}, false, nil
	}
	p, err := kafkax.UnwrapPayload[DocumentChangedPayload](env.Payload)
	if err != nil {
		return env, DocumentChangedPayload{}, false, err
	}
	return env, p, true, nil
}
