// Package envelope defines the versioned message contract between the
// router and search nodes. Envelopes are immutable after creation; every
// response carries the correlation id of its originating request.
package envelope

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/grantmesh/grantmesh/internal/domain"
)

// Version is the current envelope schema version.
const Version = "1.0"

// DefaultFreshness is how long an envelope stays valid after creation.
const DefaultFreshness = 5 * time.Minute

// Type classifies an envelope.
type Type string

// Envelope types.
const (
	TypeQuery        Type = "query"
	TypeResponse     Type = "response"
	TypeNotification Type = "notification"
	TypeError        Type = "error"
)

// Intent names the operation an envelope requests.
type Intent string

// Envelope intents.
const (
	IntentSearch Intent = "search"
	IntentStatus Intent = "status"
	IntentIngest Intent = "ingest"
)

// Envelope is a structured message exchanged between router and nodes.
type Envelope struct {
	version       string
	typ           Type
	sender        string
	receiver      string
	intent        Intent
	payload       map[string]any
	embedding     []float32
	timestamp     time.Time
	correlationID string
}

// NewQuery creates a query envelope with a fresh correlation id and timestamp.
func NewQuery(sender, receiver string, intent Intent, payload map[string]any) Envelope {
	return Envelope{
		version:       Version,
		typ:           TypeQuery,
		sender:        sender,
		receiver:      receiver,
		intent:        intent,
		payload:       payload,
		timestamp:     time.Now().UTC(),
		correlationID: uuid.NewString(),
	}
}

// WithEmbedding returns a copy carrying a pre-computed embedding vector,
// reusable across hops so downstream nodes skip re-vectorizing.
func (e Envelope) WithEmbedding(vec []float32) Envelope {
	e.embedding = vec
	return e
}

// Reply creates a response envelope: sender and receiver swap, the
// correlation id is preserved.
func (e Envelope) Reply(payload map[string]any) Envelope {
	return Envelope{
		version:       e.version,
		typ:           TypeResponse,
		sender:        e.receiver,
		receiver:      e.sender,
		intent:        e.intent,
		payload:       payload,
		timestamp:     time.Now().UTC(),
		correlationID: e.correlationID,
	}
}

// Fail creates an error envelope correlated with the request.
func (e Envelope) Fail(cause error) Envelope {
	return Envelope{
		version:       e.version,
		typ:           TypeError,
		sender:        e.receiver,
		receiver:      e.sender,
		intent:        e.intent,
		payload:       map[string]any{"error": cause.Error()},
		timestamp:     time.Now().UTC(),
		correlationID: e.correlationID,
	}
}

// Validate checks required fields and freshness.
func (e Envelope) Validate() error {
	if e.sender == "" {
		return fmt.Errorf("missing sender: %w", domain.ErrInvalidArgument)
	}
	if e.receiver == "" {
		return fmt.Errorf("missing receiver: %w", domain.ErrInvalidArgument)
	}
	if e.typ == "" {
		return fmt.Errorf("missing type: %w", domain.ErrInvalidArgument)
	}
	switch e.typ {
	case TypeQuery, TypeResponse, TypeNotification, TypeError:
	default:
		return fmt.Errorf("unknown type %q: %w", e.typ, domain.ErrInvalidArgument)
	}
	switch e.intent {
	case IntentSearch, IntentStatus, IntentIngest:
	default:
		return fmt.Errorf("unknown intent %q: %w", e.intent, domain.ErrInvalidArgument)
	}
	if age := time.Since(e.timestamp); age > DefaultFreshness {
		return fmt.Errorf("age %s exceeds %s: %w", age.Round(time.Second), DefaultFreshness, domain.ErrEnvelopeExpired)
	}
	return nil
}

// VersionTag returns the envelope schema version.
func (e Envelope) VersionTag() string { return e.version }

// MessageType returns the envelope type.
func (e Envelope) MessageType() Type { return e.typ }

// Sender returns the sender id.
func (e Envelope) Sender() string { return e.sender }

// Receiver returns the receiver id.
func (e Envelope) Receiver() string { return e.receiver }

// MessageIntent returns the requested operation.
func (e Envelope) MessageIntent() Intent { return e.intent }

// Payload returns the opaque structured payload.
func (e Envelope) Payload() map[string]any { return e.payload }

// Embedding returns the pre-computed embedding vector, if any.
func (e Envelope) Embedding() []float32 { return e.embedding }

// Timestamp returns the creation time.
func (e Envelope) Timestamp() time.Time { return e.timestamp }

// CorrelationID returns the request/response correlation id.
func (e Envelope) CorrelationID() string { return e.correlationID }
