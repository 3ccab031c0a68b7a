package routing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/crosstate/internal/domain"
)

// Envelope is the unit of cross-context delivery. The sender assigns the id
// and timestamp; the transport assigns the per-source sequence number on
// send, which receivers use to discard redelivered or replayed envelopes.
type Envelope struct {
	ID      string           `json:"id"`
	Source  domain.ContextID `json:"source"`
	Seq     uint64           `json:"seq"`
	Kind    string           `json:"kind"`
	Payload json.RawMessage  `json:"payload"`
	SentAt  time.Time        `json:"sent_at"`
}

// NewEnvelope wraps a message payload for delivery from the given source.
func NewEnvelope(source domain.ContextID, kind string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("routing: encode %s payload: %w", kind, err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Envelope{}, fmt.Errorf("routing: generate envelope id: %w", err)
	}

	return Envelope{
		ID:      id.String(),
		Source:  source,
		Kind:    kind,
		Payload: b,
		SentAt:  time.Now().UTC(),
	}, nil
}
