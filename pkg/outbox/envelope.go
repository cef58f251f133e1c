package outbox

import (
	"encoding/json"
	"time"
)

// ActorRef identifies who produced the event: an operator, the payment
// processor, or the system itself.
type ActorRef struct {
	Kind string `json:"kind"`
	ID   string `json:"id,omitempty"`
}

var (
	ActorSystem = &ActorRef{Kind: "system"}
	ActorStripe = &ActorRef{Kind: "stripe"}
)

// OperatorActor builds the actor for a back-office user.
func OperatorActor(id string) *ActorRef {
	return &ActorRef{Kind: "operator", ID: id}
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
