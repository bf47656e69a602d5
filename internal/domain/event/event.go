package event

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Event is one frame on a workflow stream. The Type discriminator is always
// present; every other field is optional and serialized only when set, so the
// wire shape stays flat: {"type":"reasoning","agent":"Extraction Agent",...}.
type Event struct {
	Type    Type   `json:"type"`
	Agent   string `json:"agent,omitempty"`
	Step    int    `json:"step,omitempty"`
	Phase   string `json:"phase,omitempty"`
	Content string `json:"content,omitempty"`
	Message string `json:"message,omitempty"`
	Status  string `json:"status,omitempty"`
	Reason  string `json:"reason,omitempty"`

	// InterventionID and Stage accompany intervention frames.
	InterventionID string `json:"interventionId,omitempty"`
	Stage          string `json:"stage,omitempty"`
	Decision       string `json:"decision,omitempty"`

	Issues []string `json:"issues,omitempty"`

	// Result carries an agent's structured output; Data carries a display
	// snapshot of the extracted fields; Payload carries the final record.
	Result  any `json:"result,omitempty"`
	Data    any `json:"data,omitempty"`
	Payload any `json:"payload,omitempty"`
}

// Marshal renders the event as a single JSON object.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// NewID creates a unique identifier using timestamp and random bytes.
// Collision-resistant across the process lifetime; also used for
// intervention identifiers.
func NewID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("%d-%s", time.Now().UnixNano(), hex.EncodeToString(b))
}
