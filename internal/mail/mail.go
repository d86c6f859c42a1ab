// Package mail models outbound challenge email and the boundary to the
// external sender. The core only hands over fully formed messages; delivery
// is someone else's job.
package mail

import (
	"context"
	"fmt"

	"github.com/phishrange/apiserver/types"
)

// Message is a fully formed outbound email.
type Message struct {
	From    string         `json:"from"`
	To      string         `json:"to"`
	Subject string         `json:"subject"`
	HTML    string         `json:"html"`
	ReplyTo []string       `json:"reply_to,omitempty"`
	Headers []types.Header `json:"headers,omitempty"`

	// ChallengeNumber identifies the challenge the material belongs to, for
	// consumers that want to route or audit by challenge.
	ChallengeNumber int `json:"challenge_number"`
}

// Dispatcher hands a message to the external sender. Implementations must be
// safe for concurrent use. A nil error means the hand-off succeeded, not that
// the message was delivered.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

// Address formats a recipient as "username <email>".
func Address(username, email string) string {
	return fmt.Sprintf("%s <%s>", username, email)
}
