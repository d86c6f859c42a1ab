package types

import "time"

// Challenge represents one numbered unit of training content: the secret flag
// a participant must discover, the message shown on completion, and the email
// template used to deliver the material.
//
// Challenges are seeded or administered out of band and are read-only from the
// participant-facing surface; nothing in the core ever mutates a published
// challenge.
type Challenge struct {
	// ID is the unique identifier of the challenge row.
	ID int `json:"id" db:"id"`

	// Number is the stable, positive, unique challenge number participants
	// and dispatch templates refer to.
	Number int `json:"challenge_number" db:"challenge_number"`

	// Flag is the secret a submission must equal, byte for byte, to count as
	// correct. Never exposed in API responses.
	Flag string `json:"-" db:"flag"`

	// CompleteMessage is shown to the participant on a correct submission.
	CompleteMessage string `json:"complete_message" db:"complete_message"`

	// Template is the outbound email template for this challenge's material.
	// It is consumed only by the email transport; the core treats it as an
	// opaque bundle.
	Template DispatchTemplate `json:"template" db:"template"`

	// CreatedAt is the timestamp at which the challenge was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the challenge.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DispatchTemplate is the per-challenge email template.
type DispatchTemplate struct {
	// From is the sender address.
	From string `json:"from" db:"email_from"`

	// Subject is the message subject line.
	Subject string `json:"subject" db:"email_subject"`

	// HTML is the message body. May be empty when BodyObjectKey is set.
	HTML string `json:"html" db:"email_html"`

	// BodyObjectKey, when non-empty, names an object in the asset store
	// holding the HTML body. Resolved at dispatch time; takes precedence
	// over HTML.
	BodyObjectKey string `json:"body_object_key" db:"body_object_key"`

	// ReplyTo lists reply-to addresses.
	ReplyTo []string `json:"reply_to" db:"reply_to"`

	// Headers lists additional message headers.
	Headers []Header `json:"headers" db:"headers"`
}

// Header is a single named email header.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}
