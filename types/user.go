package types

import "time"

// User represents a training participant.
//
// Identity is the (Email, Username) pair: the email is the unique key and the
// username is bound to it at first registration, immutably. There is no
// password — knowledge of the correct pair is the whole authorization model.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Email is the participant's email address. Unique and case-sensitive.
	Email string `json:"email" db:"email"`

	// Username is the display name bound to the email at first registration.
	// It never changes once set.
	Username string `json:"username" db:"username"`

	// Progress maps a challenge number to the participant's state for that
	// challenge. Challenges the participant has never touched have no entry.
	Progress map[int]ChallengeProgress `json:"progress" db:"-"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ChallengeProgress is a participant's state for one challenge.
//
// Both flags are monotonic: once true they never go back to false. Logically
// the pair forms an ordered state NotSent -> Sent -> Completed, with
// EmailSent orthogonal to Completed (material may be re-sent for review
// after completion).
type ChallengeProgress struct {
	// EmailSent records that challenge material was dispatched to the
	// participant's address at least once. It is set when dispatch is
	// requested, not when delivery is confirmed.
	EmailSent bool `json:"email_sent" db:"email_sent"`

	// Completed records that the participant submitted the correct flag.
	Completed bool `json:"completed" db:"completed"`
}

// ProgressFor returns the participant's state for the given challenge number.
// Missing entries read as the zero state (not sent, not completed).
func (u User) ProgressFor(number int) ChallengeProgress {
	return u.Progress[number]
}
