package types

// SubmissionResult is the outcome of verifying a submitted flag.
//
// An incorrect candidate is a normal negative result, not an error: the caller
// is expected to retry with a new candidate. Correct carries the challenge's
// completion message.
type SubmissionResult struct {
	// Correct reports whether the candidate matched the challenge's flag.
	Correct bool `json:"correct"`

	// Message is the challenge's completion message. Empty when Correct is
	// false.
	Message string `json:"message,omitempty"`
}
