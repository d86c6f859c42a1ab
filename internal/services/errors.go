package services

import "errors"

var (
	// ErrIdentityConflict is the write-path failure: the email is already
	// bound to a different username and registration tried to rebind it.
	ErrIdentityConflict = errors.New("email is already bound to a different username")

	// ErrIdentityMismatch is the read-path failure: the supplied username
	// does not match the one bound to the email.
	ErrIdentityMismatch = errors.New("username does not match the registered email")

	// ErrChallengeNotFound is returned when a challenge number has no
	// published definition.
	ErrChallengeNotFound = errors.New("challenge not found")
)
