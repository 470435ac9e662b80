package service

import (
	"errors"
	"fmt"
)

// Failure taxonomy. Handlers map these to HTTP statuses; none of them
// crashes the serving process.
var (
	// ErrValidation rejects missing or empty required identifiers before any write
	ErrValidation = errors.New("validation failed")

	// ErrDuplicateEnrollment rejects a second enrollment for the same (learner, course)
	ErrDuplicateEnrollment = errors.New("learner already enrolled in this course")

	// ErrNotEnrolled rejects progress writes without an enrollment
	ErrNotEnrolled = errors.New("learner is not enrolled in this course")

	// ErrNotEligible means the certificate requirements are not met; on the
	// automatic completion path it is informational, not a caller-facing error
	ErrNotEligible = errors.New("certificate requirements not met")

	// ErrSeatLimitReached rejects an invitation once all seats are taken
	ErrSeatLimitReached = errors.New("company seat limit reached")

	// ErrInvitationNotFound means the token matches no invitation
	ErrInvitationNotFound = errors.New("invitation not found")

	// ErrInvitationExpired means the 7-day invitation window has passed
	ErrInvitationExpired = errors.New("invitation has expired")

	// ErrInvitationAccepted means the invitation was already used
	ErrInvitationAccepted = errors.New("invitation already accepted")
)

func validationErr(field string) error {
	return fmt.Errorf("%w: %s is required", ErrValidation, field)
}
