package chat

import "errors"

var (
	// ErrNotFound is returned when a conversation, message or user is absent.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the actor is not a member of the target
	// conversation.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict is returned when a concurrent writer created the same
	// direct conversation or membership first.
	ErrConflict = errors.New("conflict")
	// ErrValidation is returned for malformed input such as an empty group.
	ErrValidation = errors.New("validation failed")
	// ErrGeneration is returned by a Generator when the text-generation
	// service failed or timed out.
	ErrGeneration = errors.New("generation failed")
)
