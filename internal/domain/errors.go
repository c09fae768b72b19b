package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the service layer matches exactly one of
// these with errors.Is, which is what the API layer maps to a status code.
var (
	ErrValidation             = errors.New("validation failed")
	ErrNotFound               = errors.New("not found")
	ErrNotAuthorized          = errors.New("not authorized")
	ErrConflict               = errors.New("conflict")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrUpstreamUnavailable    = errors.New("upstream unavailable")
)

type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

// NewError returns an error with the given message that matches kind.
func NewError(kind error, msg string) error {
	return &kindError{msg: msg, kind: kind}
}

// ValidationError reports a single rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// User errors
var (
	ErrUserNotFound   = NewError(ErrNotFound, "user not found")
	ErrRiotIDRequired = errors.New("a linked Riot ID is required")
)

// Post errors
var (
	ErrPostNotFound   = NewError(ErrNotFound, "post not found")
	ErrNotPostOwner   = NewError(ErrNotAuthorized, "only the post author can perform this action")
	ErrDailyPostLimit = NewError(ErrConflict, "daily post limit reached")
)

// Application errors
var (
	ErrApplicationNotFound  = NewError(ErrNotFound, "application not found")
	ErrSelfApplication      = NewError(ErrValidation, "cannot apply to your own post")
	ErrDuplicateApplication = NewError(ErrConflict, "a pending application for this post already exists")
	ErrApplicationResolved  = NewError(ErrInvalidStateTransition, "application has already been resolved")
)

// Party errors
var (
	ErrPartyNotFound  = NewError(ErrNotFound, "party not found")
	ErrNotAMember     = NewError(ErrNotAuthorized, "not a member of this party")
	ErrNotPartyLeader = NewError(ErrNotAuthorized, "only the party leader can disband the party")
)
