package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for simple conditions without extra context.
var (
	ErrRequestNotFound  = errors.New("request not found")
	ErrResourceNotFound = errors.New("resource not found")

	// ErrVersionConflict means a concurrent writer won the race. Retrying
	// the whole operation re-evaluates overlap and authorization against
	// fresh state.
	ErrVersionConflict = errors.New("request was modified concurrently")
)

// ValidationError is returned for malformed or out-of-range input. Field
// names the offending input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// SelfRequestError is returned when an owner tries to book or view their
// own apartment.
type SelfRequestError struct {
	ResourceID string
}

func (e *SelfRequestError) Error() string {
	return fmt.Sprintf("cannot request own resource %q", e.ResourceID)
}

// SchedulingConflictError is returned when a stay interval overlaps an
// active booking for the same resource, at creation or at approval time.
type SchedulingConflictError struct {
	ResourceID    string
	ConflictsWith string
}

func (e *SchedulingConflictError) Error() string {
	return fmt.Sprintf("dates for resource %q conflict with booking %q", e.ResourceID, e.ConflictsWith)
}

// TransitionError is returned when a trigger is not legal from the current state.
type TransitionError struct {
	Trigger Trigger
	Current Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("trigger %q is not valid from state %q", e.Trigger, e.Current)
}

// AuthorizationError is returned when the actor may not perform the
// trigger on the record.
type AuthorizationError struct {
	ActorID string
	Trigger Trigger
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("actor %q is not allowed to %s this request", e.ActorID, e.Trigger)
}
