package chat

import (
	"errors"
	"fmt"
)

// Failures from store operations are translated into this taxonomy at
// the component boundary; raw store errors never reach callers directly.
var (
	// ErrInvalidArgument marks a caller bug (missing or malformed
	// identifier). Not retryable.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotAParticipant is returned by Send when the sender has no
	// membership record in the target room. The caller should
	// re-bootstrap and retry once.
	ErrNotAParticipant = errors.New("sender is not a participant of the room")
)

// BootstrapError wraps a store write failure during get-or-create.
// Retryable; the UI should surface a retry affordance.
type BootstrapError struct {
	RoomID string
	Cause  error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("room bootstrap failed for %q: %v", e.RoomID, e.Cause)
}

func (e *BootstrapError) Unwrap() error { return e.Cause }

// SubscriptionError wraps a store failure inside a message channel
// operation. When it arrives on a subscription's error callback the
// subscription is dead: the caller must tear it down and re-establish
// it, it is never retried internally.
type SubscriptionError struct {
	RoomID string
	Cause  error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("message channel failure in room %q: %v", e.RoomID, e.Cause)
}

func (e *SubscriptionError) Unwrap() error { return e.Cause }

// DirectoryLoadError is any directory failure other than the
// missing-index condition, which is auto-recovered by the degraded
// scan path instead.
type DirectoryLoadError struct {
	ParticipantID string
	Cause         error
}

func (e *DirectoryLoadError) Error() string {
	return fmt.Sprintf("room directory load failed for %q: %v", e.ParticipantID, e.Cause)
}

func (e *DirectoryLoadError) Unwrap() error { return e.Cause }

// DegradedModeWarning is the single non-fatal notice emitted when the
// directory falls back to the client-side scan because the store lacks
// the compound index for the preferred query.
type DegradedModeWarning struct {
	Cause error
}

func (e *DegradedModeWarning) Error() string {
	return fmt.Sprintf("room directory running in degraded scan mode: %v", e.Cause)
}

func (e *DegradedModeWarning) Unwrap() error { return e.Cause }
