package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid return request")
	ErrInvalidRequester   = errors.New("requester does not own the order")
	ErrIneligibleOrder    = errors.New("order is not eligible for return")
	ErrConflictingRequest = errors.New("a request for this order is already in progress")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrStaleState         = errors.New("request was modified by someone else, reload and retry")
	ErrInsufficientStock  = errors.New("replacement is out of stock")
	ErrAlreadyTerminal    = errors.New("request is already closed")
	ErrPersistence        = errors.New("persistence failure")
)

// TransitionError names the current and requested states of an illegal move.
// It matches ErrInvalidTransition, and ErrAlreadyTerminal when From is terminal.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	if e.From.IsTerminal() {
		return fmt.Sprintf("request is already %s, cannot move to %s", e.From, e.To)
	}
	return fmt.Sprintf("cannot move request from %s to %s", e.From, e.To)
}

// Is lets errors.Is match the sentinel errors.
func (e *TransitionError) Is(target error) bool {
	switch target {
	case ErrInvalidTransition:
		return true
	case ErrAlreadyTerminal:
		return e.From.IsTerminal()
	}
	return false
}
