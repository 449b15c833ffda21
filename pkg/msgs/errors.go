package msgs

import (
	"errors"
	"fmt"

	"github.com/crystal-mush/mushpost/pkg/gamedb"
)

// Error kinds. Every error returned by this package matches one of these
// with errors.Is; the Error() text is meant for the acting player.
var (
	ErrValidation   = errors.New("invalid request")
	ErrPermission   = errors.New("permission denied")
	ErrInsufficient = errors.New("insufficient resources")
	ErrNotFound     = gamedb.ErrNotFound
	ErrUnclassified = errors.New("message has no recognized kind")

	ErrTooOld           = errors.New("It has been too long to edit that message.")
	ErrPreserveLimit    = errors.New("You are preserving the maximum amount of messages allowed.")
	ErrAlreadyPreserved = errors.New("That message is already preserved.")
	ErrNothingPending   = errors.New("You have no messengers waiting to be received.")
	ErrNoDraft          = errors.New("You have no messenger drafted.")
)

// Error is a player-facing failure of a given kind.
type Error struct {
	Kind  error
	Msg   string
	Cause error
}

func (e *Error) Error() string { return e.Msg }

// Unwrap exposes both the kind and the underlying cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

func invalidf(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Msg: fmt.Sprintf(format, args...)}
}

func deniedf(format string, args ...any) error {
	return &Error{Kind: ErrPermission, Msg: fmt.Sprintf(format, args...)}
}

func notFoundf(format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Msg: fmt.Sprintf(format, args...)}
}

// ReceiverError explains why one receiver of a send was excluded.
type ReceiverError struct {
	Name string
	Ref  gamedb.DBRef // Nothing if the name did not resolve
	Err  error
}

func (e *ReceiverError) Error() string { return e.Err.Error() }

func (e *ReceiverError) Unwrap() error { return e.Err }
