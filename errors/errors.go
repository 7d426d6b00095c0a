// Package errors holds the error kinds surfaced by the engine.
// Every specific error wraps exactly one kind so callers can branch with
// errors.Is on the kind and still show the specific message to the user.
package errors

import (
	"errors"
	"fmt"
)

// Kinds
var (
	ErrValidation       = errors.New("validation error")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrAuthorization    = errors.New("not authorized")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrStore            = errors.New("store error")
)

var (
	ErrEmptyRoomName      = fmt.Errorf("%w: room name is required", ErrValidation)
	ErrRoomNameTooLong    = fmt.Errorf("%w: room name is too long", ErrValidation)
	ErrDescriptionTooLong = fmt.Errorf("%w: room description is too long", ErrValidation)
	ErrEmptyInviteCode    = fmt.Errorf("%w: invite code is required", ErrValidation)
	ErrEmptyMessage       = fmt.Errorf("%w: message text is empty", ErrValidation)
	ErrNoRoomOpen         = fmt.Errorf("%w: no room is open", ErrValidation)

	ErrInvalidInviteCode   = fmt.Errorf("%w: invalid invite code", ErrNotFound)
	ErrRoomNotFound        = fmt.Errorf("%w: room not found", ErrNotFound)
	ErrJoinRequestNotFound = fmt.Errorf("%w: join request not found", ErrNotFound)

	ErrNotAdmin      = fmt.Errorf("%w: only admins can perform this action", ErrAuthorization)
	ErrAdminOnlyChat = fmt.Errorf("%w: only admins can send messages in this room", ErrAuthorization)
	ErrNotMember     = fmt.Errorf("%w: not a member of this room", ErrAuthorization)

	ErrLastAdmin             = fmt.Errorf("%w: last admin cannot leave, promote another member first", ErrConflict)
	ErrCannotDemoteSelf      = fmt.Errorf("%w: cannot demote yourself", ErrConflict)
	ErrCannotRemoveSelf      = fmt.Errorf("%w: cannot remove yourself", ErrConflict)
	ErrRequestAlreadyDecided = fmt.Errorf("%w: join request already decided", ErrConflict)
	ErrInviteCodeCollision   = fmt.Errorf("%w: could not allocate a unique invite code", ErrConflict)

	ErrWorkerPanic = fmt.Errorf("worker panic")
)

// Store wraps a failure coming from the document store.
// The result matches both ErrStore and the original cause.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}

// IsDomain reports whether err already carries one of the engine kinds,
// in which case it must not be re-wrapped as a store error.
func IsDomain(err error) bool {
	for _, kind := range []error{ErrValidation, ErrNotAuthenticated, ErrAuthorization, ErrNotFound, ErrConflict, ErrStore} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// FromStore passes engine errors through untouched and wraps anything else
// with Store.
func FromStore(op string, err error) error {
	if err == nil || IsDomain(err) {
		return err
	}
	return Store(op, err)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}
