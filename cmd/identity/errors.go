package identity

import (
	"errors"
	"fmt"
)

// OpError is a typed operation error with a stable Op + Kind contract for callers/tests.
// Msg may include human-readable context; never secrets.
type OpError struct {
	Op   string
	Kind error
	Msg  string
	// Err is the underlying cause (I/O, driver), if any.
	Err error
}

func (e OpError) Error() string {
	s := fmt.Sprintf("%s: %v", e.Op, e.Kind)
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ConflictError reports a uniqueness conflict for a logical field ("username").
type ConflictError struct {
	Op    string
	Field string
}

func (e ConflictError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrUsernameTaken)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrUsernameTaken, e.Field)
}

func (e ConflictError) Unwrap() error { return ErrUsernameTaken }

// NotFoundError reports a missing account.
type NotFoundError struct {
	Op       string
	Username string
}

func (e NotFoundError) Error() string {
	if e.Username == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrUnknownUser)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrUnknownUser, e.Username)
}

func (e NotFoundError) Unwrap() error { return ErrUnknownUser }

func invalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Msg: msg}
}

func persistence(op string, err error) error {
	return OpError{Op: op, Kind: ErrPersistence, Err: err}
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce ConflictError
	return errors.As(err, &ce)
}

// IsNotFound reports whether err represents ErrUnknownUser.
func IsNotFound(err error) bool { return errors.Is(err, ErrUnknownUser) }

// IsInvalidInput reports whether err represents ErrInvalidInput.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

// IsPersistence reports whether err is a storage failure rather than a rejected request.
func IsPersistence(err error) bool { return errors.Is(err, ErrPersistence) }

// Message maps an error to the text shown to the user in a protocol reply.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case IsInvalidInput(err):
		return "username and password must not be empty"
	case IsConflict(err):
		return "username already exists"
	case errors.Is(err, ErrInvalidUsernameLength):
		return fmt.Sprintf("username must be %d-%d characters", MinUsernameLen, MaxUsernameLen)
	case errors.Is(err, ErrWeakPassword):
		var oe OpError
		if errors.As(err, &oe) && oe.Msg != "" {
			return oe.Msg
		}
		return "password too weak"
	case IsNotFound(err):
		return "user does not exist"
	case errors.Is(err, ErrWrongPassword):
		return "wrong password"
	case errors.Is(err, ErrAlreadyOnline):
		return "user already online"
	case errors.Is(err, ErrPersistence):
		return "storage failure, please retry"
	default:
		return "internal error"
	}
}
