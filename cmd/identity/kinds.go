package identity

import "errors"

// Sentinel error kinds (stable for errors.Is and for mapping to protocol replies).
var (
	ErrInvalidInput          = errors.New("invalid_input")
	ErrInvalidUsernameLength = errors.New("invalid_username_length")
	ErrWeakPassword          = errors.New("weak_password")
	ErrUsernameTaken         = errors.New("username_taken")
	ErrUnknownUser           = errors.New("unknown_user")
	ErrWrongPassword         = errors.New("wrong_password")
	ErrAlreadyOnline         = errors.New("already_online")
	ErrPersistence           = errors.New("persistence")
)
