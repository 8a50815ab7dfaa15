package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lobby/cmd/security/password"
)

// TimeLayout is the wall-clock layout used for register_time / last_login.
const TimeLayout = "2006-01-02 15:04:05"

// UserRecord is one account.
type UserRecord struct {
	Username     string
	PasswordHash string
	Online       bool
	RegisteredAt time.Time
	LastLogin    *time.Time
}

// LoginOptions tunes Login.
type LoginOptions struct {
	// AllowTakeover lets a login succeed while the record is already online.
	// The caller is then responsible for displacing the previous session.
	AllowTakeover bool
}

// Store is the credential persistence boundary.
//
// All methods are safe for concurrent use. Register and Login validate their
// input and return OpError values with sentinel kinds.
type Store interface {
	Register(ctx context.Context, username, password string) error
	Login(ctx context.Context, username, password string, opts LoginOptions) (UserRecord, error)
	// Logout clears the online flag. Unknown users are a no-op.
	Logout(ctx context.Context, username string) error
	// ForceLogoutAll clears every online flag and returns how many were set.
	ForceLogoutAll(ctx context.Context) (int, error)
	Get(ctx context.Context, username string) (UserRecord, error)
	Close(ctx context.Context) error
}

// Option configures a store.
type Option func(*options) error

type options struct {
	passwords password.Config
	now       func() time.Time
	schema    string
}

func defaultOptions() options {
	return options{
		passwords: password.DefaultConfig(),
		now:       time.Now,
		schema:    "lobby",
	}
}

func applyOptions(opts []Option) (options, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&o); err != nil {
			return options{}, err
		}
	}
	return o, nil
}

// WithPasswordConfig sets the hashing scheme and registration policy.
func WithPasswordConfig(cfg password.Config) Option {
	return func(o *options) error {
		o.passwords = cfg
		return nil
	}
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(o *options) error {
		if now == nil {
			return fmt.Errorf("identity: nil clock")
		}
		o.now = now
		return nil
	}
}

// checkCredentials applies the empty-field rule shared by Register and Login.
func checkCredentials(op, username, pw string) (string, error) {
	username = NormalizeUsername(username)
	if username == "" || pw == "" {
		return "", invalid(op, "username and password are required")
	}
	return username, nil
}

// hashForRegister validates the username length and password policy, then hashes.
// Callers check uniqueness first so a taken name fails the same way for any password.
func hashForRegister(op, username, pw string, cfg password.Config) (string, error) {
	if !ValidUsernameLength(username) {
		return "", OpError{Op: op, Kind: ErrInvalidUsernameLength}
	}

	h, err := cfg.Hash(pw)
	if err != nil {
		switch {
		case errors.Is(err, password.ErrPasswordTooShort):
			return "", OpError{Op: op, Kind: ErrWeakPassword, Msg: fmt.Sprintf("password must be at least %d characters", cfg.Policy.MinLength)}
		case errors.Is(err, password.ErrPasswordTooLong):
			return "", OpError{Op: op, Kind: ErrWeakPassword, Msg: fmt.Sprintf("password must be at most %d characters", cfg.Policy.MaxLength)}
		case errors.Is(err, password.ErrWeakPassword):
			return "", OpError{Op: op, Kind: ErrWeakPassword, Msg: "password is too easy to guess"}
		default:
			return "", fmt.Errorf("%s: hash: %w", op, err)
		}
	}
	return h, nil
}

// verify checks pw against the stored hash. A corrupt hash never authenticates.
func verify(op string, cfg password.Config, rec UserRecord, pw string) error {
	ok, err := cfg.Verify(rec.PasswordHash, pw)
	if err != nil {
		return OpError{Op: op, Kind: ErrWrongPassword, Msg: "stored hash unreadable", Err: err}
	}
	if !ok {
		return OpError{Op: op, Kind: ErrWrongPassword}
	}
	return nil
}
