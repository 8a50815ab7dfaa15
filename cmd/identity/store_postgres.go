package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL.
//
// Notes:
// - The pgx pool is owned by the caller; Close does not close it.
// - Schema/table identifiers are validated and quoted.
// - Login serializes on the account row via SELECT ... FOR UPDATE.
type PostgresStore struct {
	pool *pgxpool.Pool
	opts options
}

var _ Store = (*PostgresStore)(nil)

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const usersTable = "chat_users"

// WithSchema sets the Postgres schema holding chat_users (default "lobby").
func WithSchema(schema string) Option {
	return func(o *options) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentIsValid(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		o.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore. Call Migrate before first use
// unless the table is provisioned externally.
func NewPostgresStore(pool *pgxpool.Pool, opts ...Option) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	o, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool, opts: o}, nil
}

// Migrate creates the schema and chat_users table if missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	const op = "identity.Migrate"

	users := s.table()
	ddl := fmt.Sprintf(`
CREATE SCHEMA IF NOT EXISTS %s;

CREATE TABLE IF NOT EXISTS %s (
  username TEXT PRIMARY KEY,
  password_hash TEXT NOT NULL,
  online BOOLEAN NOT NULL DEFAULT false,
  registered_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  last_login TIMESTAMPTZ NULL,

  CONSTRAINT chk_chat_users_username_len CHECK (char_length(username) BETWEEN %d AND %d)
);

CREATE INDEX IF NOT EXISTS idx_chat_users_online ON %s (online) WHERE online;
`, pgx.Identifier{s.opts.schema}.Sanitize(), users, MinUsernameLen, MaxUsernameLen, users)

	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return persistence(op, err)
	}
	return nil
}

func (s *PostgresStore) table() string {
	return pgIdent(s.opts.schema, usersTable)
}

// Register inserts an offline account.
func (s *PostgresStore) Register(ctx context.Context, username, pw string) error {
	const op = "identity.Register"

	if err := ctx.Err(); err != nil {
		return err
	}
	username, err := checkCredentials(op, username, pw)
	if err != nil {
		return err
	}

	var exists bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+s.table()+` WHERE username = $1)`,
		username,
	).Scan(&exists)
	if err != nil {
		return persistence(op, err)
	}
	if exists {
		return ConflictError{Op: op, Field: "username"}
	}

	h, err := hashForRegister(op, username, pw, s.opts.passwords)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+s.table()+` (username, password_hash, online, registered_at)
		 VALUES ($1, $2, false, $3)`,
		username, h, s.opts.now().UTC(),
	)
	if err != nil {
		if pgIsUniqueViolation(err) {
			return ConflictError{Op: op, Field: "username"}
		}
		return persistence(op, err)
	}
	return nil
}

// Login verifies the password and marks the account online.
func (s *PostgresStore) Login(ctx context.Context, username, pw string, opts LoginOptions) (UserRecord, error) {
	const op = "identity.Login"

	if err := ctx.Err(); err != nil {
		return UserRecord{}, err
	}
	username, err := checkCredentials(op, username, pw)
	if err != nil {
		return UserRecord{}, err
	}

	rec, err := s.get(ctx, s.pool, op, username, false)
	if err != nil {
		return UserRecord{}, err
	}
	if err := verify(op, s.opts.passwords, rec, pw); err != nil {
		return UserRecord{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return UserRecord{}, persistence(op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := s.get(ctx, tx, op, username, true)
	if err != nil {
		return UserRecord{}, err
	}
	if cur.PasswordHash != rec.PasswordHash {
		return UserRecord{}, OpError{Op: op, Kind: ErrWrongPassword, Msg: "credentials changed"}
	}
	if cur.Online && !opts.AllowTakeover {
		return UserRecord{}, OpError{Op: op, Kind: ErrAlreadyOnline}
	}

	now := s.opts.now().UTC()
	if _, err := tx.Exec(ctx,
		`UPDATE `+s.table()+` SET online = true, last_login = $2 WHERE username = $1`,
		username, now,
	); err != nil {
		return UserRecord{}, persistence(op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return UserRecord{}, persistence(op, err)
	}

	cur.Online = true
	cur.LastLogin = &now
	return cur, nil
}

// Logout clears the online flag. Unknown users are a no-op.
func (s *PostgresStore) Logout(ctx context.Context, username string) error {
	const op = "identity.Logout"

	if _, err := s.pool.Exec(ctx,
		`UPDATE `+s.table()+` SET online = false WHERE username = $1 AND online`,
		username,
	); err != nil {
		return persistence(op, err)
	}
	return nil
}

// ForceLogoutAll clears every online flag.
func (s *PostgresStore) ForceLogoutAll(ctx context.Context) (int, error) {
	const op = "identity.ForceLogoutAll"

	tag, err := s.pool.Exec(ctx, `UPDATE `+s.table()+` SET online = false WHERE online`)
	if err != nil {
		return 0, persistence(op, err)
	}
	return int(tag.RowsAffected()), nil
}

// Get returns the account.
func (s *PostgresStore) Get(ctx context.Context, username string) (UserRecord, error) {
	return s.get(ctx, s.pool, "identity.Get", username, false)
}

// Close is a no-op; the pool belongs to the caller.
func (s *PostgresStore) Close(context.Context) error { return nil }

type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) get(ctx context.Context, q pgQuerier, op, username string, forUpdate bool) (UserRecord, error) {
	sql := `SELECT username, password_hash, online, registered_at, last_login
	          FROM ` + s.table() + ` WHERE username = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}

	var (
		rec       UserRecord
		lastLogin *time.Time
	)
	err := q.QueryRow(ctx, sql, username).Scan(
		&rec.Username,
		&rec.PasswordHash,
		&rec.Online,
		&rec.RegisteredAt,
		&lastLogin,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserRecord{}, NotFoundError{Op: op, Username: username}
	}
	if err != nil {
		return UserRecord{}, persistence(op, err)
	}
	rec.LastLogin = lastLogin
	return rec, nil
}

// pgIdentIsValid checks if a string is a safe Postgres identifier.
func pgIdentIsValid(s string) bool {
	return pgIdentRe.MatchString(s)
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgIsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" // unique_violation
}
