package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore keeps every account in one JSON document keyed by username.
//
// Every mutation rewrites the whole document via temp file + fsync + rename.
// When that write fails the in-memory change is kept and an ErrPersistence
// error is returned; the next successful write (or ForceLogoutAll at startup)
// reconciles the file.
type FileStore struct {
	path string
	opts options

	mu    sync.Mutex
	users map[string]UserRecord
}

var _ Store = (*FileStore)(nil)

// fileRecord is the on-disk shape of one account.
type fileRecord struct {
	Password     string  `json:"password"`
	Online       bool    `json:"online"`
	RegisterTime string  `json:"register_time"`
	LastLogin    *string `json:"last_login"`
}

// OpenFileStore loads path. A missing file yields an empty store; an unreadable
// or corrupt file is an error.
func OpenFileStore(path string, opts ...Option) (*FileStore, error) {
	const op = "identity.OpenFileStore"

	if path == "" {
		return nil, invalid(op, "empty path")
	}
	o, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}

	users, err := loadFile(path)
	if err != nil {
		return nil, OpError{Op: op, Kind: ErrPersistence, Msg: path, Err: err}
	}

	return &FileStore{path: path, opts: o, users: users}, nil
}

func loadFile(path string) (map[string]UserRecord, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- operator-configured path.
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]UserRecord{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]UserRecord{}, nil
	}

	var doc map[string]fileRecord
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("corrupt credential file: %w", err)
	}

	users := make(map[string]UserRecord, len(doc))
	for name, fr := range doc {
		rec := UserRecord{
			Username:     name,
			PasswordHash: fr.Password,
			Online:       fr.Online,
			RegisteredAt: parseWallClock(fr.RegisterTime),
		}
		if fr.LastLogin != nil {
			if t := parseWallClock(*fr.LastLogin); !t.IsZero() {
				rec.LastLogin = &t
			}
		}
		users[name] = rec
	}
	return users, nil
}

func parseWallClock(s string) time.Time {
	t, err := time.ParseInLocation(TimeLayout, s, time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatWallClock(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(time.Local).Format(TimeLayout)
}

// saveLocked writes the whole document atomically. Caller holds s.mu.
func (s *FileStore) saveLocked() error {
	doc := make(map[string]fileRecord, len(s.users))
	for name, rec := range s.users {
		fr := fileRecord{
			Password:     rec.PasswordHash,
			Online:       rec.Online,
			RegisterTime: formatWallClock(rec.RegisteredAt),
		}
		if rec.LastLogin != nil {
			v := formatWallClock(*rec.LastLogin)
			fr.LastLogin = &v
		}
		doc[name] = fr
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	return writeFileAtomic(s.path, buf.Bytes())
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// Register creates an offline account.
func (s *FileStore) Register(ctx context.Context, username, pw string) error {
	const op = "identity.Register"

	if err := ctx.Err(); err != nil {
		return err
	}
	username, err := checkCredentials(op, username, pw)
	if err != nil {
		return err
	}

	if s.exists(username) {
		return ConflictError{Op: op, Field: "username"}
	}

	// Hash outside the lock; Argon2id is deliberately slow.
	h, err := hashForRegister(op, username, pw, s.opts.passwords)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[username]; ok {
		return ConflictError{Op: op, Field: "username"}
	}
	s.users[username] = UserRecord{
		Username:     username,
		PasswordHash: h,
		RegisteredAt: s.opts.now(),
	}
	if err := s.saveLocked(); err != nil {
		return persistence(op, err)
	}
	return nil
}

func (s *FileStore) exists(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[username]
	return ok
}

// Login verifies the password and marks the account online.
//
// An ErrPersistence error comes with a valid record: the account is online in
// memory and only the write failed.
func (s *FileStore) Login(ctx context.Context, username, pw string, opts LoginOptions) (UserRecord, error) {
	const op = "identity.Login"

	if err := ctx.Err(); err != nil {
		return UserRecord{}, err
	}
	username, err := checkCredentials(op, username, pw)
	if err != nil {
		return UserRecord{}, err
	}

	s.mu.Lock()
	rec, ok := s.users[username]
	s.mu.Unlock()
	if !ok {
		return UserRecord{}, NotFoundError{Op: op, Username: username}
	}

	if err := verify(op, s.opts.passwords, rec, pw); err != nil {
		return UserRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.users[username]
	if !ok {
		return UserRecord{}, NotFoundError{Op: op, Username: username}
	}
	if cur.PasswordHash != rec.PasswordHash {
		return UserRecord{}, OpError{Op: op, Kind: ErrWrongPassword, Msg: "credentials changed"}
	}
	if cur.Online && !opts.AllowTakeover {
		return UserRecord{}, OpError{Op: op, Kind: ErrAlreadyOnline}
	}

	now := s.opts.now()
	cur.Online = true
	cur.LastLogin = &now
	s.users[username] = cur

	if err := s.saveLocked(); err != nil {
		return cur, persistence(op, err)
	}
	return cur, nil
}

// Logout clears the online flag.
func (s *FileStore) Logout(ctx context.Context, username string) error {
	const op = "identity.Logout"

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[username]
	if !ok || !rec.Online {
		return nil
	}
	rec.Online = false
	s.users[username] = rec

	if err := s.saveLocked(); err != nil {
		return persistence(op, err)
	}
	return nil
}

// ForceLogoutAll resets every online flag, typically once at startup.
func (s *FileStore) ForceLogoutAll(ctx context.Context) (int, error) {
	const op = "identity.ForceLogoutAll"

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for name, rec := range s.users {
		if rec.Online {
			rec.Online = false
			s.users[name] = rec
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	if err := s.saveLocked(); err != nil {
		return n, persistence(op, err)
	}
	return n, nil
}

// Get returns a copy of the account.
func (s *FileStore) Get(ctx context.Context, username string) (UserRecord, error) {
	const op = "identity.Get"

	if err := ctx.Err(); err != nil {
		return UserRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[username]
	if !ok {
		return UserRecord{}, NotFoundError{Op: op, Username: username}
	}
	if rec.LastLogin != nil {
		t := *rec.LastLogin
		rec.LastLogin = &t
	}
	return rec, nil
}

// Close is a no-op; every mutation is already on disk.
func (s *FileStore) Close(context.Context) error { return nil }

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }
