package password

import (
	"errors"
	"strings"
	"testing"
)

func fastArgon2Config() Config {
	cfg := DefaultConfig()
	cfg.Scheme = SchemeArgon2id
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

func TestHash_SHA256IsHexDigest(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	h, err := cfg.Hash("123456")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	// sha256("123456")
	const want = "8d969eef6ecad3c29a3a629280e686cf0c3f5d5a86aff3ca12020c923adc6c92"
	if h != want {
		t.Fatalf("hash=%s want %s", h, want)
	}
}

func TestHashAndVerify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		cfg  Config
	}{
		{"sha256", DefaultConfig()},
		{"argon2id", fastArgon2Config()},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h, err := tc.cfg.Hash("secret1")
			if err != nil {
				t.Fatalf("Hash error: %v", err)
			}

			ok, err := tc.cfg.Verify(h, "secret1")
			if err != nil || !ok {
				t.Fatalf("Verify(match) ok=%v err=%v", ok, err)
			}

			ok, err = tc.cfg.Verify(h, "secret2")
			if err != nil || ok {
				t.Fatalf("Verify(mismatch) ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestVerify_MixedSchemes(t *testing.T) {
	t.Parallel()

	legacy := DefaultConfig()
	modern := fastArgon2Config()

	oldHash, err := legacy.Hash("secret1")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	newHash, err := modern.Hash("secret1")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(newHash, "$argon2id$v=19$") {
		t.Fatalf("unexpected argon2 encoding: %s", newHash)
	}

	for _, h := range []string{oldHash, newHash} {
		ok, err := modern.Verify(h, "secret1")
		if err != nil || !ok {
			t.Fatalf("Verify(%s) ok=%v err=%v", h, ok, err)
		}
	}

	if s, _ := SchemeOf(oldHash); s != SchemeSHA256 {
		t.Fatalf("SchemeOf(old)=%q", s)
	}
	if s, _ := SchemeOf(newHash); s != SchemeArgon2id {
		t.Fatalf("SchemeOf(new)=%q", s)
	}
}

func TestValidate_MinMax(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Policy.MaxLength = 16

	if err := cfg.Validate("12345"); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
	if err := cfg.Validate("this password is definitely too long"); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
	if err := cfg.Validate("123456"); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	// Runes, not bytes.
	if err := cfg.Validate("пароль"); err != nil {
		t.Fatalf("expected ok for 6 cyrillic runes, got %v", err)
	}
}

func TestVerify_InvalidHash(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	for _, h := range []string{"not-a-hash", "", "$argon2id$v=18$m=1,t=1,p=1$AA$AA", strings.Repeat("z", 64)} {
		ok, err := cfg.Verify(h, "whatever")
		if !errors.Is(err, ErrInvalidHash) {
			t.Fatalf("Verify(%q): expected ErrInvalidHash, got %v", h, err)
		}
		if ok {
			t.Fatalf("expected false")
		}
	}
}

func TestVerify_RefusesOversizedParams(t *testing.T) {
	t.Parallel()

	cfg := fastArgon2Config()
	h := "$argon2id$v=19$m=1048576,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaGhhc2hoYXNoaGFzaGhhc2g"
	if _, err := cfg.Verify(h, "x"); !errors.Is(err, ErrInvalidHash) {
		t.Fatalf("expected ErrInvalidHash, got %v", err)
	}
}

func TestPolicy_RejectVeryWeak(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Policy.RejectVeryWeak = true

	for _, pw := range []string{"password", "aaaaaaa", "1234567", "Qwerty", "abcdefgh", "Chatroom", "123456789"} {
		if err := cfg.Validate(pw); !errors.Is(err, ErrWeakPassword) {
			t.Fatalf("Validate(%q): expected ErrWeakPassword, got %v", pw, err)
		}
	}
	for _, pw := range []string{"a-very-ok-pass", "12345678x", "hunter2!"} {
		if err := cfg.Validate(pw); err != nil {
			t.Fatalf("Validate(%q): expected ok, got %v", pw, err)
		}
	}
}
