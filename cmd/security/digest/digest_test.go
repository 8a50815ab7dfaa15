package digest

import "testing"

func TestSHA256Hex_KnownVector(t *testing.T) {
	t.Parallel()

	// sha256("abc")
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := SHA256Hex("abc"); got != want {
		t.Fatalf("SHA256Hex(abc)=%s want %s", got, want)
	}
}

func TestEqualHex(t *testing.T) {
	t.Parallel()

	h := SHA256Hex("secret")
	cases := []struct {
		name string
		a, b string
		want bool
	}{
		{"same", h, h, true},
		{"upper", h, toUpper(h), true},
		{"different", h, SHA256Hex("other"), false},
		{"length", h, h[:10], false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := EqualHex(tc.a, tc.b); got != tc.want {
				t.Fatalf("EqualHex=%v want %v", got, tc.want)
			}
		})
	}
}

func TestFingerprint_ShortAndStable(t *testing.T) {
	t.Parallel()

	a := Fingerprint("alice")
	if len(a) != 12 {
		t.Fatalf("len=%d want 12", len(a))
	}
	if a != Fingerprint("alice") {
		t.Fatalf("fingerprint not stable")
	}
}

func toUpper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 32
		}
	}
	return string(b)
}
