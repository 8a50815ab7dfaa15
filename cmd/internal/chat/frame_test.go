package chat

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestFrameReader_SplitsLines(t *testing.T) {
	t.Parallel()

	fr := NewFrameReader(strings.NewReader("one\r\n\n  \ntwo\nthree"), 64)

	for _, want := range []string{"one", "two", "three"} {
		got, err := fr.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if string(got) != want {
			t.Fatalf("got %q want %q", got, want)
		}
	}
	if _, err := fr.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestFrameReader_TooLargeThenRecovers(t *testing.T) {
	t.Parallel()

	input := strings.Repeat("x", 10_000) + "\nok\n"
	fr := NewFrameReader(strings.NewReader(input), 16)

	if _, err := fr.ReadFrame(); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
	got, err := fr.ReadFrame()
	if err != nil || string(got) != "ok" {
		t.Fatalf("after oversized frame got %q, %v", got, err)
	}
}

func TestFrameReader_ExactLimit(t *testing.T) {
	t.Parallel()

	fr := NewFrameReader(strings.NewReader("abcd\nabcde\n"), 4)

	if got, err := fr.ReadFrame(); err != nil || string(got) != "abcd" {
		t.Fatalf("frame at limit: %q, %v", got, err)
	}
	if _, err := fr.ReadFrame(); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("frame over limit: %v", err)
	}
}

func TestFrameReader_UnterminatedOversizedAtEOF(t *testing.T) {
	t.Parallel()

	fr := NewFrameReader(strings.NewReader(strings.Repeat("y", 100)), 10)
	if _, err := fr.ReadFrame(); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
	if _, err := fr.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}
