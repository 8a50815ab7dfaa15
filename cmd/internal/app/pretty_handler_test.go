package app

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestStripANSI(t *testing.T) {
	t.Parallel()

	in := ansiBlue + "INFO" + ansiReset + " plain " + ansiRed + "ERR" + ansiReset
	got := stripANSI(in)
	want := "INFO plain ERR"
	if got != want {
		t.Fatalf("stripANSI()=%q want=%q", got, want)
	}
}

func TestLevelTag(t *testing.T) {
	t.Parallel()

	cases := []struct {
		level slog.Level
		want  string
	}{
		{slog.LevelDebug, "[DEBUG]"},
		{slog.LevelInfo, "[INFO]"},
		{slog.LevelWarn, "[WARN]"},
		{slog.LevelError, "[ERROR]"},
	}
	for _, tc := range cases {
		if got := levelTag(tc.level, false); got != tc.want {
			t.Fatalf("levelTag(%v)=%q want %q", tc.level, got, tc.want)
		}
		if got := stripANSI(levelTag(tc.level, true)); got != tc.want {
			t.Fatalf("colored levelTag(%v) strips to %q", tc.level, got)
		}
	}
}

func TestPrettyHandler_GroupsAndAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}, true))
	log.With("session_id", "01J0").WithGroup("conn").Info("session.close",
		"reason", "eof",
		slog.Group("peer", "addr", "127.0.0.1:5000"),
	)

	out := stripANSI(buf.String())
	for _, want := range []string{"[INFO]", "msg=session.close", "session_id=01J0", "conn.reason=eof", "conn.peer.addr=127.0.0.1:5000"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
	if !strings.HasSuffix(out, "\n") || strings.Count(out, "\n") != 1 {
		t.Fatalf("expected exactly one line, got %q", out)
	}
}

func TestPrettyHandler_DropsBelowLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}, false))
	log.Info("listener.start")
	if buf.Len() != 0 {
		t.Fatalf("info emitted at warn level: %q", buf.String())
	}
}

func TestQuoteIfNeeded(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":          `""`,
		"alice":     "alice",
		"bob smith": `"bob smith"`,
		`a="b"`:     `"a=\"b\""`,
	}
	for in, want := range cases {
		if got := quoteIfNeeded(in); got != want {
			t.Fatalf("quoteIfNeeded(%q)=%q want %q", in, got, want)
		}
	}
}
