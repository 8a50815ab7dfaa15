package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix is prepended to every key read through the Env helpers.
const EnvPrefix = "LOBBY_"

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// EnvString reads LOBBY_<key> with a default.
func EnvString(key, def string) string {
	v, ok := lookupEnv(key)
	if !ok {
		return def
	}
	return v
}

// EnvStringAllowEmpty is EnvString, except an explicitly empty value is kept.
// Used for addresses where "" means "disabled".
func EnvStringAllowEmpty(key, def string) string {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok {
		return def
	}
	return strings.TrimSpace(v)
}

// EnvBool reads a bool with a default. Unparsable values fall back to def.
func EnvBool(key string, def bool) bool {
	v, ok := lookupEnv(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// EnvInt reads a positive int with a default.
func EnvInt(key string, def int) int {
	v, ok := lookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// EnvInt32 reads a non-negative int32 with a default.
func EnvInt32(key string, def int32) int32 {
	v, ok := lookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil || n < 0 {
		return def
	}
	return int32(n)
}

// EnvDuration reads a duration with a default. "0" is accepted and returned
// as zero so callers can express "disabled".
func EnvDuration(key string, def time.Duration) time.Duration {
	v, ok := lookupEnv(key)
	if !ok {
		return def
	}
	if v == "0" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return def
	}
	return d
}

// EnvList reads a comma-separated list, dropping blanks.
func EnvList(key string, def []string) []string {
	v, ok := lookupEnv(key)
	if !ok {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
