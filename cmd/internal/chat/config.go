package chat

import (
	"fmt"
	"strings"
	"time"
)

// DuplicateLoginPolicy decides what a second login for an online username does.
type DuplicateLoginPolicy string

const (
	// DuplicateLoginTakeover closes the previous session and binds the new one.
	DuplicateLoginTakeover DuplicateLoginPolicy = "takeover"
	// DuplicateLoginReject fails the new login with "already online".
	DuplicateLoginReject DuplicateLoginPolicy = "reject"
)

// ParseDuplicateLoginPolicy maps a config value to a policy. Empty means takeover.
func ParseDuplicateLoginPolicy(s string) (DuplicateLoginPolicy, error) {
	switch DuplicateLoginPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", DuplicateLoginTakeover:
		return DuplicateLoginTakeover, nil
	case DuplicateLoginReject:
		return DuplicateLoginReject, nil
	default:
		return "", fmt.Errorf("unknown duplicate login policy %q (want takeover|reject)", s)
	}
}

// Config tunes sessions. Zero values fall back to defaults.
type Config struct {
	DuplicateLogin DuplicateLoginPolicy

	MaxFrameBytes   int
	MaxMessageChars int
	SendQueueSize   int

	// ReadIdleTimeout closes a session that sends nothing for this long. 0 disables it.
	ReadIdleTimeout time.Duration
	WriteTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.DuplicateLogin == "" {
		c.DuplicateLogin = DuplicateLoginTakeover
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = defaultMaxFrameBytes
	}
	if c.MaxMessageChars <= 0 {
		c.MaxMessageChars = defaultMaxMessageChars
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = defaultSendQueueSize
	}
	if c.SendQueueSize < minSendQueueSize {
		c.SendQueueSize = minSendQueueSize
	}
	if c.ReadIdleTimeout < 0 {
		c.ReadIdleTimeout = 0
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	return c
}
