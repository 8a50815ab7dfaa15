package app

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ValidateConfig reports every setting that would prevent startup.
func ValidateConfig(cfg Config) error {
	var errs []error

	if _, _, err := net.SplitHostPort(cfg.TCPAddr); err != nil {
		errs = append(errs, fmt.Errorf("%sTCP_ADDR %q: %w", EnvPrefix, cfg.TCPAddr, err))
	}
	if cfg.HTTPAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.HTTPAddr); err != nil {
			errs = append(errs, fmt.Errorf("%sHTTP_ADDR %q: %w", EnvPrefix, cfg.HTTPAddr, err))
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.LogFormat)) {
	case "", "json", "pretty":
	default:
		errs = append(errs, fmt.Errorf("%sLOG_FORMAT %q: want json or pretty", EnvPrefix, cfg.LogFormat))
	}

	if cfg.DatabaseURL == "" && strings.TrimSpace(cfg.UsersFile) == "" {
		errs = append(errs, errors.New("no credential store: set LOBBY_USERS_FILE or LOBBY_DATABASE_URL"))
	}
	if cfg.ReadinessRequireDB && cfg.DatabaseURL == "" {
		errs = append(errs, errors.New("LOBBY_READINESS_REQUIRE_DB=true but LOBBY_DATABASE_URL is empty"))
	}

	if cfg.Chat.MaxFrameBytes > 0 && cfg.Chat.MaxFrameBytes < 256 {
		errs = append(errs, fmt.Errorf("%sMAX_FRAME_BYTES=%d: minimum is 256", EnvPrefix, cfg.Chat.MaxFrameBytes))
	}

	return errors.Join(errs...)
}
