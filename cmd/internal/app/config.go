package app

import (
	"fmt"
	"time"

	"lobby/cmd/internal/chat"
	"lobby/cmd/security/password"
)

// Config contains all runtime configuration loaded from LOBBY_* environment variables.
type Config struct {
	// TCPAddr is the chat listener ("host:port").
	TCPAddr string
	// HTTPAddr serves /healthz, /readyz, /metrics and /ws. Empty disables it.
	HTTPAddr string

	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	ShutdownTimeout   time.Duration

	// UsersFile is the JSON credential file, used when DatabaseURL is empty.
	UsersFile string

	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	// If true, /readyz returns 503 unless a database is configured and reachable.
	ReadinessRequireDB bool

	Chat      chat.Config
	WS        chat.WSConfig
	Passwords password.Config
}

// LoadConfig reads Config from the environment with defaults.
func LoadConfig() (Config, error) {
	policy, err := chat.ParseDuplicateLoginPolicy(EnvString("DUPLICATE_LOGIN", string(chat.DuplicateLoginTakeover)))
	if err != nil {
		return Config{}, fmt.Errorf("%sDUPLICATE_LOGIN: %w", EnvPrefix, err)
	}

	pw, err := password.FromEnv()
	if err != nil {
		return Config{}, err
	}

	ws := chat.DefaultWSConfig()
	ws.OriginRequired = EnvBool("WS_ORIGIN_REQUIRED", ws.OriginRequired)
	ws.AllowedOrigins = EnvList("WS_ALLOWED_ORIGINS", ws.AllowedOrigins)
	ws.InsecureSkipVerify = EnvBool("WS_INSECURE_SKIP_VERIFY", false)
	ws.HeartbeatInterval = EnvDuration("WS_HEARTBEAT_INTERVAL", ws.HeartbeatInterval)
	ws.HeartbeatTimeout = EnvDuration("WS_HEARTBEAT_TIMEOUT", ws.HeartbeatTimeout)

	return Config{
		TCPAddr:  EnvString("TCP_ADDR", "0.0.0.0:8888"),
		HTTPAddr: EnvStringAllowEmpty("HTTP_ADDR", "127.0.0.1:8889"),

		LogLevel:  EnvString("LOG_LEVEL", "info"),
		LogFormat: EnvString("LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		IdleTimeout:       EnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("HTTP_MAX_HEADER_BYTES", 1<<20),
		ShutdownTimeout:   EnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		UsersFile: EnvString("USERS_FILE", "users.json"),

		DatabaseURL: EnvString("DATABASE_URL", ""),
		DBSchema:    EnvString("DB_SCHEMA", "lobby"),
		DBMaxConns:  EnvInt32("DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("READINESS_REQUIRE_DB", false),

		Chat: chat.Config{
			DuplicateLogin:  policy,
			MaxFrameBytes:   EnvInt("MAX_FRAME_BYTES", 64<<10),
			MaxMessageChars: EnvInt("MAX_MESSAGE_CHARS", 4000),
			SendQueueSize:   EnvInt("SEND_QUEUE_SIZE", 256),
			ReadIdleTimeout: EnvDuration("READ_IDLE_TIMEOUT", 0),
			WriteTimeout:    EnvDuration("WRITE_TIMEOUT", 5*time.Second),
		},
		WS:        ws,
		Passwords: pw,
	}, nil
}
