package internal

import (
	"fmt"
	"time"
)

type Config struct {
	LogLevel       string `env:"LOG_LEVEL,default=INFO"`
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	DebugPort      int    `env:"DEBUG_PORT,default=8081"`
	EventLogPath   string `env:"EVENT_LOG_PATH"`

	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	AuthToken         string        `env:"AUTH_TOKEN"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`

	SeenEpsilon      time.Duration `env:"SEEN_EPSILON,default=1ms"`
	TypingDebounce   time.Duration `env:"TYPING_DEBOUNCE,default=1s"`
	TypingStaleAfter time.Duration `env:"TYPING_STALE_AFTER,default=10s"`
	EventBuffer      int           `env:"EVENT_BUFFER,default=64"`
	SinkTimeout      time.Duration `env:"SINK_TIMEOUT,default=2s"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT,default=5s"`

	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=10s"`
	LowCapacityThreshold int           `env:"LOW_CAPACITY_THRESHOLD,default=8"`
}

// Validate rejects values the engine cannot run with.
func (c Config) Validate() error {
	if len(c.JWTSecret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 bytes, got %d", len(c.JWTSecret))
	}
	if c.EventBuffer <= 0 {
		return fmt.Errorf("EVENT_BUFFER must be positive, got %d", c.EventBuffer)
	}
	if c.TypingStaleAfter < 0 {
		return fmt.Errorf("TYPING_STALE_AFTER must not be negative, got %s", c.TypingStaleAfter)
	}
	return nil
}
