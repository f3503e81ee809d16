// Package config loads server configuration from flags with environment
// variable fallbacks, validating the result before anything starts.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/colosseumrl/colosseumrl/internal/validator"
)

// Config is the full server configuration.
type Config struct {
	Hostname         string `validate:"required,hostname|ip"`
	APIPort          int    `validate:"min=1,max=65535"`
	Environment      string `validate:"required"`
	EnvConfig        string
	GamePortStart    int `validate:"min=1024,max=65535"`
	MaxGames         int `validate:"min=1"`
	TickRate         int `validate:"min=1,max=240"`
	Realtime         bool
	ObservationsOnly bool

	ConnectTimeout time.Duration `validate:"min=1s"`
	StartTimeout   time.Duration `validate:"min=1s"`
	MoveTimeout    time.Duration `validate:"min=100ms"`
	EndTimeout     time.Duration `validate:"min=1s"`
	QueuePoll      time.Duration `validate:"min=10ms"`

	DatabasePath string `validate:"required"`
	RedisAddr    string
	OtelEndpoint string `validate:"required"`
	MatchBySkill bool
	Debug        bool
}

// Load parses flags, applying COLOSSEUMRL_* environment variables as
// defaults, and validates the result.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("colosseumrl", flag.ContinueOnError)
	cfg := &Config{}

	fs.StringVar(&cfg.Hostname, "hostname", envString("COLOSSEUMRL_HOSTNAME", "localhost"), "hostname handed to matched players")
	fs.IntVar(&cfg.APIPort, "api-port", envInt("COLOSSEUMRL_API_PORT", 50051), "matchmaking API port")
	fs.StringVar(&cfg.Environment, "environment", envString("COLOSSEUMRL_ENVIRONMENT", "tictactoe"), "registered environment to serve")
	fs.StringVar(&cfg.EnvConfig, "env-config", envString("COLOSSEUMRL_ENV_CONFIG", ""), "environment configuration as JSON")
	fs.IntVar(&cfg.GamePortStart, "game-port-start", envInt("COLOSSEUMRL_GAME_PORT_START", 21000), "first port of the match server range")
	fs.IntVar(&cfg.MaxGames, "max-games", envInt("COLOSSEUMRL_MAX_GAMES", 10), "maximum simultaneous matches")
	fs.IntVar(&cfg.TickRate, "tick-rate", envInt("COLOSSEUMRL_TICK_RATE", 30), "match server ticks per second")
	fs.BoolVar(&cfg.Realtime, "realtime", envBool("COLOSSEUMRL_REALTIME", false), "advance every tick instead of waiting for all actions")
	fs.BoolVar(&cfg.ObservationsOnly, "observations-only", envBool("COLOSSEUMRL_OBSERVATIONS_ONLY", false), "omit full state snapshots from the replicated table")

	fs.DurationVar(&cfg.ConnectTimeout, "connect-timeout", envDuration("COLOSSEUMRL_CONNECT_TIMEOUT", 30*time.Second), "time players have to join a new match")
	fs.DurationVar(&cfg.StartTimeout, "start-timeout", envDuration("COLOSSEUMRL_START_TIMEOUT", 5*time.Second), "time players have to signal ready")
	fs.DurationVar(&cfg.MoveTimeout, "move-timeout", envDuration("COLOSSEUMRL_MOVE_TIMEOUT", 5*time.Second), "rolling per-move timeout before forced progression")
	fs.DurationVar(&cfg.EndTimeout, "end-timeout", envDuration("COLOSSEUMRL_END_TIMEOUT", 10*time.Second), "time players have to acknowledge game over")
	fs.DurationVar(&cfg.QueuePoll, "queue-poll", envDuration("COLOSSEUMRL_QUEUE_POLL", 200*time.Millisecond), "matchmaking queue sweep interval")

	fs.StringVar(&cfg.DatabasePath, "db", envString("COLOSSEUMRL_DB", "colosseumrl.db"), "sqlite database path for the ranking store")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", envString("COLOSSEUMRL_REDIS_ADDR", ""), "redis address for lifecycle events (empty disables)")
	fs.StringVar(&cfg.OtelEndpoint, "otel-endpoint", envString("COLOSSEUMRL_OTEL_ENDPOINT", "otel-collector:4317"), "OTLP gRPC collector endpoint")
	fs.BoolVar(&cfg.MatchBySkill, "match-by-skill", envBool("COLOSSEUMRL_MATCH_BY_SKILL", false), "match players by rating instead of arrival order")
	fs.BoolVar(&cfg.Debug, "debug", envBool("COLOSSEUMRL_DEBUG", false), "enable debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration's struct tags plus the cross-field
// constraints tags cannot express.
func (c *Config) Validate() error {
	if err := validator.GetValidator().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.GamePortStart+2*c.MaxGames > 65535 {
		return fmt.Errorf("config: game port range %d-%d exceeds the valid port space",
			c.GamePortStart, c.GamePortStart+2*c.MaxGames)
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
