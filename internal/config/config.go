package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/playroomlabs/partyhost/internal/engine/match"
)

// App holds core runtime configuration for the host process.
type App struct {
	Name                    string        `env:"APP_NAME" envDefault:"partyhost"`
	Env                     string        `env:"APP_ENV" envDefault:"development"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_SECONDS" envDefault:"20s"`

	Postgres Postgres
	Redis    Redis
	Engine   Engine
	CORS     CORS
}

// Postgres captures connection info for the match archive. The host runs
// without it when no host is set; finished matches are simply not archived.
type Postgres struct {
	Host     string `env:"PG_HOST"`
	Port     int    `env:"PG_PORT" envDefault:"5432"`
	User     string `env:"PG_USER"`
	Password string `env:"PG_PASSWORD"`
	Database string `env:"PG_DATABASE"`
	SSLMode  string `env:"PG_SSL_MODE" envDefault:"disable"`
	PoolMax  int    `env:"PG_POOL_MAX" envDefault:"10"`
}

// Enabled reports whether an archive database was configured.
func (p Postgres) Enabled() bool { return p.Host != "" }

// DSN builds the pgx connection string.
func (p Postgres) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode, p.PoolMax)
}

// Redis holds checkpoint store configuration. When no address is set,
// checkpoints fall back to the in-memory store and do not survive restarts.
type Redis struct {
	Addr          string        `env:"REDIS_ADDR"`
	DB            int           `env:"REDIS_DB" envDefault:"0"`
	PoolSize      int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	CheckpointTTL time.Duration `env:"CHECKPOINT_TTL" envDefault:"6h"`
}

// Enabled reports whether a Redis checkpoint store was configured.
func (r Redis) Enabled() bool { return r.Addr != "" }

// Engine groups match defaults applied when a request leaves them unset.
type Engine struct {
	DefaultRoundCount      int     `env:"DEFAULT_ROUND_COUNT" envDefault:"5"`
	DefaultDifficultyCurve string  `env:"DEFAULT_DIFFICULTY_CURVE" envDefault:"steady"`
	DefaultDifficultyLevel int     `env:"DEFAULT_DIFFICULTY_LEVEL" envDefault:"3"`
	PauseMultiplier        float64 `env:"PAUSE_MULTIPLIER" envDefault:"1.0"`
	RandomSeed             int64   `env:"RANDOM_SEED" envDefault:"0"`
}

// CORS holds Cross-Origin Resource Sharing configuration for the browser
// clients.
type CORS struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://127.0.0.1:3000"`
	AllowedMethods []string `env:"CORS_ALLOWED_METHODS" envSeparator:"," envDefault:"GET,POST,DELETE,OPTIONS"`
	AllowedHeaders []string `env:"CORS_ALLOWED_HEADERS" envSeparator:"," envDefault:"Content-Type"`
	MaxAge         int      `env:"CORS_MAX_AGE" envDefault:"3600"`
}

// Load parses environment variables into App config.
func Load() (*App, error) {
	cfg := &App{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *App) validate() error {
	if cfg.Postgres.Enabled() {
		if cfg.Postgres.User == "" || cfg.Postgres.Password == "" || cfg.Postgres.Database == "" {
			return fmt.Errorf("postgres archive enabled but PG_USER, PG_PASSWORD or PG_DATABASE is missing")
		}
	}
	if cfg.Engine.DefaultRoundCount < 1 {
		return fmt.Errorf("DEFAULT_ROUND_COUNT must be at least 1")
	}
	if cfg.Engine.DefaultDifficultyLevel < 1 || cfg.Engine.DefaultDifficultyLevel > 5 {
		return fmt.Errorf("DEFAULT_DIFFICULTY_LEVEL must be between 1 and 5")
	}
	if !match.KnownCurve(cfg.Engine.DefaultDifficultyCurve) {
		return fmt.Errorf("DEFAULT_DIFFICULTY_CURVE %q is not a known difficulty curve", cfg.Engine.DefaultDifficultyCurve)
	}
	return nil
}
