package stubserver

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the stub backend's environment configuration.
type Config struct {
	Port       string        `env:"STUB_PORT" envDefault:"8080"`
	JWTSecret  string        `env:"STUB_JWT_SECRET" envDefault:"dev-only-secret"`
	SessionTTL time.Duration `env:"STUB_SESSION_TTL" envDefault:"15m"`
	RefreshTTL time.Duration `env:"STUB_REFRESH_TTL" envDefault:"168h"`
	// DisableRefresh makes the refresh endpoint answer 404, which is
	// how a deployment without refresh capability looks to clients.
	DisableRefresh bool `env:"STUB_DISABLE_REFRESH" envDefault:"false"`
}

// LoadConfig parses the stub configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
