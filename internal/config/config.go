// README: Config loader: QUOTE_-prefixed environment (optionally from .env) for HTTP, DB, Redis, collaborators and pricing.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

const envPrefix = "QUOTE_"

type HTTPConfig struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	// AuthDisabled skips Firebase verification and records writes as the system actor.
	AuthDisabled bool `env:"AUTH_DISABLED" envDefault:"false"`
}

type DBConfig struct {
	// DSN empty selects the in-memory stores.
	DSN         string        `env:"DSN"`
	ConnectWait time.Duration `env:"CONNECT_WAIT" envDefault:"30s"`
}

type RedisConfig struct {
	// Addr empty disables the segment cache.
	Addr     string        `env:"ADDR"`
	Password string        `env:"PASSWORD"`
	DB       int           `env:"DB" envDefault:"0"`
	TTL      time.Duration `env:"TTL" envDefault:"24h"`
}

type FirebaseConfig struct {
	ProjectID       string `env:"PROJECT_ID"`
	CredentialsFile string `env:"CREDENTIALS_FILE"`
}

type MapsConfig struct {
	APIKey  string        `env:"API_KEY"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

type TollConfig struct {
	// BaseURL empty disables live toll rates.
	BaseURL string        `env:"BASE_URL"`
	APIKey  string        `env:"API_KEY"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"3s"`
}

type AIConfig struct {
	GeminiKey    string        `env:"GEMINI_API_KEY"`
	OpenAIKey    string        `env:"OPENAI_API_KEY"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"4s"`
	MonthlyQuota int           `env:"MONTHLY_QUOTA" envDefault:"100"`
}

type PricingConfig struct {
	Scope    string        `env:"SETTINGS_SCOPE" envDefault:"global"`
	Validity time.Duration `env:"VALIDITY" envDefault:"24h"`
	Strict   bool          `env:"STRICT" envDefault:"false"`
}

type Config struct {
	HTTP     HTTPConfig     `envPrefix:"HTTP_"`
	DB       DBConfig       `envPrefix:"DB_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	Firebase FirebaseConfig `envPrefix:"FIREBASE_"`
	Maps     MapsConfig     `envPrefix:"MAPS_"`
	Toll     TollConfig     `envPrefix:"TOLL_"`
	AI       AIConfig       `envPrefix:"AI_"`
	Pricing  PricingConfig  `envPrefix:"PRICING_"`
}

// Load reads .env files when present (existing variables win), then parses the environment.
func Load(dotenvFiles ...string) (*Config, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Pricing.Validity <= 0:
		return fmt.Errorf("%sPRICING_VALIDITY must be > 0", envPrefix)
	case c.Redis.TTL <= 0:
		return fmt.Errorf("%sREDIS_TTL must be > 0", envPrefix)
	case !c.HTTP.AuthDisabled && c.Firebase.ProjectID == "":
		return fmt.Errorf("%sFIREBASE_PROJECT_ID is required unless %sHTTP_AUTH_DISABLED=true", envPrefix, envPrefix)
	case c.AI.MonthlyQuota < 0:
		return fmt.Errorf("%sAI_MONTHLY_QUOTA must be >= 0", envPrefix)
	}
	return nil
}
