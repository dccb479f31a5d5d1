package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix namespaces environment overrides.
const EnvPrefix = "STAFFDESK_"

type Config struct {
	HTTP  HTTPConfig  `koanf:"http"`
	GRPC  GRPCConfig  `koanf:"grpc"`
	PG    PGConfig    `koanf:"pg"`
	Redis RedisConfig `koanf:"redis"`
	Auth  AuthConfig  `koanf:"auth"`
	Audit AuditConfig `koanf:"audit"`
	Log   LogConfig   `koanf:"log"`
}

type HTTPConfig struct {
	Addr         string   `koanf:"addr"`
	RateBurst    int      `koanf:"rate_burst"`
	RatePerSec   float64  `koanf:"rate_per_sec"`
	MaxBodyBytes int64    `koanf:"max_body_bytes"`
	CORSOrigins  []string `koanf:"cors_origins"`
}

type GRPCConfig struct {
	Addr string `koanf:"addr"`
}

type PGConfig struct {
	DSN string `koanf:"dsn"`
}

type RedisConfig struct {
	Addr       string        `koanf:"addr"`
	Password   string        `koanf:"password"`
	ProfileTTL time.Duration `koanf:"profile_ttl"`
}

type AuthConfig struct {
	Issuer           string `koanf:"issuer"`
	Audience         string `koanf:"audience"`
	HMACSecret       string `koanf:"hmac_secret"`
	RSAPublicKeyFile string `koanf:"rsa_public_key_file"`
}

type AuditConfig struct {
	Detached bool `koanf:"detached"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:         ":8080",
			RateBurst:    20,
			RatePerSec:   10,
			MaxBodyBytes: 1 << 20,
		},
		GRPC:  GRPCConfig{Addr: ":9090"},
		Redis: RedisConfig{ProfileTTL: 10 * time.Minute},
		Audit: AuditConfig{Detached: true},
		Log:   LogConfig{Level: "info"},
	}
}

// Load starts from Default, overlays the YAML file at path when it exists,
// then STAFFDESK_* environment variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	// STAFFDESK_HTTP_RATE_PER_SEC -> http.rate_per_sec
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}

func envKey(s string) string {
	return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
}

// Validate checks what the API server needs to start.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if strings.TrimSpace(c.PG.DSN) == "" {
		errs = append(errs, errors.New("pg.dsn is required"))
	}
	if c.Auth.HMACSecret == "" && c.Auth.RSAPublicKeyFile == "" {
		errs = append(errs, errors.New("one of auth.hmac_secret or auth.rsa_public_key_file is required"))
	}
	if c.HTTP.RatePerSec < 0 || c.HTTP.RateBurst < 0 {
		errs = append(errs, errors.New("http rate limits must be non-negative"))
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("http.max_body_bytes must be positive"))
	}
	if c.Redis.ProfileTTL < 0 {
		errs = append(errs, errors.New("redis.profile_ttl must be non-negative"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log.level %q", c.Log.Level))
	}
	return errors.Join(errs...)
}
