package main

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is decoded from the environment. The admin credential uses
// ADMIN_* names because USERNAME is commonly set by the login shell.
type Config struct {
	Addr          string        `env:"ADDR,default=:5000"`
	DatabaseURL   string        `env:"DATABASE_URL,default=postboard.db"`
	Username      string        `env:"ADMIN_USER,default=admin"`
	Password      string        `env:"ADMIN_PASS,default=admin"`
	PasswordHash  string        `env:"ADMIN_PASS_HASH"`
	SecretKey     string        `env:"SECRET_KEY,default=change_me"`
	SecureCookies bool          `env:"SECURE_COOKIES,default=false"`
	SessionTTL    time.Duration `env:"SESSION_TTL,default=24h"`
	LogLevel      string        `env:"LOG_LEVEL,default=info"`
	LogFormat     string        `env:"LOG_FORMAT,default=text"`
}

// loadConfig reads an optional .env file and decodes the environment.
// Variables already present in the environment win over the file.
func loadConfig(envFiles ...string) (*Config, error) {
	// A missing .env is fine; godotenv only reports it.
	_ = godotenv.Load(envFiles...)

	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding environment: %w", err)
	}

	if cfg.SessionTTL <= 0 {
		return nil, fmt.Errorf("SESSION_TTL must be positive, got %s", cfg.SessionTTL)
	}

	return &cfg, nil
}
