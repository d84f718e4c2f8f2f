// Package config loads application configuration from environment
// variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the process-wide settings.  Each field corresponds to an
// environment variable.  AdminSignup lets /v1/auth/register create ADMIN
// accounts.
type Config struct {
	Env            string // APP_ENV; "memory" runs without MySQL
	Port           string
	DBUser         string
	DBPass         string // may be empty
	DBHost         string
	DBPort         string
	DBName         string
	DBAutoMigrate  bool
	JWTSecret      string
	AccessTTLMin   int
	RefreshTTLDays int
	BcryptCost     int
	AdminSignup    bool
	LogLevel       string
	LogFormat      string
}

// InMemory reports whether the process should run on the in-memory store.
func (c Config) InMemory() bool { return c.Env == "memory" }

// Load reads .env (when present) and the environment.  Every missing or
// malformed required variable is reported in the returned error.
func Load() (Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	var r reader
	cfg := Config{
		Env:            r.must("APP_ENV"),
		Port:           r.must("APP_PORT"),
		JWTSecret:      r.must("JWT_SECRET"),
		AccessTTLMin:   r.mustInt("ACCESS_TOKEN_TTL_MIN"),
		RefreshTTLDays: r.mustInt("REFRESH_TOKEN_TTL_DAYS"),
		BcryptCost:     r.mustInt("BCRYPT_COST"),
		DBPass:         os.Getenv("DB_PASS"),
		DBAutoMigrate:  envBool("DB_AUTO_MIGRATE", true),
		AdminSignup:    envBool("ALLOW_ADMIN_SIGNUP", false),
		LogLevel:       envStr("LOG_LEVEL", "info"),
		LogFormat:      envStr("LOG_FORMAT", "json"),
	}
	if !cfg.InMemory() {
		cfg.DBUser = r.must("DB_USER")
		cfg.DBHost = r.must("DB_HOST")
		cfg.DBPort = r.must("DB_PORT")
		cfg.DBName = r.must("DB_NAME")
	}
	if len(r.problems) > 0 {
		return Config{}, errors.New("config: " + strings.Join(r.problems, "; "))
	}
	return cfg, nil
}

type reader struct{ problems []string }

func (r *reader) must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		r.problems = append(r.problems, "missing required env var "+key)
	}
	return v
}

func (r *reader) mustInt(key string) int {
	s := r.must(key)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		r.problems = append(r.problems, fmt.Sprintf("invalid int for %s: %q", key, s))
	}
	return n
}
