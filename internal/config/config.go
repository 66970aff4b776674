// Package config parses server configuration from flags with environment
// variable fallback. Secrets should come from the environment; flags exist
// for local development.
package config

import (
	"errors"
	"flag"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr           string
	DSN            string
	JWTKey         string
	AccessTTL      time.Duration
	SigningKeyFile string // RSA private key PEM for receipt signing

	SessionDuration   time.Duration
	SessionExtension  time.Duration
	MaxExtensions     int
	WarningThreshold  time.Duration
	CriticalThreshold time.Duration
	EnforceIP         bool

	OpensPerHour  int
	SweepInterval time.Duration

	Dev bool
}

// Parse validates flags and applies env fallbacks.
func Parse(args []string) (Config, error) {
	var cfg Config

	fs := flag.NewFlagSet("balota-server", flag.ContinueOnError)

	fs.StringVar(&cfg.Addr, "addr", "", "listen address")
	fs.StringVar(&cfg.DSN, "dsn", "", "PostgreSQL DSN")

	// Secrets (prefer env variables, but allow CLI for dev)
	fs.StringVar(&cfg.JWTKey, "jwt-key", "", "HS256 signing key (prefer env)")
	fs.StringVar(&cfg.SigningKeyFile, "signing-key", "", "receipt RSA private key PEM file")

	fs.DurationVar(&cfg.AccessTTL, "access-ttl", 15*time.Minute, "access token TTL")
	fs.DurationVar(&cfg.SessionDuration, "session-duration", 5*time.Minute, "base ballot session length")
	fs.DurationVar(&cfg.SessionExtension, "session-extension", 2*time.Minute, "length of one extension")
	fs.IntVar(&cfg.MaxExtensions, "max-extensions", 1, "extensions allowed per session")
	fs.DurationVar(&cfg.WarningThreshold, "warning-threshold", 2*time.Minute, "remaining time that triggers the warning flag")
	fs.DurationVar(&cfg.CriticalThreshold, "critical-threshold", 30*time.Second, "remaining time that triggers the critical flag")
	fs.BoolVar(&cfg.EnforceIP, "enforce-ip", false, "reject session continuation from a different IP")
	fs.IntVar(&cfg.OpensPerHour, "opens-per-hour", 10, "session opens allowed per voter per hour")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", time.Minute, "background expiry sweep interval")
	fs.BoolVar(&cfg.Dev, "dev", false, "dev mode: generate an ephemeral signing key if none is configured")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	// Fall back to environment variables.
	if cfg.Addr == "" {
		cfg.Addr = os.Getenv("BALOTA_ADDR")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.DSN == "" {
		cfg.DSN = os.Getenv("DATABASE_URL")
	}
	if cfg.DSN == "" {
		return Config{}, errors.New("database DSN required (use -dsn or DATABASE_URL env)")
	}
	if cfg.JWTKey == "" {
		cfg.JWTKey = os.Getenv("BALOTA_JWT_KEY")
	}
	if cfg.JWTKey == "" {
		return Config{}, errors.New("JWT signing key required (use -jwt-key or BALOTA_JWT_KEY env)")
	}
	if cfg.SigningKeyFile == "" {
		cfg.SigningKeyFile = os.Getenv("BALOTA_SIGNING_KEY")
	}
	if cfg.SigningKeyFile == "" && !cfg.Dev {
		return Config{}, errors.New("receipt signing key required (use -signing-key or BALOTA_SIGNING_KEY env)")
	}
	if v := os.Getenv("BALOTA_OPENS_PER_HOUR"); v != "" && !flagSet(fs, "opens-per-hour") {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, errors.New("invalid BALOTA_OPENS_PER_HOUR env variable")
		}
		cfg.OpensPerHour = n
	}

	if cfg.SessionDuration <= 0 || cfg.SessionExtension <= 0 {
		return Config{}, errors.New("session duration and extension must be positive")
	}
	if cfg.MaxExtensions < 0 {
		return Config{}, errors.New("max-extensions must not be negative")
	}

	return cfg, nil
}

// flagSet reports whether the named flag was passed explicitly.
func flagSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
