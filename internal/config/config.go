// Package config loads server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Ledger backends
const (
	LedgerMemory   = "memory"
	LedgerPostgres = "postgres"
)

// DefaultProgramID is the vault program address used when none is configured
const DefaultProgramID = "5gs6aaY9ELfjVHKa7s8swkjLdAZgfnYMsGhm862rmkgN"

// Config holds all server settings
type Config struct {
	ProgramID string `env:"VAULT_PROGRAM_ID,default=5gs6aaY9ELfjVHKa7s8swkjLdAZgfnYMsGhm862rmkgN"`
	Ledger    string `env:"VAULT_LEDGER,default=memory"`
	DBConnStr string `env:"DB_CONN_STR"`

	GRPCAddr string `env:"GRPC_ADDR,default=:8080"`
	HTTPAddr string `env:"HTTP_ADDR,default=:9090"`
	APIToken string `env:"API_TOKEN,default=dev-token"`

	Env      string `env:"ENV,default=development"`
	LogLevel string `env:"LOG_LEVEL"`

	// RateLimit* bound each verified signer, PeerRateLimit* each connection
	RateLimitRPS       float64       `env:"RATE_LIMIT_RPS,default=5"`
	RateLimitBurst     int           `env:"RATE_LIMIT_BURST,default=10"`
	PeerRateLimitRPS   float64       `env:"PEER_RATE_LIMIT_RPS,default=50"`
	PeerRateLimitBurst int           `env:"PEER_RATE_LIMIT_BURST,default=100"`
	SignatureMaxAge    time.Duration `env:"SIGNATURE_MAX_AGE,default=2m"`

	SeedFixtures bool `env:"SEED_FIXTURES,default=false"`
}

// Load reads an optional .env file from envFile, then decodes the
// environment into a validated Config
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("failed to decode environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	if _, err := solana.PublicKeyFromBase58(c.ProgramID); err != nil {
		return fmt.Errorf("invalid VAULT_PROGRAM_ID %q: %w", c.ProgramID, err)
	}

	switch c.Ledger {
	case LedgerMemory:
	case LedgerPostgres:
		if c.DBConnStr == "" {
			return errors.New("DB_CONN_STR is required when VAULT_LEDGER=postgres")
		}
	default:
		return fmt.Errorf("invalid VAULT_LEDGER %q", c.Ledger)
	}

	if c.APIToken == "" {
		return errors.New("API_TOKEN must not be empty")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.PeerRateLimitRPS <= 0 || c.PeerRateLimitBurst <= 0 {
		return errors.New("PEER_RATE_LIMIT_RPS and PEER_RATE_LIMIT_BURST must be positive")
	}
	if c.SignatureMaxAge <= 0 {
		return errors.New("SIGNATURE_MAX_AGE must be positive")
	}

	return nil
}

// Program returns the configured program ID
func (c *Config) Program() solana.PublicKey {
	return solana.MustPublicKeyFromBase58(c.ProgramID)
}
