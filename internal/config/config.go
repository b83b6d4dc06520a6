// Package config loads the service configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"time"

	"raffle/internal/logger"
	"raffle/internal/raffle"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	OracleLocal = "local"
	OracleBLS   = "bls"
)

type Config struct {
	Raffle   RaffleConfig   `envPrefix:"RAFFLE_"`
	Oracle   OracleConfig   `envPrefix:"ORACLE_"`
	Upkeep   UpkeepConfig   `envPrefix:"UPKEEP_"`
	HTTP     HTTPConfig     `envPrefix:"HTTP_"`
	Database DatabaseConfig `envPrefix:"DATABASE_"`
	Log      LogConfig      `envPrefix:"LOG_"`
}

type RaffleConfig struct {
	// EntranceFee is a base-10 integer in the smallest currency unit.
	EntranceFee string        `env:"ENTRANCE_FEE" envDefault:"10000000000000000"`
	Interval    time.Duration `env:"INTERVAL" envDefault:"30s"`
	DrawTimeout time.Duration `env:"DRAW_TIMEOUT" envDefault:"0s"`
}

type OracleConfig struct {
	Kind                 string        `env:"KIND" envDefault:"local"`
	Delay                time.Duration `env:"DELAY" envDefault:"2s"`
	KeyHash              string        `env:"KEY_HASH"`
	SubscriptionID       uint64        `env:"SUBSCRIPTION_ID"`
	CallbackGasLimit     uint32        `env:"CALLBACK_GAS_LIMIT" envDefault:"500000"`
	RequestConfirmations uint16        `env:"REQUEST_CONFIRMATIONS" envDefault:"3"`
	NumWords             uint32        `env:"NUM_WORDS" envDefault:"1"`
	BLSPrivateKey        string        `env:"BLS_PRIVATE_KEY"`
}

type UpkeepConfig struct {
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"5s"`
}

type HTTPConfig struct {
	Addr        string `env:"ADDR" envDefault:":8080"`
	AdminToken  string `env:"ADMIN_TOKEN"`
	OracleToken string `env:"ORACLE_TOKEN"`
}

type DatabaseConfig struct {
	Path string `env:"PATH" envDefault:"persistent.db"`
}

type LogConfig struct {
	File      string `env:"FILE"`
	ErrorFile string `env:"ERROR_FILE"`
	Level     string `env:"LEVEL" envDefault:"info"`
	Console   bool   `env:"CONSOLE" envDefault:"true"`
}

// Load reads envFile into the process environment when it exists and parses
// the result. A missing envFile is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return Parse(nil)
}

// Parse builds a Config from environment, or from the process environment
// when environment is nil.
func Parse(environment map[string]string) (*Config, error) {
	var c Config
	if err := env.ParseWithOptions(&c, env.Options{Environment: environment}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if _, err := c.EntranceFee(); err != nil {
		return err
	}
	if c.Raffle.Interval <= 0 {
		return errors.New("config: RAFFLE_INTERVAL must be positive")
	}
	if c.Raffle.DrawTimeout < 0 {
		return errors.New("config: RAFFLE_DRAW_TIMEOUT must not be negative")
	}
	if c.Upkeep.PollInterval <= 0 {
		return errors.New("config: UPKEEP_POLL_INTERVAL must be positive")
	}
	switch c.Oracle.Kind {
	case OracleLocal:
	case OracleBLS:
		if c.Oracle.BLSPrivateKey == "" {
			return errors.New("config: ORACLE_BLS_PRIVATE_KEY is required for the bls oracle")
		}
	default:
		return fmt.Errorf("config: unknown ORACLE_KIND %q", c.Oracle.Kind)
	}
	return nil
}

func (c *Config) EntranceFee() (*big.Int, error) {
	fee, ok := new(big.Int).SetString(c.Raffle.EntranceFee, 10)
	if !ok || fee.Sign() <= 0 {
		return nil, fmt.Errorf("config: RAFFLE_ENTRANCE_FEE must be a positive integer, got %q", c.Raffle.EntranceFee)
	}
	return fee, nil
}

func (c *Config) RaffleConfig() (raffle.Config, error) {
	fee, err := c.EntranceFee()
	if err != nil {
		return raffle.Config{}, err
	}
	return raffle.Config{
		EntranceFee: fee,
		Interval:    c.Raffle.Interval,
		DrawTimeout: c.Raffle.DrawTimeout,
		Oracle: raffle.OracleRequest{
			KeyHash:              c.Oracle.KeyHash,
			SubscriptionID:       c.Oracle.SubscriptionID,
			RequestConfirmations: c.Oracle.RequestConfirmations,
			CallbackGasLimit:     c.Oracle.CallbackGasLimit,
			NumWords:             c.Oracle.NumWords,
		},
	}, nil
}

func (c *Config) LoggerConfiguration() logger.Configuration {
	return logger.Configuration{
		LogFile:   c.Log.File,
		ErrorFile: c.Log.ErrorFile,
		Level:     c.Log.Level,
		Console:   c.Log.Console,
	}
}
