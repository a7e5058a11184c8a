// Package config enables config file parsing.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"

	"github.com/shutter-network/SealedBidRFP/log"
)

// Config contains the CLI configuration.
type Config struct {
	Ledger  *LedgerConfig  `koanf:"ledger"`
	Shutter *ShutterConfig `koanf:"shutter"`
	Server  *ServerConfig  `koanf:"server"`
	Log     *LogConfig     `koanf:"log"`
	Metrics *MetricsConfig `koanf:"metrics"`
}

// Validate performs config validation.
func (cfg *Config) Validate() error {
	if cfg.Ledger == nil {
		return fmt.Errorf("ledger not configured")
	}
	if err := cfg.Ledger.Validate(); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	if cfg.Shutter == nil {
		return fmt.Errorf("shutter not configured")
	}
	if err := cfg.Shutter.Validate(); err != nil {
		return fmt.Errorf("shutter: %w", err)
	}
	if cfg.Server != nil {
		if err := cfg.Server.Validate(); err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}
	if cfg.Log != nil {
		if err := cfg.Log.Validate(); err != nil {
			return fmt.Errorf("log: %w", err)
		}
	}
	if cfg.Metrics != nil {
		if err := cfg.Metrics.Validate(); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	return nil
}

// LedgerConfig describes how to reach the RFP contract.
type LedgerConfig struct {
	// RPC is the JSON-RPC endpoint of a chain node.
	RPC string `koanf:"rpc"`

	// ContractAddress is the address of the sealed-bid RFP contract.
	ContractAddress string `koanf:"contract_address"`

	// ChainID is the EIP-155 chain id used when signing transactions.
	// Defaults to Gnosis Chain (100).
	ChainID int64 `koanf:"chain_id"`

	// PrivateKey is the hex-encoded secp256k1 key used to sign
	// transactions. When empty the client is read-only and every write
	// fails before reaching the node.
	PrivateKey string `koanf:"private_key"`

	// ConfirmationTimeout bounds the wait for a transaction to be mined.
	ConfirmationTimeout time.Duration `koanf:"confirmation_timeout"`
}

// Validate validates the ledger configuration.
func (cfg *LedgerConfig) Validate() error {
	if cfg.RPC == "" {
		return fmt.Errorf("malformed RPC endpoint '%s'", cfg.RPC)
	}
	if !ethCommon.IsHexAddress(cfg.ContractAddress) {
		return fmt.Errorf("malformed contract address '%s'", cfg.ContractAddress)
	}
	if cfg.ChainID == 0 {
		cfg.ChainID = 100
	}
	if cfg.ConfirmationTimeout == 0 {
		cfg.ConfirmationTimeout = 2 * time.Minute
	}
	return nil
}

// ShutterConfig describes how to reach the Shutter keyper API.
type ShutterConfig struct {
	// APIBase is the base URL of the Shutter API.
	APIBase string `koanf:"api_base"`

	// RegistryAddress is the identity registry passed along with every
	// Shutter API call.
	RegistryAddress string `koanf:"registry_address"`

	// RequestTimeout bounds every single Shutter API call.
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

// Validate validates the Shutter configuration.
func (cfg *ShutterConfig) Validate() error {
	if cfg.APIBase == "" {
		return fmt.Errorf("malformed API base URL '%s'", cfg.APIBase)
	}
	if !ethCommon.IsHexAddress(cfg.RegistryAddress) {
		return fmt.Errorf("malformed registry address '%s'", cfg.RegistryAddress)
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return nil
}

// ServerConfig contains the API server configuration.
type ServerConfig struct {
	// Endpoint is the service endpoint from which to serve the API.
	Endpoint string `koanf:"endpoint"`

	// ListBatchSize is how many RFPs one listing page fetches.
	ListBatchSize uint64 `koanf:"list_batch_size"`
}

// Validate validates the server configuration.
func (cfg *ServerConfig) Validate() error {
	if cfg.Endpoint == "" {
		return fmt.Errorf("malformed server endpoint '%s'", cfg.Endpoint)
	}
	if cfg.ListBatchSize == 0 {
		cfg.ListBatchSize = 5
	}
	return nil
}

// LogConfig contains the logging configuration.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
	File   string `koanf:"file"`
}

// Validate validates the logging configuration.
func (cfg *LogConfig) Validate() error {
	var format log.Format
	if err := format.Set(cfg.Format); err != nil {
		return err
	}
	var level log.Level
	return level.Set(cfg.Level)
}

// MetricsConfig contains the metrics configuration.
type MetricsConfig struct {
	PullEndpoint string `koanf:"pull_endpoint"`
}

// Validate validates the metrics configuration.
func (cfg *MetricsConfig) Validate() error {
	if cfg.PullEndpoint == "" {
		return fmt.Errorf("malformed Prometheus pull endpoint '%s'", cfg.PullEndpoint)
	}
	return nil
}

// InitConfig initializes configuration from file.
func InitConfig(f string) (*Config, error) {
	// A .env file, when present, seeds the process environment before the
	// env provider runs.
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("loading .env: %w", err)
		}
	}

	var config Config
	k := koanf.New(".")

	// Load configuration from the yaml config.
	if err := k.Load(file.Provider(f), yaml.Parser()); err != nil {
		return nil, err
	}

	// Load environment variables and merge into the loaded config.
	if err := k.Load(env.Provider("", ".", func(s string) string {
		// `__` is used as a hierarchy delimiter.
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	// Unmarshal into config.
	if err := k.Unmarshal("", &config); err != nil {
		return nil, err
	}

	// Validate config.
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}
