package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Telegram   TelegramConfig   `yaml:"telegram"`
	Blockchain BlockchainConfig `yaml:"blockchain"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
}

// TelegramConfig bot transport configuration
type TelegramConfig struct {
	Token string `yaml:"token"`
	// Long-poll timeout in seconds
	PollTimeout int `yaml:"pollTimeout"`
}

// BlockchainConfig chain and contract configuration
type BlockchainConfig struct {
	Network         string   `yaml:"network"`
	ChainID         int64    `yaml:"chainId"`
	RPCEndpoints    []string `yaml:"rpcEndpoints"`
	LotteryContract string   `yaml:"lotteryContract"`
	ExplorerBaseURL string   `yaml:"explorerBaseUrl"`

	// GasPrice overrides SuggestGasPrice when set ("auto" or empty = suggest)
	GasPrice string `yaml:"gasPrice"`
	// GasLimit for contract calls; 0 estimates per call with a margin.
	// Plain transfers always use 21000.
	GasLimit uint64 `yaml:"gasLimit"`
	// ReceiptTimeout bounds the wait for a mined receipt, in seconds
	ReceiptTimeout int `yaml:"receiptTimeout"`
}

// ServerConfig ops HTTP server configuration (health + metrics)
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LogConfig logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads the configuration file, applies environment overrides and
// fills defaults. The file may be absent when every required value comes
// from the environment.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		cfg.Telegram.Token = token
	}
	if rpc := os.Getenv("RPC_ENDPOINT"); rpc != "" {
		cfg.Blockchain.RPCEndpoints = []string{rpc}
	}
	if contract := os.Getenv("LOTTERY_CONTRACT"); contract != "" {
		cfg.Blockchain.LotteryContract = contract
	}
	if chainID := os.Getenv("CHAIN_ID"); chainID != "" {
		if id, err := strconv.ParseInt(chainID, 10, 64); err == nil {
			cfg.Blockchain.ChainID = id
		}
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Telegram.PollTimeout == 0 {
		cfg.Telegram.PollTimeout = 30
	}
	if cfg.Blockchain.Network == "" {
		cfg.Blockchain.Network = "polygon-mumbai"
	}
	if cfg.Blockchain.ChainID == 0 {
		cfg.Blockchain.ChainID = 80001
	}
	if cfg.Blockchain.ExplorerBaseURL == "" {
		cfg.Blockchain.ExplorerBaseURL = "https://mumbai.polygonscan.com/tx/"
	}
	if cfg.Blockchain.ReceiptTimeout == 0 {
		cfg.Blockchain.ReceiptTimeout = 90
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// Validate checks the values the bot cannot run without.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram token is not configured (set telegram.token or TELEGRAM_BOT_TOKEN)")
	}
	if len(c.Blockchain.RPCEndpoints) == 0 {
		return fmt.Errorf("no RPC endpoints configured (set blockchain.rpcEndpoints or RPC_ENDPOINT)")
	}
	if c.Blockchain.LotteryContract == "" {
		return fmt.Errorf("lottery contract address is not configured")
	}
	return nil
}
