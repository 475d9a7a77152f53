package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/core-coin/go-core/v2/common"
	"github.com/joho/godotenv"
)

type Config struct {
	Development bool
	// API configuration
	APIPort    int
	AdminToken string
	// Postgres configuration
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	// Blockchain configuration
	SmartContractAddress string
	BlockchainServiceURL string
	NetworkID            *big.Int
	RPCTimeout           time.Duration

	// Redis configuration, empty address disables the merchant cache
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Notification configuration
	WebhookTimeout    time.Duration
	TelegramBotToken  string
	TelegramOpsChatID string

	// Background jobs
	SweepInterval           time.Duration
	RenewalReminderInterval time.Duration
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Development:             getEnvAsBool("DEVELOPMENT", false),
		PostgresUser:            getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword:        getEnv("POSTGRES_PASSWORD", "password"),
		PostgresHost:            getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:            getEnvAsInt("POSTGRES_PORT", 5432),
		PostgresDB:              getEnv("POSTGRES_DB", "solvere"),
		SmartContractAddress:    getEnv("SMART_CONTRACT_ADDRESS", ""),
		BlockchainServiceURL:    getEnv("BLOCKCHAIN_SERVICE_URL", "http://localhost:8545"),
		NetworkID:               getEnvAsBigInt("NETWORK_ID", big.NewInt(1)), // Default to Mainnet ID
		RPCTimeout:              getEnvAsDuration("RPC_TIMEOUT", 10*time.Second),
		RedisAddr:               getEnv("REDIS_ADDR", ""),
		RedisPassword:           getEnv("REDIS_PASSWORD", ""),
		RedisDB:                 getEnvAsInt("REDIS_DB", 0),
		WebhookTimeout:          getEnvAsDuration("WEBHOOK_TIMEOUT", 10*time.Second),
		TelegramBotToken:        getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramOpsChatID:       getEnv("TELEGRAM_OPS_CHAT_ID", ""),
		SweepInterval:           getEnvAsDuration("SWEEP_INTERVAL", 5*time.Minute),
		RenewalReminderInterval: getEnvAsDuration("RENEWAL_REMINDER_INTERVAL", 0),

		APIPort:    getEnvAsInt("API_PORT", 6532),
		AdminToken: getEnv("ADMIN_TOKEN", ""),
	}

	// Set default network ID before validation (required for address validation)
	common.DefaultNetworkID = common.NetworkID(cfg.NetworkID.Int64())

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are properly set
func (c *Config) Validate() error {
	if c.SmartContractAddress == "" {
		return fmt.Errorf("SMART_CONTRACT_ADDRESS is required")
	}

	// Validate smart contract address format
	if _, err := common.HexToAddress(c.SmartContractAddress); err != nil {
		return fmt.Errorf("invalid SMART_CONTRACT_ADDRESS format: %w", err)
	}

	if c.BlockchainServiceURL == "" {
		return fmt.Errorf("BLOCKCHAIN_SERVICE_URL is required")
	}

	if c.PostgresDB == "" {
		return fmt.Errorf("POSTGRES_DB is required")
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}

	if c.RPCTimeout <= 0 {
		return fmt.Errorf("RPC_TIMEOUT must be positive")
	}

	if c.WebhookTimeout <= 0 {
		return fmt.Errorf("WEBHOOK_TIMEOUT must be positive")
	}

	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}

	if c.RenewalReminderInterval < 0 {
		return fmt.Errorf("RENEWAL_REMINDER_INTERVAL cannot be negative")
	}

	if c.TelegramOpsChatID != "" && c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required when TELEGRAM_OPS_CHAT_ID is set")
	}

	return nil
}

// Helper functions to read environment variables
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(name string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBigInt(name string, defaultValue *big.Int) *big.Int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, ok := new(big.Int).SetString(valueStr, 10); ok {
			return value
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go duration strings ("30s", "5m") or plain seconds.
func getEnvAsDuration(name string, defaultValue time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(name)
	if !exists {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	if seconds, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
