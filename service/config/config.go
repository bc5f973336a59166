package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DefaultGoldMint is the GOLD token mint used when GOLD_MINT_ADDRESS is unset.
	DefaultGoldMint = "GoLDppdjB1vDTPSGxyMJFqdnj134yH6Prg9eqsGDiw6A"

	defaultRPCURLs = "https://api.mainnet-beta.solana.com,https://solana-api.projectserum.com"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Ledger storage. DatabaseURL selects Postgres; otherwise LedgerDir is used.
	DatabaseURL string
	LedgerDir   string

	// NATS configuration (empty disables event publishing)
	NATSURL string

	// Solana RPC endpoints, tried in order
	SolanaRPCURLs           []string
	RPCMaxAttempts          int
	BreakerFailureThreshold int
	BreakerCooldown         time.Duration

	// Balance polling
	BalancePollInterval time.Duration
	BalanceMaxBackoff   time.Duration

	// Transaction confirmation
	ConfirmPollInterval time.Duration
	ConfirmMaxAttempts  int

	// Wallet switching
	WalletSwitchDelay time.Duration

	// GOLD token and program accounts
	GoldMintAddress     string
	GoldDecimals        int
	StakeVaultAddress   string
	SwapTreasuryAddress string
	SwapRate            decimal.Decimal // GOLD received per SOL

	// Price relay
	PriceAPIURL       string
	PriceSymbols      []string
	PricePushInterval time.Duration
	WSAuthToken       string

	// RPC proxy
	ProxyRateLimit int // requests per second per client, 0 disables

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.LedgerDir = getEnvOrDefault("LEDGER_DIR", "./data/ledger")

	cfg.NATSURL = os.Getenv("NATS_URL")

	cfg.SolanaRPCURLs = parseList("SOLANA_RPC_URLS", defaultRPCURLs)
	if len(cfg.SolanaRPCURLs) == 0 {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URLS must list at least one endpoint"))
	}

	var err error
	if cfg.RPCMaxAttempts, err = parseInt("RPC_MAX_ATTEMPTS", 2); err != nil {
		errs = append(errs, err)
	}
	if cfg.BreakerFailureThreshold, err = parseInt("BREAKER_FAILURE_THRESHOLD", 3); err != nil {
		errs = append(errs, err)
	}
	if cfg.BreakerCooldown, err = parseDuration("BREAKER_COOLDOWN", "30s"); err != nil {
		errs = append(errs, err)
	}

	if cfg.BalancePollInterval, err = parseDuration("BALANCE_POLL_INTERVAL", "5s"); err != nil {
		errs = append(errs, err)
	}
	if cfg.BalanceMaxBackoff, err = parseDuration("BALANCE_MAX_BACKOFF", "2m"); err != nil {
		errs = append(errs, err)
	}

	if cfg.ConfirmPollInterval, err = parseDuration("CONFIRM_POLL_INTERVAL", "1s"); err != nil {
		errs = append(errs, err)
	}
	if cfg.ConfirmMaxAttempts, err = parseInt("CONFIRM_MAX_ATTEMPTS", 30); err != nil {
		errs = append(errs, err)
	}

	if cfg.WalletSwitchDelay, err = parseDuration("WALLET_SWITCH_DELAY", "200ms"); err != nil {
		errs = append(errs, err)
	}

	cfg.GoldMintAddress = getEnvOrDefault("GOLD_MINT_ADDRESS", DefaultGoldMint)
	if cfg.GoldDecimals, err = parseInt("GOLD_DECIMALS", 6); err != nil {
		errs = append(errs, err)
	}
	cfg.StakeVaultAddress = os.Getenv("STAKE_VAULT_ADDRESS")
	cfg.SwapTreasuryAddress = os.Getenv("SWAP_TREASURY_ADDRESS")

	rate := getEnvOrDefault("SWAP_RATE", "1000")
	if cfg.SwapRate, err = decimal.NewFromString(rate); err != nil {
		errs = append(errs, fmt.Errorf("SWAP_RATE: invalid decimal %q: %w", rate, err))
	}

	cfg.PriceAPIURL = getEnvOrDefault("PRICE_API_URL", "https://api.jup.ag/price/v2")
	cfg.PriceSymbols = parseList("PRICE_SYMBOLS", "SOL,GOLD")
	if cfg.PricePushInterval, err = parseDuration("PRICE_PUSH_INTERVAL", "5s"); err != nil {
		errs = append(errs, err)
	}
	cfg.WSAuthToken = os.Getenv("WS_AUTH_TOKEN")

	if cfg.ProxyRateLimit, err = parseInt("PROXY_RATE_LIMIT", 20); err != nil {
		errs = append(errs, err)
	}

	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "goldium-confirmations")

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if len(c.SolanaRPCURLs) == 0 {
		errs = append(errs, fmt.Errorf("SolanaRPCURLs must not be empty"))
	}

	if c.RPCMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("RPCMaxAttempts must be at least 1"))
	}

	if c.BreakerFailureThreshold < 1 {
		errs = append(errs, fmt.Errorf("BreakerFailureThreshold must be at least 1"))
	}

	if c.BalancePollInterval < time.Second {
		errs = append(errs, fmt.Errorf("BalancePollInterval must be at least 1 second"))
	}

	if c.BalanceMaxBackoff < c.BalancePollInterval {
		errs = append(errs, fmt.Errorf("BalanceMaxBackoff cannot be less than BalancePollInterval"))
	}

	if c.ConfirmMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("ConfirmMaxAttempts must be at least 1"))
	}

	if c.ConfirmPollInterval <= 0 {
		errs = append(errs, fmt.Errorf("ConfirmPollInterval must be positive"))
	}

	if c.WalletSwitchDelay < 0 {
		errs = append(errs, fmt.Errorf("WalletSwitchDelay cannot be negative"))
	}

	if c.GoldMintAddress == "" {
		errs = append(errs, fmt.Errorf("GoldMintAddress is required"))
	}

	if c.GoldDecimals < 0 || c.GoldDecimals > 12 {
		errs = append(errs, fmt.Errorf("GoldDecimals must be between 0 and 12"))
	}

	if !c.SwapRate.IsPositive() {
		errs = append(errs, fmt.Errorf("SwapRate must be positive"))
	}

	if c.PricePushInterval < time.Second {
		errs = append(errs, fmt.Errorf("PricePushInterval must be at least 1 second"))
	}

	if c.ProxyRateLimit < 0 {
		errs = append(errs, fmt.Errorf("ProxyRateLimit cannot be negative"))
	}

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

// parseList splits a comma separated environment variable, dropping blanks.
func parseList(key, defaultValue string) []string {
	raw := getEnvOrDefault(key, defaultValue)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
