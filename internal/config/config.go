package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Chain registry
	ChainsFile string

	// Device settings
	MnemonicEnv   string
	PassphraseEnv string
	AccountCount  int
	DeviceLatency time.Duration

	// RPC settings
	DialTimeout time.Duration
	CallTimeout time.Duration

	// Sync settings
	FilterByBalance bool
	StateFile       string

	// Observability
	MetricsAddr string
	LogDir      string
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	return &Config{
		MnemonicEnv:   "LEDGER_SYNC_MNEMONIC",
		PassphraseEnv: "LEDGER_SYNC_PASSPHRASE",
		AccountCount:  5,
		DialTimeout:   10 * time.Second,
		CallTimeout:   30 * time.Second,
		StateFile:     "ledger-sync-state.json",
		LogDir:        "logs",
	}
}

// LoadFromEnvironment loads configuration from environment variables
func (c *Config) LoadFromEnvironment() {
	if chainsFile := os.Getenv("LEDGER_SYNC_CHAINS_FILE"); chainsFile != "" {
		c.ChainsFile = chainsFile
	}

	if count := os.Getenv("LEDGER_SYNC_ACCOUNT_COUNT"); count != "" {
		if n, err := strconv.Atoi(count); err == nil {
			c.AccountCount = n
		}
	}

	if latency := os.Getenv("LEDGER_SYNC_DEVICE_LATENCY_MS"); latency != "" {
		if ms, err := strconv.Atoi(latency); err == nil {
			c.DeviceLatency = time.Duration(ms) * time.Millisecond
		}
	}

	if timeout := os.Getenv("LEDGER_SYNC_DIAL_TIMEOUT"); timeout != "" {
		if s, err := strconv.Atoi(timeout); err == nil {
			c.DialTimeout = time.Duration(s) * time.Second
		}
	}

	if timeout := os.Getenv("LEDGER_SYNC_CALL_TIMEOUT"); timeout != "" {
		if s, err := strconv.Atoi(timeout); err == nil {
			c.CallTimeout = time.Duration(s) * time.Second
		}
	}

	if filter := os.Getenv("LEDGER_SYNC_FILTER_BY_BALANCE"); filter != "" {
		if b, err := strconv.ParseBool(filter); err == nil {
			c.FilterByBalance = b
		}
	}

	if stateFile := os.Getenv("LEDGER_SYNC_STATE_FILE"); stateFile != "" {
		c.StateFile = stateFile
	}

	if addr := os.Getenv("LEDGER_SYNC_METRICS_ADDR"); addr != "" {
		c.MetricsAddr = addr
	}

	if logDir := os.Getenv("LEDGER_SYNC_LOG_DIR"); logDir != "" {
		c.LogDir = logDir
	}
}

// Mnemonic reads the device mnemonic from the configured environment variable
func (c *Config) Mnemonic() (string, error) {
	mnemonic := os.Getenv(c.MnemonicEnv)
	if mnemonic == "" {
		return "", fmt.Errorf("missing environment variable %s", c.MnemonicEnv)
	}
	return mnemonic, nil
}

// Passphrase reads the optional BIP-39 passphrase
func (c *Config) Passphrase() string {
	return os.Getenv(c.PassphraseEnv)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.MnemonicEnv == "" {
		return fmt.Errorf("mnemonic environment variable name cannot be empty")
	}

	if c.AccountCount <= 0 {
		return fmt.Errorf("account count must be positive, got: %d", c.AccountCount)
	}

	if c.DialTimeout <= 0 {
		return fmt.Errorf("dial timeout must be positive, got: %v", c.DialTimeout)
	}

	if c.CallTimeout <= 0 {
		return fmt.Errorf("call timeout must be positive, got: %v", c.CallTimeout)
	}

	if c.DeviceLatency < 0 {
		return fmt.Errorf("device latency must be non-negative, got: %v", c.DeviceLatency)
	}

	if c.StateFile == "" {
		return fmt.Errorf("state file cannot be empty")
	}

	return nil
}
