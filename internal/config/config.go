// Package config loads client and service settings from the environment,
// an optional .env file and an optional YAML file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ashendes/paygate/internal/apierr"
	"github.com/ashendes/paygate/internal/patterns"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. PAYGATE_API_URL.
const EnvPrefix = "PAYGATE"

// CircuitConfig mirrors patterns.CircuitSettings
type CircuitConfig struct {
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

// BulkheadConfig sizes the outbound bulkhead
type BulkheadConfig struct {
	Size int           `mapstructure:"size"`
	Wait time.Duration `mapstructure:"wait"`
}

// ServerConfig is used by the gin binaries
type ServerConfig struct {
	Port string `mapstructure:"port"`
}

// SandboxConfig tunes the sandbox gateway binary
type SandboxConfig struct {
	Port        string        `mapstructure:"port"`
	PublicKey   string        `mapstructure:"public_key"`
	FailureRate float64       `mapstructure:"failure_rate"`
	SlowMin     time.Duration `mapstructure:"slow_min"`
	SlowMax     time.Duration `mapstructure:"slow_max"`
}

// MerchantConfig tunes the merchant service binary
type MerchantConfig struct {
	Currency string `mapstructure:"currency"`
}

// Config holds every setting of the client and the bundled services.
type Config struct {
	PrivateKey string            `mapstructure:"private_key"`
	APIURL     string            `mapstructure:"api_url"`
	APIVersion string            `mapstructure:"api_version"`
	Locale     string            `mapstructure:"locale"`
	Timeout    time.Duration     `mapstructure:"timeout"`
	Debug      bool              `mapstructure:"debug"`
	LogLevel   string            `mapstructure:"log_level"`
	Circuit    CircuitConfig     `mapstructure:"circuit"`
	Bulkhead   BulkheadConfig    `mapstructure:"bulkhead"`
	ErrorCodes map[string]string `mapstructure:"error_codes"`
	Server     ServerConfig      `mapstructure:"server"`
	Sandbox    SandboxConfig     `mapstructure:"sandbox"`
	Merchant   MerchantConfig    `mapstructure:"merchant"`
}

func setDefaults(v *viper.Viper) {
	cs := patterns.DefaultCircuitSettings()

	v.SetDefault("private_key", "")
	v.SetDefault("api_url", "http://localhost:8082")
	v.SetDefault("api_version", "v1")
	v.SetDefault("locale", "en_US")
	v.SetDefault("timeout", patterns.DefaultTimeout)
	v.SetDefault("debug", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("circuit.max_requests", cs.MaxRequests)
	v.SetDefault("circuit.interval", cs.Interval)
	v.SetDefault("circuit.timeout", cs.Timeout)
	v.SetDefault("circuit.failure_ratio", cs.FailureRatio)
	v.SetDefault("circuit.min_requests", cs.MinRequests)
	v.SetDefault("bulkhead.size", 10)
	v.SetDefault("bulkhead.wait", time.Second)
	v.SetDefault("server.port", "8080")
	v.SetDefault("sandbox.port", "8082")
	v.SetDefault("sandbox.public_key", "s-pub-sandbox")
	v.SetDefault("sandbox.failure_rate", 0.4)
	v.SetDefault("sandbox.slow_min", 5*time.Second)
	v.SetDefault("sandbox.slow_max", 10*time.Second)
	v.SetDefault("merchant.currency", "EUR")
	for sym, code := range apierr.DefaultWireCodes() {
		v.SetDefault("error_codes."+strings.ToLower(string(sym)), code)
	}
}

// Load reads .env (when present), the YAML file named by PAYGATE_CONFIG
// (when set) and PAYGATE_* environment variables, in rising precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Could not read .env file, relying on environment")
	}
	return LoadFile(os.Getenv(EnvPrefix + "_CONFIG"))
}

// LoadFile is Load without .env handling; an empty path skips the file.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings a gateway client cannot run without.
func (c *Config) Validate() error {
	if c.PrivateKey == "" {
		return fmt.Errorf("%s_PRIVATE_KEY is required", EnvPrefix)
	}
	if c.APIURL == "" {
		return fmt.Errorf("%s_API_URL is required", EnvPrefix)
	}
	if c.Circuit.FailureRatio <= 0 || c.Circuit.FailureRatio > 1 {
		return fmt.Errorf("circuit.failure_ratio must be in (0,1], got %v", c.Circuit.FailureRatio)
	}
	return nil
}

// CircuitSettings converts the circuit section
func (c *Config) CircuitSettings() patterns.CircuitSettings {
	return patterns.CircuitSettings{
		MaxRequests:  c.Circuit.MaxRequests,
		Interval:     c.Circuit.Interval,
		Timeout:      c.Circuit.Timeout,
		FailureRatio: c.Circuit.FailureRatio,
		MinRequests:  c.Circuit.MinRequests,
	}
}

// CodeTable builds the wire-code table from the error_codes section.
func (c *Config) CodeTable() *apierr.CodeTable {
	overrides := make(map[apierr.Symbol]string, len(c.ErrorCodes))
	for name, code := range c.ErrorCodes {
		overrides[apierr.Symbol(strings.ToUpper(name))] = code
	}
	return apierr.NewCodeTable(overrides)
}

// ConfigureLogging switches logrus to JSON output at the configured level.
func (c *Config) ConfigureLogging() {
	log.SetFormatter(&log.JSONFormatter{})
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	if c.Debug && level < log.DebugLevel {
		level = log.DebugLevel
	}
	log.SetLevel(level)
}
